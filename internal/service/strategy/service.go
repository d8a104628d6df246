package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"chainless-core/internal/model"
	"chainless-core/internal/service/chain"
	"chainless-core/internal/service/role"
	"chainless-core/internal/service/saga"
	"chainless-core/internal/service/secret"
	"chainless-core/internal/service/threshold"
	"chainless-core/pkg/errno"
	"chainless-core/pkg/logger"
)

type Service struct {
	db                *gorm.DB
	exec              *saga.Executor
	pending           *PendingKeyStore
	defaultSubaccount decimal.Decimal
	now               func() time.Time
}

func NewService(db *gorm.DB, exec *saga.Executor, pending *PendingKeyStore, defaultSubaccountLimit decimal.Decimal) *Service {
	return &Service{
		db:                db,
		exec:              exec,
		pending:           pending,
		defaultSubaccount: defaultSubaccountLimit,
		now:               time.Now,
	}
}

// mutation 一次改动策略的管理操作
type mutation struct {
	op    model.OperationType
	role  model.Role
	gated bool // 需要账户下没有未结束的转账
	apply func(tx *gorm.DB, rc *role.Context) ([]model.ChainStep, error)
}

// mutate 在一个事务里校验角色、修改策略并写入管理记录，提交后再调用链
func (s *Service) mutate(ctx context.Context, actor role.Actor, m mutation) (*model.WalletManageRecord, error) {
	var rec *model.WalletManageRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rc, err := role.Load(tx, actor, role.LockUpdate)
		if err != nil {
			return err
		}
		if err := rc.RequireStrategy(); err != nil {
			return err
		}
		if err := rc.Require(m.role); err != nil {
			return err
		}
		if m.gated {
			idle, err := threshold.HasNoInFlightTransaction(tx, rc.Strategy, s.now())
			if err != nil {
				return err
			}
			if !idle {
				return errno.ErrStrategyLocked
			}
		}

		operator := rc.HoldPubkey()
		before := rc.Strategy.Snapshot()
		custody, err := saga.CaptureCustody(tx, actor.UserID)
		if err != nil {
			return err
		}
		steps, err := m.apply(tx, rc)
		if err != nil {
			return err
		}
		changed, err := custody.Changes(tx)
		if err != nil {
			return err
		}
		rc.Strategy.Version++
		if err := tx.Save(rc.Strategy).Error; err != nil {
			return err
		}

		rec = &model.WalletManageRecord{
			UserID:              actor.UserID,
			AccountID:           rc.Strategy.AccountID,
			OperationType:       m.op,
			OperatorPubkey:      operator,
			OperatorDeviceID:    actor.DeviceID,
			OperatorDeviceBrand: actor.DeviceBrand,
			Steps:               steps,
			Before:              before,
			After:               rc.Strategy.Snapshot(),
			Custody:             changed,
		}
		return saga.Begin(tx, rec)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("策略已修改",
		zap.String("record_id", rec.RecordID),
		zap.String("account_id", rec.AccountID),
		zap.String("operation", string(m.op)),
	)
	return s.launch(ctx, rec)
}

// launch 提交链上步骤，超时原样返回给调用方，其他错误交给对账任务重试
func (s *Service) launch(ctx context.Context, rec *model.WalletManageRecord) (*model.WalletManageRecord, error) {
	if err := s.exec.Advance(ctx, rec.RecordID); err != nil {
		if errors.Is(err, errno.ErrExternalCallTimedOut) {
			return rec, err
		}
		logger.Warn("链上调用失败，等待对账重试", zap.String("record_id", rec.RecordID), zap.Error(err))
	}
	var cur model.WalletManageRecord
	if err := s.db.WithContext(ctx).Where("record_id = ?", rec.RecordID).First(&cur).Error; err != nil {
		logger.Warn("重新读取管理记录失败", zap.String("record_id", rec.RecordID), zap.Error(err))
		return rec, nil
	}
	return &cur, nil
}

// CreateAccountRequest 创建主账户时上传主设备和第一个子账户的密钥
type CreateAccountRequest struct {
	Master        secret.KeyMaterial
	Subaccount    secret.KeyMaterial
	AnswerIndexes string
}

// CreateMainAccount 当前设备成为主设备，账户 id 即主设备公钥
func (s *Service) CreateMainAccount(ctx context.Context, actor role.Actor, req CreateAccountRequest) (*model.WalletManageRecord, error) {
	if req.Master.Pubkey == req.Subaccount.Pubkey {
		return nil, errno.ErrRequestParamInvalid.WithMessage("subaccount pubkey equals master pubkey")
	}

	var rec *model.WalletManageRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rc, err := role.Load(tx, actor, role.LockNone)
		if err != nil {
			return err
		}
		if rc.User.MainAccount != nil {
			return errno.ErrMainAccountExist
		}
		custody, err := saga.CaptureCustody(tx, actor.UserID)
		if err != nil {
			return err
		}

		if err := secret.StoreKeyTx(tx, actor.UserID, req.Master); err != nil {
			return err
		}
		if err := secret.StoreKeyTx(tx, actor.UserID, req.Subaccount); err != nil {
			return err
		}

		st := &model.Strategy{
			AccountID:      req.Master.Pubkey,
			UserID:         actor.UserID,
			MasterPubkey:   req.Master.Pubkey,
			ServantPubkeys: []string{},
			ServantBackups: []model.ServantBackup{},
			MultiSigRanks:  threshold.DefaultRanks(),
			Subaccounts: map[string]model.SubaccountConfig{
				req.Subaccount.Pubkey: {Pubkey: req.Subaccount.Pubkey, HoldValueLimit: s.defaultSubaccount},
			},
			Version: 1,
		}
		if err := tx.Create(st).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errno.ErrMainAccountExist
			}
			return err
		}

		if err := tx.Model(rc.User).Updates(map[string]interface{}{
			"main_account":   st.AccountID,
			"answer_indexes": req.AnswerIndexes,
		}).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return errno.ErrMainAccountExist
			}
			return err
		}
		if err := holdKey(tx, rc.Device.ID, &st.MasterPubkey); err != nil {
			return err
		}
		changed, err := custody.Changes(tx)
		if err != nil {
			return err
		}

		rec = &model.WalletManageRecord{
			UserID:              actor.UserID,
			AccountID:           st.AccountID,
			OperationType:       model.OpCreateAccount,
			OperatorPubkey:      st.MasterPubkey,
			OperatorDeviceID:    actor.DeviceID,
			OperatorDeviceBrand: actor.DeviceBrand,
			Steps: []model.ChainStep{{
				Method: chain.MethodInitStrategy,
				Args: map[string]string{
					"master":     st.MasterPubkey,
					"subaccount": req.Subaccount.Pubkey,
					"hold_limit": s.defaultSubaccount.String(),
				},
			}},
			After:   st.Snapshot(),
			Custody: changed,
		}
		return saga.Begin(tx, rec)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("主账户已创建", zap.Uint64("user_id", actor.UserID), zap.String("account_id", rec.AccountID))
	return s.launch(ctx, rec)
}

// GetStrategy 查询账户策略
func (s *Service) GetStrategy(ctx context.Context, accountID string) (*model.Strategy, error) {
	return role.LockStrategy(s.db.WithContext(ctx), accountID, role.LockNone)
}

// GetNeedSigNum 转账金额需要的从设备签名数
func (s *Service) GetNeedSigNum(ctx context.Context, accountID string, coin model.CoinType, amount decimal.Decimal) (uint8, error) {
	if err := model.CheckAmount(amount); err != nil {
		return 0, err
	}
	st, err := s.GetStrategy(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return threshold.RequiredSignatures(st, coin, amount), nil
}

// DeviceView 设备及其当前角色
type DeviceView struct {
	model.Device
	Role model.Role `json:"role"`
}

// DeviceList 当前用户的所有设备
func (s *Service) DeviceList(ctx context.Context, actor role.Actor) ([]DeviceView, error) {
	rc, err := role.Load(s.db.WithContext(ctx), actor, role.LockNone)
	if err != nil {
		return nil, err
	}
	var devices []model.Device
	if err := s.db.WithContext(ctx).Where("user_id = ?", actor.UserID).Order("id").Find(&devices).Error; err != nil {
		return nil, err
	}
	out := make([]DeviceView, 0, len(devices))
	for _, d := range devices {
		out = append(out, DeviceView{Device: d, Role: role.ResolveRole(rc.Strategy, d.HoldPubkey)})
	}
	return out, nil
}

// PutPendingKey 新设备上传待添加的密钥
func (s *Service) PutPendingKey(ctx context.Context, actor role.Actor, key PendingKey) error {
	key.DeviceID = actor.DeviceID
	return s.pending.Put(ctx, actor.UserID, key)
}

// PendingPubkeys 等待主设备添加的公钥
func (s *Service) PendingPubkeys(ctx context.Context, actor role.Actor) ([]string, error) {
	return s.pending.Pubkeys(ctx, actor.UserID)
}

// AddServantRequest 密文为空时从待添加列表中取
type AddServantRequest struct {
	Pubkey              string
	HolderDeviceID      string
	EncryptedByPassword string
	EncryptedByAnswer   string
}

// AddServant 主设备添加从设备，不受未结束转账限制
func (s *Service) AddServant(ctx context.Context, actor role.Actor, req AddServantRequest) (*model.WalletManageRecord, error) {
	fromPending := req.EncryptedByPassword == "" && req.EncryptedByAnswer == ""
	if fromPending {
		pk, err := s.pending.Find(ctx, actor.UserID, req.Pubkey)
		if err != nil {
			return nil, err
		}
		req.EncryptedByPassword = pk.EncryptedByPassword
		req.EncryptedByAnswer = pk.EncryptedByAnswer
		if req.HolderDeviceID == "" {
			req.HolderDeviceID = pk.DeviceID
		}
	}
	key := secret.KeyMaterial{
		Pubkey:              req.Pubkey,
		EncryptedByPassword: req.EncryptedByPassword,
		EncryptedByAnswer:   req.EncryptedByAnswer,
	}

	rec, err := s.mutate(ctx, actor, mutation{
		op:   model.OpAddServant,
		role: model.RoleMaster,
		apply: func(tx *gorm.DB, rc *role.Context) ([]model.ChainStep, error) {
			st := rc.Strategy
			if req.Pubkey == st.MasterPubkey || st.HasServant(req.Pubkey) {
				return nil, errno.ErrAlreadyServant
			}
			if _, ok := st.Subaccounts[req.Pubkey]; ok {
				return nil, errno.ErrAlreadyServant
			}

			holder, err := findDevice(tx, actor.UserID, req.HolderDeviceID)
			if err != nil {
				return nil, err
			}
			if role.ResolveRole(st, holder.HoldPubkey) != model.RoleUndefined {
				return nil, errno.ErrAlreadyServant.WithMessage("holder device already holds an account key")
			}

			if err := secret.StoreKeyTx(tx, actor.UserID, key); err != nil {
				return nil, err
			}
			if err := holdKey(tx, holder.ID, &req.Pubkey); err != nil {
				return nil, err
			}

			st.ServantPubkeys = append(st.ServantPubkeys, req.Pubkey)
			st.ServantBackups = append(st.ServantBackups, model.ServantBackup{
				Pubkey:          req.Pubkey,
				EncryptedPrikey: req.EncryptedByPassword,
			})
			return []model.ChainStep{{
				Method: chain.MethodAddServant,
				Args:   map[string]string{"servant": req.Pubkey},
			}}, nil
		},
	})
	if err != nil && rec == nil {
		return nil, err
	}
	if fromPending {
		if rmErr := s.pending.Remove(ctx, actor.UserID, req.Pubkey); rmErr != nil {
			logger.Warn("移除待添加公钥失败", zap.Uint64("user_id", actor.UserID), zap.Error(rmErr))
		}
	}
	return rec, err
}

// RemoveServant 删除从设备，账户下不能有未结束的转账
func (s *Service) RemoveServant(ctx context.Context, actor role.Actor, pubkey string) (*model.WalletManageRecord, error) {
	return s.mutate(ctx, actor, mutation{
		op:    model.OpRemoveServant,
		role:  model.RoleMaster,
		gated: true,
		apply: func(tx *gorm.DB, rc *role.Context) ([]model.ChainStep, error) {
			st := rc.Strategy
			if !st.HasServant(pubkey) {
				return nil, errno.ErrServantNotFound
			}
			st.ServantPubkeys = without(st.ServantPubkeys, pubkey)
			backups := st.ServantBackups[:0]
			for _, b := range st.ServantBackups {
				if b.Pubkey != pubkey {
					backups = append(backups, b)
				}
			}
			st.ServantBackups = backups

			if err := secret.DeprecateTx(tx, pubkey); err != nil {
				return nil, err
			}
			if err := releaseKey(tx, actor.UserID, pubkey); err != nil {
				return nil, err
			}
			return []model.ChainStep{{
				Method: chain.MethodRemoveServant,
				Args:   map[string]string{"servant": pubkey},
			}}, nil
		},
	})
}

// ReplaceServantRequest 用新设备的密钥替换一个从设备
type ReplaceServantRequest struct {
	OldPubkey      string
	NewKey         secret.KeyMaterial
	HolderDeviceID string
}

// ReplaceServant 主设备把从设备位置交给另一台没有密钥的设备
// 旧密钥作废，账户下不能有未结束的转账
func (s *Service) ReplaceServant(ctx context.Context, actor role.Actor, req ReplaceServantRequest) (*model.WalletManageRecord, error) {
	return s.mutate(ctx, actor, mutation{
		op:    model.OpReplaceServant,
		role:  model.RoleMaster,
		gated: true,
		apply: func(tx *gorm.DB, rc *role.Context) ([]model.ChainStep, error) {
			st := rc.Strategy
			if !st.HasServant(req.OldPubkey) {
				return nil, errno.ErrServantNotFound
			}
			newPubkey := req.NewKey.Pubkey
			if _, ok := st.Subaccounts[newPubkey]; ok || newPubkey == st.MasterPubkey || st.HasServant(newPubkey) {
				return nil, errno.ErrAlreadyServant
			}

			holder, err := findDevice(tx, actor.UserID, req.HolderDeviceID)
			if err != nil {
				return nil, err
			}
			if role.ResolveRole(st, holder.HoldPubkey) != model.RoleUndefined {
				return nil, errno.ErrAlreadyServant.WithMessage("holder device already holds an account key")
			}

			if err := secret.StoreKeyTx(tx, actor.UserID, req.NewKey); err != nil {
				return nil, err
			}
			if err := secret.DeprecateTx(tx, req.OldPubkey); err != nil {
				return nil, err
			}
			if err := releaseKey(tx, actor.UserID, req.OldPubkey); err != nil {
				return nil, err
			}
			if err := holdKey(tx, holder.ID, &newPubkey); err != nil {
				return nil, err
			}

			st.ServantPubkeys = append(without(st.ServantPubkeys, req.OldPubkey), newPubkey)
			backups := make([]model.ServantBackup, 0, len(st.ServantBackups)+1)
			for _, b := range st.ServantBackups {
				if b.Pubkey != req.OldPubkey {
					backups = append(backups, b)
				}
			}
			st.ServantBackups = append(backups, model.ServantBackup{
				Pubkey:          newPubkey,
				EncryptedPrikey: req.NewKey.EncryptedByPassword,
			})
			return []model.ChainStep{{
				Method: chain.MethodReplaceServant,
				Args:   map[string]string{"old_servant": req.OldPubkey, "new_servant": newPubkey},
			}}, nil
		},
	})
}

// AddSubaccount 新增子账户
func (s *Service) AddSubaccount(ctx context.Context, actor role.Actor, key secret.KeyMaterial, limit *decimal.Decimal) (*model.WalletManageRecord, error) {
	holdLimit := s.defaultSubaccount
	if limit != nil {
		holdLimit = *limit
	}
	if err := model.CheckAmount(holdLimit); err != nil {
		return nil, err
	}

	return s.mutate(ctx, actor, mutation{
		op:   model.OpAddSubaccount,
		role: model.RoleMaster,
		apply: func(tx *gorm.DB, rc *role.Context) ([]model.ChainStep, error) {
			st := rc.Strategy
			if _, ok := st.Subaccounts[key.Pubkey]; ok || key.Pubkey == st.MasterPubkey || st.HasServant(key.Pubkey) {
				return nil, errno.ErrSecretConflict
			}
			if err := secret.StoreKeyTx(tx, actor.UserID, key); err != nil {
				return nil, err
			}
			if st.Subaccounts == nil {
				st.Subaccounts = map[string]model.SubaccountConfig{}
			}
			st.Subaccounts[key.Pubkey] = model.SubaccountConfig{Pubkey: key.Pubkey, HoldValueLimit: holdLimit}
			return []model.ChainStep{{
				Method: chain.MethodAddSubaccount,
				Args:   map[string]string{"subaccount": key.Pubkey, "hold_limit": holdLimit.String()},
			}}, nil
		},
	})
}

// RemoveSubaccount 删除子账户
func (s *Service) RemoveSubaccount(ctx context.Context, actor role.Actor, pubkey string) (*model.WalletManageRecord, error) {
	return s.mutate(ctx, actor, mutation{
		op:    model.OpRemoveSubaccount,
		role:  model.RoleMaster,
		gated: true,
		apply: func(tx *gorm.DB, rc *role.Context) ([]model.ChainStep, error) {
			if _, ok := rc.Strategy.Subaccounts[pubkey]; !ok {
				return nil, errno.ErrSubaccountNotFound
			}
			delete(rc.Strategy.Subaccounts, pubkey)
			if err := secret.DeprecateTx(tx, pubkey); err != nil {
				return nil, err
			}
			return []model.ChainStep{{
				Method: chain.MethodRemoveSubaccount,
				Args:   map[string]string{"subaccount": pubkey},
			}}, nil
		},
	})
}

// UpdateSubaccountLimit 修改子账户持有上限
// 未结束转账检查和修改在同一事务、同一把策略行锁下完成
func (s *Service) UpdateSubaccountLimit(ctx context.Context, actor role.Actor, pubkey string, limit decimal.Decimal) (*model.WalletManageRecord, error) {
	if err := model.CheckAmount(limit); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, mutation{
		op:    model.OpUpdateSubaccountHoldLimit,
		role:  model.RoleMaster,
		gated: true,
		apply: func(tx *gorm.DB, rc *role.Context) ([]model.ChainStep, error) {
			sub, ok := rc.Strategy.Subaccounts[pubkey]
			if !ok {
				return nil, errno.ErrSubaccountNotFound
			}
			sub.HoldValueLimit = limit
			rc.Strategy.Subaccounts[pubkey] = sub
			return []model.ChainStep{{
				Method: chain.MethodUpdateHoldLimit,
				Args:   map[string]string{"subaccount": pubkey, "hold_limit": limit.String()},
			}}, nil
		},
	})
}

// UpdateRanks 修改签名档位，coin 为空时修改默认档位
func (s *Service) UpdateRanks(ctx context.Context, actor role.Actor, coin model.CoinType, ranks []model.MultiSigRank) (*model.WalletManageRecord, error) {
	if err := threshold.ValidateRanks(ranks); err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(ranks)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, actor, mutation{
		op:    model.OpUpdateStrategy,
		role:  model.RoleMaster,
		gated: true,
		apply: func(tx *gorm.DB, rc *role.Context) ([]model.ChainStep, error) {
			st := rc.Strategy
			if coin == "" {
				st.MultiSigRanks = append([]model.MultiSigRank(nil), ranks...)
			} else {
				if st.CoinRanks == nil {
					st.CoinRanks = map[model.CoinType][]model.MultiSigRank{}
				}
				st.CoinRanks[coin] = append([]model.MultiSigRank(nil), ranks...)
			}
			return []model.ChainStep{{
				Method: chain.MethodUpdateRanks,
				Args:   map[string]string{"coin": string(coin), "ranks": string(encoded)},
			}}, nil
		},
	})
}

// SwitchMasterRequest Newcomer 为空表示当前从设备升级为主设备，
// 否则当前新设备带着新密钥替换主设备
type SwitchMasterRequest struct {
	Newcomer *secret.KeyMaterial
}

// SwitchMaster 更换主设备，链上分撤销旧主、安装新主、清理三步执行
func (s *Service) SwitchMaster(ctx context.Context, actor role.Actor, req SwitchMasterRequest) (*model.WalletManageRecord, error) {
	m := mutation{gated: true}
	if req.Newcomer == nil {
		m.op = model.OpServantSwitchMaster
		m.role = model.RoleServant
		m.apply = func(tx *gorm.DB, rc *role.Context) ([]model.ChainStep, error) {
			st := rc.Strategy
			oldMaster, newMaster := st.MasterPubkey, rc.HoldPubkey()
			st.ServantPubkeys = append(without(st.ServantPubkeys, newMaster), oldMaster)
			backups := st.ServantBackups[:0]
			for _, b := range st.ServantBackups {
				if b.Pubkey != newMaster {
					backups = append(backups, b)
				}
			}
			st.ServantBackups = backups
			st.MasterPubkey = newMaster
			return switchSteps(oldMaster, newMaster, st.ServantPubkeys), nil
		}
	} else {
		key := *req.Newcomer
		m.op = model.OpNewcomerSwitchMaster
		m.role = model.RoleUndefined
		m.apply = func(tx *gorm.DB, rc *role.Context) ([]model.ChainStep, error) {
			st := rc.Strategy
			if _, ok := st.Subaccounts[key.Pubkey]; ok || key.Pubkey == st.MasterPubkey || st.HasServant(key.Pubkey) {
				return nil, errno.ErrSecretConflict
			}
			oldMaster := st.MasterPubkey
			if err := secret.StoreKeyTx(tx, actor.UserID, key); err != nil {
				return nil, err
			}
			if err := secret.DeprecateTx(tx, oldMaster); err != nil {
				return nil, err
			}
			if err := releaseKey(tx, actor.UserID, oldMaster); err != nil {
				return nil, err
			}
			if err := holdKey(tx, rc.Device.ID, &key.Pubkey); err != nil {
				return nil, err
			}
			st.MasterPubkey = key.Pubkey
			return switchSteps(oldMaster, key.Pubkey, st.ServantPubkeys), nil
		}
	}
	return s.mutate(ctx, actor, m)
}

func switchSteps(oldMaster, newMaster string, servants []string) []model.ChainStep {
	return []model.ChainStep{
		{Method: chain.MethodRevokeMaster, Args: map[string]string{"master": oldMaster}},
		{Method: chain.MethodInstallMaster, Args: map[string]string{"master": newMaster}},
		{Method: chain.MethodCleanupMasterSwitch, Args: map[string]string{
			"old_master": oldMaster,
			"new_master": newMaster,
			"servants":   strings.Join(servants, ","),
		}},
	}
}

func findDevice(tx *gorm.DB, userID uint64, deviceID string) (*model.Device, error) {
	var d model.Device
	if err := tx.Where("device_id = ? AND user_id = ?", deviceID, userID).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrDeviceNotFound
		}
		return nil, err
	}
	return &d, nil
}

// holdKey 设备持有新密钥，需要重新确认备份
func holdKey(tx *gorm.DB, deviceID uint64, pubkey *string) error {
	return tx.Model(&model.Device{}).Where("id = ?", deviceID).Updates(map[string]interface{}{
		"hold_pubkey":          pubkey,
		"holder_confirm_saved": false,
	}).Error
}

// releaseKey 清除持有该公钥的设备
func releaseKey(tx *gorm.DB, userID uint64, pubkey string) error {
	return tx.Model(&model.Device{}).
		Where("user_id = ? AND hold_pubkey = ?", userID, pubkey).
		Updates(map[string]interface{}{"hold_pubkey": nil, "holder_confirm_saved": false}).Error
}

func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item != v {
			out = append(out, item)
		}
	}
	return out
}
