package transfer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chainless-core/internal/model"
	"chainless-core/internal/service/chain"
	"chainless-core/internal/service/role"
	"chainless-core/internal/service/threshold"
	"chainless-core/pkg/crypto_util"
	"chainless-core/pkg/errno"
	"chainless-core/pkg/logger"
	"chainless-core/pkg/monitor"
	"chainless-core/pkg/safe_random"
)

type Service struct {
	db            *gorm.DB
	chain         chain.Submitter
	expire        time.Duration
	bridgeAccount string
	maxAttempts   int
	now           func() time.Time
}

func NewService(db *gorm.DB, submitter chain.Submitter, expire time.Duration, bridgeAccount string, maxAttempts int) *Service {
	if expire <= 0 {
		expire = 24 * time.Hour
	}
	if maxAttempts <= 0 {
		maxAttempts = 20
	}
	return &Service{
		db:            db,
		chain:         submitter,
		expire:        expire,
		bridgeAccount: bridgeAccount,
		maxAttempts:   maxAttempts,
		now:           time.Now,
	}
}

// CreateRequest 发起转账
// SubToMain 时 Sender 为子账户公钥，收款方固定为主账户
type CreateRequest struct {
	Receiver string
	Sender   string
	CoinType model.CoinType
	Amount   decimal.Decimal
	Memo     string
	TxType   model.TxType
}

// coinTxRaw 从设备签名的原始数据
type coinTxRaw struct {
	OrderID  string         `json:"order_id"`
	Sender   string         `json:"sender"`
	Receiver string         `json:"receiver"`
	CoinType model.CoinType `json:"coin_type"`
	Amount   string         `json:"amount"`
	ExpireAt int64          `json:"expire_at"`
	Memo     string         `json:"memo"`
}

// CreateTransfer 主设备发起转账，所需签名数在创建时确定
func (s *Service) CreateTransfer(ctx context.Context, actor role.Actor, req CreateRequest) (*model.CoinTransaction, error) {
	if err := model.CheckAmount(req.Amount); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, errno.ErrRequestParamInvalid.WithMessage("amount must be positive")
	}
	if req.TxType == "" {
		req.TxType = model.TxNormal
	}
	orderID, err := safe_random.GenerateRandomHexString(16)
	if err != nil {
		return nil, err
	}

	var out *model.CoinTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rc, err := role.Load(tx, actor, role.LockShare)
		if err != nil {
			return err
		}
		if err := rc.RequireStrategy(); err != nil {
			return err
		}
		if err := rc.Require(model.RoleMaster); err != nil {
			return err
		}

		st := rc.Strategy
		sender, receiver := st.AccountID, req.Receiver
		var required uint8
		switch req.TxType {
		case model.TxSubToMain:
			if _, ok := st.Subaccounts[req.Sender]; !ok {
				return errno.ErrSubaccountNotFound
			}
			sender, receiver = req.Sender, st.AccountID
		case model.TxMainToBridge:
			if s.bridgeAccount == "" {
				return errno.ErrReceiverNotFound.WithMessage("bridge account not configured")
			}
			receiver = s.bridgeAccount
			required = threshold.RequiredSignatures(st, req.CoinType, req.Amount)
		default:
			receiver, err = s.resolveReceiver(tx, req.Receiver)
			if err != nil {
				return err
			}
			if receiver == sender {
				return errno.ErrTransferToSelf
			}
			required = threshold.RequiredSignatures(st, req.CoinType, req.Amount)
		}

		now := s.now()
		out = &model.CoinTransaction{
			OrderID:            orderID,
			CoinType:           req.CoinType,
			Sender:             sender,
			Receiver:           receiver,
			Amount:             req.Amount,
			ExpireAt:           now.Add(s.expire),
			Memo:               req.Memo,
			Stage:              initialStage(required),
			Signatures:         []string{},
			RequiredSignatures: required,
			TxType:             req.TxType,
			ChainStatus:        model.ChainNotLaunch,
		}
		raw, err := json.Marshal(coinTxRaw{
			OrderID:  out.OrderID,
			Sender:   out.Sender,
			Receiver: out.Receiver,
			CoinType: out.CoinType,
			Amount:   out.Amount.String(),
			ExpireAt: out.ExpireAt.Unix(),
			Memo:     out.Memo,
		})
		if err != nil {
			return err
		}
		out.CoinTxRaw = hex.EncodeToString(raw)

		if err := tx.Create(out).Error; err != nil {
			return err
		}
		return publish(tx, out)
	})
	if err != nil {
		return nil, err
	}

	logger.Info("转账已创建",
		zap.String("order_id", out.OrderID),
		zap.String("sender", out.Sender),
		zap.String("tx_type", string(out.TxType)),
		zap.Uint8("required", out.RequiredSignatures),
	)
	return out, nil
}

// resolveReceiver 收款方可以是账户 id，也可以是已注册用户的联系方式
func (s *Service) resolveReceiver(tx *gorm.DB, receiver string) (string, error) {
	if _, err := model.ParseContact(receiver); err == nil {
		var u model.User
		if err := tx.Where("contact = ?", receiver).First(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return "", errno.ErrReceiverNotFound
			}
			return "", err
		}
		if u.MainAccount == nil {
			return "", errno.ErrReceiverNotFound
		}
		return *u.MainAccount, nil
	}

	if _, err := role.LockStrategy(tx, receiver, role.LockNone); err != nil {
		if errors.Is(err, errno.ErrStrategyNotFound) {
			return "", errno.ErrReceiverNotFound
		}
		return "", err
	}
	return receiver, nil
}

// UploadServantSignature 从设备上传签名，格式为 pubkey(64 hex) + sig(128 hex)
// 签名对象为 coin_tx_raw
func (s *Service) UploadServantSignature(ctx context.Context, actor role.Actor, orderID, signature string) (*model.CoinTransaction, error) {
	pubkey, _, err := model.ParsePubkeySignInfo(signature)
	if err != nil {
		return nil, err
	}

	return s.update(ctx, actor, orderID, model.RoleServant, func(rc *role.Context, tx *model.CoinTransaction) (bool, error) {
		if !ownsSender(rc.Strategy, tx.Sender) {
			return false, errno.ErrTxNotFound
		}
		if pubkey != rc.HoldPubkey() {
			return false, errno.ErrSignatureMismatch
		}
		if _, ok := crypto_util.VerifyHex(signature, []byte(tx.CoinTxRaw)); !ok {
			return false, errno.ErrSignatureMismatch.WithMessage("signature does not match coin_tx_raw")
		}
		return AddSignature(tx, pubkey, signature, s.now())
	})
}

// ReceiverReact 收款账户的主设备确认或拒绝
func (s *Service) ReceiverReact(ctx context.Context, actor role.Actor, orderID string, agree bool) (*model.CoinTransaction, error) {
	return s.update(ctx, actor, orderID, model.RoleMaster, func(rc *role.Context, tx *model.CoinTransaction) (bool, error) {
		if tx.Receiver != rc.Strategy.AccountID {
			return false, errno.ErrRoleIneligible.WithMessage("not the receiver of this transfer")
		}
		return true, React(tx, agree, s.now())
	})
}

// SenderCancel 发送方主设备取消
func (s *Service) SenderCancel(ctx context.Context, actor role.Actor, orderID string) (*model.CoinTransaction, error) {
	return s.update(ctx, actor, orderID, model.RoleMaster, func(rc *role.Context, tx *model.CoinTransaction) (bool, error) {
		if !ownsSender(rc.Strategy, tx.Sender) {
			return false, errno.ErrTxNotFound
		}
		return true, Cancel(tx, s.now())
	})
}

// SenderReconfirm 发送方最终确认，提交事务后再广播上链
// 广播超时返回 ErrExternalCallTimedOut，转账保持 NotLaunch 由结算任务重试
func (s *Service) SenderReconfirm(ctx context.Context, actor role.Actor, orderID string, finalSignature *string) (*model.CoinTransaction, error) {
	out, err := s.update(ctx, actor, orderID, model.RoleMaster, func(rc *role.Context, tx *model.CoinTransaction) (bool, error) {
		if !ownsSender(rc.Strategy, tx.Sender) {
			return false, errno.ErrTxNotFound
		}
		return true, Reconfirm(tx, finalSignature, s.now())
	})
	if err != nil || out.Stage != model.StageSenderReconfirmed {
		return out, err
	}

	if err := s.broadcast(ctx, out.OrderID); err != nil {
		if errors.Is(err, errno.ErrExternalCallTimedOut) {
			return out, err
		}
		logger.Warn("转账广播失败，等待重试", zap.String("order_id", out.OrderID), zap.Error(err))
	}
	return s.reload(ctx, out.OrderID)
}

// update 在事务里锁住转账行并推进阶段
func (s *Service) update(ctx context.Context, actor role.Actor, orderID string, required model.Role,
	fn func(rc *role.Context, tx *model.CoinTransaction) (bool, error)) (*model.CoinTransaction, error) {
	var out *model.CoinTransaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rc, err := role.Load(tx, actor, role.LockShare)
		if err != nil {
			return err
		}
		if err := rc.RequireStrategy(); err != nil {
			return err
		}
		if err := rc.Require(required); err != nil {
			return err
		}

		ct, err := lockTransfer(tx, orderID)
		if err != nil {
			return err
		}
		before := ct.Stage
		changed, err := fn(rc, ct)
		if err != nil {
			return err
		}
		out = ct
		if !changed {
			return nil
		}
		if err := tx.Save(ct).Error; err != nil {
			return err
		}
		if ct.Stage != before {
			monitor.Business.TransferStageTotal.WithLabelValues(string(ct.CoinType), ct.Stage.String()).Inc()
			logger.Info("转账阶段变化",
				zap.String("order_id", ct.OrderID),
				zap.String("from", before.String()),
				zap.String("to", ct.Stage.String()),
			)
		}
		return publish(tx, ct)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// broadcast 提交已确认的转账，nonce 为订单号，重复提交得到同一笔链上交易
func (s *Service) broadcast(ctx context.Context, orderID string) error {
	ct, err := s.reload(ctx, orderID)
	if err != nil {
		return err
	}
	if ct.Stage != model.StageSenderReconfirmed || ct.ChainStatus != model.ChainNotLaunch {
		return nil
	}

	signatures, err := json.Marshal(ct.Signatures)
	if err != nil {
		return err
	}
	step := model.ChainStep{
		Method: chain.MethodTransfer,
		Args: map[string]string{
			"order_id":        ct.OrderID,
			"receiver":        ct.Receiver,
			"coin":            string(ct.CoinType),
			"amount":          ct.Amount.String(),
			"tx_type":         string(ct.TxType),
			"signatures":      string(signatures),
			"final_signature": ct.FinalSignature,
			chain.ArgNonce:    ct.OrderID,
		},
	}
	txID, callErr := s.chain.Submit(ctx, ct.Sender, step)
	if callErr != nil {
		monitor.Business.ChainCallErrors.WithLabelValues(step.Method).Inc()
		if err := s.db.WithContext(ctx).Model(&model.CoinTransaction{}).
			Where("order_id = ? AND chain_status = ?", orderID, model.ChainNotLaunch).
			Update("submit_attempts", gorm.Expr("submit_attempts + 1")).Error; err != nil {
			return err
		}
		return callErr
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockTransfer(tx, orderID)
		if err != nil {
			return err
		}
		if cur.ChainStatus != model.ChainNotLaunch {
			return nil
		}
		cur.TxID = &txID
		cur.ChainStatus = model.ChainPending
		if err := tx.Save(cur).Error; err != nil {
			return err
		}
		logger.Info("转账已广播", zap.String("order_id", orderID), zap.String("tx_id", txID))
		return publish(tx, cur)
	})
}

// GetTransfer 只有收发双方账户可以查看
func (s *Service) GetTransfer(ctx context.Context, actor role.Actor, orderID string) (*model.CoinTransaction, error) {
	rc, err := role.Load(s.db.WithContext(ctx), actor, role.LockNone)
	if err != nil {
		return nil, err
	}
	if err := rc.RequireStrategy(); err != nil {
		return nil, err
	}
	ct, err := s.reload(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !ownsSender(rc.Strategy, ct.Sender) && !ownsSender(rc.Strategy, ct.Receiver) {
		return nil, errno.ErrTxNotFound
	}
	return ct, nil
}

// ListFilter 转账列表查询条件
type ListFilter struct {
	AsReceiver bool
	Stages     []model.TxStage
	Limit      int
	Offset     int
}

// ListTransfers 查询账户 (含子账户) 作为发送方或接收方的转账
func (s *Service) ListTransfers(ctx context.Context, actor role.Actor, f ListFilter) ([]model.CoinTransaction, error) {
	rc, err := role.Load(s.db.WithContext(ctx), actor, role.LockNone)
	if err != nil {
		return nil, err
	}
	if err := rc.RequireStrategy(); err != nil {
		return nil, err
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}

	accounts := []string{rc.Strategy.AccountID}
	for pubkey := range rc.Strategy.Subaccounts {
		accounts = append(accounts, pubkey)
	}
	column := "sender IN ?"
	if f.AsReceiver {
		column = "receiver IN ?"
	}
	q := s.db.WithContext(ctx).Where(column, accounts)
	if len(f.Stages) > 0 {
		q = q.Where("stage IN ?", f.Stages)
	}

	var list []model.CoinTransaction
	err = q.Order("id DESC").Limit(f.Limit).Offset(f.Offset).Find(&list).Error
	return list, err
}

func (s *Service) reload(ctx context.Context, orderID string) (*model.CoinTransaction, error) {
	var ct model.CoinTransaction
	if err := s.db.WithContext(ctx).Where("order_id = ?", orderID).First(&ct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrTxNotFound
		}
		return nil, err
	}
	return &ct, nil
}

func lockTransfer(tx *gorm.DB, orderID string) (*model.CoinTransaction, error) {
	var ct model.CoinTransaction
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&ct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrTxNotFound
		}
		return nil, err
	}
	return &ct, nil
}

// ownsSender 地址是账户本身或其子账户
func ownsSender(st *model.Strategy, addr string) bool {
	if addr == st.AccountID {
		return true
	}
	_, ok := st.Subaccounts[addr]
	return ok
}

func publish(tx *gorm.DB, ct *model.CoinTransaction) error {
	return model.CreateOutboxMessage(tx, model.TopicTransferEvents, ct.Sender, model.NewTransferEvent(ct))
}
