package secret

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"chainless-core/internal/model"
	"chainless-core/internal/service/role"
	"chainless-core/internal/service/threshold"
	"chainless-core/pkg/errno"
	"chainless-core/pkg/logger"
)

// KeyMaterial 一把设备私钥的两份托管密文
type KeyMaterial struct {
	Pubkey              string `json:"pubkey"`
	EncryptedByPassword string `json:"encrypted_prikey_by_password"`
	EncryptedByAnswer   string `json:"encrypted_prikey_by_answer"`
}

func (k KeyMaterial) validate() error {
	if !model.IsPubkeyHex(k.Pubkey) {
		return errno.ErrRequestParamInvalid.WithMessage("invalid pubkey")
	}
	if k.EncryptedByPassword == "" || k.EncryptedByAnswer == "" {
		return errno.ErrRequestParamInvalid.WithMessage("encrypted prikey is empty")
	}
	return nil
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// StoreKeyTx 在调用方事务中写入 Sitting 记录，同一公钥已有 Sitting 记录时返回冲突
func StoreKeyTx(tx *gorm.DB, userID uint64, key KeyMaterial) error {
	if err := key.validate(); err != nil {
		return err
	}

	var count int64
	if err := tx.Model(&model.SecretRecord{}).
		Where("pubkey = ? AND state = ?", key.Pubkey, model.SecretSitting).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return errno.ErrSecretConflict
	}

	rec := model.SecretRecord{
		Pubkey:              key.Pubkey,
		UserID:              userID,
		State:               model.SecretSitting,
		EncryptedByPassword: key.EncryptedByPassword,
		EncryptedByAnswer:   key.EncryptedByAnswer,
	}
	if err := tx.Create(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errno.ErrSecretConflict
		}
		return err
	}
	return nil
}

// DeprecateTx 废弃公钥当前的 Sitting 记录，没有记录时不报错
func DeprecateTx(tx *gorm.DB, pubkey string) error {
	return tx.Model(&model.SecretRecord{}).
		Where("pubkey = ? AND state = ?", pubkey, model.SecretSitting).
		Update("state", model.SecretDeprecated).Error
}

// StoreKey 托管一把新密钥
func (s *Service) StoreKey(ctx context.Context, userID uint64, key KeyMaterial) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return StoreKeyTx(tx, userID, key)
	})
}

// FetchKey 获取公钥对应的 Sitting 记录
func (s *Service) FetchKey(ctx context.Context, pubkey string) (*model.SecretRecord, error) {
	var rec model.SecretRecord
	err := s.db.WithContext(ctx).
		Where("pubkey = ? AND state = ?", pubkey, model.SecretSitting).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.ErrSecretNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// GetSecrets 按范围查询当前用户的托管密钥
func (s *Service) GetSecrets(ctx context.Context, actor role.Actor, kind model.SecretKind) ([]model.SecretRecord, error) {
	rc, err := role.Load(s.db.WithContext(ctx), actor, role.LockNone)
	if err != nil {
		return nil, err
	}

	var pubkey string
	switch kind {
	case model.SecretKindCurrentDevice:
		pubkey = rc.HoldPubkey()
		if pubkey == "" {
			return nil, errno.ErrSecretNotFound
		}
	case model.SecretKindMaster:
		if err := rc.RequireStrategy(); err != nil {
			return nil, err
		}
		pubkey = rc.Strategy.MasterPubkey
	default:
		var recs []model.SecretRecord
		err := s.db.WithContext(ctx).
			Where("user_id = ? AND state = ?", actor.UserID, model.SecretSitting).
			Order("id").
			Find(&recs).Error
		return recs, err
	}

	rec, err := s.FetchKey(ctx, pubkey)
	if err != nil {
		return nil, err
	}
	return []model.SecretRecord{*rec}, nil
}

// RotateSecurity 重置安全问题并整体替换密文，任一公钥失败则全部回滚
func (s *Service) RotateSecurity(ctx context.Context, actor role.Actor, answerIndexes string, keys []KeyMaterial) error {
	if len(keys) == 0 {
		return errno.ErrRequestParamInvalid.WithMessage("no secrets to rotate")
	}
	for _, k := range keys {
		if err := k.validate(); err != nil {
			return err
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rc, err := role.Load(tx, actor, role.LockUpdate)
		if err != nil {
			return err
		}
		if err := rc.RequireStrategy(); err != nil {
			return err
		}
		if err := rc.Require(model.RoleMaster); err != nil {
			return err
		}
		idle, err := threshold.HasNoInFlightTransaction(tx, rc.Strategy, s.now())
		if err != nil {
			return err
		}
		if !idle {
			return errno.ErrStrategyLocked
		}

		if err := tx.Model(&model.User{}).Where("id = ?", actor.UserID).
			Update("answer_indexes", answerIndexes).Error; err != nil {
			return err
		}

		for _, k := range keys {
			var old model.SecretRecord
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("pubkey = ? AND user_id = ? AND state = ?", k.Pubkey, actor.UserID, model.SecretSitting).
				First(&old).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return errno.ErrSecretNotFound
				}
				return err
			}
			if err := tx.Model(&old).Update("state", model.SecretDeprecated).Error; err != nil {
				return err
			}
			if err := StoreKeyTx(tx, actor.UserID, k); err != nil {
				return err
			}
			// 密文变了，持有设备需要重新确认已备份
			if err := tx.Model(&model.Device{}).
				Where("user_id = ? AND hold_pubkey = ?", actor.UserID, k.Pubkey).
				Update("holder_confirm_saved", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.Info("security rotated", zap.Uint64("user_id", actor.UserID), zap.Int("keys", len(keys)))
	return nil
}

// MarkHolderSaved 当前设备确认已备份私钥，只允许 false -> true
func (s *Service) MarkHolderSaved(ctx context.Context, actor role.Actor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rc, err := role.Load(tx, actor, role.LockNone)
		if err != nil {
			return err
		}
		if rc.HoldPubkey() == "" {
			return errno.ErrSecretNotFound
		}
		if rc.Device.HolderConfirmSaved {
			return nil
		}
		return tx.Model(&model.Device{}).
			Where("id = ? AND holder_confirm_saved = ?", rc.Device.ID, false).
			Update("holder_confirm_saved", true).Error
	})
}
