package message

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"chainless-core/internal/model"
	"chainless-core/internal/service/role"
)

// Messages 设备轮询到的待处理事项
type Messages struct {
	// NewcomerBecameServant 当前从设备刚拿到密钥且还没确认备份
	NewcomerBecameServant *model.SecretRecord     `json:"newcomer_became_servant,omitempty"`
	PendingTransfers      []model.CoinTransaction `json:"pending_transfers"`
}

type Service struct {
	db  *gorm.DB
	now func() time.Time
}

func NewService(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// Search 查询当前设备的待处理事项: 未确认备份的密钥，以及账户 (含子账户) 未结束的转账
func (s *Service) Search(ctx context.Context, actor role.Actor) (*Messages, error) {
	db := s.db.WithContext(ctx)
	rc, err := role.Load(db, actor, role.LockNone)
	if err != nil {
		return nil, err
	}

	out := &Messages{PendingTransfers: []model.CoinTransaction{}}
	if rc.Role == model.RoleServant && !rc.Device.HolderConfirmSaved {
		var rec model.SecretRecord
		err := db.Where("pubkey = ? AND state = ?", rc.HoldPubkey(), model.SecretSitting).First(&rec).Error
		switch {
		case err == nil:
			out.NewcomerBecameServant = &rec
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, err
		}
	}
	if rc.Strategy == nil {
		return out, nil
	}

	accounts := make([]string, 0, len(rc.Strategy.Subaccounts)+1)
	accounts = append(accounts, rc.Strategy.AccountID)
	for pubkey := range rc.Strategy.Subaccounts {
		accounts = append(accounts, pubkey)
	}
	err = db.Where("sender IN ? OR receiver IN ?", accounts, accounts).
		Where("stage IN ? AND expire_at > ?", model.OpenStages(), s.now()).
		Order("id DESC").
		Find(&out.PendingTransfers).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
