package threshold

import (
	"time"

	"gorm.io/gorm"

	"chainless-core/internal/model"
)

// HasNoInFlightTransaction 账户 (含子账户) 是否没有未结束的转账
// 必须与随后的策略修改在同一事务内调用，调用方需已锁住策略行
func HasNoInFlightTransaction(tx *gorm.DB, s *model.Strategy, now time.Time) (bool, error) {
	senders := make([]string, 0, len(s.Subaccounts)+1)
	senders = append(senders, s.AccountID)
	for pubkey := range s.Subaccounts {
		senders = append(senders, pubkey)
	}

	var count int64
	err := tx.Model(&model.CoinTransaction{}).
		Where("sender IN ?", senders).
		Where(
			tx.Session(&gorm.Session{NewDB: true}).
				Where("stage IN ? AND expire_at > ?", model.OpenStages(), now).
				Or("stage = ? AND chain_status IN ?", model.StageSenderReconfirmed,
					[]model.ChainStatus{model.ChainNotLaunch, model.ChainPending}),
		).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count == 0, nil
}
