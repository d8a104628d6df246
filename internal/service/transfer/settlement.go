package transfer

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"chainless-core/internal/model"
	"chainless-core/pkg/logger"
	"chainless-core/pkg/monitor"
)

// ResubmitNotLaunched 重新广播已确认但没有成功提交的转账，次数耗尽后标记失败
func (s *Service) ResubmitNotLaunched(ctx context.Context, batch int) (int, error) {
	var list []model.CoinTransaction
	if err := s.db.WithContext(ctx).
		Where("stage = ? AND chain_status = ?", model.StageSenderReconfirmed, model.ChainNotLaunch).
		Order("id").
		Limit(batch).
		Find(&list).Error; err != nil {
		return 0, err
	}

	for _, ct := range list {
		if ct.SubmitAttempts >= s.maxAttempts {
			if err := s.finish(ctx, ct.OrderID, model.ChainNotLaunch, model.ChainFailed); err != nil {
				logger.Error("标记转账失败出错", zap.String("order_id", ct.OrderID), zap.Error(err))
			}
			continue
		}
		if err := s.broadcast(ctx, ct.OrderID); err != nil {
			logger.Warn("重新广播转账失败", zap.String("order_id", ct.OrderID), zap.Error(err))
		}
	}
	return len(list), nil
}

// PollPending 查询已广播转账的链上结果
func (s *Service) PollPending(ctx context.Context, batch int) (int, error) {
	var list []model.CoinTransaction
	if err := s.db.WithContext(ctx).
		Where("stage = ? AND chain_status = ?", model.StageSenderReconfirmed, model.ChainPending).
		Order("id").
		Limit(batch).
		Find(&list).Error; err != nil {
		return 0, err
	}

	for _, ct := range list {
		if ct.TxID == nil {
			continue
		}
		status, err := s.chain.PollStatus(ctx, *ct.TxID)
		if err != nil {
			monitor.Business.ChainCallErrors.WithLabelValues("poll").Inc()
			logger.Warn("查询转账状态失败", zap.String("order_id", ct.OrderID), zap.Error(err))
			continue
		}
		if !status.IsFinal() {
			continue
		}
		if err := s.finish(ctx, ct.OrderID, model.ChainPending, status); err != nil {
			logger.Error("更新转账链上状态失败", zap.String("order_id", ct.OrderID), zap.Error(err))
			continue
		}
		if status == model.ChainConfirmed {
			amount, _ := ct.Amount.Float64()
			monitor.Business.TransferAmountTotal.WithLabelValues(string(ct.CoinType)).Add(amount)
		}
	}
	return len(list), nil
}

func (s *Service) finish(ctx context.Context, orderID string, from, to model.ChainStatus) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ct, err := lockTransfer(tx, orderID)
		if err != nil {
			return err
		}
		if ct.ChainStatus != from {
			return nil
		}
		ct.ChainStatus = to
		if err := tx.Save(ct).Error; err != nil {
			return err
		}
		logger.Info("转账链上状态更新",
			zap.String("order_id", orderID),
			zap.String("chain_status", string(to)),
		)
		return publish(tx, ct)
	})
}

// ExpireStale 把超过有效期仍未结束的转账标记为 MultiSigExpired
func (s *Service) ExpireStale(ctx context.Context, now time.Time) (int, error) {
	expired := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var list []model.CoinTransaction
		if err := tx.Where("stage IN ? AND expire_at < ?", model.OpenStages(), now).
			Find(&list).Error; err != nil {
			return err
		}
		for i := range list {
			ct := &list[i]
			if !Expire(ct, now) {
				continue
			}
			res := tx.Model(&model.CoinTransaction{}).
				Where("id = ? AND stage IN ?", ct.ID, model.OpenStages()).
				Update("stage", ct.Stage)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			if err := publish(tx, ct); err != nil {
				return err
			}
			monitor.Business.TransferStageTotal.WithLabelValues(string(ct.CoinType), ct.Stage.String()).Inc()
			expired++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if expired > 0 {
		logger.Info("过期转账已标记", zap.Int("count", expired))
	}
	return expired, nil
}
