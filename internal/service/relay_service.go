package service

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"chainless-core/internal/model"
	"chainless-core/internal/service/mq"
	"chainless-core/pkg/logger"
)

// RelayService 负责将本地消息表的消息搬运到 MQ
type RelayService struct {
	db       *gorm.DB
	producer mq.Producer
	interval time.Duration
	batch    int
}

func NewRelayService(db *gorm.DB, producer mq.Producer) *RelayService {
	return &RelayService{
		db:       db,
		producer: producer,
		interval: 500 * time.Millisecond,
		batch:    50,
	}
}

func (s *RelayService) Start(ctx context.Context) {
	logger.Info("启动消息中继服务")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("消息中继服务停止")
			return
		case <-ticker.C:
			if _, err := s.processPendingMessages(ctx); err != nil {
				logger.Error("中继消息失败", zap.Error(err))
			}
		}
	}
}

// processPendingMessages 按 id 顺序投递一批 PENDING 消息，返回成功投递的条数
// 同一 key 的消息遇到失败即停止，后续消息等下一轮，保证分区内有序
func (s *RelayService) processPendingMessages(ctx context.Context) (int, error) {
	var messages []model.OutboxMessage
	if err := s.db.WithContext(ctx).
		Where("status = ?", "PENDING").
		Order("id").
		Limit(s.batch).
		Find(&messages).Error; err != nil {
		return 0, err
	}

	sent := 0
	blocked := make(map[string]bool)
	for _, msg := range messages {
		if blocked[msg.Key] {
			continue
		}
		if err := s.producer.Publish(ctx, msg.Topic, msg.Key, msg.Payload); err != nil {
			logger.Warn("发送消息失败", zap.Uint64("id", msg.ID), zap.String("topic", msg.Topic), zap.Error(err))
			blocked[msg.Key] = true
			continue
		}

		// 发送成功才更新为 SENT，至少一次投递，消费方需要幂等
		if err := s.db.WithContext(ctx).Model(&msg).Update("status", "SENT").Error; err != nil {
			logger.Error("更新消息状态失败", zap.Uint64("id", msg.ID), zap.Error(err))
			blocked[msg.Key] = true
			continue
		}
		sent++
	}
	if sent > 0 {
		logger.Debug("消息已投递", zap.Int("count", sent))
	}
	return sent, nil
}
