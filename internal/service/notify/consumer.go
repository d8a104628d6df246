package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"chainless-core/internal/model"
	"chainless-core/internal/service/mq"
	"chainless-core/internal/worker/tasks"
	"chainless-core/pkg/logger"
)

// Enqueuer 异步任务队列
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// TransferNotifier 消费转账事件，普通转账签名完成后通知收款方确认
type TransferNotifier struct {
	db    *gorm.DB
	queue Enqueuer
}

func NewTransferNotifier(db *gorm.DB, queue Enqueuer) *TransferNotifier {
	return &TransferNotifier{db: db, queue: queue}
}

// Run 订阅转账事件直到 ctx 取消
func (n *TransferNotifier) Run(ctx context.Context, consumer mq.Consumer) error {
	return consumer.Subscribe(ctx, model.TopicTransferEvents, n.Handle)
}

// Handle 处理一条转账事件
func (n *TransferNotifier) Handle(ctx context.Context, msg *mq.Message) error {
	var ev model.TransferEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		// 格式错误的消息重试也没用，丢弃
		logger.Warn("转账事件解析失败", zap.String("id", msg.ID), zap.Error(err))
		return nil
	}
	if ev.TxType != model.TxNormal || ev.Stage != model.StageSenderSigCompleted {
		return nil
	}

	var receiver model.User
	err := n.db.WithContext(ctx).
		Joins("JOIN strategies ON strategies.user_id = users.id").
		Where("strategies.account_id = ?", ev.Receiver).
		First(&receiver).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Warn("收款账户不存在，跳过通知", zap.String("order_id", ev.OrderID))
		return nil
	}
	if err != nil {
		return err
	}

	task, err := tasks.NewTransferNoticeTask(tasks.TransferNoticePayload{
		Contact:     receiver.Contact,
		ContactType: receiver.ContactType,
		OrderID:     ev.OrderID,
		Sender:      ev.Sender,
		CoinType:    ev.CoinType,
		Amount:      ev.Amount,
	})
	if err != nil {
		return err
	}
	if _, err := n.queue.Enqueue(task); err != nil {
		// 重复投递同一订单的通知直接忽略
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return fmt.Errorf("enqueue transfer notice: %w", err)
	}
	logger.Info("已投递转账通知", zap.String("order_id", ev.OrderID))
	return nil
}
