package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"chainless-core/internal/model"
	"chainless-core/pkg/logger"
)

// TransferNoticePayload 通知收款方有待确认的转账
type TransferNoticePayload struct {
	Contact     string            `json:"contact"`
	ContactType model.ContactType `json:"contact_type"`
	OrderID     string            `json:"order_id"`
	Sender      string            `json:"sender"`
	CoinType    model.CoinType    `json:"coin_type"`
	Amount      string            `json:"amount"`
}

func NewTransferNoticeTask(p TransferNoticePayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	// 同一订单只通知一次
	return asynq.NewTask(TypeTransferNotice, payload,
		asynq.MaxRetry(5),
		asynq.Timeout(time.Minute),
		asynq.TaskID("notice:"+p.OrderID),
	), nil
}

// HandleTransferNotice 处理转账通知任务
func (d *Deliverer) HandleTransferNotice(ctx context.Context, t *asynq.Task) error {
	var p TransferNoticePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	subject := "Incoming transfer awaiting your approval"
	body := fmt.Sprintf("Account %s wants to send you %s %s (order %s)", p.Sender, p.Amount, p.CoinType, p.OrderID)
	if err := d.senderFor(p.ContactType).Send(ctx, p.Contact, subject, body); err != nil {
		logger.Error("转账通知发送失败", zap.String("order_id", p.OrderID), zap.Error(err))
		return err
	}
	logger.Info("转账通知发送成功", zap.String("order_id", p.OrderID))
	return nil
}
