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

// 任务类型常量
const (
	TypeVerificationDelivery = "verification:deliver"
	TypeTransferNotice       = "notice:transfer"
)

// VerificationDeliveryPayload 验证码发送任务参数
type VerificationDeliveryPayload struct {
	Contact     string            `json:"contact"`
	ContactType model.ContactType `json:"contact_type"`
	Usage       model.Usage       `json:"usage"`
	Code        string            `json:"code"`
}

// ---------------------------------------------------------------------
// 1. Producer (Client) Code
// ---------------------------------------------------------------------

// NewVerificationDeliveryTask 创建验证码发送任务
func NewVerificationDeliveryTask(p VerificationDeliveryPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	// 验证码有效期有限，重试间隔不能太长
	return asynq.NewTask(TypeVerificationDelivery, payload, asynq.MaxRetry(3), asynq.Timeout(time.Minute)), nil
}

// ---------------------------------------------------------------------
// 2. Consumer (Server) Code
// ---------------------------------------------------------------------

// Deliverer 按联系方式类型选择发送渠道
type Deliverer struct {
	Email Sender
	SMS   Sender
}

func (d *Deliverer) senderFor(t model.ContactType) Sender {
	if t == model.ContactPhone {
		return d.SMS
	}
	return d.Email
}

// HandleVerificationDelivery 处理验证码发送任务
func (d *Deliverer) HandleVerificationDelivery(ctx context.Context, t *asynq.Task) error {
	var p VerificationDeliveryPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		// JSON 解析失败，重试也没用，直接跳过 (SkipRetry)
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	subject := "Chainless verification code"
	body := fmt.Sprintf("Your verification code for %s is %s", p.Usage, p.Code)
	if err := d.senderFor(p.ContactType).Send(ctx, p.Contact, subject, body); err != nil {
		logger.Error("验证码发送失败", zap.String("usage", string(p.Usage)), zap.Error(err))
		return err
	}

	logger.Info("验证码发送成功", zap.String("usage", string(p.Usage)), zap.String("contact_type", string(p.ContactType)))
	return nil
}
