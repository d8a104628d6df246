package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainless-core/internal/model"
)

type recordSender struct {
	to, subject, body string
	err               error
	calls             int
}

func (r *recordSender) Send(ctx context.Context, to, subject, body string) error {
	r.calls++
	r.to, r.subject, r.body = to, subject, body
	return r.err
}

func TestVerificationDelivery(t *testing.T) {
	email, sms := &recordSender{}, &recordSender{}
	d := &Deliverer{Email: email, SMS: sms}

	task, err := NewVerificationDeliveryTask(VerificationDeliveryPayload{
		Contact:     "+86 13682000011",
		ContactType: model.ContactPhone,
		Usage:       model.UsageLogin,
		Code:        "123456",
	})
	require.NoError(t, err)
	assert.Equal(t, TypeVerificationDelivery, task.Type())

	require.NoError(t, d.HandleVerificationDelivery(context.Background(), task))
	assert.Equal(t, 1, sms.calls, "手机号应走短信通道")
	assert.Equal(t, 0, email.calls)
	assert.Contains(t, sms.body, "123456")
	assert.Equal(t, "+86 13682000011", sms.to)
}

func TestVerificationDeliverySendError(t *testing.T) {
	email := &recordSender{err: errors.New("smtp down")}
	d := &Deliverer{Email: email, SMS: &recordSender{}}

	task, err := NewVerificationDeliveryTask(VerificationDeliveryPayload{
		Contact: "a@example.com", ContactType: model.ContactEmail, Usage: model.UsageRegister, Code: "1",
	})
	require.NoError(t, err)

	err = d.HandleVerificationDelivery(context.Background(), task)
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry), "发送失败应允许重试")
}

func TestBadPayloadSkipsRetry(t *testing.T) {
	d := &Deliverer{Email: &recordSender{}, SMS: &recordSender{}}
	bad := asynq.NewTask(TypeVerificationDelivery, []byte("{not json"))

	assert.ErrorIs(t, d.HandleVerificationDelivery(context.Background(), bad), asynq.SkipRetry)
	assert.ErrorIs(t, d.HandleTransferNotice(context.Background(), bad), asynq.SkipRetry)
}

func TestTransferNotice(t *testing.T) {
	email := &recordSender{}
	d := &Deliverer{Email: email, SMS: &recordSender{}}

	p := TransferNoticePayload{
		Contact: "b@example.com", ContactType: model.ContactEmail,
		OrderID: "abc", Sender: "sender-acc", CoinType: model.CoinDW20, Amount: "12.5",
	}
	task, err := NewTransferNoticeTask(p)
	require.NoError(t, err)

	var decoded TransferNoticePayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	assert.Equal(t, p, decoded)

	require.NoError(t, d.HandleTransferNotice(context.Background(), task))
	assert.Contains(t, email.body, "12.5")
	assert.Contains(t, email.body, "abc")
}
