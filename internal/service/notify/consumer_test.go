package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainless-core/internal/model"
	"chainless-core/internal/service/mq"
	"chainless-core/internal/testutil"
	"chainless-core/internal/worker/tasks"
)

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{}, nil
}

func message(t *testing.T, ev model.TransferEvent) *mq.Message {
	payload, err := json.Marshal(ev)
	require.NoError(t, err)
	return &mq.Message{ID: "1-0", Topic: model.TopicTransferEvents, Key: ev.Sender, Payload: payload}
}

func TestTransferNotifier(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	bob := testutil.SeedUser(t, db, "bob@example.com")
	testutil.SeedStrategy(t, db, bob.ID, testutil.Pubkey(10))

	q := &fakeQueue{}
	n := NewTransferNotifier(db, q)

	base := model.TransferEvent{
		OrderID:  "order-1",
		Sender:   testutil.Pubkey(1),
		Receiver: testutil.Pubkey(10),
		CoinType: model.CoinDW20,
		Amount:   "5",
		TxType:   model.TxNormal,
		Stage:    model.StageSenderSigCompleted,
	}

	tests := []struct {
		name   string
		mutate func(ev *model.TransferEvent)
		want   int
	}{
		{"签名完成通知收款方", func(ev *model.TransferEvent) {}, 1},
		{"其他阶段不通知", func(ev *model.TransferEvent) { ev.Stage = model.StageReceiverApproved }, 0},
		{"强制转账不通知", func(ev *model.TransferEvent) { ev.TxType = model.TxForced }, 0},
		{"收款账户不存在", func(ev *model.TransferEvent) { ev.Receiver = testutil.Pubkey(77) }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q.tasks = nil
			ev := base
			tt.mutate(&ev)
			require.NoError(t, n.Handle(ctx, message(t, ev)))
			assert.Len(t, q.tasks, tt.want)
		})
	}

	q.tasks = nil
	require.NoError(t, n.Handle(ctx, message(t, base)))
	var p tasks.TransferNoticePayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &p))
	assert.Equal(t, "bob@example.com", p.Contact)
	assert.Equal(t, "order-1", p.OrderID)
	assert.Equal(t, tasks.TypeTransferNotice, q.tasks[0].Type())
}

func TestTransferNotifierQueueErrors(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	bob := testutil.SeedUser(t, db, "bob@example.com")
	testutil.SeedStrategy(t, db, bob.ID, testutil.Pubkey(10))

	ev := model.TransferEvent{OrderID: "o", Receiver: testutil.Pubkey(10), TxType: model.TxNormal, Stage: model.StageSenderSigCompleted}

	// 重复的任务 id 视为已投递
	n := NewTransferNotifier(db, &fakeQueue{err: asynq.ErrTaskIDConflict})
	assert.NoError(t, n.Handle(ctx, message(t, ev)))

	// 其他错误交给 MQ 重新投递
	n = NewTransferNotifier(db, &fakeQueue{err: assert.AnError})
	assert.ErrorIs(t, n.Handle(ctx, message(t, ev)), assert.AnError)

	// 格式错误的消息被丢弃
	assert.NoError(t, n.Handle(ctx, &mq.Message{Payload: []byte("{")}))
}
