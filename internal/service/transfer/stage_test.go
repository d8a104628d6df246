package transfer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainless-core/internal/model"
	"chainless-core/internal/testutil"
	"chainless-core/pkg/errno"
)

var now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTx(stage model.TxStage, txType model.TxType, required uint8) *model.CoinTransaction {
	return &model.CoinTransaction{
		Stage:              stage,
		TxType:             txType,
		RequiredSignatures: required,
		ExpireAt:           now.Add(time.Hour),
		ChainStatus:        model.ChainNotLaunch,
	}
}

func TestInitialStage(t *testing.T) {
	assert.Equal(t, model.StageSenderSigCompleted, initialStage(0))
	assert.Equal(t, model.StageCreated, initialStage(1))
}

func TestAddSignature(t *testing.T) {
	tx := newTx(model.StageCreated, model.TxNormal, 2)
	s1 := testutil.Signature(testutil.Pubkey(1), 1)
	s2 := testutil.Signature(testutil.Pubkey(2), 2)

	changed, err := AddSignature(tx, testutil.Pubkey(1), s1, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StageCreated, tx.Stage)

	// 相同签名重复上传
	changed, err = AddSignature(tx, testutil.Pubkey(1), s1, now)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Len(t, tx.Signatures, 1)

	// 同一公钥换了签名
	_, err = AddSignature(tx, testutil.Pubkey(1), testutil.Signature(testutil.Pubkey(1), 9), now)
	assert.ErrorIs(t, err, errno.ErrDuplicateSigner)

	changed, err = AddSignature(tx, testutil.Pubkey(2), s2, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.StageSenderSigCompleted, tx.Stage)

	// 签名已满
	_, err = AddSignature(tx, testutil.Pubkey(3), testutil.Signature(testutil.Pubkey(3), 3), now)
	assert.ErrorIs(t, err, errno.ErrTxStageIllegal)
}

func TestCheckOpen(t *testing.T) {
	tests := []struct {
		name  string
		stage model.TxStage
		at    time.Time
		want  error
	}{
		{"open", model.StageCreated, now, nil},
		{"reconfirmed", model.StageSenderReconfirmed, now, errno.ErrTxAlreadyConfirmed},
		{"rejected", model.StageReceiverRejected, now, errno.ErrTxStageIllegal},
		{"canceled", model.StageSenderCanceled, now, errno.ErrTxStageIllegal},
		{"expired stage", model.StageMultiSigExpired, now, errno.ErrTxStageIllegal},
		{"past expire_at", model.StageReceiverApproved, now.Add(2 * time.Hour), errno.ErrTxExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Cancel(newTx(tt.stage, model.TxNormal, 0), tt.at)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestReact(t *testing.T) {
	tx := newTx(model.StageCreated, model.TxNormal, 1)
	assert.ErrorIs(t, React(tx, true, now), errno.ErrTxStageIllegal)

	tx = newTx(model.StageSenderSigCompleted, model.TxForced, 0)
	assert.ErrorIs(t, React(tx, true, now), errno.ErrTxStageIllegal)

	tx = newTx(model.StageSenderSigCompleted, model.TxNormal, 0)
	require.NoError(t, React(tx, true, now))
	assert.Equal(t, model.StageReceiverApproved, tx.Stage)

	tx = newTx(model.StageSenderSigCompleted, model.TxNormal, 0)
	require.NoError(t, React(tx, false, now))
	assert.Equal(t, model.StageReceiverRejected, tx.Stage)
	// 拒绝后不可恢复
	assert.ErrorIs(t, React(tx, true, now), errno.ErrTxStageIllegal)
}

func TestReconfirm(t *testing.T) {
	sig := "final"
	tests := []struct {
		name      string
		stage     model.TxStage
		txType    model.TxType
		final     *string
		want      error
		wantStage model.TxStage
	}{
		{"normal needs approval", model.StageSenderSigCompleted, model.TxNormal, &sig, errno.ErrTxStageIllegal, model.StageSenderSigCompleted},
		{"normal approved", model.StageReceiverApproved, model.TxNormal, &sig, nil, model.StageSenderReconfirmed},
		{"forced skips approval", model.StageSenderSigCompleted, model.TxForced, &sig, nil, model.StageSenderReconfirmed},
		{"forced not signed", model.StageCreated, model.TxForced, &sig, errno.ErrTxStageIllegal, model.StageCreated},
		{"nil cancels", model.StageReceiverApproved, model.TxNormal, nil, nil, model.StageSenderCanceled},
		{"already reconfirmed", model.StageSenderReconfirmed, model.TxNormal, &sig, errno.ErrTxAlreadyConfirmed, model.StageSenderReconfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newTx(tt.stage, tt.txType, 0)
			err := Reconfirm(tx, tt.final, now)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
			assert.Equal(t, tt.wantStage, tx.Stage)
		})
	}
}

func TestExpire(t *testing.T) {
	later := now.Add(2 * time.Hour)

	tx := newTx(model.StageCreated, model.TxNormal, 1)
	assert.False(t, Expire(tx, now))
	assert.True(t, Expire(tx, later))
	assert.Equal(t, model.StageMultiSigExpired, tx.Stage)

	tx = newTx(model.StageSenderReconfirmed, model.TxNormal, 1)
	assert.False(t, Expire(tx, later))
}
