package saga

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"chainless-core/internal/model"
	"chainless-core/internal/service/chain"
	"chainless-core/internal/testutil"
	"chainless-core/pkg/errno"
)

type fixture struct {
	db     *gorm.DB
	chain  *chain.MemoryChain
	master string
	user   *model.User
}

func setup(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	u := testutil.SeedUser(t, db, "saga@example.com")
	m := testutil.Pubkey(1)
	testutil.SeedStrategy(t, db, u.ID, m)
	return &fixture{db: db, chain: chain.NewMemoryChain(), master: m, user: u}
}

// addServant 在本地加入从设备并写入两步的管理记录
func (f *fixture) addServant(t *testing.T, servant string) string {
	var rec model.WalletManageRecord
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var s model.Strategy
		if err := tx.First(&s, "account_id = ?", f.master).Error; err != nil {
			return err
		}
		before := s.Snapshot()
		s.ServantPubkeys = append(s.ServantPubkeys, servant)
		s.Version++
		if err := tx.Save(&s).Error; err != nil {
			return err
		}
		rec = model.WalletManageRecord{
			UserID:           f.user.ID,
			AccountID:        s.AccountID,
			OperationType:    model.OpAddServant,
			OperatorDeviceID: "dev-m",
			Steps: []model.ChainStep{
				{Method: chain.MethodAddServant, Args: map[string]string{"servant": servant}},
				{Method: chain.MethodUpdateRanks, Args: map[string]string{"ranks": "[]"}},
			},
			Before: before,
			After:  s.Snapshot(),
		}
		return Begin(tx, &rec)
	})
	require.NoError(t, err)
	return rec.RecordID
}

func (f *fixture) record(t *testing.T, id string) model.WalletManageRecord {
	var rec model.WalletManageRecord
	require.NoError(t, f.db.Where("record_id = ?", id).First(&rec).Error)
	return rec
}

func (f *fixture) strategy(t *testing.T) model.Strategy {
	var s model.Strategy
	require.NoError(t, f.db.First(&s, "account_id = ?", f.master).Error)
	return s
}

func TestAdvanceRunsAllSteps(t *testing.T) {
	f := setup(t)
	id := f.addServant(t, testutil.Pubkey(2))

	exec := NewExecutor(f.db, f.chain, 3)
	require.NoError(t, exec.Advance(context.Background(), id))

	rec := f.record(t, id)
	assert.Equal(t, model.ChainConfirmed, rec.Status)
	assert.Equal(t, 1, rec.CurrentStep)
	assert.Len(t, rec.TxIDs, 2)
	assert.Equal(t, []string{chain.MethodAddServant, chain.MethodUpdateRanks}, f.chain.Methods())

	// 每一步带固定 nonce
	calls := f.chain.Calls()
	assert.Equal(t, id+":0", calls[0].Step.Args[chain.ArgNonce])
	assert.Equal(t, id+":1", calls[1].Step.Args[chain.ArgNonce])

	// 已完成的记录再推进不会重复提交
	require.NoError(t, exec.Advance(context.Background(), id))
	assert.Len(t, f.chain.Calls(), 2)

	var events int64
	f.db.Model(&model.OutboxMessage{}).Where("topic = ?", model.TopicManageEvents).Count(&events)
	assert.GreaterOrEqual(t, events, int64(4))

	st := f.strategy(t)
	assert.True(t, st.HasServant(testutil.Pubkey(2)))
}

func TestChainFailureRestoresStrategy(t *testing.T) {
	f := setup(t)
	f.chain.Fail(chain.MethodUpdateRanks, true)
	id := f.addServant(t, testutil.Pubkey(2))

	exec := NewExecutor(f.db, f.chain, 3)
	require.NoError(t, exec.Advance(context.Background(), id))

	rec := f.record(t, id)
	assert.Equal(t, model.ChainFailed, rec.Status)
	assert.NotEmpty(t, rec.LastError)

	s := f.strategy(t)
	assert.False(t, s.HasServant(testutil.Pubkey(2)))
	assert.Equal(t, uint64(2), s.Version)
}

func TestCompensationSkippedWhenStrategyMoved(t *testing.T) {
	f := setup(t)
	f.chain.Fail(chain.MethodAddServant, true)
	id := f.addServant(t, testutil.Pubkey(2))

	// 后续操作已经改过策略
	require.NoError(t, f.db.Model(&model.Strategy{}).Where("account_id = ?", f.master).
		Update("version", 5).Error)

	exec := NewExecutor(f.db, f.chain, 3)
	require.NoError(t, exec.Advance(context.Background(), id))

	assert.Equal(t, model.ChainFailed, f.record(t, id).Status)
	s := f.strategy(t)
	assert.True(t, s.HasServant(testutil.Pubkey(2)))
	assert.Equal(t, uint64(5), s.Version)
}

func TestTimeoutLeavesRecordForReconcile(t *testing.T) {
	f := setup(t)
	f.chain.Stall(chain.MethodAddServant, true)
	id := f.addServant(t, testutil.Pubkey(2))

	exec := NewExecutor(f.db, chain.WithTimeout(f.chain, 20*time.Millisecond), 5)
	err := exec.Advance(context.Background(), id)
	assert.ErrorIs(t, err, errno.ErrExternalCallTimedOut)

	rec := f.record(t, id)
	assert.Equal(t, model.ChainNotLaunch, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	st := f.strategy(t)
	assert.True(t, st.HasServant(testutil.Pubkey(2)))

	f.chain.Stall(chain.MethodAddServant, false)
	n, err := exec.Reconcile(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.ChainConfirmed, f.record(t, id).Status)
}

func TestAttemptsExhaustedCompensates(t *testing.T) {
	f := setup(t)
	f.chain.Stall(chain.MethodAddServant, true)
	id := f.addServant(t, testutil.Pubkey(2))

	exec := NewExecutor(f.db, chain.WithTimeout(f.chain, 10*time.Millisecond), 1)
	assert.Error(t, exec.Advance(context.Background(), id))

	assert.Equal(t, model.ChainFailed, f.record(t, id).Status)
	st := f.strategy(t)
	assert.False(t, st.HasServant(testutil.Pubkey(2)))
}

func TestReconcilePollsPending(t *testing.T) {
	f := setup(t)
	f.chain.HoldPending(chain.MethodAddServant, true)
	id := f.addServant(t, testutil.Pubkey(2))

	exec := NewExecutor(f.db, f.chain, 3)
	require.NoError(t, exec.Advance(context.Background(), id))
	rec := f.record(t, id)
	assert.Equal(t, model.ChainPending, rec.Status)
	assert.Equal(t, 0, rec.CurrentStep)

	f.chain.HoldPending(chain.MethodAddServant, false)
	_, err := exec.Reconcile(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, model.ChainConfirmed, f.record(t, id).Status)
}

func TestFailedCreateAccountIsUndone(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.SeedUser(t, db, "new@example.com")
	m := testutil.Pubkey(9)
	testutil.SeedDevice(t, db, u.ID, "dev", "")

	custody, err := CaptureCustody(db, u.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&model.Device{}).Where("device_id = ?", "dev").Update("hold_pubkey", m).Error)
	s := testutil.SeedStrategy(t, db, u.ID, m)
	testutil.SeedSecret(t, db, u.ID, m)
	changed, err := custody.Changes(db)
	require.NoError(t, err)
	require.Len(t, changed.Devices, 1)
	require.Len(t, changed.Created, 1)

	mc := chain.NewMemoryChain()
	mc.Fail(chain.MethodInitStrategy, true)

	rec := model.WalletManageRecord{
		UserID:        u.ID,
		AccountID:     m,
		OperationType: model.OpCreateAccount,
		Steps:         []model.ChainStep{{Method: chain.MethodInitStrategy}},
		After:         s.Snapshot(),
		Custody:       changed,
	}
	require.NoError(t, Begin(db, &rec))
	require.NoError(t, NewExecutor(db, mc, 3).Advance(context.Background(), rec.RecordID))

	var count int64
	db.Model(&model.Strategy{}).Where("account_id = ?", m).Count(&count)
	assert.Zero(t, count)

	var user model.User
	require.NoError(t, db.First(&user, u.ID).Error)
	assert.Nil(t, user.MainAccount)

	var dev model.Device
	require.NoError(t, db.Where("device_id = ?", "dev").First(&dev).Error)
	assert.Nil(t, dev.HoldPubkey)

	db.Model(&model.SecretRecord{}).Where("pubkey = ? AND state = ?", m, model.SecretSitting).Count(&count)
	assert.Zero(t, count)
}

func TestRestoreCustodyKeepsNewerSecret(t *testing.T) {
	db := testutil.NewDB(t)
	u := testutil.SeedUser(t, db, "c@example.com")
	old := testutil.SeedSecret(t, db, u.ID, testutil.Pubkey(2))

	custody, err := CaptureCustody(db, u.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(old).Update("state", model.SecretDeprecated).Error)
	changed, err := custody.Changes(db)
	require.NoError(t, err)
	require.Len(t, changed.Secrets, 1)
	assert.Equal(t, model.SecretSitting, changed.Secrets[0].State)

	// 之后同一公钥又写入了新的托管记录
	newer := testutil.SeedSecret(t, db, u.ID, testutil.Pubkey(2))
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return restoreCustody(tx, changed)
	}))

	var got model.SecretRecord
	require.NoError(t, db.First(&got, old.ID).Error)
	assert.Equal(t, model.SecretDeprecated, got.State)
	require.NoError(t, db.First(&got, newer.ID).Error)
	assert.Equal(t, model.SecretSitting, got.State)
}
