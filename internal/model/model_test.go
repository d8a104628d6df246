package model

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainless-core/pkg/errno"
)

func TestParseEnums(t *testing.T) {
	tests := []struct {
		name  string
		parse func(string) error
		input string
		ok    bool
	}{
		{"coin ok", func(s string) error { _, err := ParseCoinType(s); return err }, "usdt", true},
		{"coin upper", func(s string) error { _, err := ParseCoinType(s); return err }, "USDT", false},
		{"usage camel", func(s string) error { _, err := ParseUsage(s); return err }, "servantReplaceMaster", true},
		{"usage unknown", func(s string) error { _, err := ParseUsage(s); return err }, "transfer", false},
		{"stage", func(s string) error { _, err := ParseTxStage(s); return err }, "SenderReconfirmed", true},
		{"tx type", func(s string) error { _, err := ParseTxType(s); return err }, "MainToBridge", true},
		{"secret kind", func(s string) error { _, err := ParseSecretKind(s); return err }, "everything", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.parse(tt.input)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, errno.ErrRequestParamInvalid)
		})
	}
}

func TestStageOrderAndJSON(t *testing.T) {
	assert.Less(t, int(StageCreated), int(StageSenderSigCompleted))
	assert.Less(t, int(StageReceiverRejected), int(StageSenderCanceled))
	assert.Less(t, int(StageSenderReconfirmed), int(StageMultiSigExpired))

	data, err := json.Marshal(StageReceiverApproved)
	require.NoError(t, err)
	assert.Equal(t, `"ReceiverApproved"`, string(data))

	var s TxStage
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, StageReceiverApproved, s)
}

func TestParseContact(t *testing.T) {
	ct, err := ParseContact("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, ContactEmail, ct)

	ct, err = ParseContact("+86 13682000011")
	require.NoError(t, err)
	assert.Equal(t, ContactPhone, ct)

	_, err = ParseContact("13682000011")
	assert.Error(t, err)
}

func TestParseAmount(t *testing.T) {
	max := MaxAmount.String()
	assert.Equal(t, "340282366920938463463374607431768211455", max)

	_, err := ParseAmount(max)
	assert.NoError(t, err)

	tests := []string{"-1", "1.5", "abc", "340282366920938463463374607431768211456"}
	for _, in := range tests {
		_, err := ParseAmount(in)
		assert.ErrorIs(t, err, errno.ErrRequestParamInvalid, in)
	}

	d, err := ParseAmount("0")
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}

func TestParsePubkeySignInfo(t *testing.T) {
	pub := strings.Repeat("ab", 32)
	sig := strings.Repeat("cd", 64)

	p, s, err := ParsePubkeySignInfo(pub + sig)
	require.NoError(t, err)
	assert.Equal(t, pub, p)
	assert.Equal(t, sig, s)
	assert.True(t, IsPubkeyHex(p))

	_, _, err = ParsePubkeySignInfo(pub)
	assert.ErrorIs(t, err, errno.ErrRequestParamInvalid)

	_, _, err = ParsePubkeySignInfo(strings.Repeat("zz", 96))
	assert.ErrorIs(t, err, errno.ErrRequestParamInvalid)
}

func TestStrategySnapshotRestore(t *testing.T) {
	s := &Strategy{
		MasterPubkey:   "m",
		ServantPubkeys: []string{"s1"},
		MultiSigRanks:  []MultiSigRank{{Min: decimal.Zero, MaxEq: MaxAmount, SigNum: 1}},
		Subaccounts:    map[string]SubaccountConfig{"sub": {Pubkey: "sub", HoldValueLimit: decimal.NewFromInt(10)}},
		Version:        3,
	}
	snap := s.Snapshot()

	s.ServantPubkeys = append(s.ServantPubkeys, "s2")
	s.Subaccounts["sub"] = SubaccountConfig{Pubkey: "sub", HoldValueLimit: decimal.NewFromInt(99)}
	s.Version++

	assert.Equal(t, []string{"s1"}, snap.ServantPubkeys)
	assert.True(t, snap.Subaccounts["sub"].HoldValueLimit.Equal(decimal.NewFromInt(10)))

	s.Restore(snap)
	assert.Equal(t, []string{"s1"}, s.ServantPubkeys)
	assert.True(t, s.Subaccounts["sub"].HoldValueLimit.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, uint64(5), s.Version)
	assert.True(t, s.HasServant("s1"))
	assert.False(t, s.HasServant("s2"))
}
