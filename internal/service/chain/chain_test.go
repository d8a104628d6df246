package chain

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainless-core/internal/model"
	"chainless-core/pkg/config"
	"chainless-core/pkg/errno"
)

func step(method string, args map[string]string) model.ChainStep {
	return model.ChainStep{Method: method, Args: args}
}

func TestMemoryChainIdempotentSubmit(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChain()

	// 参数顺序不影响 tx id
	s := step(MethodAddServant, map[string]string{"servant": "k2", ArgNonce: "r1"})
	id1, err := c.Submit(ctx, "acc", s)
	require.NoError(t, err)
	id2, err := c.Submit(ctx, "acc", step(MethodAddServant, map[string]string{ArgNonce: "r1", "servant": "k2"}))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
	assert.Len(t, c.Calls(), 1)

	id3, err := c.Submit(ctx, "acc", step(MethodAddServant, map[string]string{"servant": "k2", ArgNonce: "r2"}))
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
	assert.Equal(t, []string{MethodAddServant, MethodAddServant}, c.Methods())
}

func TestMemoryChainStatus(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChain()
	c.Fail(MethodRevokeMaster, true)
	c.HoldPending(MethodTransfer, true)

	ok, _ := c.Submit(ctx, "acc", step(MethodAddServant, nil))
	bad, _ := c.Submit(ctx, "acc", step(MethodRevokeMaster, nil))
	slow, _ := c.Submit(ctx, "acc", step(MethodTransfer, nil))

	st, err := c.PollStatus(ctx, ok)
	require.NoError(t, err)
	assert.Equal(t, model.ChainConfirmed, st)

	st, _ = c.PollStatus(ctx, bad)
	assert.Equal(t, model.ChainFailed, st)

	st, _ = c.PollStatus(ctx, slow)
	assert.Equal(t, model.ChainPending, st)
	c.HoldPending(MethodTransfer, false)
	st, _ = c.PollStatus(ctx, slow)
	assert.Equal(t, model.ChainConfirmed, st)

	_, err = c.PollStatus(ctx, "0xmissing")
	assert.Error(t, err)
}

func TestWithTimeoutMapsDeadline(t *testing.T) {
	c := NewMemoryChain()
	c.Stall(MethodInstallMaster, true)
	s := WithTimeout(c, 20*time.Millisecond)

	_, err := s.Submit(context.Background(), "acc", step(MethodInstallMaster, nil))
	assert.ErrorIs(t, err, errno.ErrExternalCallTimedOut)
	assert.Empty(t, c.Calls())

	_, err = s.PollStatus(context.Background(), "0xmissing")
	assert.ErrorIs(t, err, errno.ErrExternalCall)
}

func TestPackCall(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(registryABI))
	require.NoError(t, err)

	data, err := packCall(parsed, "acc", step(MethodUpdateRanks, map[string]string{"ranks": "[]"}))
	require.NoError(t, err)

	method, ok := parsed.Methods["execute"]
	require.True(t, ok)
	assert.Equal(t, method.ID, data[:4])

	values, err := method.Inputs.Unpack(data[4:])
	require.NoError(t, err)
	assert.Equal(t, "acc", values[0])
	assert.Equal(t, MethodUpdateRanks, values[1])
	assert.JSONEq(t, `{"ranks":"[]"}`, string(values[2].([]byte)))
}

func TestOpenDriver(t *testing.T) {
	s, closeFn, err := Open(context.Background(), config.ChainConfig{Driver: "memory"}, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
	closeFn()

	_, _, err = Open(context.Background(), config.ChainConfig{Driver: "solana"}, nil)
	assert.Error(t, err)
}
