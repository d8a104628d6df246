package guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainless-core/internal/model"
	"chainless-core/pkg/cache"
	"chainless-core/pkg/config"
	"chainless-core/pkg/errno"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func authConfig() config.AuthConfig {
	return config.AuthConfig{
		CodeLifetime:       10 * time.Minute,
		CodeResendInterval: time.Minute,
		LoginRetryLimit:    5,
		LockoutWindow:      30 * time.Minute,
	}
}

func newCache() cache.Cache {
	return cache.NewMemoryCache(time.Hour, time.Hour)
}

func TestCodeStore(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Now()}
	s := NewCodeStore(newCache(), authConfig())
	s.now = c.now

	assert.ErrorIs(t, s.Check(ctx, "a@example.com", model.UsageRegister, "123456"), errno.ErrCodeNotFound)

	code, err := s.Request(ctx, "a@example.com", model.UsageRegister)
	require.NoError(t, err)
	assert.Len(t, code, 6)
	assert.NotEqual(t, byte('0'), code[0])

	// 用途之间互不影响
	assert.ErrorIs(t, s.Check(ctx, "a@example.com", model.UsageLogin, code), errno.ErrCodeNotFound)

	_, err = s.Request(ctx, "a@example.com", model.UsageRegister)
	assert.ErrorIs(t, err, errno.ErrRequestTooFrequent)

	wrong := "000000"
	assert.ErrorIs(t, s.Check(ctx, "a@example.com", model.UsageRegister, wrong), errno.ErrIncorrectCode)
	assert.NoError(t, s.Check(ctx, "a@example.com", model.UsageRegister, code))

	c.advance(11 * time.Minute)
	assert.ErrorIs(t, s.Check(ctx, "a@example.com", model.UsageRegister, code), errno.ErrCodeExpired)
	// 错误的码优先报 IncorrectCode
	assert.ErrorIs(t, s.Check(ctx, "a@example.com", model.UsageRegister, wrong), errno.ErrIncorrectCode)

	// 过了重发间隔可以重新获取，旧码失效
	fresh, err := s.Request(ctx, "a@example.com", model.UsageRegister)
	require.NoError(t, err)
	require.NoError(t, s.CheckAndDelete(ctx, "a@example.com", model.UsageRegister, fresh))
	assert.ErrorIs(t, s.Check(ctx, "a@example.com", model.UsageRegister, fresh), errno.ErrCodeNotFound)
}

func TestCodeStoreFixedCode(t *testing.T) {
	cfg := authConfig()
	cfg.FixedCode = "000000"
	s := NewCodeStore(newCache(), cfg)

	code, err := s.Request(context.Background(), "+86 13800000000", model.UsageLogin)
	require.NoError(t, err)
	assert.Equal(t, "000000", code)
}

func TestLoginGuard(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Now()}
	g := NewLoginGuard(newCache(), authConfig())
	g.now = c.now

	for i := 0; i < 4; i++ {
		require.NoError(t, g.RecordFailure(ctx, 1))
	}
	locked, err := g.IsLocked(ctx, 1)
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, g.RecordFailure(ctx, 1))
	locked, _ = g.IsLocked(ctx, 1)
	assert.True(t, locked)

	// 其他用户不受影响
	locked, _ = g.IsLocked(ctx, 2)
	assert.False(t, locked)

	c.advance(29 * time.Minute)
	locked, _ = g.IsLocked(ctx, 1)
	assert.True(t, locked)

	// 窗口过去后历史清空
	c.advance(2 * time.Minute)
	locked, _ = g.IsLocked(ctx, 1)
	assert.False(t, locked)
	require.NoError(t, g.RecordFailure(ctx, 1))
	locked, _ = g.IsLocked(ctx, 1)
	assert.False(t, locked)

	require.NoError(t, g.Reset(ctx, 1))
	list, err := g.attempts(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSessionStore(t *testing.T) {
	ctx := context.Background()
	s := NewSessionStore(newCache(), time.Hour)

	token, err := s.Issue(ctx, Session{UserID: 7, DeviceID: "dev", DeviceBrand: "pixel"})
	require.NoError(t, err)

	sess, err := s.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), sess.UserID)
	assert.Equal(t, "dev", sess.DeviceID)

	require.NoError(t, s.Revoke(ctx, token))
	_, err = s.Resolve(ctx, token)
	assert.ErrorIs(t, err, errno.ErrTokenInvalid)

	_, err = s.Resolve(ctx, "")
	assert.ErrorIs(t, err, errno.ErrTokenInvalid)
}
