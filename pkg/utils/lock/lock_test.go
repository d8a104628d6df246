package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLock(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	l := NewLocalLock()
	l.nowFn = func() time.Time { return now }

	ok, err := l.Acquire(ctx, "job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.Acquire(ctx, "job", time.Minute)
	assert.False(t, ok, "锁未过期时不能重复获取")

	ok, _ = l.Acquire(ctx, "other", time.Minute)
	assert.True(t, ok, "不同 key 互不影响")

	now = now.Add(2 * time.Minute)
	ok, _ = l.Acquire(ctx, "job", time.Minute)
	assert.True(t, ok, "过期后可以重新获取")

	require.NoError(t, l.Release(ctx, "job"))
	ok, _ = l.Acquire(ctx, "job", time.Minute)
	assert.True(t, ok)
}
