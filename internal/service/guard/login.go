package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chainless-core/pkg/cache"
	"chainless-core/pkg/config"
)

// LoginGuard 记录每个用户的密码错误时间
// 错误次数达到上限且距最后一次错误不超过锁定窗口时锁定
type LoginGuard struct {
	cache  cache.Cache
	limit  int
	window time.Duration
	now    func() time.Time
	mu     sync.Mutex
}

func NewLoginGuard(c cache.Cache, cfg config.AuthConfig) *LoginGuard {
	g := &LoginGuard{cache: c, limit: cfg.LoginRetryLimit, window: cfg.LockoutWindow, now: time.Now}
	if g.limit <= 0 {
		g.limit = 5
	}
	if g.window <= 0 {
		g.window = 30 * time.Minute
	}
	return g
}

func attemptsKey(userID uint64) string {
	return fmt.Sprintf("login_attempts:%d", userID)
}

func (g *LoginGuard) attempts(ctx context.Context, userID uint64) ([]time.Time, error) {
	var list []time.Time
	if err := g.cache.Get(ctx, attemptsKey(userID), &list); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return list, nil
}

// IsLocked 锁定窗口过去后清空历史
func (g *LoginGuard) IsLocked(ctx context.Context, userID uint64) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	list, err := g.attempts(ctx, userID)
	if err != nil || len(list) == 0 {
		return false, err
	}
	if g.now().After(list[len(list)-1].Add(g.window)) {
		return false, g.cache.Delete(ctx, attemptsKey(userID))
	}
	return len(list) >= g.limit, nil
}

// RecordFailure 记录一次密码错误
func (g *LoginGuard) RecordFailure(ctx context.Context, userID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	list, err := g.attempts(ctx, userID)
	if err != nil {
		return err
	}
	list = append(list, g.now())
	if len(list) > g.limit {
		list = list[len(list)-g.limit:]
	}
	return g.cache.Set(ctx, attemptsKey(userID), list, g.window)
}

// Reset 登录成功后清空
func (g *LoginGuard) Reset(ctx context.Context, userID uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cache.Delete(ctx, attemptsKey(userID))
}
