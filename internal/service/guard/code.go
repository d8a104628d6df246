package guard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainless-core/internal/model"
	"chainless-core/pkg/cache"
	"chainless-core/pkg/config"
	"chainless-core/pkg/errno"
	"chainless-core/pkg/monitor"
	"chainless-core/pkg/safe_random"
)

const codeDigits = 6

type codeEntry struct {
	Code     string    `json:"code"`
	IssuedAt time.Time `json:"issued_at"`
	ExpireAt time.Time `json:"expire_at"`
}

// CodeStore 验证码，每个 (owner, usage) 同时只有一个有效码
// 缓存保留时间长于有效期，用来区分过期和不存在
type CodeStore struct {
	cache    cache.Cache
	lifetime time.Duration
	resend   time.Duration
	fixed    string
	now      func() time.Time
}

func NewCodeStore(c cache.Cache, cfg config.AuthConfig) *CodeStore {
	s := &CodeStore{
		cache:    c,
		lifetime: cfg.CodeLifetime,
		resend:   cfg.CodeResendInterval,
		fixed:    cfg.FixedCode,
		now:      time.Now,
	}
	if s.lifetime <= 0 {
		s.lifetime = 10 * time.Minute
	}
	if s.resend <= 0 {
		s.resend = time.Minute
	}
	return s
}

func codeKey(owner string, usage model.Usage) string {
	return fmt.Sprintf("code:%s:%s", usage, owner)
}

func (s *CodeStore) load(ctx context.Context, owner string, usage model.Usage) (*codeEntry, error) {
	var e codeEntry
	if err := s.cache.Get(ctx, codeKey(owner, usage), &e); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}

// Request 生成新的验证码，距上次发送不足重发间隔时返回 ErrRequestTooFrequent
func (s *CodeStore) Request(ctx context.Context, owner string, usage model.Usage) (string, error) {
	now := s.now()
	prev, err := s.load(ctx, owner, usage)
	if err != nil {
		return "", err
	}
	if prev != nil && now.Before(prev.IssuedAt.Add(s.resend)) {
		return "", errno.ErrRequestTooFrequent
	}

	code := s.fixed
	if code == "" {
		if code, err = safe_random.GenerateNumericCode(codeDigits); err != nil {
			return "", err
		}
	}
	entry := codeEntry{Code: code, IssuedAt: now, ExpireAt: now.Add(s.lifetime)}
	if err := s.cache.Set(ctx, codeKey(owner, usage), entry, 2*s.lifetime); err != nil {
		return "", err
	}
	monitor.Business.CodeRequestedTotal.WithLabelValues(string(usage)).Inc()
	return code, nil
}

// Check 校验验证码，不消耗
func (s *CodeStore) Check(ctx context.Context, owner string, usage model.Usage, code string) error {
	e, err := s.load(ctx, owner, usage)
	if err != nil {
		return err
	}
	if e == nil {
		return errno.ErrCodeNotFound
	}
	if e.Code != code {
		return errno.ErrIncorrectCode
	}
	if s.now().After(e.ExpireAt) {
		return errno.ErrCodeExpired
	}
	return nil
}

// CheckAndDelete 校验通过后删除，同一个码只能用一次
func (s *CodeStore) CheckAndDelete(ctx context.Context, owner string, usage model.Usage, code string) error {
	if err := s.Check(ctx, owner, usage, code); err != nil {
		return err
	}
	return s.cache.Delete(ctx, codeKey(owner, usage))
}
