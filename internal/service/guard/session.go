package guard

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"chainless-core/pkg/cache"
	"chainless-core/pkg/errno"
)

// Session 一个登录设备的会话
type Session struct {
	UserID      uint64 `json:"user_id"`
	DeviceID    string `json:"device_id"`
	DeviceBrand string `json:"device_brand"`
}

// SessionStore bearer token 到会话的映射
type SessionStore struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewSessionStore(c cache.Cache, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &SessionStore{cache: c, ttl: ttl}
}

func sessionKey(token string) string {
	return "session:" + token
}

// Issue 签发新 token
func (s *SessionStore) Issue(ctx context.Context, sess Session) (string, error) {
	token := uuid.NewString()
	if err := s.cache.Set(ctx, sessionKey(token), sess, s.ttl); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve token 不存在或已过期返回 ErrTokenInvalid
func (s *SessionStore) Resolve(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, errno.ErrTokenInvalid
	}
	var sess Session
	if err := s.cache.Get(ctx, sessionKey(token), &sess); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, errno.ErrTokenInvalid
		}
		return nil, err
	}
	return &sess, nil
}

func (s *SessionStore) Revoke(ctx context.Context, token string) error {
	return s.cache.Delete(ctx, sessionKey(token))
}
