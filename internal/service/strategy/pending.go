package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"chainless-core/internal/model"
	"chainless-core/pkg/cache"
	"chainless-core/pkg/errno"
)

// PendingKey 新设备生成后等待主设备添加的密钥
type PendingKey struct {
	Pubkey              string `json:"pubkey"`
	DeviceID            string `json:"device_id"`
	EncryptedByPassword string `json:"encrypted_prikey_by_password"`
	EncryptedByAnswer   string `json:"encrypted_prikey_by_answer"`
}

// PendingKeyStore 按用户暂存待添加的公钥，过期自动丢弃
type PendingKeyStore struct {
	cache cache.Cache
	ttl   time.Duration
	mu    sync.Mutex
}

func NewPendingKeyStore(c cache.Cache, ttl time.Duration) *PendingKeyStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &PendingKeyStore{cache: c, ttl: ttl}
}

func pendingKey(userID uint64) string {
	return fmt.Sprintf("pending_keys:%d", userID)
}

func (p *PendingKeyStore) list(ctx context.Context, userID uint64) ([]PendingKey, error) {
	var keys []PendingKey
	if err := p.cache.Get(ctx, pendingKey(userID), &keys); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return keys, nil
}

// Put 同一公钥重复上传时覆盖旧值
func (p *PendingKeyStore) Put(ctx context.Context, userID uint64, key PendingKey) error {
	if !model.IsPubkeyHex(key.Pubkey) {
		return errno.ErrRequestParamInvalid.WithMessage("invalid pubkey")
	}
	if key.EncryptedByPassword == "" || key.EncryptedByAnswer == "" {
		return errno.ErrRequestParamInvalid.WithMessage("encrypted prikey is empty")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	keys, err := p.list(ctx, userID)
	if err != nil {
		return err
	}
	out := keys[:0]
	for _, k := range keys {
		if k.Pubkey != key.Pubkey {
			out = append(out, k)
		}
	}
	out = append(out, key)
	return p.cache.Set(ctx, pendingKey(userID), out, p.ttl)
}

// Pubkeys 用户当前所有待添加的公钥
func (p *PendingKeyStore) Pubkeys(ctx context.Context, userID uint64) ([]string, error) {
	keys, err := p.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.Pubkey)
	}
	return out, nil
}

// Find 不存在时返回 ErrPendingKeyNotFound
func (p *PendingKeyStore) Find(ctx context.Context, userID uint64, pubkey string) (*PendingKey, error) {
	keys, err := p.list(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		if k.Pubkey == pubkey {
			return &k, nil
		}
	}
	return nil, errno.ErrPendingKeyNotFound
}

// Remove 公钥被正式添加后移除
func (p *PendingKeyStore) Remove(ctx context.Context, userID uint64, pubkey string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys, err := p.list(ctx, userID)
	if err != nil {
		return err
	}
	out := keys[:0]
	for _, k := range keys {
		if k.Pubkey != pubkey {
			out = append(out, k)
		}
	}
	if len(out) == 0 {
		return p.cache.Delete(ctx, pendingKey(userID))
	}
	return p.cache.Set(ctx, pendingKey(userID), out, p.ttl)
}
