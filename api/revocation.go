package api

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shaj13/go-guardian/store"
)

// Denylist records revoked token ids until their natural expiry
type Denylist interface {
	Revoke(ctx context.Context, jti string, until time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// MemoryDenylist keeps revoked ids in an in-process FIFO cache. Entries are
// evicted after the cache ttl, which should be at least the token lifetime.
type MemoryDenylist struct {
	cache store.Cache
}

// NewMemoryDenylist returns a MemoryDenylist whose entries live for ttl
func NewMemoryDenylist(ctx context.Context, ttl time.Duration) *MemoryDenylist {
	return &MemoryDenylist{cache: store.NewFIFO(ctx, ttl)}
}

// Revoke implements Denylist
func (m *MemoryDenylist) Revoke(_ context.Context, jti string, until time.Time) error {
	if !until.After(time.Now()) {
		return nil
	}
	return m.cache.Store(jti, until, nil)
}

// IsRevoked implements Denylist
func (m *MemoryDenylist) IsRevoked(_ context.Context, jti string) (bool, error) {
	v, ok, err := m.cache.Load(jti, nil)
	if err != nil || !ok {
		return false, err
	}
	until, _ := v.(time.Time)
	return until.After(time.Now()), nil
}

// RedisDenylist shares revoked ids between instances through redis keys that
// expire together with the token
type RedisDenylist struct {
	client *redis.Client
}

// NewRedisDenylist returns a RedisDenylist backed by client
func NewRedisDenylist(client *redis.Client) *RedisDenylist {
	return &RedisDenylist{client: client}
}

func revokedKey(jti string) string {
	return "revoked:" + jti
}

// Revoke implements Denylist
func (d *RedisDenylist) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, revokedKey(jti), 1, ttl).Err()
}

// IsRevoked implements Denylist
func (d *RedisDenylist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := d.client.Get(ctx, revokedKey(jti)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
