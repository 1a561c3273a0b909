package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers session tokens that were logged out before
// they expired.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenId string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenId string) (bool, error)
	Close() error
}

const revokedKeyPrefix = "brandchat:revoked:"

type RedisRevocationStore struct {
	client *redis.Client
}

var _ RevocationStore = (*RedisRevocationStore)(nil)

// NewRedisRevocationStore connects to the server at url and verifies it is
// reachable.
func NewRedisRevocationStore(ctx context.Context, url string) (*RedisRevocationStore, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}

	c := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &RedisRevocationStore{client: c}, nil
}

func revokedKey(tokenId string) string {
	return revokedKeyPrefix + tokenId
}

// Revoke marks tokenId as revoked until ttl elapses. A non-positive ttl
// means the token has already expired and there is nothing to record.
func (r *RedisRevocationStore) Revoke(ctx context.Context, tokenId string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, revokedKey(tokenId), "1", ttl).Err()
}

func (r *RedisRevocationStore) IsRevoked(ctx context.Context, tokenId string) (bool, error) {
	n, err := r.client.Exists(ctx, revokedKey(tokenId)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RedisRevocationStore) Close() error {
	return r.client.Close()
}

// MemoryRevocationStore keeps revocations in process memory. It is used when
// no Redis URL is configured, which limits revocation to a single instance.
type MemoryRevocationStore struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

var _ RevocationStore = (*MemoryRevocationStore)(nil)

func NewMemoryRevocationStore() *MemoryRevocationStore {
	return &MemoryRevocationStore{
		revoked: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (m *MemoryRevocationStore) Revoke(ctx context.Context, tokenId string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for id, exp := range m.revoked {
		if !now.Before(exp) {
			delete(m.revoked, id)
		}
	}
	m.revoked[tokenId] = now.Add(ttl)
	return nil
}

func (m *MemoryRevocationStore) IsRevoked(ctx context.Context, tokenId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.revoked[tokenId]
	if !ok {
		return false, nil
	}
	if !m.now().Before(exp) {
		delete(m.revoked, tokenId)
		return false, nil
	}
	return true, nil
}

func (m *MemoryRevocationStore) Close() error {
	return nil
}
