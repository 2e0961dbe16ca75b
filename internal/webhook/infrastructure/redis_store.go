package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/calculus-guy/paymentscore/pkg/cache"
)

const (
	dedupPrefix       = "webhook:event:"
	originBlockPrefix = "webhook:block:"
	originFailPrefix  = "webhook:fails:"
)

// RedisDedupStore remembers accepted event ids. SetNX makes MarkSeen a
// single atomic first-writer check.
type RedisDedupStore struct {
	cache *cache.RedisCache
}

func NewRedisDedupStore(c *cache.RedisCache) *RedisDedupStore {
	return &RedisDedupStore{cache: c}
}

func (s *RedisDedupStore) MarkSeen(ctx context.Context, provider, eventID string, window time.Duration) (bool, error) {
	key := fmt.Sprintf("%s%s:%s", dedupPrefix, provider, eventID)
	first, err := s.cache.SetNX(ctx, key, "1", window)
	if err != nil {
		return false, fmt.Errorf("webhook dedup mark: %w", err)
	}
	return first, nil
}

// RedisOriginBlockStore tracks blocked origins and failure streaks.
type RedisOriginBlockStore struct {
	cache *cache.RedisCache
}

func NewRedisOriginBlockStore(c *cache.RedisCache) *RedisOriginBlockStore {
	return &RedisOriginBlockStore{cache: c}
}

func (s *RedisOriginBlockStore) Block(ctx context.Context, originIP string, d time.Duration, reason string) error {
	return s.cache.Set(ctx, originBlockPrefix+originIP, reason, d)
}

func (s *RedisOriginBlockStore) BlockedFor(ctx context.Context, originIP string) (time.Duration, string, error) {
	key := originBlockPrefix + originIP
	reason, err := s.cache.Get(ctx, key)
	if err != nil {
		return 0, "", err
	}
	if reason == "" {
		return 0, "", nil
	}
	ttl, err := s.cache.TTL(ctx, key)
	if err != nil {
		return 0, "", err
	}
	return ttl, reason, nil
}

func (s *RedisOriginBlockStore) RecordFailure(ctx context.Context, originIP string, window time.Duration) (int, error) {
	key := originFailPrefix + originIP
	n, err := s.cache.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.cache.Expire(ctx, key, window); err != nil {
			return 0, err
		}
	}
	return int(n), nil
}

func (s *RedisOriginBlockStore) ClearFailures(ctx context.Context, originIP string) error {
	return s.cache.Delete(ctx, originFailPrefix+originIP)
}
