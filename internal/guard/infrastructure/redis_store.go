package infrastructure

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/calculus-guy/paymentscore/internal/guard/domain"
	"github.com/calculus-guy/paymentscore/pkg/cache"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	usageKeyPrefix = "guard:usage:"
	blockKeyPrefix = "guard:block:"
	violKeyPrefix  = "guard:viol:"

	// usageRetention must cover the longest configured window (monthly).
	usageRetention = 31 * 24 * time.Hour
)

// RedisUsageStore keeps each scope's window as a sorted set keyed by
// nanosecond timestamp, so rolling windows are range queries.
type RedisUsageStore struct {
	cache *cache.RedisCache
}

func NewRedisUsageStore(c *cache.RedisCache) *RedisUsageStore {
	return &RedisUsageStore{cache: c}
}

func (s *RedisUsageStore) Add(ctx context.Context, scopeKey string, amount decimal.Decimal, at time.Time) error {
	key := usageKeyPrefix + scopeKey
	member := fmt.Sprintf("%d:%s:%s", at.UnixNano(), amount.String(), uuid.NewString())
	if err := s.cache.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: member}); err != nil {
		return err
	}
	return s.cache.Expire(ctx, key, usageRetention)
}

func (s *RedisUsageStore) Window(ctx context.Context, scopeKey string, since time.Time) (domain.Usage, error) {
	key := usageKeyPrefix + scopeKey
	members, err := s.cache.ZRangeByScore(ctx, key, fmt.Sprintf("%d", since.UnixNano()), "+inf")
	if err != nil {
		return domain.Usage{}, err
	}

	usage := domain.Usage{Amount: decimal.Zero}
	for _, member := range members {
		parts := strings.SplitN(member, ":", 3)
		if len(parts) < 2 {
			continue
		}
		amount, err := decimal.NewFromString(parts[1])
		if err != nil {
			continue
		}
		usage.Count++
		usage.Amount = usage.Amount.Add(amount)
	}
	return usage, nil
}

func (s *RedisUsageStore) Prune(ctx context.Context, scopeKey string, before time.Time) error {
	return s.cache.ZRemRangeByScore(ctx, usageKeyPrefix+scopeKey, "-inf", fmt.Sprintf("%d", before.UnixNano()))
}

// RedisBlockStore keeps temporary blocks as TTL keys and violation sequences
// as counters with the monitoring period as lifetime.
type RedisBlockStore struct {
	cache *cache.RedisCache
}

func NewRedisBlockStore(c *cache.RedisCache) *RedisBlockStore {
	return &RedisBlockStore{cache: c}
}

func (s *RedisBlockStore) Block(ctx context.Context, scopeKey string, d time.Duration, reason string) error {
	return s.cache.Set(ctx, blockKeyPrefix+scopeKey, reason, d)
}

func (s *RedisBlockStore) BlockedFor(ctx context.Context, scopeKey string) (time.Duration, string, error) {
	key := blockKeyPrefix + scopeKey
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
	if ttl <= 0 {
		return 0, "", nil
	}
	return ttl, reason, nil
}

func (s *RedisBlockStore) NextViolation(ctx context.Context, scopeKey string, monitoringPeriod time.Duration) (int, error) {
	key := violKeyPrefix + scopeKey
	n, err := s.cache.Incr(ctx, key)
	if err != nil {
		return 0, err
	}
	if n == 1 {
		if err := s.cache.Expire(ctx, key, monitoringPeriod); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}

func (s *RedisBlockStore) Clear(ctx context.Context, scopeKey string) error {
	return s.cache.Delete(ctx, blockKeyPrefix+scopeKey, violKeyPrefix+scopeKey)
}
