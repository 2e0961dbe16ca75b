package infrastructure

import (
	"context"

	"github.com/calculus-guy/paymentscore/pkg/cache"
)

const hardBlockKeyPrefix = "risk:hardblock:"

// RedisHardBlockStore keeps hard-blocked subjects as unexpiring keys; only
// an explicit admin clear removes them.
type RedisHardBlockStore struct {
	cache *cache.RedisCache
}

func NewRedisHardBlockStore(c *cache.RedisCache) *RedisHardBlockStore {
	return &RedisHardBlockStore{cache: c}
}

func (s *RedisHardBlockStore) Add(ctx context.Context, subjectID, reason string) error {
	return s.cache.Set(ctx, hardBlockKeyPrefix+subjectID, reason, 0)
}

func (s *RedisHardBlockStore) Contains(ctx context.Context, subjectID string) (bool, string, error) {
	reason, err := s.cache.Get(ctx, hardBlockKeyPrefix+subjectID)
	if err != nil {
		return false, "", err
	}
	return reason != "", reason, nil
}

func (s *RedisHardBlockStore) Remove(ctx context.Context, subjectID string) error {
	return s.cache.Delete(ctx, hardBlockKeyPrefix+subjectID)
}
