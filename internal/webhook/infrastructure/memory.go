package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/calculus-guy/paymentscore/internal/webhook/domain"
)

// MemoryDedupStore is the in-memory event dedup used in tests.
type MemoryDedupStore struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	clock func() time.Time
}

func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{
		seen:  make(map[string]time.Time),
		clock: time.Now,
	}
}

// SetClock pins the store's notion of now.
func (s *MemoryDedupStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *MemoryDedupStore) MarkSeen(_ context.Context, provider, eventID string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := provider + ":" + eventID
	now := s.clock()
	if expiry, ok := s.seen[key]; ok && now.Before(expiry) {
		return false, nil
	}
	s.seen[key] = now.Add(window)
	return true, nil
}

type originState struct {
	blockedUntil time.Time
	blockReason  string
	fails        int
	failsExpiry  time.Time
}

// MemoryOriginBlockStore is the in-memory origin block/streak store.
type MemoryOriginBlockStore struct {
	mu      sync.Mutex
	origins map[string]*originState
	clock   func() time.Time
}

func NewMemoryOriginBlockStore() *MemoryOriginBlockStore {
	return &MemoryOriginBlockStore{
		origins: make(map[string]*originState),
		clock:   time.Now,
	}
}

func (s *MemoryOriginBlockStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *MemoryOriginBlockStore) state(originIP string) *originState {
	st, ok := s.origins[originIP]
	if !ok {
		st = &originState{}
		s.origins[originIP] = st
	}
	return st
}

func (s *MemoryOriginBlockStore) Block(_ context.Context, originIP string, d time.Duration, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(originIP)
	st.blockedUntil = s.clock().Add(d)
	st.blockReason = reason
	return nil
}

func (s *MemoryOriginBlockStore) BlockedFor(_ context.Context, originIP string) (time.Duration, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.origins[originIP]
	if !ok {
		return 0, "", nil
	}
	remaining := st.blockedUntil.Sub(s.clock())
	if remaining <= 0 {
		return 0, "", nil
	}
	return remaining, st.blockReason, nil
}

func (s *MemoryOriginBlockStore) RecordFailure(_ context.Context, originIP string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state(originIP)
	now := s.clock()
	if now.After(st.failsExpiry) {
		st.fails = 0
	}
	if st.fails == 0 {
		st.failsExpiry = now.Add(window)
	}
	st.fails++
	return st.fails, nil
}

func (s *MemoryOriginBlockStore) ClearFailures(_ context.Context, originIP string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.origins[originIP]; ok {
		st.fails = 0
		st.failsExpiry = time.Time{}
	}
	return nil
}

// MemoryAuditRepository collects audit rows in memory.
type MemoryAuditRepository struct {
	mu     sync.Mutex
	nextID uint64
	rows   []*domain.Audit
}

func NewMemoryAuditRepository() *MemoryAuditRepository {
	return &MemoryAuditRepository{}
}

func (r *MemoryAuditRepository) Save(_ context.Context, a *domain.Audit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	a.ID = r.nextID
	clone := *a
	r.rows = append(r.rows, &clone)
	return nil
}

func (r *MemoryAuditRepository) ListByProvider(_ context.Context, provider string, since time.Time) ([]*domain.Audit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Audit
	for _, a := range r.rows {
		if a.Provider == provider && !a.CreatedAt.Before(since) {
			clone := *a
			out = append(out, &clone)
		}
	}
	return out, nil
}
