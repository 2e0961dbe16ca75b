package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/calculus-guy/paymentscore/internal/guard/domain"
	"github.com/shopspring/decimal"
)

type usageEntry struct {
	amount decimal.Decimal
	at     time.Time
}

// MemoryUsageStore is an in-process UsageStore for tests and single-node
// deployments.
type MemoryUsageStore struct {
	mu      sync.Mutex
	entries map[string][]usageEntry
}

func NewMemoryUsageStore() *MemoryUsageStore {
	return &MemoryUsageStore{entries: make(map[string][]usageEntry)}
}

func (s *MemoryUsageStore) Add(ctx context.Context, scopeKey string, amount decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[scopeKey] = append(s.entries[scopeKey], usageEntry{amount: amount, at: at})
	return nil
}

func (s *MemoryUsageStore) Window(ctx context.Context, scopeKey string, since time.Time) (domain.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage := domain.Usage{Amount: decimal.Zero}
	for _, e := range s.entries[scopeKey] {
		if e.at.Before(since) {
			continue
		}
		usage.Count++
		usage.Amount = usage.Amount.Add(e.amount)
	}
	return usage, nil
}

func (s *MemoryUsageStore) Prune(ctx context.Context, scopeKey string, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[scopeKey][:0]
	for _, e := range s.entries[scopeKey] {
		if !e.at.Before(before) {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(s.entries, scopeKey)
		return nil
	}
	s.entries[scopeKey] = kept
	return nil
}

type blockEntry struct {
	until  time.Time
	reason string
}

type violationEntry struct {
	count   int
	expires time.Time
}

// MemoryBlockStore mirrors the Redis block semantics in process memory.
type MemoryBlockStore struct {
	mu         sync.Mutex
	blocks     map[string]blockEntry
	violations map[string]violationEntry
	now        func() time.Time
}

func NewMemoryBlockStore() *MemoryBlockStore {
	return &MemoryBlockStore{
		blocks:     make(map[string]blockEntry),
		violations: make(map[string]violationEntry),
		now:        time.Now,
	}
}

// SetClock overrides the time source, used by tests to drive expiry.
func (s *MemoryBlockStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryBlockStore) Block(ctx context.Context, scopeKey string, d time.Duration, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[scopeKey] = blockEntry{until: s.now().Add(d), reason: reason}
	return nil
}

func (s *MemoryBlockStore) BlockedFor(ctx context.Context, scopeKey string) (time.Duration, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.blocks[scopeKey]
	if !ok {
		return 0, "", nil
	}
	remaining := entry.until.Sub(s.now())
	if remaining <= 0 {
		delete(s.blocks, scopeKey)
		return 0, "", nil
	}
	return remaining, entry.reason, nil
}

func (s *MemoryBlockStore) NextViolation(ctx context.Context, scopeKey string, monitoringPeriod time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.violations[scopeKey]
	if !ok || s.now().After(entry.expires) {
		entry = violationEntry{count: 0, expires: s.now().Add(monitoringPeriod)}
	}
	entry.count++
	s.violations[scopeKey] = entry
	return entry.count, nil
}

func (s *MemoryBlockStore) Clear(ctx context.Context, scopeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, scopeKey)
	delete(s.violations, scopeKey)
	return nil
}

// MemoryViolationRepository is an in-process ViolationRepository for tests.
type MemoryViolationRepository struct {
	mu         sync.Mutex
	violations []*domain.Violation
	nextID     uint64
}

func NewMemoryViolationRepository() *MemoryViolationRepository {
	return &MemoryViolationRepository{}
}

func (r *MemoryViolationRepository) Save(ctx context.Context, v *domain.Violation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	v.ID = r.nextID
	cp := *v
	r.violations = append(r.violations, &cp)
	return nil
}

func (r *MemoryViolationRepository) ListBySubject(ctx context.Context, subjectID string, since time.Time) ([]*domain.Violation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.Violation
	for _, v := range r.violations {
		if v.SubjectID != subjectID || v.CreatedAt.Before(since) {
			continue
		}
		cp := *v
		out = append(out, &cp)
	}
	return out, nil
}
