package infrastructure

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/calculus-guy/paymentscore/internal/risk/domain"
)

// MemoryProfileRepository is an in-process ProfileRepository for tests.
type MemoryProfileRepository struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile
}

func NewMemoryProfileRepository() *MemoryProfileRepository {
	return &MemoryProfileRepository{profiles: make(map[string]*domain.Profile)}
}

func (r *MemoryProfileRepository) Get(ctx context.Context, subjectID string) (*domain.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	profile, ok := r.profiles[subjectID]
	if !ok {
		return nil, nil
	}
	cp := *profile
	return &cp, nil
}

func (r *MemoryProfileRepository) Save(ctx context.Context, profile *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *profile
	r.profiles[profile.SubjectID] = &cp
	return nil
}

// MemorySuspiciousRepository is an in-process SuspiciousRepository for
// tests.
type MemorySuspiciousRepository struct {
	mu      sync.Mutex
	entries []*domain.SuspiciousActivity
	nextID  uint64
}

func NewMemorySuspiciousRepository() *MemorySuspiciousRepository {
	return &MemorySuspiciousRepository{}
}

func (r *MemorySuspiciousRepository) Save(ctx context.Context, activity *domain.SuspiciousActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	activity.ID = r.nextID
	cp := *activity
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *MemorySuspiciousRepository) CountBySubject(ctx context.Context, subjectID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, e := range r.entries {
		if e.SubjectID == subjectID && !e.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *MemorySuspiciousRepository) ListBySubject(ctx context.Context, subjectID string, since time.Time) ([]*domain.SuspiciousActivity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.SuspiciousActivity
	for _, e := range r.entries {
		if e.SubjectID == subjectID && !e.CreatedAt.Before(since) {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemorySuspiciousRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.entries[:0]
	var removed int64
	for _, e := range r.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed, nil
}

// MemoryHardBlockStore is an in-process HardBlockStore for tests.
type MemoryHardBlockStore struct {
	mu      sync.Mutex
	blocked map[string]string
}

func NewMemoryHardBlockStore() *MemoryHardBlockStore {
	return &MemoryHardBlockStore{blocked: make(map[string]string)}
}

func (s *MemoryHardBlockStore) Add(ctx context.Context, subjectID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocked[subjectID] = reason
	return nil
}

func (s *MemoryHardBlockStore) Contains(ctx context.Context, subjectID string) (bool, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reason, ok := s.blocked[subjectID]
	return ok, reason, nil
}

func (s *MemoryHardBlockStore) Remove(ctx context.Context, subjectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocked, subjectID)
	return nil
}

type historyRecord struct {
	subjectID string
	entry     domain.HistoryEntry
}

// MemoryHistoryReader is an in-process HistoryReader preloaded by tests.
type MemoryHistoryReader struct {
	mu      sync.Mutex
	records []historyRecord
}

func NewMemoryHistoryReader() *MemoryHistoryReader {
	return &MemoryHistoryReader{}
}

// Append adds one historical transaction for a subject.
func (r *MemoryHistoryReader) Append(subjectID string, entry domain.HistoryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, historyRecord{subjectID: subjectID, entry: entry})
}

func (r *MemoryHistoryReader) RecentBySubject(ctx context.Context, subjectID string, since time.Time) ([]domain.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.HistoryEntry
	for _, rec := range r.records {
		if rec.subjectID == subjectID && !rec.entry.At.Before(since) {
			out = append(out, rec.entry)
		}
	}
	return out, nil
}

func (r *MemoryHistoryReader) ActiveSubjects(ctx context.Context, since time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, rec := range r.records {
		if rec.entry.At.Before(since) || seen[rec.subjectID] {
			continue
		}
		seen[rec.subjectID] = true
		out = append(out, rec.subjectID)
	}
	sort.Strings(out)
	return out, nil
}
