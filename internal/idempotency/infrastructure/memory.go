package infrastructure

import (
	"context"
	"sync"
	"time"

	"github.com/calculus-guy/paymentscore/internal/idempotency/domain"
)

// MemoryIdempotencyRepository is an in-process Repository for tests and
// local runs. The mutex gives the same single-winner reservation guarantee
// the unique index gives the gorm implementation.
type MemoryIdempotencyRepository struct {
	mu      sync.Mutex
	records map[string]*domain.Record
}

func NewMemoryIdempotencyRepository() *MemoryIdempotencyRepository {
	return &MemoryIdempotencyRepository{
		records: make(map[string]*domain.Record),
	}
}

func (r *MemoryIdempotencyRepository) Reserve(ctx context.Context, rec *domain.Record) (bool, *domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[rec.Key]; ok {
		if !existing.Expired(rec.CreatedAt) {
			snapshot := *existing
			return false, &snapshot, nil
		}
		delete(r.records, rec.Key)
	}

	stored := *rec
	r.records[rec.Key] = &stored
	return true, nil, nil
}

func (r *MemoryIdempotencyRepository) Get(ctx context.Context, key string) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[key]
	if !ok {
		return nil, nil
	}
	snapshot := *existing
	return &snapshot, nil
}

func (r *MemoryIdempotencyRepository) Complete(ctx context.Context, key string, status domain.Status, result []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.records[key]
	if !ok {
		return domain.ErrNotFound
	}
	if existing.Status != domain.StatusProcessing {
		return domain.ErrAlreadyTerminal
	}

	existing.Status = status
	existing.Result = result
	return nil
}

func (r *MemoryIdempotencyRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key)
	return nil
}

func (r *MemoryIdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, rec := range r.records {
		if rec.Expired(now) {
			delete(r.records, key)
			n++
		}
	}
	return n, nil
}
