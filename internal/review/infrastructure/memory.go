package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/calculus-guy/paymentscore/internal/review/domain"
)

// MemoryReviewRepository is an in-process Repository for tests.
type MemoryReviewRepository struct {
	mu    sync.Mutex
	items map[string]*domain.Item
}

func NewMemoryReviewRepository() *MemoryReviewRepository {
	return &MemoryReviewRepository{items: make(map[string]*domain.Item)}
}

func cloneItem(item *domain.Item) *domain.Item {
	cp := *item
	cp.EscalationHistory = append([]domain.EscalationEvent(nil), item.EscalationHistory...)
	return &cp
}

func (r *MemoryReviewRepository) Save(ctx context.Context, item *domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = cloneItem(item)
	return nil
}

func (r *MemoryReviewRepository) Update(ctx context.Context, item *domain.Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[item.ID]; !ok {
		return domain.ErrNotFound
	}
	r.items[item.ID] = cloneItem(item)
	return nil
}

func (r *MemoryReviewRepository) Get(ctx context.Context, reviewID string) (*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[reviewID]
	if !ok {
		return nil, nil
	}
	return cloneItem(item), nil
}

func undecided(item *domain.Item) bool {
	return item.Status == domain.StatusPending || item.Status == domain.StatusInReview
}

func sortQueue(items []*domain.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority.Rank() != items[j].Priority.Rank() {
			return items[i].Priority.Rank() > items[j].Priority.Rank()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func (r *MemoryReviewRepository) ListPending(ctx context.Context) ([]*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Item
	for _, item := range r.items {
		if undecided(item) {
			out = append(out, cloneItem(item))
		}
	}
	sortQueue(out)
	return out, nil
}

func (r *MemoryReviewRepository) ListByReviewer(ctx context.Context, reviewerID string) ([]*domain.Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Item
	for _, item := range r.items {
		if item.Status == domain.StatusInReview && item.AssignedReviewer == reviewerID {
			out = append(out, cloneItem(item))
		}
	}
	sortQueue(out)
	return out, nil
}

func (r *MemoryReviewRepository) Workload(ctx context.Context) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	workload := make(map[string]int)
	for _, item := range r.items {
		if item.Status == domain.StatusInReview && item.AssignedReviewer != "" {
			workload[item.AssignedReviewer]++
		}
	}
	return workload, nil
}

func (r *MemoryReviewRepository) CountPending(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, item := range r.items {
		if undecided(item) {
			count++
		}
	}
	return count, nil
}

// StaticReviewerDirectory serves a fixed reviewer roster from config.
type StaticReviewerDirectory struct {
	reviewers []string
}

func NewStaticReviewerDirectory(reviewers []string) *StaticReviewerDirectory {
	return &StaticReviewerDirectory{reviewers: reviewers}
}

func (d *StaticReviewerDirectory) AvailableReviewers(ctx context.Context) ([]string, error) {
	return d.reviewers, nil
}
