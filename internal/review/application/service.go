package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/calculus-guy/paymentscore/internal/review/domain"
	"github.com/google/uuid"
)

// Completer receives the human decision so the held transaction can resume
// or be finally rejected. The transaction router implements it.
type Completer interface {
	CompleteReviewedTransaction(ctx context.Context, transactionID string, approved bool, notes string) error
}

// EnqueueResult is returned to the router when a transaction is held.
type EnqueueResult struct {
	ReviewID      string    `json:"review_id"`
	QueuePosition int       `json:"queue_position"`
	SLADeadline   time.Time `json:"sla_deadline"`
}

// Queue is the manual review service: intake, assignment, decisions and the
// SLA monitor.
type Queue struct {
	repo          domain.Repository
	directory     domain.ReviewerDirectory
	completer     Completer
	maxConcurrent int
	logger        *slog.Logger
	now           func() time.Time
}

func NewQueue(repo domain.Repository, directory domain.ReviewerDirectory, maxConcurrent int, logger *slog.Logger) *Queue {
	return &Queue{
		repo:          repo,
		directory:     directory,
		maxConcurrent: maxConcurrent,
		logger:        logger,
		now:           time.Now,
	}
}

// SetCompleter wires the decision callback. Separate from the constructor
// because the router and the queue reference each other.
func (q *Queue) SetCompleter(c Completer) {
	q.completer = c
}

// Enqueue holds a transaction for review and attempts auto-assignment.
func (q *Queue) Enqueue(ctx context.Context, transactionID, subjectID, reviewType string, priority domain.Priority) (*EnqueueResult, error) {
	now := q.now()
	item := &domain.Item{
		ID:                 uuid.NewString(),
		TransactionID:      transactionID,
		SubjectID:          subjectID,
		Type:               reviewType,
		Priority:           priority,
		Status:             domain.StatusPending,
		SLADeadline:        now.Add(priority.SLA()),
		EscalationDeadline: now.Add(priority.EscalationAfter()),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := q.repo.Save(ctx, item); err != nil {
		return nil, err
	}

	position, err := q.repo.CountPending(ctx)
	if err != nil {
		q.logger.Error("queue position read failed", "review_id", item.ID, "error", err)
		position = 0
	}

	if err := q.autoAssign(ctx, item); err != nil {
		q.logger.Error("auto-assignment failed", "review_id", item.ID, "error", err)
	}

	q.logger.Info("review item enqueued",
		"review_id", item.ID,
		"transaction_id", transactionID,
		"priority", priority,
		"sla_deadline", item.SLADeadline,
	)

	return &EnqueueResult{
		ReviewID:      item.ID,
		QueuePosition: position,
		SLADeadline:   item.SLADeadline,
	}, nil
}

// autoAssign picks the available reviewer with the lowest in-flight count
// under the concurrency cap. The item stays pending when nobody qualifies.
func (q *Queue) autoAssign(ctx context.Context, item *domain.Item) error {
	reviewers, err := q.directory.AvailableReviewers(ctx)
	if err != nil {
		return err
	}
	if len(reviewers) == 0 {
		return nil
	}

	workload, err := q.repo.Workload(ctx)
	if err != nil {
		return err
	}

	best := ""
	bestLoad := q.maxConcurrent
	for _, reviewer := range reviewers {
		load := workload[reviewer]
		if load < bestLoad {
			best = reviewer
			bestLoad = load
		}
	}
	if best == "" {
		return nil
	}

	return q.assign(ctx, item, best)
}

func (q *Queue) assign(ctx context.Context, item *domain.Item, reviewerID string) error {
	now := q.now()
	item.AssignedReviewer = reviewerID
	item.AssignedAt = &now
	item.Status = domain.StatusInReview
	item.UpdatedAt = now
	return q.repo.Update(ctx, item)
}

// AssignReviewer assigns a pending item explicitly. Admin surface.
func (q *Queue) AssignReviewer(ctx context.Context, reviewID, reviewerID string) error {
	item, err := q.repo.Get(ctx, reviewID)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrNotFound
	}
	if item.Terminal() {
		return domain.ErrTerminal
	}
	return q.assign(ctx, item, reviewerID)
}

// SubmitDecision records the assigned reviewer's verdict. Approve and
// reject finalize the item and hand the transaction back to the router;
// escalate bumps priority and requeues.
func (q *Queue) SubmitDecision(ctx context.Context, reviewID, reviewerID string, decision domain.Decision, notes string) error {
	item, err := q.repo.Get(ctx, reviewID)
	if err != nil {
		return err
	}
	if item == nil {
		return domain.ErrNotFound
	}
	if item.Terminal() {
		return domain.ErrTerminal
	}
	if item.AssignedReviewer == "" {
		return domain.ErrNotAssigned
	}
	if item.AssignedReviewer != reviewerID {
		return domain.ErrWrongReviewer
	}

	now := q.now()
	switch decision {
	case domain.DecisionApprove, domain.DecisionReject:
		if now.After(item.SLADeadline) {
			item.SLABreached = true
		}
		item.Decision = decision
		item.ReviewNotes = notes
		item.CompletedAt = &now
		item.UpdatedAt = now
		if decision == domain.DecisionApprove {
			item.Status = domain.StatusApproved
		} else {
			item.Status = domain.StatusRejected
		}
		if err := q.repo.Update(ctx, item); err != nil {
			return err
		}

		q.logger.Info("review decided",
			"review_id", item.ID,
			"transaction_id", item.TransactionID,
			"decision", decision,
			"reviewer", reviewerID,
			"sla_breached", item.SLABreached,
		)

		if q.completer != nil {
			approved := decision == domain.DecisionApprove
			if err := q.completer.CompleteReviewedTransaction(ctx, item.TransactionID, approved, notes); err != nil {
				// The decision stands; the transaction outcome is
				// reconciled by the router's own failure handling.
				q.logger.Error("review completion failed",
					"review_id", item.ID,
					"transaction_id", item.TransactionID,
					"error", err,
				)
			}
		}
		return nil

	case domain.DecisionEscalate:
		item.Escalate(reviewerID, notes, now)
		if err := q.repo.Update(ctx, item); err != nil {
			return err
		}
		if err := q.autoAssign(ctx, item); err != nil {
			q.logger.Error("auto-assignment failed", "review_id", item.ID, "error", err)
		}
		return nil

	default:
		return domain.ErrInvalidDecision
	}
}

// Pending returns the queue in working order: priority descending, oldest
// first within a tier.
func (q *Queue) Pending(ctx context.Context) ([]*domain.Item, error) {
	return q.repo.ListPending(ctx)
}

// ForReviewer returns a reviewer's open items.
func (q *Queue) ForReviewer(ctx context.Context, reviewerID string) ([]*domain.Item, error) {
	return q.repo.ListByReviewer(ctx, reviewerID)
}

// Get returns one item by id.
func (q *Queue) Get(ctx context.Context, reviewID string) (*domain.Item, error) {
	item, err := q.repo.Get(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

// Sweep walks undecided items once: force-escalates anything past its
// escalation deadline, expires critical items nobody decided, and flags SLA
// breaches for compliance reporting.
func (q *Queue) Sweep(ctx context.Context) error {
	items, err := q.repo.ListPending(ctx)
	if err != nil {
		return err
	}

	now := q.now()
	for _, item := range items {
		if now.After(item.EscalationDeadline) {
			// Critical has no level left to raise; an undecided item at
			// the top of the ladder expires instead of looping.
			if item.Priority == domain.PriorityCritical {
				q.expire(ctx, item, now)
				continue
			}
			item.Escalate("sla_monitor", "escalation deadline passed without decision", now)
			if err := q.repo.Update(ctx, item); err != nil {
				q.logger.Error("forced escalation failed", "review_id", item.ID, "error", err)
				continue
			}
			q.logger.Warn("review item force-escalated",
				"review_id", item.ID,
				"transaction_id", item.TransactionID,
				"priority", item.Priority,
			)
			if err := q.autoAssign(ctx, item); err != nil {
				q.logger.Error("auto-assignment failed", "review_id", item.ID, "error", err)
			}
			continue
		}

		if now.After(item.SLADeadline) && !item.SLABreached {
			item.SLABreached = true
			item.UpdatedAt = now
			if err := q.repo.Update(ctx, item); err != nil {
				q.logger.Error("sla flag update failed", "review_id", item.ID, "error", err)
				continue
			}
			q.logger.Warn("review sla breached",
				"review_id", item.ID,
				"transaction_id", item.TransactionID,
				"priority", item.Priority,
			)
		}
	}
	return nil
}

// expire finalizes a critical item that ran out its escalation window with
// no decision and rejects the held transaction so the funds come back.
func (q *Queue) expire(ctx context.Context, item *domain.Item, now time.Time) {
	item.Status = domain.StatusExpired
	item.SLABreached = true
	item.CompletedAt = &now
	item.UpdatedAt = now
	if err := q.repo.Update(ctx, item); err != nil {
		q.logger.Error("expiry update failed", "review_id", item.ID, "error", err)
		return
	}

	q.logger.Warn("review item expired undecided",
		"review_id", item.ID,
		"transaction_id", item.TransactionID,
	)

	if q.completer != nil {
		if err := q.completer.CompleteReviewedTransaction(ctx, item.TransactionID, false, "review expired without decision"); err != nil {
			q.logger.Error("review completion failed",
				"review_id", item.ID,
				"transaction_id", item.TransactionID,
				"error", err,
			)
		}
	}
}

// Monitor runs Sweep on a fixed interval until the context ends.
func (q *Queue) Monitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.Sweep(ctx); err != nil {
				q.logger.Error("review sweep failed", "error", err)
			}
		}
	}
}
