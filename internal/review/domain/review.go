package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("review item not found")
	ErrTerminal        = errors.New("review item already decided")
	ErrNotAssigned     = errors.New("review item has no assigned reviewer")
	ErrWrongReviewer   = errors.New("caller is not the assigned reviewer")
	ErrInvalidDecision = errors.New("invalid review decision")
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities for queue sorting; higher is more urgent.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// Next returns the priority one level up, saturating at critical.
func (p Priority) Next() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// SLA returns the decision deadline offset for a priority.
func (p Priority) SLA() time.Duration {
	switch p {
	case PriorityCritical:
		return 30 * time.Minute
	case PriorityHigh:
		return 2 * time.Hour
	case PriorityMedium:
		return 8 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// EscalationAfter returns the force-escalation deadline offset.
func (p Priority) EscalationAfter() time.Duration {
	switch p {
	case PriorityCritical:
		return time.Hour
	case PriorityHigh:
		return 4 * time.Hour
	case PriorityMedium:
		return 12 * time.Hour
	default:
		return 48 * time.Hour
	}
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusInReview Status = "in_review"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

type Decision string

const (
	DecisionApprove  Decision = "approve"
	DecisionReject   Decision = "reject"
	DecisionEscalate Decision = "escalate"
)

// EscalationEvent is one append-only entry in an item's escalation log.
type EscalationEvent struct {
	From   Priority  `json:"from"`
	To     Priority  `json:"to"`
	By     string    `json:"by"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Item is one transaction held for human adjudication.
type Item struct {
	ID                 string            `json:"id"`
	TransactionID      string            `json:"transaction_id"`
	SubjectID          string            `json:"subject_id"`
	Type               string            `json:"type"`
	Priority           Priority          `json:"priority"`
	Status             Status            `json:"status"`
	SLADeadline        time.Time         `json:"sla_deadline"`
	EscalationDeadline time.Time         `json:"escalation_deadline"`
	AssignedReviewer   string            `json:"assigned_reviewer,omitempty"`
	AssignedAt         *time.Time        `json:"assigned_at,omitempty"`
	CompletedAt        *time.Time        `json:"completed_at,omitempty"`
	Decision           Decision          `json:"decision,omitempty"`
	ReviewNotes        string            `json:"review_notes,omitempty"`
	SLABreached        bool              `json:"sla_breached"`
	EscalationHistory  []EscalationEvent `json:"escalation_history,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Terminal reports whether a decision has been recorded.
func (i *Item) Terminal() bool {
	return i.Status == StatusApproved || i.Status == StatusRejected || i.Status == StatusExpired
}

// Escalate bumps priority one level, clears the assignment and recomputes
// both deadlines from now.
func (i *Item) Escalate(by, reason string, now time.Time) {
	from := i.Priority
	i.Priority = i.Priority.Next()
	i.Status = StatusPending
	i.AssignedReviewer = ""
	i.AssignedAt = nil
	i.SLADeadline = now.Add(i.Priority.SLA())
	i.EscalationDeadline = now.Add(i.Priority.EscalationAfter())
	i.EscalationHistory = append(i.EscalationHistory, EscalationEvent{
		From:   from,
		To:     i.Priority,
		By:     by,
		Reason: reason,
		At:     now,
	})
	i.UpdatedAt = now
}

// PriorityForScore maps a risk score and its flags onto a queue priority.
// Structuring and hard-block signals jump straight to critical.
func PriorityForScore(score int, flags []string) Priority {
	for _, flag := range flags {
		if flag == "possible_structuring" || flag == "subject_hard_blocked" {
			return PriorityCritical
		}
	}
	switch {
	case score > 75:
		return PriorityHigh
	case score > 65:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

type Repository interface {
	Save(ctx context.Context, item *Item) error
	Update(ctx context.Context, item *Item) error
	Get(ctx context.Context, reviewID string) (*Item, error)
	// ListPending returns undecided items ordered priority-descending,
	// oldest first within a tier.
	ListPending(ctx context.Context) ([]*Item, error)
	ListByReviewer(ctx context.Context, reviewerID string) ([]*Item, error)
	// Workload counts in_review items per reviewer.
	Workload(ctx context.Context) (map[string]int, error)
	CountPending(ctx context.Context) (int, error)
}

// ReviewerDirectory supplies the reviewer pool for auto-assignment.
type ReviewerDirectory interface {
	AvailableReviewers(ctx context.Context) ([]string, error)
}
