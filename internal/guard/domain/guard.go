package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Scope string

const (
	ScopeSubject Scope = "subject"
	ScopeOrigin  Scope = "origin"
)

// RejectionKind is the machine-readable reason attached to a failed check.
type RejectionKind string

const (
	KindNone         RejectionKind = ""
	KindBlocked      RejectionKind = "blocked"
	KindSingleLimit  RejectionKind = "limit_exceeded_single"
	KindCountLimit   RejectionKind = "limit_exceeded_count"
	KindHourlyLimit  RejectionKind = "limit_exceeded_hourly"
	KindDailyLimit   RejectionKind = "limit_exceeded_daily"
	KindMonthlyLimit RejectionKind = "limit_exceeded_monthly"
)

// backoffLadder is the escalation schedule for repeated violations, capped at
// its last step.
var backoffLadder = []time.Duration{
	2 * time.Minute,
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	24 * time.Hour,
}

// BlockDuration returns the temporary block for the nth violation (1-based).
func BlockDuration(violations int) time.Duration {
	if violations < 1 {
		violations = 1
	}
	if violations > len(backoffLadder) {
		violations = len(backoffLadder)
	}
	return backoffLadder[violations-1]
}

// Usage is a snapshot of a rolling window at check time.
type Usage struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// CheckResult reports whether an operation may proceed and, on rejection,
// which scope failed and why.
type CheckResult struct {
	Allowed    bool            `json:"allowed"`
	Kind       RejectionKind   `json:"kind,omitempty"`
	Scope      Scope           `json:"scope,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	RetryAfter time.Duration   `json:"retry_after,omitempty"`
	Usage      Usage           `json:"usage"`
	Limit      Rule            `json:"limit"`
	WouldBe    decimal.Decimal `json:"would_be,omitempty"`
}

// Violation is the audit record of a limit breach.
type Violation struct {
	ID           uint64    `json:"id"`
	Scope        Scope     `json:"scope"`
	ScopeKey     string    `json:"scope_key"`
	SubjectID    string    `json:"subject_id"`
	Kind         string    `json:"kind"`
	Reason       string    `json:"reason"`
	Sequence     int       `json:"sequence"`
	BlockedUntil time.Time `json:"blocked_until"`
	CreatedAt    time.Time `json:"created_at"`
}

// UsageStore tracks rolling usage per scope key. Implementations must never
// let a single logical operation count twice or a counter go negative.
type UsageStore interface {
	Add(ctx context.Context, scopeKey string, amount decimal.Decimal, at time.Time) error
	Window(ctx context.Context, scopeKey string, since time.Time) (Usage, error)
	Prune(ctx context.Context, scopeKey string, before time.Time) error
}

// BlockStore tracks temporary blocks and the violation sequence that drives
// the backoff ladder.
type BlockStore interface {
	Block(ctx context.Context, scopeKey string, d time.Duration, reason string) error
	// BlockedFor returns the remaining block duration, zero when unblocked.
	BlockedFor(ctx context.Context, scopeKey string) (time.Duration, string, error)
	// NextViolation increments and returns the violation sequence for key
	// within the monitoring period.
	NextViolation(ctx context.Context, scopeKey string, monitoringPeriod time.Duration) (int, error)
	Clear(ctx context.Context, scopeKey string) error
}

// ViolationRepository persists violations for audit and compliance review.
type ViolationRepository interface {
	Save(ctx context.Context, v *Violation) error
	ListBySubject(ctx context.Context, subjectID string, since time.Time) ([]*Violation, error)
}
