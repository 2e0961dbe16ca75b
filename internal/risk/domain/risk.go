package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionAllow   Action = "allow"
	ActionMonitor Action = "monitor"
	ActionReview  Action = "review"
	ActionBlock   Action = "block"
)

// Input is the per-transaction view the engine scores.
type Input struct {
	TransactionID string          `json:"transaction_id"`
	SubjectID     string          `json:"subject_id"`
	OriginID      string          `json:"origin_id"`
	OperationType string          `json:"operation_type"`
	Currency      string          `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	At            time.Time       `json:"at"`
}

// Assessment is the scoring outcome. Allowed is false only for review and
// block actions.
type Assessment struct {
	Allowed bool              `json:"allowed"`
	Score   int               `json:"score"`
	Action  Action            `json:"action"`
	Flags   []string          `json:"flags"`
	Details map[string]string `json:"details"`
}

// Baseline is a subject's trailing behavioral average, recomputed in batch.
type Baseline struct {
	SubjectID   string             `json:"subject_id"`
	AvgAmount   decimal.Decimal    `json:"avg_amount"`
	AvgPerHour  float64            `json:"avg_per_hour"`
	OpTypeFreq  map[string]float64 `json:"op_type_freq"`
	ActiveHours map[int]bool       `json:"active_hours"`
	SampleCount int                `json:"sample_count"`
	ComputedAt  time.Time          `json:"computed_at"`
}

// Profile carries the baseline plus the decayed running score.
type Profile struct {
	SubjectID     string    `json:"subject_id"`
	Baseline      *Baseline `json:"baseline,omitempty"`
	SmoothedScore float64   `json:"smoothed_score"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SuspiciousActivity is one audit entry feeding the hard-block counter.
type SuspiciousActivity struct {
	ID           uint64    `json:"id"`
	SubjectID    string    `json:"subject_id"`
	ActivityType string    `json:"activity_type"`
	Details      string    `json:"details"`
	CreatedAt    time.Time `json:"created_at"`
}

// HistoryEntry is the minimal slice of a past transaction the scorers need.
type HistoryEntry struct {
	Amount        decimal.Decimal
	OperationType string
	At            time.Time
}

type ProfileRepository interface {
	Get(ctx context.Context, subjectID string) (*Profile, error)
	Save(ctx context.Context, profile *Profile) error
}

type SuspiciousRepository interface {
	Save(ctx context.Context, activity *SuspiciousActivity) error
	CountBySubject(ctx context.Context, subjectID string, since time.Time) (int, error)
	ListBySubject(ctx context.Context, subjectID string, since time.Time) ([]*SuspiciousActivity, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// HardBlockStore is the fail-closed set of subjects no longer scored per
// transaction. Entries stay until manually cleared.
type HardBlockStore interface {
	Add(ctx context.Context, subjectID, reason string) error
	Contains(ctx context.Context, subjectID string) (bool, string, error)
	Remove(ctx context.Context, subjectID string) error
}

// HistoryReader exposes settled and in-flight transactions to the scorers
// and the baseline recalculator.
type HistoryReader interface {
	RecentBySubject(ctx context.Context, subjectID string, since time.Time) ([]HistoryEntry, error)
	ActiveSubjects(ctx context.Context, since time.Time) ([]string, error)
}
