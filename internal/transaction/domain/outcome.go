package domain

import "time"

// Outcome statuses returned to callers (and cached by the idempotency
// ledger for replays).
const (
	OutcomeCompleted     = "completed"
	OutcomeFailed        = "failed"
	OutcomeRejected      = "rejected"
	OutcomePendingReview = "pending_review"
	OutcomeInProgress    = "in_progress"
)

// Outcome is the caller-visible result of one submitted operation.
type Outcome struct {
	TransactionID     string     `json:"transaction_id,omitempty"`
	Status            string     `json:"status"`
	ErrorKind         ErrorKind  `json:"error_kind,omitempty"`
	Reason            string     `json:"reason,omitempty"`
	RetryAfterSeconds int64      `json:"retry_after_seconds,omitempty"`
	RiskScore         int        `json:"risk_score,omitempty"`
	RiskFlags         []string   `json:"risk_flags,omitempty"`
	ReviewID          string     `json:"review_id,omitempty"`
	QueuePosition     int        `json:"queue_position,omitempty"`
	SLADeadline       *time.Time `json:"sla_deadline,omitempty"`
	GatewayRef        string     `json:"gateway_ref,omitempty"`
	AuthURL           string     `json:"auth_url,omitempty"`
	GatewayStatus     string     `json:"gateway_status,omitempty"`
	// Duplicate marks a replayed cached result, not a fresh execution.
	Duplicate bool `json:"duplicate,omitempty"`
}
