package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// State is the router's per-transaction state machine.
type State string

const (
	StateReceived           State = "received"
	StateIdempotencyChecked State = "idempotency_checked"
	StateLimitChecked       State = "limit_checked"
	StateRiskChecked        State = "risk_checked"
	StateExecuting          State = "executing"
	StateEnqueuedForReview  State = "enqueued_for_review"
	StateRejected           State = "rejected"
	StateCompleted          State = "completed"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateRejected || s == StateCompleted || s == StateFailed
}

// Transaction is one financial operation moving through the pipeline.
type Transaction struct {
	ID             string          `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	SubjectID      string          `json:"subject_id"`
	OriginID       string          `json:"origin_id,omitempty"`
	OperationType  string          `json:"operation_type"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	Params         json.RawMessage `json:"params,omitempty"`
	State          State           `json:"state"`
	RiskScore      int             `json:"risk_score"`
	RiskFlags      []string        `json:"risk_flags,omitempty"`
	ReviewID       string          `json:"review_id,omitempty"`
	GatewayRef     string          `json:"gateway_ref,omitempty"`
	FailureKind    ErrorKind       `json:"failure_kind,omitempty"`
	FailureReason  string          `json:"failure_reason,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
}

type Repository interface {
	Save(ctx context.Context, txn *Transaction) error
	Update(ctx context.Context, txn *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	ListBySubject(ctx context.Context, subjectID string, limit int) ([]*Transaction, error)
}
