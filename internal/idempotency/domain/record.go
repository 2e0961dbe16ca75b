package domain

import (
	"context"
	"errors"
	"time"
)

// RecordTTL is how long a reservation shields its key. After expiry the key
// may be reused for a fresh execution.
const RecordTTL = 24 * time.Hour

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Record is the durable memory of the first attempt for an idempotency key.
type Record struct {
	ID            uint64    `json:"id"`
	Key           string    `json:"key"`
	SubjectID     string    `json:"subject_id"`
	OperationType string    `json:"operation_type"`
	Fingerprint   string    `json:"fingerprint"`
	Status        Status    `json:"status"`
	Result        []byte    `json:"result,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the record no longer shields its key.
func (r *Record) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// Terminal reports whether the record has reached completed or failed.
func (r *Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

// Repository persists idempotency records. Reserve must be atomic: under
// concurrent calls for the same key exactly one caller inserts and the rest
// observe the committed record.
type Repository interface {
	// Reserve inserts rec when no live record holds the key. It returns
	// inserted=true on success, otherwise the existing record.
	Reserve(ctx context.Context, rec *Record) (inserted bool, existing *Record, err error)
	Get(ctx context.Context, key string) (*Record, error)
	// Complete transitions a processing record to a terminal status exactly
	// once, storing the result payload.
	Complete(ctx context.Context, key string, status Status, result []byte) error
	Delete(ctx context.Context, key string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

var (
	ErrInvalidKeyFormat = errors.New("idempotency key is not a valid UUID")
	ErrConflict         = errors.New("idempotency key reused with different parameters")
	ErrNotFound         = errors.New("idempotency record not found")
	ErrAlreadyTerminal  = errors.New("idempotency record already completed")
)
