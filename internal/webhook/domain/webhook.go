package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrUnknownProvider = errors.New("unknown webhook provider")
)

// RejectReason is the machine-readable reason a webhook was refused.
type RejectReason string

const (
	ReasonNone            RejectReason = ""
	ReasonBadSignature    RejectReason = "bad_signature"
	ReasonReplayTooOld    RejectReason = "replay_too_old"
	ReasonMalformedHeader RejectReason = "malformed_signature_header"
	ReasonOriginBlocked   RejectReason = "origin_blocked"
	ReasonOriginRateLimit RejectReason = "origin_rate_limited"
	ReasonProviderUnknown RejectReason = "unknown_provider"
)

// Result is the authenticator's verdict. Duplicate deliveries of an
// already-accepted event come back valid so the caller can ack upstream
// and no-op.
type Result struct {
	Valid     bool         `json:"valid"`
	Duplicate bool         `json:"duplicate"`
	Reason    RejectReason `json:"reason,omitempty"`
}

// Verifier checks one provider's signature scheme against the raw payload.
type Verifier interface {
	Provider() string
	Verify(rawPayload []byte, signatureHeader string, now time.Time) RejectReason
}

// DedupStore remembers accepted event ids per provider. MarkSeen must be
// atomic: exactly one caller wins for a given id within the window.
type DedupStore interface {
	MarkSeen(ctx context.Context, provider, eventID string, window time.Duration) (first bool, err error)
}

// OriginBlockStore tracks blocked webhook origins and their signature
// failure streaks.
type OriginBlockStore interface {
	Block(ctx context.Context, originIP string, d time.Duration, reason string) error
	BlockedFor(ctx context.Context, originIP string) (time.Duration, string, error)
	// RecordFailure increments origin's failure streak within window and
	// returns the new count.
	RecordFailure(ctx context.Context, originIP string, window time.Duration) (int, error)
	ClearFailures(ctx context.Context, originIP string) error
}

// Audit is one row in the webhook acceptance log, kept for reconciliation.
type Audit struct {
	ID        uint64       `json:"id"`
	Provider  string       `json:"provider"`
	EventID   string       `json:"event_id"`
	OriginIP  string       `json:"origin_ip"`
	Valid     bool         `json:"valid"`
	Duplicate bool         `json:"duplicate"`
	Reason    RejectReason `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
}

type AuditRepository interface {
	Save(ctx context.Context, a *Audit) error
	ListByProvider(ctx context.Context, provider string, since time.Time) ([]*Audit, error)
}
