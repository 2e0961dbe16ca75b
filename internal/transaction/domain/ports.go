package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerStore moves funds. It is the component that makes an operation
// real; everything before it only gates. ApplyDelta must be idempotent on
// reference so a replayed mutation cannot double-post.
type LedgerStore interface {
	Balance(ctx context.Context, subjectID, currency string) (decimal.Decimal, error)
	ApplyDelta(ctx context.Context, subjectID, currency string, delta decimal.Decimal, reference string) error
	// Reserve holds funds for a transaction pending review without
	// moving them; Release undoes an unused hold.
	Reserve(ctx context.Context, subjectID, currency string, amount decimal.Decimal, reference string) error
	Release(ctx context.Context, subjectID, currency string, amount decimal.Decimal, reference string) error
}

// ChargeRequest initiates a customer payment on an external gateway.
type ChargeRequest struct {
	Reference string
	SubjectID string
	Amount    decimal.Decimal
	Currency  string
}

// PayoutRequest initiates a transfer to an external bank account.
type PayoutRequest struct {
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	BankCode      string
	AccountNumber string
	AccountName   string
}

// GatewayResult is the normalized gateway response.
type GatewayResult struct {
	Reference   string
	ProviderRef string
	Status      string
	Succeeded   bool
	AuthURL     string
}

// GatewayAdapter is one external payment provider. Failures are typed:
// *GatewayRejectedError for definitive refusals, *GatewayUnreachableError
// for transport trouble.
type GatewayAdapter interface {
	Name() string
	InitiateCharge(ctx context.Context, req ChargeRequest) (*GatewayResult, error)
	VerifyCharge(ctx context.Context, reference string) (*GatewayResult, error)
	InitiatePayout(ctx context.Context, req PayoutRequest) (*GatewayResult, error)
}

// Catalog resolves purchasable content to its price and owner.
type Catalog interface {
	Price(ctx context.Context, contentID string) (decimal.Decimal, string, error)
	Owner(ctx context.Context, contentID string) (string, error)
}

// Event is published on every terminal transaction outcome. Notification
// delivery subscribes to these instead of being called inline.
type Event struct {
	Type          string          `json:"type"`
	TransactionID string          `json:"transaction_id"`
	SubjectID     string          `json:"subject_id"`
	OperationType string          `json:"operation_type"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	State         State           `json:"state"`
	FailureKind   ErrorKind       `json:"failure_kind,omitempty"`
	At            time.Time       `json:"at"`
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
