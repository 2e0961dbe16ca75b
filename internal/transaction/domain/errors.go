package domain

import (
	"errors"
	"fmt"
)

// ErrInsufficientFunds is returned by ledger-backed execution when the
// subject's balance cannot cover the operation.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrContentNotFound is returned by the catalog for an unknown content ID.
var ErrContentNotFound = errors.New("content not found")

// ErrorKind is the stable machine-readable classification attached to every
// rejection and failure.
type ErrorKind string

const (
	KindNone                ErrorKind = ""
	KindInvalidKeyFormat    ErrorKind = "invalid_key_format"
	KindMissingParameters   ErrorKind = "missing_parameters"
	KindIdempotencyConflict ErrorKind = "idempotency_conflict"
	KindLimitExceeded       ErrorKind = "limit_exceeded"
	KindBlocked             ErrorKind = "blocked"
	KindRiskBlocked         ErrorKind = "risk_blocked"
	KindInsufficientFunds   ErrorKind = "insufficient_funds"
	KindGatewayRejected     ErrorKind = "gateway_rejected"
	KindGatewayUnreachable  ErrorKind = "gateway_unreachable"
	KindReviewRejected      ErrorKind = "review_rejected"
	KindInternal            ErrorKind = "internal_error"
)

// GatewayRejectedError is a definitive gateway refusal: the operation is
// terminal and must not be retried blindly.
type GatewayRejectedError struct {
	Gateway string
	Code    string
	Message string
}

func (e *GatewayRejectedError) Error() string {
	return fmt.Sprintf("gateway %s rejected: %s (%s)", e.Gateway, e.Message, e.Code)
}

// GatewayUnreachableError covers timeouts, transport failures and open
// circuit breakers. The caller may retry after the idempotency record is
// invalidated or expires.
type GatewayUnreachableError struct {
	Gateway string
	Cause   error
}

func (e *GatewayUnreachableError) Error() string {
	return fmt.Sprintf("gateway %s unreachable: %v", e.Gateway, e.Cause)
}

func (e *GatewayUnreachableError) Unwrap() error {
	return e.Cause
}
