package application

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/calculus-guy/paymentscore/internal/webhook/domain"
	"github.com/calculus-guy/paymentscore/internal/webhook/infrastructure"
	"github.com/calculus-guy/paymentscore/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "sk_test_webhook"

// scriptedLimiter admits the first Allow calls and denies the rest.
type scriptedLimiter struct {
	mu    sync.Mutex
	admit int
	calls int
}

func (l *scriptedLimiter) Allow(context.Context, string, ratelimit.Limit) (*ratelimit.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.calls <= l.admit {
		return &ratelimit.Result{Allowed: true, Remaining: l.admit - l.calls}, nil
	}
	return &ratelimit.Result{Allowed: false, RetryAfter: time.Second}, nil
}

type authFixture struct {
	auth   *Authenticator
	blocks *infrastructure.MemoryOriginBlockStore
	audits *infrastructure.MemoryAuditRepository
}

func newAuthFixture(t *testing.T, limiter ratelimit.RateLimiter) *authFixture {
	t.Helper()
	blocks := infrastructure.NewMemoryOriginBlockStore()
	audits := infrastructure.NewMemoryAuditRepository()
	auth := NewAuthenticator(
		[]domain.Verifier{
			domain.NewPaystackVerifier(testSecret),
			domain.NewStripeVerifier(testSecret, 5*time.Minute),
		},
		map[string]ProviderPolicy{
			"paystack": {MaxSignatureFails: 3, BlockDuration: 30 * time.Minute},
		},
		infrastructure.NewMemoryDedupStore(),
		blocks,
		limiter,
		audits,
		nil,
		slog.Default(),
	)
	return &authFixture{auth: auth, blocks: blocks, audits: audits}
}

func sign(payload []byte) string {
	mac := hmac.New(sha512.New, []byte(testSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func delivery(eventID string, payload []byte) Request {
	return Request{
		Provider:        "paystack",
		RawPayload:      payload,
		SignatureHeader: sign(payload),
		EventID:         eventID,
		OriginIP:        "203.0.113.7",
	}
}

func TestAuthenticatorAcceptsValidDelivery(t *testing.T) {
	f := newAuthFixture(t, nil)

	result, err := f.auth.Validate(context.Background(), delivery("evt_1", []byte(`{"event":"charge.success"}`)))
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.False(t, result.Duplicate)

	audits, err := f.audits.ListByProvider(context.Background(), "paystack", time.Time{})
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.True(t, audits[0].Valid)
}

func TestAuthenticatorDuplicateEventAcksValid(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()
	req := delivery("evt_dup", []byte(`{"event":"charge.success"}`))

	first, err := f.auth.Validate(ctx, req)
	require.NoError(t, err)
	require.True(t, first.Valid)
	require.False(t, first.Duplicate)

	second, err := f.auth.Validate(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Valid, "duplicate must still ack upstream")
	assert.True(t, second.Duplicate)
}

func TestAuthenticatorRejectsBadSignature(t *testing.T) {
	f := newAuthFixture(t, nil)

	req := delivery("evt_bad", []byte(`{"event":"charge.success"}`))
	req.SignatureHeader = sign([]byte(`{"event":"something.else"}`))
	result, err := f.auth.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonBadSignature, result.Reason)
}

func TestAuthenticatorUnknownProvider(t *testing.T) {
	f := newAuthFixture(t, nil)

	req := delivery("evt_x", []byte(`{}`))
	req.Provider = "flutterwave"
	result, err := f.auth.Validate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonProviderUnknown, result.Reason)
}

func TestAuthenticatorBlocksOriginAfterRepeatedSignatureFailures(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		req := delivery(fmt.Sprintf("evt_f%d", i), []byte(`{"n":1}`))
		req.SignatureHeader = "deadbeef"
		result, err := f.auth.Validate(ctx, req)
		require.NoError(t, err)
		require.False(t, result.Valid)
	}

	// The streak hit the cap; even a correctly signed delivery from this
	// origin is now refused.
	result, err := f.auth.Validate(ctx, delivery("evt_after", []byte(`{"n":2}`)))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonOriginBlocked, result.Reason)

	remaining, reason, err := f.blocks.BlockedFor(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.Greater(t, remaining, time.Duration(0))
	assert.Equal(t, "repeated signature failures", reason)
}

func TestAuthenticatorValidDeliveryClearsFailureStreak(t *testing.T) {
	f := newAuthFixture(t, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		req := delivery(fmt.Sprintf("evt_s%d", i), []byte(`{"n":1}`))
		req.SignatureHeader = "deadbeef"
		_, err := f.auth.Validate(ctx, req)
		require.NoError(t, err)
	}
	// A genuine delivery resets the streak before it reaches the cap.
	result, err := f.auth.Validate(ctx, delivery("evt_ok", []byte(`{"n":2}`)))
	require.NoError(t, err)
	require.True(t, result.Valid)

	for i := 0; i < 2; i++ {
		req := delivery(fmt.Sprintf("evt_s2%d", i), []byte(`{"n":3}`))
		req.SignatureHeader = "deadbeef"
		_, err := f.auth.Validate(ctx, req)
		require.NoError(t, err)
	}
	remaining, _, err := f.blocks.BlockedFor(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), remaining, "streak should have restarted after the valid delivery")
}

func TestAuthenticatorRateLimitsOrigin(t *testing.T) {
	limiter := &scriptedLimiter{admit: 2}
	f := newAuthFixture(t, limiter)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := f.auth.Validate(ctx, delivery(fmt.Sprintf("evt_r%d", i), []byte(`{"n":1}`)))
		require.NoError(t, err)
		require.True(t, result.Valid)
	}

	result, err := f.auth.Validate(ctx, delivery("evt_r2", []byte(`{"n":1}`)))
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.Equal(t, domain.ReasonOriginRateLimit, result.Reason)
}

func TestAuthenticatorBlocksPersistentRateLimitExcess(t *testing.T) {
	limiter := &scriptedLimiter{admit: 0}
	f := newAuthFixture(t, limiter)
	ctx := context.Background()

	var result *domain.Result
	var err error
	for i := 0; i < 3; i++ {
		result, err = f.auth.Validate(ctx, delivery(fmt.Sprintf("evt_p%d", i), []byte(`{"n":1}`)))
		require.NoError(t, err)
		require.False(t, result.Valid)
		assert.Equal(t, domain.ReasonOriginRateLimit, result.Reason)
	}

	result, err = f.auth.Validate(ctx, delivery("evt_p_final", []byte(`{"n":1}`)))
	require.NoError(t, err)
	assert.Equal(t, domain.ReasonOriginBlocked, result.Reason)
}
