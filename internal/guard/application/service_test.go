package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/calculus-guy/paymentscore/internal/guard/domain"
	"github.com/calculus-guy/paymentscore/internal/guard/infrastructure"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	subjects []string
	types    []string
}

func (s *recordingSink) RecordSuspicious(ctx context.Context, subjectID, activityType, details string) {
	s.subjects = append(s.subjects, subjectID)
	s.types = append(s.types, activityType)
}

func newTestGuard(t *testing.T) (*Guard, *infrastructure.MemoryBlockStore, *recordingSink) {
	t.Helper()

	policy := domain.NewPolicy()
	policy.SetRule(domain.ScopeSubject, "withdrawal", "NGN", domain.Rule{
		MaxCount:          10,
		HourlyAmount:      decimal.NewFromInt(500_000),
		DailyAmount:       decimal.NewFromInt(2_000_000),
		MonthlyAmount:     decimal.NewFromInt(20_000_000),
		SingleTransaction: decimal.NewFromInt(300_000),
	})
	policy.SetRule(domain.ScopeOrigin, "withdrawal", "NGN", domain.Rule{
		MaxCount: 100,
	})

	blocks := infrastructure.NewMemoryBlockStore()
	sink := &recordingSink{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	guard := NewGuard(
		policy,
		infrastructure.NewMemoryUsageStore(),
		blocks,
		infrastructure.NewMemoryViolationRepository(),
		sink,
		time.Hour,
		logger,
	)
	return guard, blocks, sink
}

func TestGuardAllowsWithinLimits(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	ctx := context.Background()

	result, err := guard.Check(ctx, "user-1", "api-key-1", "withdrawal", "ngn", decimal.NewFromInt(50_000))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
	assert.Equal(t, domain.KindNone, result.Kind)
}

func TestGuardRejectsSingleTransactionCeiling(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	ctx := context.Background()

	result, err := guard.Check(ctx, "user-1", "", "withdrawal", "NGN", decimal.NewFromInt(300_001))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, domain.KindSingleLimit, result.Kind)
	assert.Equal(t, domain.ScopeSubject, result.Scope)
	assert.Equal(t, 2*time.Minute, result.RetryAfter)
}

func TestGuardDailyOverflowUsesWouldBe(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	ctx := context.Background()

	// 1,900,000 already used today across prior hours: record 19 operations
	// of 100,000 backdated beyond the hourly window but inside the daily one.
	base := time.Now()
	guard.now = func() time.Time { return base.Add(-2 * time.Hour) }
	for i := 0; i < 19; i++ {
		require.NoError(t, guard.Record(ctx, "user-1", "", "withdrawal", "NGN", decimal.NewFromInt(100_000)))
	}
	guard.now = func() time.Time { return base }

	result, err := guard.Check(ctx, "user-1", "", "withdrawal", "NGN", decimal.NewFromInt(150_000))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, domain.KindDailyLimit, result.Kind)
	assert.True(t, result.WouldBe.Equal(decimal.NewFromInt(2_050_000)), "would-be %s", result.WouldBe)
	assert.True(t, result.Usage.Amount.Equal(decimal.NewFromInt(1_900_000)))
}

func TestGuardCountAtCapRejectsNextOperation(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, guard.Record(ctx, "user-1", "", "withdrawal", "NGN", decimal.NewFromInt(10)))
	}

	result, err := guard.Check(ctx, "user-1", "", "withdrawal", "NGN", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, domain.KindCountLimit, result.Kind)
}

func TestGuardBlockShortCircuitsFurtherChecks(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	ctx := context.Background()

	// First rejection installs a block; the next check must fail fast with
	// a retry hint and without consuming another violation.
	first, err := guard.Check(ctx, "user-1", "api-key-1", "withdrawal", "NGN", decimal.NewFromInt(400_000))
	require.NoError(t, err)
	require.False(t, first.Allowed)
	assert.Equal(t, domain.KindSingleLimit, first.Kind)

	second, err := guard.Check(ctx, "user-1", "api-key-1", "withdrawal", "NGN", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.False(t, second.Allowed)
	assert.Equal(t, domain.KindBlocked, second.Kind)
	assert.Greater(t, second.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, second.RetryAfter, 2*time.Minute)
}

func TestGuardBackoffLadderEscalates(t *testing.T) {
	guard, blocks, sink := newTestGuard(t)
	ctx := context.Background()

	key := "subject:user-1:withdrawal:NGN"
	expect := []time.Duration{2 * time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour, 24 * time.Hour, 24 * time.Hour}

	for i, want := range expect {
		result, err := guard.Check(ctx, "user-1", "", "withdrawal", "NGN", decimal.NewFromInt(400_000))
		require.NoError(t, err)
		require.False(t, result.Allowed)
		assert.Equal(t, want, result.RetryAfter, "violation %d", i+1)

		require.NoError(t, blocks.Clear(ctx, key))
		// Clear lifts the block but also resets the sequence; reinstall it
		// so the ladder keeps counting.
		for j := 0; j <= i; j++ {
			_, err := blocks.NextViolation(ctx, key, time.Hour)
			require.NoError(t, err)
		}
	}

	// The third-and-later violations flag the subject for the risk engine.
	assert.NotEmpty(t, sink.subjects)
	assert.Contains(t, sink.types, "rate_limit_violations")
}

func TestGuardOriginScopeIndependentOfSubject(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	ctx := context.Background()

	// Exhaust the origin count cap with many subjects.
	for i := 0; i < 100; i++ {
		require.NoError(t, guard.Record(ctx, "", "api-key-1", "withdrawal", "NGN", decimal.NewFromInt(10)))
	}

	result, err := guard.Check(ctx, "fresh-user", "api-key-1", "withdrawal", "NGN", decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, domain.ScopeOrigin, result.Scope)
	assert.Equal(t, domain.KindCountLimit, result.Kind)
}

func TestGuardUnknownTierHasNoCeilings(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	ctx := context.Background()

	result, err := guard.Check(ctx, "user-1", "", "purchase", "USD", decimal.NewFromInt(1_000_000_000))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestGuardOverrideShadowsConfiguredRule(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	ctx := context.Background()

	guard.OverrideRule(domain.ScopeSubject, "withdrawal", "NGN", domain.Rule{
		SingleTransaction: decimal.NewFromInt(1_000_000),
	})

	result, err := guard.Check(ctx, "user-1", "", "withdrawal", "NGN", decimal.NewFromInt(900_000))
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestGuardViolationAuditTrail(t *testing.T) {
	guard, _, _ := newTestGuard(t)
	ctx := context.Background()

	_, err := guard.Check(ctx, "user-1", "", "withdrawal", "NGN", decimal.NewFromInt(400_000))
	require.NoError(t, err)

	violations, err := guard.ListViolations(ctx, "user-1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, violations, 1)
	assert.Equal(t, string(domain.KindSingleLimit), violations[0].Kind)
	assert.Equal(t, 1, violations[0].Sequence)
}
