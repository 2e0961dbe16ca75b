package application

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/calculus-guy/paymentscore/internal/risk/domain"
	"github.com/calculus-guy/paymentscore/internal/risk/infrastructure"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday 14:00 UTC: weekday, daytime, so timing contributes nothing.
var quietAfternoon = time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)

type testEngine struct {
	engine     *Engine
	profiles   *infrastructure.MemoryProfileRepository
	suspicious *infrastructure.MemorySuspiciousRepository
	hardBlocks *infrastructure.MemoryHardBlockStore
	history    *infrastructure.MemoryHistoryReader
}

func newTestEngine(t *testing.T, cfg Config) *testEngine {
	t.Helper()

	te := &testEngine{
		profiles:   infrastructure.NewMemoryProfileRepository(),
		suspicious: infrastructure.NewMemorySuspiciousRepository(),
		hardBlocks: infrastructure.NewMemoryHardBlockStore(),
		history:    infrastructure.NewMemoryHistoryReader(),
	}
	te.engine = NewEngine(
		domain.NewScorer(domain.DefaultThresholds()),
		te.profiles,
		te.suspicious,
		te.hardBlocks,
		te.history,
		cfg,
		nil,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return te
}

func defaultConfig() Config {
	return Config{
		MonitorThreshold:     31,
		ReviewThreshold:      61,
		BlockThreshold:       81,
		AutoBlockScore:       90,
		SuspiciousBlockCount: 5,
		BaselineDays:         7,
	}
}

func ngn(amount int64) domain.Input {
	return domain.Input{
		TransactionID: "txn-1",
		SubjectID:     "user-1",
		OperationType: "withdrawal",
		Currency:      "NGN",
		Amount:        decimal.NewFromInt(amount),
		At:            quietAfternoon,
	}
}

func TestAnalyzeAllowsLowRisk(t *testing.T) {
	te := newTestEngine(t, defaultConfig())

	result := te.engine.Analyze(context.Background(), ngn(4_321))
	assert.True(t, result.Allowed)
	assert.Equal(t, domain.ActionAllow, result.Action)
	assert.Contains(t, result.Flags, "new_user")
	assert.Less(t, result.Score, 31)
}

func TestAnalyzeMonitorsElevatedAmount(t *testing.T) {
	te := newTestEngine(t, defaultConfig())

	result := te.engine.Analyze(context.Background(), ngn(1_500_000))
	assert.True(t, result.Allowed)
	assert.Equal(t, domain.ActionMonitor, result.Action)
	assert.Contains(t, result.Flags, "high_amount")

	count, err := te.suspicious.CountBySubject(context.Background(), "user-1", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 1, count, "monitor outcomes are logged as suspicious activity")
}

func TestAnalyzeRoutesStructuringPatternToReview(t *testing.T) {
	te := newTestEngine(t, defaultConfig())

	// Two identical amounts already in the day plus a third just under the
	// reporting threshold: pattern + amount + new-user lands in the review
	// band.
	input := ngn(9_500_000)
	te.history.Append("user-1", domain.HistoryEntry{Amount: input.Amount, OperationType: "withdrawal", At: input.At.Add(-2 * time.Hour)})
	te.history.Append("user-1", domain.HistoryEntry{Amount: input.Amount, OperationType: "withdrawal", At: input.At.Add(-3 * time.Hour)})

	result := te.engine.Analyze(context.Background(), input)
	assert.False(t, result.Allowed)
	assert.Equal(t, domain.ActionReview, result.Action)
	assert.GreaterOrEqual(t, result.Score, 61)
	assert.LessOrEqual(t, result.Score, 80)
	assert.Contains(t, result.Flags, "possible_structuring")
	assert.Contains(t, result.Flags, "repeated_amount_x3")
}

func TestAnalyzeFlagsSuspiciousOriginSignature(t *testing.T) {
	te := newTestEngine(t, defaultConfig())

	baseline := te.engine.Analyze(context.Background(), ngn(4_321))
	require.NotContains(t, baseline.Flags, "suspicious_origin")

	input := ngn(4_321)
	input.OriginID = "python-requests/2.31"
	result := te.engine.Analyze(context.Background(), input)
	assert.Contains(t, result.Flags, "suspicious_origin")
	assert.Equal(t, baseline.Score+15, result.Score)

	// An ordinary client signature stays clean.
	input.OriginID = "origin_web"
	clean := te.engine.Analyze(context.Background(), input)
	assert.NotContains(t, clean.Flags, "suspicious_origin")
}

func TestAnalyzeBlocksAndHardBlocksExtremeScore(t *testing.T) {
	te := newTestEngine(t, defaultConfig())
	ctx := context.Background()

	// Night-time burst of identical near-threshold withdrawals.
	input := ngn(9_500_000)
	input.At = time.Date(2026, 3, 4, 2, 0, 0, 0, time.UTC)
	te.history.Append("user-1", domain.HistoryEntry{Amount: input.Amount, OperationType: "withdrawal", At: input.At.Add(-2 * time.Minute)})
	te.history.Append("user-1", domain.HistoryEntry{Amount: input.Amount, OperationType: "withdrawal", At: input.At.Add(-4 * time.Minute)})

	result := te.engine.Analyze(ctx, input)
	assert.False(t, result.Allowed)
	assert.Equal(t, domain.ActionBlock, result.Action)
	assert.GreaterOrEqual(t, result.Score, 90)
	assert.Contains(t, result.Flags, "rapid_succession")
	assert.Contains(t, result.Flags, "night_hours")

	// The score crossed the auto-block line; subsequent transactions are
	// rejected without scoring.
	next := te.engine.Analyze(ctx, ngn(100))
	assert.False(t, next.Allowed)
	assert.Equal(t, domain.ActionBlock, next.Action)
	assert.Contains(t, next.Flags, "subject_hard_blocked")
	assert.Equal(t, 100, next.Score)
}

type failingProfileRepo struct{}

func (failingProfileRepo) Get(ctx context.Context, subjectID string) (*domain.Profile, error) {
	return nil, errors.New("store unavailable")
}

func (failingProfileRepo) Save(ctx context.Context, profile *domain.Profile) error {
	return errors.New("store unavailable")
}

func TestAnalyzeFailsOpenOnEngineError(t *testing.T) {
	te := newTestEngine(t, defaultConfig())
	te.engine.profiles = failingProfileRepo{}

	result := te.engine.Analyze(context.Background(), ngn(9_500_000))
	assert.True(t, result.Allowed)
	assert.Equal(t, domain.ActionAllow, result.Action)
	assert.Contains(t, result.Flags, "analysis_error")
	assert.Zero(t, result.Score)
}

func TestAnalyzeFailsClosedWhenConfigured(t *testing.T) {
	cfg := defaultConfig()
	cfg.FailClosed = true
	te := newTestEngine(t, cfg)
	te.engine.profiles = failingProfileRepo{}

	result := te.engine.Analyze(context.Background(), ngn(100))
	assert.False(t, result.Allowed)
	assert.Equal(t, domain.ActionBlock, result.Action)
	assert.Contains(t, result.Flags, "analysis_error")
}

func TestRecordSuspiciousAccumulationHardBlocks(t *testing.T) {
	te := newTestEngine(t, defaultConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		te.engine.RecordSuspicious(ctx, "user-1", "rate_limit_violations", "repeated violations")
		blocked, _, err := te.hardBlocks.Contains(ctx, "user-1")
		require.NoError(t, err)
		assert.False(t, blocked, "after %d entries", i+1)
	}

	te.engine.RecordSuspicious(ctx, "user-1", "rate_limit_violations", "repeated violations")
	blocked, reason, err := te.hardBlocks.Contains(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.NotEmpty(t, reason)
}

func TestClearHardBlockRestoresScoring(t *testing.T) {
	te := newTestEngine(t, defaultConfig())
	ctx := context.Background()

	require.NoError(t, te.hardBlocks.Add(ctx, "user-1", "manual"))
	blocked := te.engine.Analyze(ctx, ngn(100))
	assert.Equal(t, domain.ActionBlock, blocked.Action)

	require.NoError(t, te.engine.ClearHardBlock(ctx, "user-1"))
	cleared := te.engine.Analyze(ctx, ngn(100))
	assert.Equal(t, domain.ActionAllow, cleared.Action)
}

func TestRecomputeBaselinesFeedsDeviationScoring(t *testing.T) {
	te := newTestEngine(t, defaultConfig())
	ctx := context.Background()

	now := quietAfternoon
	te.engine.now = func() time.Time { return now }

	// A week of steady 5,000 NGN purchases at 14:00.
	for day := 2; day <= 6; day++ {
		for i := 0; i < 4; i++ {
			te.history.Append("user-1", domain.HistoryEntry{
				Amount:        decimal.NewFromInt(5_000),
				OperationType: "purchase",
				At:            now.Add(-time.Duration(day)*24*time.Hour + time.Duration(i)*time.Minute),
			})
		}
	}

	updated, err := te.engine.RecomputeBaselines(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)

	profile, err := te.profiles.Get(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, profile)
	require.NotNil(t, profile.Baseline)
	assert.True(t, profile.Baseline.AvgAmount.Equal(decimal.NewFromInt(5_000)))
	assert.True(t, profile.Baseline.ActiveHours[14])
	assert.Equal(t, 20, profile.Baseline.SampleCount)

	// A 12x-average withdrawal at an hour the subject never transacts.
	input := ngn(60_000)
	input.At = time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	result := te.engine.Analyze(ctx, input)
	assert.Contains(t, result.Flags, "extreme_amount_deviation")
	assert.Contains(t, result.Flags, "off_hours_for_subject")
	assert.NotContains(t, result.Flags, "new_user")
}

func TestPruneSuspicious(t *testing.T) {
	te := newTestEngine(t, defaultConfig())
	ctx := context.Background()

	base := quietAfternoon
	te.engine.now = func() time.Time { return base.Add(-40 * 24 * time.Hour) }
	te.engine.RecordSuspicious(ctx, "user-1", "elevated_risk_score", "old entry")

	te.engine.now = func() time.Time { return base }
	removed, err := te.engine.PruneSuspicious(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}
