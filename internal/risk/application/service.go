package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/calculus-guy/paymentscore/internal/risk/domain"
	"github.com/calculus-guy/paymentscore/pkg/metrics"
)

// Config carries the action thresholds and hard-block policy.
type Config struct {
	MonitorThreshold     int
	ReviewThreshold      int
	BlockThreshold       int
	AutoBlockScore       int
	SuspiciousBlockCount int
	FailClosed           bool
	BaselineDays         int
}

const (
	historyWindow    = 24 * time.Hour
	suspiciousWindow = 24 * time.Hour

	// Exponential decay for the running per-subject score.
	smoothingPrior = 0.7
	smoothingNew   = 0.3
)

// Engine scores transactions and maintains the per-subject risk state.
type Engine struct {
	scorer     *domain.Scorer
	profiles   domain.ProfileRepository
	suspicious domain.SuspiciousRepository
	hardBlocks domain.HardBlockStore
	history    domain.HistoryReader
	cfg        Config
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewEngine(
	scorer *domain.Scorer,
	profiles domain.ProfileRepository,
	suspicious domain.SuspiciousRepository,
	hardBlocks domain.HardBlockStore,
	history domain.HistoryReader,
	cfg Config,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		scorer:     scorer,
		profiles:   profiles,
		suspicious: suspicious,
		hardBlocks: hardBlocks,
		history:    history,
		cfg:        cfg,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

// Analyze computes the composite score and action for one transaction. Any
// internal failure degrades to the configured fallback instead of erroring,
// so the router never stalls on the engine.
func (e *Engine) Analyze(ctx context.Context, input domain.Input) (assessment *domain.Assessment) {
	defer func() {
		if r := recover(); r != nil {
			assessment = e.fallback(ctx, input, fmt.Errorf("panic: %v", r))
		}
	}()

	if input.At.IsZero() {
		input.At = e.now()
	}

	blocked, reason, err := e.hardBlocks.Contains(ctx, input.SubjectID)
	if err != nil {
		return e.fallback(ctx, input, err)
	}
	if blocked {
		return &domain.Assessment{
			Allowed: false,
			Score:   100,
			Action:  domain.ActionBlock,
			Flags:   []string{"subject_hard_blocked"},
			Details: map[string]string{"reason": reason},
		}
	}

	profile, err := e.profiles.Get(ctx, input.SubjectID)
	if err != nil {
		return e.fallback(ctx, input, err)
	}
	var baseline *domain.Baseline
	if profile != nil {
		baseline = profile.Baseline
	}

	history, err := e.history.RecentBySubject(ctx, input.SubjectID, input.At.Add(-historyWindow))
	if err != nil {
		return e.fallback(ctx, input, err)
	}

	priorSuspicious, err := e.suspicious.CountBySubject(ctx, input.SubjectID, input.At.Add(-suspiciousWindow))
	if err != nil {
		// Count failures only lose one pattern signal; keep scoring.
		e.logger.Error("suspicious count read failed", "subject_id", input.SubjectID, "error", err)
		priorSuspicious = 0
	}

	subs := []domain.SubScore{
		e.scorer.Velocity(input, history, baseline),
		e.scorer.Behavioral(input, baseline),
		e.scorer.Pattern(input, history, priorSuspicious),
		e.scorer.Amount(input),
		e.scorer.Timing(input),
	}

	score := 0
	var flags []string
	details := make(map[string]string, len(subs))
	for _, sub := range subs {
		score += sub.Points
		flags = append(flags, sub.Flags...)
		details[sub.Name] = fmt.Sprintf("%d", sub.Points)
	}

	if baseline == nil || baseline.SampleCount == 0 {
		score += e.scorer.NewUserAddend()
		flags = append(flags, "new_user")
	}
	if score > 100 {
		score = 100
	}

	action := e.actionFor(score)
	result := &domain.Assessment{
		Allowed: action == domain.ActionAllow || action == domain.ActionMonitor,
		Score:   score,
		Action:  action,
		Flags:   flags,
		Details: details,
	}

	e.recordOutcome(ctx, input, result, profile)
	return result
}

func (e *Engine) actionFor(score int) domain.Action {
	switch {
	case score >= e.cfg.BlockThreshold:
		return domain.ActionBlock
	case score >= e.cfg.ReviewThreshold:
		return domain.ActionReview
	case score >= e.cfg.MonitorThreshold:
		return domain.ActionMonitor
	default:
		return domain.ActionAllow
	}
}

// recordOutcome persists the side effects of one analysis: suspicious
// entries, hard blocks and the decayed subject score. Failures here are
// logged, never propagated.
func (e *Engine) recordOutcome(ctx context.Context, input domain.Input, result *domain.Assessment, profile *domain.Profile) {
	now := e.now()

	if result.Score >= e.cfg.MonitorThreshold {
		entry := &domain.SuspiciousActivity{
			SubjectID:    input.SubjectID,
			ActivityType: "elevated_risk_score",
			Details:      fmt.Sprintf("transaction %s scored %d (%s)", input.TransactionID, result.Score, result.Action),
			CreatedAt:    now,
		}
		if err := e.suspicious.Save(ctx, entry); err != nil {
			e.logger.Error("suspicious activity save failed", "subject_id", input.SubjectID, "error", err)
		}
	}

	if result.Score >= e.cfg.AutoBlockScore {
		e.hardBlock(ctx, input.SubjectID, fmt.Sprintf("transaction %s scored %d", input.TransactionID, result.Score))
	} else if result.Score >= e.cfg.MonitorThreshold {
		count, err := e.suspicious.CountBySubject(ctx, input.SubjectID, now.Add(-suspiciousWindow))
		if err == nil && count >= e.cfg.SuspiciousBlockCount {
			e.hardBlock(ctx, input.SubjectID, fmt.Sprintf("%d suspicious activity entries in 24h", count))
		}
	}

	if profile == nil {
		profile = &domain.Profile{SubjectID: input.SubjectID}
	}
	profile.SmoothedScore = smoothingPrior*profile.SmoothedScore + smoothingNew*float64(result.Score)
	profile.UpdatedAt = now
	if err := e.profiles.Save(ctx, profile); err != nil {
		e.logger.Error("risk profile save failed", "subject_id", input.SubjectID, "error", err)
	}
}

func (e *Engine) hardBlock(ctx context.Context, subjectID, reason string) {
	if err := e.HardBlockSubject(ctx, subjectID, reason); err != nil {
		e.logger.Error("hard block add failed", "subject_id", subjectID, "error", err)
	}
}

// fallback is the engine-failure path. By default it allows with a distinct
// flag so availability wins; fail_closed flips it to a block.
func (e *Engine) fallback(ctx context.Context, input domain.Input, cause error) *domain.Assessment {
	e.logger.Error("risk analysis failed",
		"transaction_id", input.TransactionID,
		"subject_id", input.SubjectID,
		"fail_closed", e.cfg.FailClosed,
		"error", cause,
	)
	if e.metrics != nil {
		e.metrics.RiskFailOpen.Inc()
	}

	if e.cfg.FailClosed {
		return &domain.Assessment{
			Allowed: false,
			Score:   0,
			Action:  domain.ActionBlock,
			Flags:   []string{"analysis_error"},
			Details: map[string]string{"error": cause.Error()},
		}
	}
	return &domain.Assessment{
		Allowed: true,
		Score:   0,
		Action:  domain.ActionAllow,
		Flags:   []string{"analysis_error"},
		Details: map[string]string{"error": cause.Error()},
	}
}

// RecordSuspicious implements the guard's sink: limit violations feed the
// same hard-block counter as engine-detected activity.
func (e *Engine) RecordSuspicious(ctx context.Context, subjectID, activityType, details string) {
	now := e.now()
	entry := &domain.SuspiciousActivity{
		SubjectID:    subjectID,
		ActivityType: activityType,
		Details:      details,
		CreatedAt:    now,
	}
	if err := e.suspicious.Save(ctx, entry); err != nil {
		e.logger.Error("suspicious activity save failed", "subject_id", subjectID, "error", err)
		return
	}

	count, err := e.suspicious.CountBySubject(ctx, subjectID, now.Add(-suspiciousWindow))
	if err != nil {
		return
	}
	if count >= e.cfg.SuspiciousBlockCount {
		e.hardBlock(ctx, subjectID, fmt.Sprintf("%d suspicious activity entries in 24h", count))
	}
}

// HardBlockSubject installs a manual hard block. Admin surface.
func (e *Engine) HardBlockSubject(ctx context.Context, subjectID, reason string) error {
	if err := e.hardBlocks.Add(ctx, subjectID, reason); err != nil {
		return err
	}
	e.logger.Warn("subject hard-blocked", "subject_id", subjectID, "reason", reason)
	return nil
}

// ClearHardBlock lifts a manual or automatic hard block. Admin surface.
func (e *Engine) ClearHardBlock(ctx context.Context, subjectID string) error {
	return e.hardBlocks.Remove(ctx, subjectID)
}

// ListSuspicious returns recent suspicious entries for a subject.
func (e *Engine) ListSuspicious(ctx context.Context, subjectID string, since time.Time) ([]*domain.SuspiciousActivity, error) {
	return e.suspicious.ListBySubject(ctx, subjectID, since)
}

// PruneSuspicious drops entries older than retention. Background task.
func (e *Engine) PruneSuspicious(ctx context.Context, retention time.Duration) (int64, error) {
	return e.suspicious.DeleteBefore(ctx, e.now().Add(-retention))
}
