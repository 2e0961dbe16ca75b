package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/calculus-guy/paymentscore/internal/guard/domain"
	"github.com/shopspring/decimal"
)

const (
	hourWindow  = time.Hour
	dayWindow   = 24 * time.Hour
	monthWindow = 30 * 24 * time.Hour
)

// SuspiciousSink receives the signal emitted when a scope keeps violating
// limits. The risk engine consumes it.
type SuspiciousSink interface {
	RecordSuspicious(ctx context.Context, subjectID, activityType, details string)
}

// NopSuspiciousSink discards signals; used when no risk engine is wired.
type NopSuspiciousSink struct{}

func (NopSuspiciousSink) RecordSuspicious(ctx context.Context, subjectID, activityType, details string) {
}

// Guard enforces rolling count/amount ceilings per subject and per origin,
// with escalating temporary blocks on violation.
type Guard struct {
	policy           *domain.Policy
	usage            domain.UsageStore
	blocks           domain.BlockStore
	violations       domain.ViolationRepository
	suspicious       SuspiciousSink
	monitoringPeriod time.Duration
	logger           *slog.Logger
	now              func() time.Time
}

func NewGuard(
	policy *domain.Policy,
	usage domain.UsageStore,
	blocks domain.BlockStore,
	violations domain.ViolationRepository,
	suspicious SuspiciousSink,
	monitoringPeriod time.Duration,
	logger *slog.Logger,
) *Guard {
	if suspicious == nil {
		suspicious = NopSuspiciousSink{}
	}
	return &Guard{
		policy:           policy,
		usage:            usage,
		blocks:           blocks,
		violations:       violations,
		suspicious:       suspicious,
		monitoringPeriod: monitoringPeriod,
		logger:           logger,
		now:              time.Now,
	}
}

func scopeKey(scope domain.Scope, id, operationType, currency string) string {
	return fmt.Sprintf("%s:%s:%s:%s", scope, id, strings.ToLower(operationType), strings.ToUpper(currency))
}

// Check evaluates both scopes and returns the first failure. It reads usage
// without mutating it; Record debits the windows after the router commits to
// executing.
func (g *Guard) Check(ctx context.Context, subjectID, originID, operationType, currency string, amount decimal.Decimal) (*domain.CheckResult, error) {
	scopes := []struct {
		scope domain.Scope
		id    string
	}{
		{domain.ScopeSubject, subjectID},
		{domain.ScopeOrigin, originID},
	}

	var subjectUsage domain.Usage
	var subjectRule domain.Rule

	for _, sc := range scopes {
		if sc.id == "" {
			continue
		}
		key := scopeKey(sc.scope, sc.id, operationType, currency)

		remaining, reason, err := g.blocks.BlockedFor(ctx, key)
		if err != nil {
			return nil, err
		}
		if remaining > 0 {
			return &domain.CheckResult{
				Allowed:    false,
				Kind:       domain.KindBlocked,
				Scope:      sc.scope,
				Reason:     reason,
				RetryAfter: remaining,
			}, nil
		}

		rule, _ := g.policy.Rule(sc.scope, operationType, currency)

		now := g.now()
		usage, err := g.usage.Window(ctx, key, now.Add(-hourWindow))
		if err != nil {
			return nil, err
		}
		if sc.scope == domain.ScopeSubject {
			subjectUsage = usage
			subjectRule = rule
		}

		if result := g.evaluate(ctx, sc.scope, sc.id, key, rule, usage, amount, now); result != nil {
			return result, nil
		}
	}

	return &domain.CheckResult{
		Allowed: true,
		Usage:   subjectUsage,
		Limit:   subjectRule,
	}, nil
}

func (g *Guard) evaluate(ctx context.Context, scope domain.Scope, id, key string, rule domain.Rule, usage domain.Usage, amount decimal.Decimal, now time.Time) *domain.CheckResult {
	if rule.SingleTransaction.IsPositive() && amount.GreaterThan(rule.SingleTransaction) {
		return g.reject(ctx, scope, id, key, rule, usage, domain.KindSingleLimit,
			fmt.Sprintf("amount %s exceeds single-transaction limit %s", amount, rule.SingleTransaction), amount)
	}

	// Reaching the count cap exactly blocks the next unit.
	if rule.MaxCount > 0 && usage.Count >= rule.MaxCount {
		return g.reject(ctx, scope, id, key, rule, usage, domain.KindCountLimit,
			fmt.Sprintf("operation count %d reached limit %d", usage.Count, rule.MaxCount), decimal.Zero)
	}

	if rule.HourlyAmount.IsPositive() {
		wouldBe := usage.Amount.Add(amount)
		if wouldBe.GreaterThan(rule.HourlyAmount) {
			return g.reject(ctx, scope, id, key, rule, usage, domain.KindHourlyLimit,
				fmt.Sprintf("hourly amount would reach %s, limit %s", wouldBe, rule.HourlyAmount), wouldBe)
		}
	}

	if rule.DailyAmount.IsPositive() {
		daily, err := g.usage.Window(ctx, key, now.Add(-dayWindow))
		if err != nil {
			g.logger.Error("daily usage read failed", "key", key, "error", err)
		} else {
			wouldBe := daily.Amount.Add(amount)
			if wouldBe.GreaterThan(rule.DailyAmount) {
				return g.reject(ctx, scope, id, key, rule, daily, domain.KindDailyLimit,
					fmt.Sprintf("daily amount would reach %s, limit %s", wouldBe, rule.DailyAmount), wouldBe)
			}
		}
	}

	if rule.MonthlyAmount.IsPositive() {
		monthly, err := g.usage.Window(ctx, key, now.Add(-monthWindow))
		if err != nil {
			g.logger.Error("monthly usage read failed", "key", key, "error", err)
		} else {
			wouldBe := monthly.Amount.Add(amount)
			if wouldBe.GreaterThan(rule.MonthlyAmount) {
				return g.reject(ctx, scope, id, key, rule, monthly, domain.KindMonthlyLimit,
					fmt.Sprintf("monthly amount would reach %s, limit %s", wouldBe, rule.MonthlyAmount), wouldBe)
			}
		}
	}

	return nil
}

func (g *Guard) reject(ctx context.Context, scope domain.Scope, id, key string, rule domain.Rule, usage domain.Usage, kind domain.RejectionKind, reason string, wouldBe decimal.Decimal) *domain.CheckResult {
	seq, err := g.blocks.NextViolation(ctx, key, g.monitoringPeriod)
	if err != nil {
		g.logger.Error("violation sequence failed", "key", key, "error", err)
		seq = 1
	}

	blockFor := domain.BlockDuration(seq)
	if err := g.blocks.Block(ctx, key, blockFor, reason); err != nil {
		g.logger.Error("block apply failed", "key", key, "error", err)
	}

	now := g.now()
	violation := &domain.Violation{
		Scope:        scope,
		ScopeKey:     key,
		SubjectID:    id,
		Kind:         string(kind),
		Reason:       reason,
		Sequence:     seq,
		BlockedUntil: now.Add(blockFor),
		CreatedAt:    now,
	}
	if err := g.violations.Save(ctx, violation); err != nil {
		g.logger.Error("violation save failed", "key", key, "error", err)
	}

	if seq >= 3 && scope == domain.ScopeSubject {
		g.suspicious.RecordSuspicious(ctx, id, "rate_limit_violations",
			fmt.Sprintf("violation %d within monitoring period: %s", seq, reason))
	}

	g.logger.Warn("limit violation",
		"scope", scope,
		"scope_key", key,
		"kind", kind,
		"sequence", seq,
		"blocked_for", blockFor,
	)

	return &domain.CheckResult{
		Allowed:    false,
		Kind:       kind,
		Scope:      scope,
		Reason:     reason,
		RetryAfter: blockFor,
		Usage:      usage,
		Limit:      rule,
		WouldBe:    wouldBe,
	}
}

// Record debits usage for both scopes. Called once per admitted operation at
// decision time, not at settlement time. Each write also trims entries that
// fell out of the widest window, so the usage sets stay bounded.
func (g *Guard) Record(ctx context.Context, subjectID, originID, operationType, currency string, amount decimal.Decimal) error {
	now := g.now()
	if subjectID != "" {
		key := scopeKey(domain.ScopeSubject, subjectID, operationType, currency)
		if err := g.usage.Add(ctx, key, amount, now); err != nil {
			return err
		}
		if err := g.usage.Prune(ctx, key, now.Add(-monthWindow)); err != nil {
			g.logger.Warn("usage prune failed", "key", key, "error", err)
		}
	}
	if originID != "" {
		key := scopeKey(domain.ScopeOrigin, originID, operationType, currency)
		if err := g.usage.Add(ctx, key, amount, now); err != nil {
			return err
		}
		if err := g.usage.Prune(ctx, key, now.Add(-monthWindow)); err != nil {
			g.logger.Warn("usage prune failed", "key", key, "error", err)
		}
	}
	return nil
}

// ClearBlock lifts the temporary block and violation sequence for one scope
// key. Admin surface.
func (g *Guard) ClearBlock(ctx context.Context, scope domain.Scope, id, operationType, currency string) error {
	return g.blocks.Clear(ctx, scopeKey(scope, id, operationType, currency))
}

// OverrideRule installs an admin override for a tier.
func (g *Guard) OverrideRule(scope domain.Scope, operationType, currency string, rule domain.Rule) {
	g.policy.Override(scope, operationType, currency, rule)
}

// ListViolations returns the audit trail for a subject since the given time.
func (g *Guard) ListViolations(ctx context.Context, subjectID string, since time.Time) ([]*domain.Violation, error) {
	return g.violations.ListBySubject(ctx, subjectID, since)
}
