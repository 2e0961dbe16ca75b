package infrastructure

import (
	"fmt"

	"github.com/calculus-guy/paymentscore/internal/guard/domain"
	"github.com/calculus-guy/paymentscore/pkg/config"
	"github.com/shopspring/decimal"
)

// PolicyFromConfig translates the configured limit tiers into the guard's
// policy. Tier maps are keyed operation type → currency → amount string.
func PolicyFromConfig(cfg config.LimitsConfig) (*domain.Policy, error) {
	policy := domain.NewPolicy()
	if err := installTiers(policy, domain.ScopeSubject, cfg.Subject); err != nil {
		return nil, err
	}
	if err := installTiers(policy, domain.ScopeOrigin, cfg.Origin); err != nil {
		return nil, err
	}
	return policy, nil
}

func installTiers(policy *domain.Policy, scope domain.Scope, tiers map[string]config.LimitTier) error {
	for operationType, tier := range tiers {
		// Every currency mentioned in any of the tier's maps gets a rule.
		currencies := make(map[string]struct{})
		for _, amounts := range []map[string]string{tier.HourlyAmount, tier.DailyAmount, tier.MonthlyAmount, tier.SingleTransaction} {
			for currency := range amounts {
				currencies[currency] = struct{}{}
			}
		}
		if len(currencies) == 0 && tier.MaxCount > 0 {
			return fmt.Errorf("limit tier %s/%s: max_count needs at least one currency amount", scope, operationType)
		}

		for currency := range currencies {
			rule := domain.Rule{MaxCount: tier.MaxCount}
			var err error
			if rule.HourlyAmount, err = tierAmount(tier.HourlyAmount, currency); err != nil {
				return fmt.Errorf("limit tier %s/%s/%s hourly: %w", scope, operationType, currency, err)
			}
			if rule.DailyAmount, err = tierAmount(tier.DailyAmount, currency); err != nil {
				return fmt.Errorf("limit tier %s/%s/%s daily: %w", scope, operationType, currency, err)
			}
			if rule.MonthlyAmount, err = tierAmount(tier.MonthlyAmount, currency); err != nil {
				return fmt.Errorf("limit tier %s/%s/%s monthly: %w", scope, operationType, currency, err)
			}
			if rule.SingleTransaction, err = tierAmount(tier.SingleTransaction, currency); err != nil {
				return fmt.Errorf("limit tier %s/%s/%s single: %w", scope, operationType, currency, err)
			}
			policy.SetRule(scope, operationType, currency, rule)
		}
	}
	return nil
}

func tierAmount(amounts map[string]string, currency string) (decimal.Decimal, error) {
	raw, ok := amounts[currency]
	if !ok || raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
