package domain

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Rule holds the ceilings for one (scope, operation type, currency) tier.
// Zero values mean "no ceiling" for that dimension.
type Rule struct {
	MaxCount          int             `json:"max_count"`
	HourlyAmount      decimal.Decimal `json:"hourly_amount"`
	DailyAmount       decimal.Decimal `json:"daily_amount"`
	MonthlyAmount     decimal.Decimal `json:"monthly_amount"`
	SingleTransaction decimal.Decimal `json:"single_transaction"`
}

// Policy resolves the applicable rule for a check. Overrides set through the
// admin surface shadow the configured tiers.
type Policy struct {
	rules     map[string]Rule
	overrides map[string]Rule
	mu        sync.RWMutex
}

func NewPolicy() *Policy {
	return &Policy{
		rules:     make(map[string]Rule),
		overrides: make(map[string]Rule),
	}
}

func ruleKey(scope Scope, operationType, currency string) string {
	return string(scope) + ":" + strings.ToLower(operationType) + ":" + strings.ToUpper(currency)
}

// SetRule installs the configured tier for a (scope, operation, currency).
func (p *Policy) SetRule(scope Scope, operationType, currency string, rule Rule) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rules[ruleKey(scope, operationType, currency)] = rule
}

// Override replaces the effective rule until cleared. Admin use only.
func (p *Policy) Override(scope Scope, operationType, currency string, rule Rule) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.overrides[ruleKey(scope, operationType, currency)] = rule
}

// ClearOverride removes an admin override, restoring the configured tier.
func (p *Policy) ClearOverride(scope Scope, operationType, currency string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.overrides, ruleKey(scope, operationType, currency))
}

// Rule returns the effective rule and whether one is configured.
func (p *Policy) Rule(scope Scope, operationType, currency string) (Rule, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	key := ruleKey(scope, operationType, currency)
	if rule, ok := p.overrides[key]; ok {
		return rule, true
	}
	rule, ok := p.rules[key]
	return rule, ok
}
