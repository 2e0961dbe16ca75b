package infrastructure

import (
	"context"
	"sort"
	"sync"

	"github.com/calculus-guy/paymentscore/internal/transaction/domain"
	"github.com/shopspring/decimal"
)

// MemoryTransactionRepository is the in-memory transaction store used in
// tests and local development.
type MemoryTransactionRepository struct {
	mu   sync.RWMutex
	rows map[string]*domain.Transaction
}

func NewMemoryTransactionRepository() *MemoryTransactionRepository {
	return &MemoryTransactionRepository{rows: make(map[string]*domain.Transaction)}
}

func (r *MemoryTransactionRepository) Save(_ context.Context, txn *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *txn
	r.rows[txn.ID] = &clone
	return nil
}

func (r *MemoryTransactionRepository) Update(ctx context.Context, txn *domain.Transaction) error {
	return r.Save(ctx, txn)
}

func (r *MemoryTransactionRepository) Get(_ context.Context, id string) (*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	txn, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	clone := *txn
	return &clone, nil
}

func (r *MemoryTransactionRepository) ListBySubject(_ context.Context, subjectID string, limit int) ([]*domain.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Transaction
	for _, txn := range r.rows {
		if txn.SubjectID == subjectID {
			clone := *txn
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryAccount struct {
	balance  decimal.Decimal
	reserved decimal.Decimal
}

// MemoryLedgerStore mirrors the Gorm ledger's semantics: per-reference
// idempotence, reserved funds excluded from the spendable balance.
type MemoryLedgerStore struct {
	mu       sync.Mutex
	accounts map[string]*memoryAccount
	posted   map[string]bool
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		accounts: make(map[string]*memoryAccount),
		posted:   make(map[string]bool),
	}
}

func (s *MemoryLedgerStore) account(subjectID, currency string) *memoryAccount {
	key := subjectID + "/" + currency
	acct, ok := s.accounts[key]
	if !ok {
		acct = &memoryAccount{}
		s.accounts[key] = acct
	}
	return acct
}

// Seed credits an account directly, bypassing reference tracking.
func (s *MemoryLedgerStore) Seed(subjectID, currency string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.account(subjectID, currency)
	acct.balance = acct.balance.Add(amount)
}

func (s *MemoryLedgerStore) Balance(_ context.Context, subjectID, currency string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct := s.account(subjectID, currency)
	return acct.balance.Sub(acct.reserved), nil
}

func (s *MemoryLedgerStore) ApplyDelta(_ context.Context, subjectID, currency string, delta decimal.Decimal, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.posted[reference] {
		return nil
	}
	acct := s.account(subjectID, currency)
	next := acct.balance.Add(delta)
	if next.Sub(acct.reserved).IsNegative() {
		return domain.ErrInsufficientFunds
	}
	acct.balance = next
	s.posted[reference] = true
	return nil
}

func (s *MemoryLedgerStore) Reserve(_ context.Context, subjectID, currency string, amount decimal.Decimal, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := "hold:" + reference
	if s.posted[ref] {
		return nil
	}
	acct := s.account(subjectID, currency)
	if acct.balance.Sub(acct.reserved).LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	acct.reserved = acct.reserved.Add(amount)
	s.posted[ref] = true
	return nil
}

func (s *MemoryLedgerStore) Release(_ context.Context, subjectID, currency string, amount decimal.Decimal, reference string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := "release:" + reference
	if s.posted[ref] {
		return nil
	}
	acct := s.account(subjectID, currency)
	acct.reserved = acct.reserved.Sub(amount)
	if acct.reserved.IsNegative() {
		acct.reserved = decimal.Zero
	}
	s.posted[ref] = true
	return nil
}

type catalogItem struct {
	price    decimal.Decimal
	currency string
	owner    string
}

// MemoryCatalog is a fixed price list.
type MemoryCatalog struct {
	mu    sync.RWMutex
	items map[string]catalogItem
}

func NewMemoryCatalog() *MemoryCatalog {
	return &MemoryCatalog{items: make(map[string]catalogItem)}
}

func (c *MemoryCatalog) Add(contentID string, price decimal.Decimal, currency, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[contentID] = catalogItem{price: price, currency: currency, owner: owner}
}

func (c *MemoryCatalog) Price(_ context.Context, contentID string) (decimal.Decimal, string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[contentID]
	if !ok {
		return decimal.Zero, "", domain.ErrContentNotFound
	}
	return item.price, item.currency, nil
}

func (c *MemoryCatalog) Owner(_ context.Context, contentID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[contentID]
	if !ok {
		return "", domain.ErrContentNotFound
	}
	return item.owner, nil
}

// ScriptedGateway returns canned results and records every call, standing
// in for a provider in tests.
type ScriptedGateway struct {
	mu        sync.Mutex
	name      string
	ChargeErr error
	PayoutErr error
	VerifyRes *domain.GatewayResult

	Charges []domain.ChargeRequest
	Payouts []domain.PayoutRequest
}

func NewScriptedGateway(name string) *ScriptedGateway {
	return &ScriptedGateway{name: name}
}

func (g *ScriptedGateway) Name() string { return g.name }

func (g *ScriptedGateway) InitiateCharge(_ context.Context, req domain.ChargeRequest) (*domain.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Charges = append(g.Charges, req)
	if g.ChargeErr != nil {
		return nil, g.ChargeErr
	}
	return &domain.GatewayResult{
		Reference:   req.Reference,
		ProviderRef: g.name + "_" + req.Reference,
		Status:      "pending",
		Succeeded:   true,
		AuthURL:     "https://checkout.example/" + req.Reference,
	}, nil
}

func (g *ScriptedGateway) VerifyCharge(_ context.Context, reference string) (*domain.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.VerifyRes != nil {
		return g.VerifyRes, nil
	}
	return &domain.GatewayResult{Reference: reference, Status: "success", Succeeded: true}, nil
}

func (g *ScriptedGateway) InitiatePayout(_ context.Context, req domain.PayoutRequest) (*domain.GatewayResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Payouts = append(g.Payouts, req)
	if g.PayoutErr != nil {
		return nil, g.PayoutErr
	}
	return &domain.GatewayResult{
		Reference:   req.Reference,
		ProviderRef: g.name + "_" + req.Reference,
		Status:      "success",
		Succeeded:   true,
	}, nil
}

// CapturingPublisher records published events.
type CapturingPublisher struct {
	mu     sync.Mutex
	Events []domain.Event
}

func (p *CapturingPublisher) Publish(_ context.Context, event domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, event)
	return nil
}
