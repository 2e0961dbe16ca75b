package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	guardapp "github.com/calculus-guy/paymentscore/internal/guard/application"
	guarddomain "github.com/calculus-guy/paymentscore/internal/guard/domain"
	idemapp "github.com/calculus-guy/paymentscore/internal/idempotency/application"
	idemdomain "github.com/calculus-guy/paymentscore/internal/idempotency/domain"
	reviewapp "github.com/calculus-guy/paymentscore/internal/review/application"
	reviewdomain "github.com/calculus-guy/paymentscore/internal/review/domain"
	riskapp "github.com/calculus-guy/paymentscore/internal/risk/application"
	riskdomain "github.com/calculus-guy/paymentscore/internal/risk/domain"
	"github.com/calculus-guy/paymentscore/internal/transaction/domain"
	"github.com/calculus-guy/paymentscore/pkg/metrics"
	"github.com/google/uuid"
)

// Request is one inbound financial operation before validation.
type Request struct {
	IdempotencyKey string          `json:"idempotency_key"`
	SubjectID      string          `json:"subject_id"`
	OriginID       string          `json:"origin_id"`
	OperationType  string          `json:"operation_type"`
	Params         json.RawMessage `json:"params"`
}

// Router drives each transaction through validation, idempotency, limits,
// risk and execution. It owns the state machine; the gates only decide.
type Router struct {
	idempotency *idemapp.Service
	guard       *guardapp.Guard
	risk        *riskapp.Engine
	reviews     *reviewapp.Queue
	repo        domain.Repository
	ledger      domain.LedgerStore
	gateways    map[string]domain.GatewayAdapter
	catalog     domain.Catalog
	publisher   domain.EventPublisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

func NewRouter(
	idempotency *idemapp.Service,
	guard *guardapp.Guard,
	risk *riskapp.Engine,
	reviews *reviewapp.Queue,
	repo domain.Repository,
	ledger domain.LedgerStore,
	gateways map[string]domain.GatewayAdapter,
	catalog domain.Catalog,
	publisher domain.EventPublisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	return &Router{
		idempotency: idempotency,
		guard:       guard,
		risk:        risk,
		reviews:     reviews,
		repo:        repo,
		ledger:      ledger,
		gateways:    gateways,
		catalog:     catalog,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

// SubmitOperation runs the full pipeline for one request. It never returns
// a Go error for business rejections; those come back as typed outcomes.
func (r *Router) SubmitOperation(ctx context.Context, req Request) (*domain.Outcome, error) {
	started := r.now()
	defer func() {
		if r.metrics != nil {
			r.metrics.PipelineDuration.Observe(time.Since(started).Seconds())
		}
	}()

	params, err := domain.ParseParams(req.OperationType, req.Params)
	if err != nil {
		return r.rejectBeforeReservation(domain.KindMissingParameters, err.Error()), nil
	}

	currency := params.Currency()
	if req.OperationType != domain.OpTransfer {
		// Internal transfers never touch a gateway; everything else must
		// pair with one.
		if _, err := domain.GatewayFor(currency); err != nil {
			return r.rejectBeforeReservation(domain.KindMissingParameters, err.Error()), nil
		}
	}

	reservation, err := r.idempotency.CheckAndReserve(ctx, req.IdempotencyKey, req.SubjectID, req.OperationType, req.Params)
	if err != nil {
		switch {
		case errors.Is(err, idemdomain.ErrInvalidKeyFormat):
			return r.rejectBeforeReservation(domain.KindInvalidKeyFormat, "idempotency key must be a valid UUID"), nil
		case errors.Is(err, idemdomain.ErrConflict):
			if r.metrics != nil {
				r.metrics.IdempotencyConflicts.Inc()
			}
			return r.rejectBeforeReservation(domain.KindIdempotencyConflict, "idempotency key reused with different parameters or subject"), nil
		default:
			return nil, err
		}
	}

	if !reservation.IsNew {
		return r.replay(reservation), nil
	}

	if r.metrics != nil {
		r.metrics.OperationsSubmitted.WithLabelValues(req.OperationType).Inc()
	}

	now := r.now()
	txn := &domain.Transaction{
		ID:             uuid.NewString(),
		IdempotencyKey: req.IdempotencyKey,
		SubjectID:      req.SubjectID,
		OriginID:       req.OriginID,
		OperationType:  req.OperationType,
		Currency:       currency,
		Amount:         params.Amount(),
		Params:         req.Params,
		State:          domain.StateReceived,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := r.repo.Save(ctx, txn); err != nil {
		return nil, err
	}
	r.advance(ctx, txn, domain.StateIdempotencyChecked)

	if outcome := r.checkLimits(ctx, txn); outcome != nil {
		return outcome, nil
	}
	r.advance(ctx, txn, domain.StateLimitChecked)

	assessment := r.risk.Analyze(ctx, riskdomain.Input{
		TransactionID: txn.ID,
		SubjectID:     txn.SubjectID,
		OriginID:      txn.OriginID,
		OperationType: txn.OperationType,
		Currency:      txn.Currency,
		Amount:        txn.Amount,
		At:            r.now(),
	})
	txn.RiskScore = assessment.Score
	txn.RiskFlags = assessment.Flags
	r.advance(ctx, txn, domain.StateRiskChecked)

	switch assessment.Action {
	case riskdomain.ActionBlock:
		return r.reject(ctx, txn, "risk", domain.KindRiskBlocked,
			fmt.Sprintf("transaction blocked by risk engine (score %d)", assessment.Score), 0), nil
	case riskdomain.ActionReview:
		return r.holdForReview(ctx, txn, assessment)
	}

	return r.execute(ctx, txn, params), nil
}

// rejectBeforeReservation covers caller errors thrown before any state
// exists to cache.
func (r *Router) rejectBeforeReservation(kind domain.ErrorKind, reason string) *domain.Outcome {
	if r.metrics != nil {
		r.metrics.OperationsRejected.WithLabelValues("validation", string(kind)).Inc()
	}
	return &domain.Outcome{
		Status:    domain.OutcomeRejected,
		ErrorKind: kind,
		Reason:    reason,
	}
}

// replay serves a repeat call from the reservation the first attempt left
// behind.
func (r *Router) replay(reservation *idemapp.Reservation) *domain.Outcome {
	if reservation.Status == idemdomain.StatusProcessing {
		return &domain.Outcome{Status: domain.OutcomeInProgress, Duplicate: true}
	}

	if r.metrics != nil {
		r.metrics.IdempotencyReplays.Inc()
	}
	var outcome domain.Outcome
	if err := json.Unmarshal(reservation.CachedResult, &outcome); err != nil {
		// A cached result that no longer parses is unrecoverable for the
		// caller; surface the stored status at least.
		r.logger.Error("cached outcome unmarshal failed", "error", err)
		outcome = domain.Outcome{Status: string(reservation.Status)}
	}
	outcome.Duplicate = true
	return &outcome
}

func (r *Router) checkLimits(ctx context.Context, txn *domain.Transaction) *domain.Outcome {
	check, err := r.guard.Check(ctx, txn.SubjectID, txn.OriginID, txn.OperationType, txn.Currency, txn.Amount)
	if err != nil {
		return r.reject(ctx, txn, "limits", domain.KindInternal, "limit check unavailable", 0)
	}
	if !check.Allowed {
		kind := domain.KindLimitExceeded
		if check.Kind == guarddomain.KindBlocked {
			kind = domain.KindBlocked
		}
		return r.reject(ctx, txn, "limits", kind, check.Reason, check.RetryAfter)
	}

	if err := r.guard.Record(ctx, txn.SubjectID, txn.OriginID, txn.OperationType, txn.Currency, txn.Amount); err != nil {
		r.logger.Error("usage record failed", "transaction_id", txn.ID, "error", err)
	}
	return nil
}

// reject finalizes a transaction at a gate and caches the rejection as the
// key's idempotent result.
func (r *Router) reject(ctx context.Context, txn *domain.Transaction, stage string, kind domain.ErrorKind, reason string, retryAfter time.Duration) *domain.Outcome {
	txn.State = domain.StateRejected
	txn.FailureKind = kind
	txn.FailureReason = reason
	r.finalize(ctx, txn)

	outcome := &domain.Outcome{
		TransactionID:     txn.ID,
		Status:            domain.OutcomeRejected,
		ErrorKind:         kind,
		Reason:            reason,
		RetryAfterSeconds: int64(retryAfter / time.Second),
		RiskScore:         txn.RiskScore,
		RiskFlags:         txn.RiskFlags,
	}
	r.cacheOutcome(ctx, txn, idemdomain.StatusFailed, outcome)

	if r.metrics != nil {
		r.metrics.OperationsRejected.WithLabelValues(stage, string(kind)).Inc()
	}
	r.logger.Warn("operation rejected",
		"transaction_id", txn.ID,
		"stage", stage,
		"kind", kind,
		"reason", reason,
	)
	return outcome
}

// holdForReview persists the transaction as pending, reserves funds where
// the operation spends them, and enqueues it for human adjudication. The
// idempotency record stays processing until the decision lands.
func (r *Router) holdForReview(ctx context.Context, txn *domain.Transaction, assessment *riskdomain.Assessment) (*domain.Outcome, error) {
	if spendsFunds(txn.OperationType) {
		if err := r.ledger.Reserve(ctx, txn.SubjectID, txn.Currency, txn.Amount, reviewHoldRef(txn.ID)); err != nil {
			return r.reject(ctx, txn, "review", domain.KindInsufficientFunds, "unable to hold funds for review", 0), nil
		}
	}

	txn.State = domain.StateEnqueuedForReview
	r.finalize(ctx, txn)

	result, err := r.reviews.Enqueue(ctx, txn.ID, txn.SubjectID, "risk_score",
		reviewdomain.PriorityForScore(assessment.Score, assessment.Flags))
	if err != nil {
		// Without a queue entry nobody would ever decide; fail the
		// transaction and give back the hold.
		if spendsFunds(txn.OperationType) {
			if relErr := r.ledger.Release(ctx, txn.SubjectID, txn.Currency, txn.Amount, reviewHoldRef(txn.ID)); relErr != nil {
				r.logger.Error("review hold release failed", "transaction_id", txn.ID, "error", relErr)
			}
		}
		return r.fail(ctx, txn, domain.KindInternal, "review enqueue failed"), nil
	}

	txn.ReviewID = result.ReviewID
	if err := r.repo.Update(ctx, txn); err != nil {
		r.logger.Error("transaction update failed", "transaction_id", txn.ID, "error", err)
	}

	if r.metrics != nil {
		r.metrics.ReviewEnqueued.Inc()
	}
	r.logger.Info("transaction held for review",
		"transaction_id", txn.ID,
		"review_id", result.ReviewID,
		"risk_score", assessment.Score,
	)

	return &domain.Outcome{
		TransactionID: txn.ID,
		Status:        domain.OutcomePendingReview,
		RiskScore:     assessment.Score,
		RiskFlags:     assessment.Flags,
		ReviewID:      result.ReviewID,
		QueuePosition: result.QueuePosition,
		SLADeadline:   &result.SLADeadline,
	}, nil
}

// CompleteReviewedTransaction re-enters the state machine at the executing
// stage once a reviewer has decided. Terminal transactions are left alone
// so repeated callbacks stay harmless.
func (r *Router) CompleteReviewedTransaction(ctx context.Context, transactionID string, approved bool, notes string) error {
	txn, err := r.repo.Get(ctx, transactionID)
	if err != nil {
		return err
	}
	if txn == nil {
		return fmt.Errorf("transaction %s not found", transactionID)
	}
	if txn.State != domain.StateEnqueuedForReview {
		return nil
	}

	if r.metrics != nil {
		decision := "rejected"
		if approved {
			decision = "approved"
		}
		r.metrics.ReviewDecided.WithLabelValues(decision).Inc()
	}

	if spendsFunds(txn.OperationType) {
		if err := r.ledger.Release(ctx, txn.SubjectID, txn.Currency, txn.Amount, reviewHoldRef(txn.ID)); err != nil {
			r.logger.Error("review hold release failed", "transaction_id", txn.ID, "error", err)
		}
	}

	if !approved {
		reason := "rejected by reviewer"
		if notes != "" {
			reason = fmt.Sprintf("rejected by reviewer: %s", notes)
		}
		r.fail(ctx, txn, domain.KindReviewRejected, reason)
		return nil
	}

	params, err := domain.ParseParams(txn.OperationType, txn.Params)
	if err != nil {
		r.fail(ctx, txn, domain.KindInternal, "stored parameters unreadable")
		return err
	}

	r.execute(ctx, txn, params)
	return nil
}

// execute moves funds for an admitted transaction and settles the
// idempotency record with the true outcome.
func (r *Router) execute(ctx context.Context, txn *domain.Transaction, params *domain.Params) *domain.Outcome {
	r.advance(ctx, txn, domain.StateExecuting)

	var (
		outcome *domain.Outcome
		err     error
	)
	switch txn.OperationType {
	case domain.OpPurchase:
		outcome, err = r.executePurchase(ctx, txn, params.Purchase)
	case domain.OpWithdrawal:
		outcome, err = r.executeWithdrawal(ctx, txn, params.Withdrawal)
	case domain.OpTransfer:
		outcome, err = r.executeTransfer(ctx, txn, params.Transfer)
	case domain.OpWebhookCredit:
		outcome, err = r.executeCredit(ctx, txn, params.Credit)
	case domain.OpPaymentVerification:
		outcome, err = r.executeVerification(ctx, txn, params.Verification)
	default:
		err = domain.ErrUnknownOperationType
	}

	if err != nil {
		return r.failFromError(ctx, txn, err)
	}

	now := r.now()
	txn.State = domain.StateCompleted
	txn.CompletedAt = &now
	r.finalize(ctx, txn)
	r.cacheOutcome(ctx, txn, idemdomain.StatusCompleted, outcome)
	r.publish(ctx, txn, "transaction.completed")

	if r.metrics != nil {
		r.metrics.OperationsExecuted.WithLabelValues(txn.OperationType, "completed").Inc()
	}
	return outcome
}

func (r *Router) executePurchase(ctx context.Context, txn *domain.Transaction, p *domain.PurchaseParams) (*domain.Outcome, error) {
	price, priceCurrency, err := r.catalog.Price(ctx, p.ContentID)
	if err != nil {
		return nil, fmt.Errorf("price lookup: %w", err)
	}
	if !p.Amount.Equal(price) || !strings.EqualFold(p.Currency, priceCurrency) {
		return nil, &domain.MissingParametersError{Fields: []string{"amount"}}
	}

	gateway, err := r.gateway(txn.Currency)
	if err != nil {
		return nil, err
	}
	result, err := gateway.InitiateCharge(ctx, domain.ChargeRequest{
		Reference: txn.ID,
		SubjectID: txn.SubjectID,
		Amount:    txn.Amount,
		Currency:  txn.Currency,
	})
	if err != nil {
		return nil, err
	}

	owner, err := r.catalog.Owner(ctx, p.ContentID)
	if err != nil {
		return nil, fmt.Errorf("owner lookup: %w", err)
	}
	if err := r.ledger.ApplyDelta(ctx, owner, txn.Currency, txn.Amount, executionRef("purchase", txn)); err != nil {
		return nil, err
	}

	txn.GatewayRef = result.ProviderRef
	return &domain.Outcome{
		TransactionID: txn.ID,
		Status:        domain.OutcomeCompleted,
		RiskScore:     txn.RiskScore,
		GatewayRef:    result.ProviderRef,
		AuthURL:       result.AuthURL,
		GatewayStatus: result.Status,
	}, nil
}

func (r *Router) executeWithdrawal(ctx context.Context, txn *domain.Transaction, p *domain.WithdrawalParams) (*domain.Outcome, error) {
	balance, err := r.ledger.Balance(ctx, txn.SubjectID, txn.Currency)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(txn.Amount) {
		return nil, domain.ErrInsufficientFunds
	}

	debitRef := executionRef("withdrawal", txn)
	if err := r.ledger.ApplyDelta(ctx, txn.SubjectID, txn.Currency, txn.Amount.Neg(), debitRef); err != nil {
		return nil, err
	}

	gateway, err := r.gateway(txn.Currency)
	if err != nil {
		r.refund(ctx, txn, debitRef)
		return nil, err
	}
	result, err := gateway.InitiatePayout(ctx, domain.PayoutRequest{
		Reference:     txn.ID,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		BankCode:      p.BankCode,
		AccountNumber: p.AccountNumber,
		AccountName:   p.AccountName,
	})
	if err != nil {
		// Whether the gateway said no or said nothing, the debit must
		// come back; the distinction only changes the caller's retry
		// options.
		r.refund(ctx, txn, debitRef)
		return nil, err
	}

	txn.GatewayRef = result.ProviderRef
	return &domain.Outcome{
		TransactionID: txn.ID,
		Status:        domain.OutcomeCompleted,
		RiskScore:     txn.RiskScore,
		GatewayRef:    result.ProviderRef,
		GatewayStatus: result.Status,
	}, nil
}

func (r *Router) executeTransfer(ctx context.Context, txn *domain.Transaction, p *domain.TransferParams) (*domain.Outcome, error) {
	balance, err := r.ledger.Balance(ctx, txn.SubjectID, txn.Currency)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(txn.Amount) {
		return nil, domain.ErrInsufficientFunds
	}

	debitRef := executionRef("transfer_out", txn)
	if err := r.ledger.ApplyDelta(ctx, txn.SubjectID, txn.Currency, txn.Amount.Neg(), debitRef); err != nil {
		return nil, err
	}
	if err := r.ledger.ApplyDelta(ctx, p.RecipientID, txn.Currency, txn.Amount, executionRef("transfer_in", txn)); err != nil {
		r.refund(ctx, txn, debitRef)
		return nil, err
	}

	return &domain.Outcome{
		TransactionID: txn.ID,
		Status:        domain.OutcomeCompleted,
		RiskScore:     txn.RiskScore,
	}, nil
}

func (r *Router) executeCredit(ctx context.Context, txn *domain.Transaction, p *domain.WebhookCreditParams) (*domain.Outcome, error) {
	// The provider reference keys the delta, so a replayed webhook that
	// slipped past dedup still cannot double-credit.
	ref := fmt.Sprintf("credit:%s:%s", p.Provider, p.Reference)
	if err := r.ledger.ApplyDelta(ctx, txn.SubjectID, txn.Currency, txn.Amount, ref); err != nil {
		return nil, err
	}
	return &domain.Outcome{
		TransactionID: txn.ID,
		Status:        domain.OutcomeCompleted,
		GatewayRef:    p.Reference,
	}, nil
}

func (r *Router) executeVerification(ctx context.Context, txn *domain.Transaction, p *domain.PaymentVerificationParams) (*domain.Outcome, error) {
	gateway, err := r.gateway(txn.Currency)
	if err != nil {
		return nil, err
	}
	result, err := gateway.VerifyCharge(ctx, p.Reference)
	if err != nil {
		return nil, err
	}
	if !result.Succeeded {
		return nil, &domain.GatewayRejectedError{
			Gateway: gateway.Name(),
			Code:    result.Status,
			Message: "payment not successful at gateway",
		}
	}

	txn.GatewayRef = result.ProviderRef
	return &domain.Outcome{
		TransactionID: txn.ID,
		Status:        domain.OutcomeCompleted,
		GatewayRef:    result.ProviderRef,
		GatewayStatus: result.Status,
	}, nil
}

func (r *Router) gateway(currency string) (domain.GatewayAdapter, error) {
	name, err := domain.GatewayFor(currency)
	if err != nil {
		return nil, err
	}
	gateway, ok := r.gateways[name]
	if !ok {
		return nil, &domain.GatewayUnreachableError{Gateway: name, Cause: errors.New("gateway not configured")}
	}
	return gateway, nil
}

// refund reverses a debit after a downstream failure.
func (r *Router) refund(ctx context.Context, txn *domain.Transaction, debitRef string) {
	if err := r.ledger.ApplyDelta(ctx, txn.SubjectID, txn.Currency, txn.Amount, "refund:"+debitRef); err != nil {
		r.logger.Error("refund failed",
			"transaction_id", txn.ID,
			"reference", debitRef,
			"error", err,
		)
	}
}

// failFromError maps an execution error onto the taxonomy and settles the
// transaction as failed.
func (r *Router) failFromError(ctx context.Context, txn *domain.Transaction, err error) *domain.Outcome {
	kind := domain.KindInternal

	var missing *domain.MissingParametersError
	var rejected *domain.GatewayRejectedError
	var unreachable *domain.GatewayUnreachableError
	switch {
	case errors.Is(err, domain.ErrInsufficientFunds):
		kind = domain.KindInsufficientFunds
	case errors.As(err, &missing):
		kind = domain.KindMissingParameters
	case errors.As(err, &rejected):
		kind = domain.KindGatewayRejected
	case errors.As(err, &unreachable):
		kind = domain.KindGatewayUnreachable
	}

	return r.fail(ctx, txn, kind, err.Error())
}

// fail settles a transaction as failed and caches the failure for the key.
func (r *Router) fail(ctx context.Context, txn *domain.Transaction, kind domain.ErrorKind, reason string) *domain.Outcome {
	now := r.now()
	txn.State = domain.StateFailed
	txn.FailureKind = kind
	txn.FailureReason = reason
	txn.CompletedAt = &now
	r.finalize(ctx, txn)

	outcome := &domain.Outcome{
		TransactionID: txn.ID,
		Status:        domain.OutcomeFailed,
		ErrorKind:     kind,
		Reason:        reason,
		RiskScore:     txn.RiskScore,
	}
	r.cacheOutcome(ctx, txn, idemdomain.StatusFailed, outcome)
	r.publish(ctx, txn, "transaction.failed")

	if r.metrics != nil {
		r.metrics.OperationsExecuted.WithLabelValues(txn.OperationType, "failed").Inc()
	}
	r.logger.Error("operation failed",
		"transaction_id", txn.ID,
		"kind", kind,
		"reason", reason,
	)
	return outcome
}

func (r *Router) advance(ctx context.Context, txn *domain.Transaction, state domain.State) {
	txn.State = state
	txn.UpdatedAt = r.now()
	if err := r.repo.Update(ctx, txn); err != nil {
		r.logger.Error("transaction update failed", "transaction_id", txn.ID, "state", state, "error", err)
	}
}

func (r *Router) finalize(ctx context.Context, txn *domain.Transaction) {
	txn.UpdatedAt = r.now()
	if err := r.repo.Update(ctx, txn); err != nil {
		r.logger.Error("transaction update failed", "transaction_id", txn.ID, "state", txn.State, "error", err)
	}
}

// cacheOutcome settles the idempotency record so retries replay the true
// result.
func (r *Router) cacheOutcome(ctx context.Context, txn *domain.Transaction, status idemdomain.Status, outcome *domain.Outcome) {
	if txn.IdempotencyKey == "" {
		return
	}
	if err := r.idempotency.Complete(ctx, txn.IdempotencyKey, status, outcome); err != nil {
		r.logger.Error("idempotency completion failed",
			"transaction_id", txn.ID,
			"key", txn.IdempotencyKey,
			"error", err,
		)
	}
}

// publish emits the outcome event; notification delivery subscribes
// downstream. Publish failures never affect the transaction.
func (r *Router) publish(ctx context.Context, txn *domain.Transaction, eventType string) {
	if r.publisher == nil {
		return
	}
	event := domain.Event{
		Type:          eventType,
		TransactionID: txn.ID,
		SubjectID:     txn.SubjectID,
		OperationType: txn.OperationType,
		Amount:        txn.Amount,
		Currency:      txn.Currency,
		State:         txn.State,
		FailureKind:   txn.FailureKind,
		At:            r.now(),
	}
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Error("event publish failed", "transaction_id", txn.ID, "type", eventType, "error", err)
	}
}

// GetTransaction returns one transaction by id.
func (r *Router) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return r.repo.Get(ctx, id)
}

// ListTransactions returns a subject's recent transactions.
func (r *Router) ListTransactions(ctx context.Context, subjectID string, limit int) ([]*domain.Transaction, error) {
	return r.repo.ListBySubject(ctx, subjectID, limit)
}

func spendsFunds(operationType string) bool {
	return operationType == domain.OpWithdrawal || operationType == domain.OpTransfer
}

func reviewHoldRef(transactionID string) string {
	return "review_hold:" + transactionID
}

// executionRef keys ledger deltas by the idempotency token. A caller-driven
// retry after the record expires mints a new transaction ID, but the ledger's
// reference dedup still collapses it onto the first attempt's entries.
func executionRef(prefix string, txn *domain.Transaction) string {
	if txn.IdempotencyKey != "" {
		return prefix + ":" + txn.IdempotencyKey
	}
	return prefix + ":" + txn.ID
}
