package application

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/calculus-guy/paymentscore/internal/review/domain"
	"github.com/calculus-guy/paymentscore/internal/review/infrastructure"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCompletion struct {
	transactionID string
	approved      bool
	notes         string
}

type fakeCompleter struct {
	completions []recordedCompletion
}

func (f *fakeCompleter) CompleteReviewedTransaction(ctx context.Context, transactionID string, approved bool, notes string) error {
	f.completions = append(f.completions, recordedCompletion{transactionID, approved, notes})
	return nil
}

func newTestQueue(t *testing.T, reviewers ...string) (*Queue, *fakeCompleter) {
	t.Helper()
	completer := &fakeCompleter{}
	q := NewQueue(
		infrastructure.NewMemoryReviewRepository(),
		infrastructure.NewStaticReviewerDirectory(reviewers),
		5,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	q.SetCompleter(completer)
	return q, completer
}

func TestEnqueueDerivesDeadlinesFromPriority(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	cases := []struct {
		priority   domain.Priority
		sla        time.Duration
		escalation time.Duration
	}{
		{domain.PriorityCritical, 30 * time.Minute, time.Hour},
		{domain.PriorityHigh, 2 * time.Hour, 4 * time.Hour},
		{domain.PriorityMedium, 8 * time.Hour, 12 * time.Hour},
		{domain.PriorityLow, 24 * time.Hour, 48 * time.Hour},
	}

	for _, tc := range cases {
		result, err := q.Enqueue(ctx, "txn-"+string(tc.priority), "user-1", "risk_score", tc.priority)
		require.NoError(t, err)
		assert.Equal(t, now.Add(tc.sla), result.SLADeadline, tc.priority)

		item, err := q.Get(ctx, result.ReviewID)
		require.NoError(t, err)
		assert.Equal(t, now.Add(tc.escalation), item.EscalationDeadline, tc.priority)
	}
}

func TestEnqueueWithoutReviewersStaysPending(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	result, err := q.Enqueue(ctx, "txn-1", "user-1", "risk_score", domain.PriorityHigh)
	require.NoError(t, err)

	item, err := q.Get(ctx, result.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, item.Status)
	assert.Empty(t, item.AssignedReviewer)
}

func TestAutoAssignmentPicksLowestWorkload(t *testing.T) {
	q, _ := newTestQueue(t, "alice", "bob")
	ctx := context.Background()

	// First item goes to alice (ties break on roster order), loading her.
	first, err := q.Enqueue(ctx, "txn-1", "user-1", "risk_score", domain.PriorityHigh)
	require.NoError(t, err)
	firstItem, err := q.Get(ctx, first.ReviewID)
	require.NoError(t, err)
	require.Equal(t, "alice", firstItem.AssignedReviewer)
	assert.Equal(t, domain.StatusInReview, firstItem.Status)

	second, err := q.Enqueue(ctx, "txn-2", "user-2", "risk_score", domain.PriorityHigh)
	require.NoError(t, err)
	secondItem, err := q.Get(ctx, second.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, "bob", secondItem.AssignedReviewer)
}

func TestAutoAssignmentRespectsConcurrencyCap(t *testing.T) {
	completer := &fakeCompleter{}
	q := NewQueue(
		infrastructure.NewMemoryReviewRepository(),
		infrastructure.NewStaticReviewerDirectory([]string{"alice"}),
		2,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	q.SetCompleter(completer)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := q.Enqueue(ctx, "txn-cap", "user-1", "risk_score", domain.PriorityMedium)
		require.NoError(t, err)
	}

	third, err := q.Enqueue(ctx, "txn-over", "user-1", "risk_score", domain.PriorityMedium)
	require.NoError(t, err)
	item, err := q.Get(ctx, third.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, item.Status, "reviewer at cap, item must stay pending")
}

func TestSubmitDecisionRequiresAssignedReviewer(t *testing.T) {
	q, _ := newTestQueue(t, "alice")
	ctx := context.Background()

	result, err := q.Enqueue(ctx, "txn-1", "user-1", "risk_score", domain.PriorityHigh)
	require.NoError(t, err)

	err = q.SubmitDecision(ctx, result.ReviewID, "mallory", domain.DecisionApprove, "looks fine")
	assert.ErrorIs(t, err, domain.ErrWrongReviewer)
}

func TestSubmitDecisionOnUnassignedItem(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	result, err := q.Enqueue(ctx, "txn-1", "user-1", "risk_score", domain.PriorityHigh)
	require.NoError(t, err)

	err = q.SubmitDecision(ctx, result.ReviewID, "alice", domain.DecisionApprove, "")
	assert.ErrorIs(t, err, domain.ErrNotAssigned)
}

func TestApproveFinalizesAndCompletesTransaction(t *testing.T) {
	q, completer := newTestQueue(t, "alice")
	ctx := context.Background()

	result, err := q.Enqueue(ctx, "txn-1", "user-1", "risk_score", domain.PriorityHigh)
	require.NoError(t, err)

	require.NoError(t, q.SubmitDecision(ctx, result.ReviewID, "alice", domain.DecisionApprove, "verified with user"))

	item, err := q.Get(ctx, result.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, item.Status)
	assert.NotNil(t, item.CompletedAt)

	require.Len(t, completer.completions, 1)
	assert.Equal(t, "txn-1", completer.completions[0].transactionID)
	assert.True(t, completer.completions[0].approved)

	// Terminal items cannot be re-decided.
	err = q.SubmitDecision(ctx, result.ReviewID, "alice", domain.DecisionReject, "")
	assert.ErrorIs(t, err, domain.ErrTerminal)
}

func TestRejectCompletesWithApprovedFalse(t *testing.T) {
	q, completer := newTestQueue(t, "alice")
	ctx := context.Background()

	result, err := q.Enqueue(ctx, "txn-1", "user-1", "risk_score", domain.PriorityHigh)
	require.NoError(t, err)
	require.NoError(t, q.SubmitDecision(ctx, result.ReviewID, "alice", domain.DecisionReject, "cannot verify source of funds"))

	require.Len(t, completer.completions, 1)
	assert.False(t, completer.completions[0].approved)
}

func TestEscalateBumpsPriorityAndRequeues(t *testing.T) {
	q, _ := newTestQueue(t, "alice")
	ctx := context.Background()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	result, err := q.Enqueue(ctx, "txn-1", "user-1", "risk_score", domain.PriorityMedium)
	require.NoError(t, err)

	later := now.Add(30 * time.Minute)
	q.now = func() time.Time { return later }
	require.NoError(t, q.SubmitDecision(ctx, result.ReviewID, "alice", domain.DecisionEscalate, "needs senior signoff"))

	item, err := q.Get(ctx, result.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityHigh, item.Priority)
	assert.Equal(t, later.Add(2*time.Hour), item.SLADeadline, "deadlines recompute from escalation time")

	require.Len(t, item.EscalationHistory, 1)
	assert.Equal(t, domain.PriorityMedium, item.EscalationHistory[0].From)
	assert.Equal(t, domain.PriorityHigh, item.EscalationHistory[0].To)
	assert.Equal(t, "alice", item.EscalationHistory[0].By)

	// With a reviewer still available the item is immediately re-assigned.
	assert.Equal(t, domain.StatusInReview, item.Status)
	assert.Equal(t, "alice", item.AssignedReviewer)
}

func TestSweepForceEscalatesOverdueItems(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	result, err := q.Enqueue(ctx, "txn-1", "user-1", "risk_score", domain.PriorityHigh)
	require.NoError(t, err)

	// Past the 4h high escalation deadline with no decision.
	q.now = func() time.Time { return now.Add(5 * time.Hour) }
	require.NoError(t, q.Sweep(ctx))

	item, err := q.Get(ctx, result.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityCritical, item.Priority)
	require.Len(t, item.EscalationHistory, 1)
	assert.Equal(t, "sla_monitor", item.EscalationHistory[0].By)
}

func TestSweepExpiresUndecidedCriticalItems(t *testing.T) {
	q, completer := newTestQueue(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	result, err := q.Enqueue(ctx, "txn-exp", "user-1", "risk_score", domain.PriorityCritical)
	require.NoError(t, err)

	// Critical has nowhere left to escalate; past its 1h deadline the item
	// expires and the held transaction is rejected.
	q.now = func() time.Time { return now.Add(90 * time.Minute) }
	require.NoError(t, q.Sweep(ctx))

	item, err := q.Get(ctx, result.ReviewID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusExpired, item.Status)
	assert.True(t, item.SLABreached)

	require.Len(t, completer.completions, 1)
	assert.Equal(t, "txn-exp", completer.completions[0].transactionID)
	assert.False(t, completer.completions[0].approved)

	err = q.SubmitDecision(ctx, result.ReviewID, "alice", domain.DecisionApprove, "")
	assert.ErrorIs(t, err, domain.ErrTerminal)
}

func TestSweepFlagsSLABreachWithoutStateChange(t *testing.T) {
	q, _ := newTestQueue(t, "alice")
	ctx := context.Background()

	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	result, err := q.Enqueue(ctx, "txn-1", "user-1", "risk_score", domain.PriorityCritical)
	require.NoError(t, err)

	// Past the 30m SLA but before the 1h escalation deadline.
	q.now = func() time.Time { return now.Add(45 * time.Minute) }
	require.NoError(t, q.Sweep(ctx))

	item, err := q.Get(ctx, result.ReviewID)
	require.NoError(t, err)
	assert.True(t, item.SLABreached)
	assert.Equal(t, domain.StatusInReview, item.Status)
	assert.Equal(t, "alice", item.AssignedReviewer)
}

func TestPendingOrderedByPriorityThenAge(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	enqueue := func(offset time.Duration, priority domain.Priority, txn string) {
		q.now = func() time.Time { return base.Add(offset) }
		_, err := q.Enqueue(ctx, txn, "user-1", "risk_score", priority)
		require.NoError(t, err)
	}

	enqueue(0, domain.PriorityLow, "txn-old-low")
	enqueue(time.Minute, domain.PriorityCritical, "txn-late-critical")
	enqueue(2*time.Minute, domain.PriorityHigh, "txn-high")
	enqueue(3*time.Minute, domain.PriorityLow, "txn-new-low")

	items, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "txn-late-critical", items[0].TransactionID)
	assert.Equal(t, "txn-high", items[1].TransactionID)
	assert.Equal(t, "txn-old-low", items[2].TransactionID)
	assert.Equal(t, "txn-new-low", items[3].TransactionID)
}

func TestPriorityForScore(t *testing.T) {
	assert.Equal(t, domain.PriorityCritical, domain.PriorityForScore(62, []string{"possible_structuring"}))
	assert.Equal(t, domain.PriorityHigh, domain.PriorityForScore(78, nil))
	assert.Equal(t, domain.PriorityMedium, domain.PriorityForScore(70, nil))
	assert.Equal(t, domain.PriorityLow, domain.PriorityForScore(62, nil))
}
