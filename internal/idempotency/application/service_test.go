package application

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/calculus-guy/paymentscore/internal/idempotency/domain"
	"github.com/calculus-guy/paymentscore/internal/idempotency/infrastructure"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(
		infrastructure.NewMemoryIdempotencyRepository(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

type purchaseParams struct {
	CourseID string `json:"course_id"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

func TestCheckAndReserveFirstAttempt(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	res, err := svc.CheckAndReserve(ctx, uuid.NewString(), "user-1", "purchase", purchaseParams{
		CourseID: "course-9", Amount: "5000", Currency: "NGN",
	})
	require.NoError(t, err)
	assert.True(t, res.IsNew)
	assert.Equal(t, domain.StatusProcessing, res.Status)
}

func TestCheckAndReserveRejectsNonUUIDKey(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CheckAndReserve(context.Background(), "not-a-uuid", "user-1", "purchase", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidKeyFormat)
}

func TestRetryWhileProcessingReturnsInFlightStatus(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()
	params := purchaseParams{CourseID: "course-9", Amount: "5000", Currency: "NGN"}

	_, err := svc.CheckAndReserve(ctx, key, "user-1", "purchase", params)
	require.NoError(t, err)

	retry, err := svc.CheckAndReserve(ctx, key, "user-1", "purchase", params)
	require.NoError(t, err)
	assert.False(t, retry.IsNew)
	assert.Equal(t, domain.StatusProcessing, retry.Status)
	assert.Nil(t, retry.CachedResult)
}

func TestRetryAfterCompletionReturnsCachedResult(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()
	params := purchaseParams{CourseID: "course-9", Amount: "5000", Currency: "NGN"}

	_, err := svc.CheckAndReserve(ctx, key, "user-1", "purchase", params)
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, key, domain.StatusCompleted, map[string]string{"transaction_id": "txn-42"}))

	retry, err := svc.CheckAndReserve(ctx, key, "user-1", "purchase", params)
	require.NoError(t, err)
	assert.False(t, retry.IsNew)
	assert.Equal(t, domain.StatusCompleted, retry.Status)

	var cached map[string]string
	require.NoError(t, json.Unmarshal(retry.CachedResult, &cached))
	assert.Equal(t, "txn-42", cached["transaction_id"])
}

func TestReuseWithDifferentParamsConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()

	_, err := svc.CheckAndReserve(ctx, key, "user-1", "purchase", purchaseParams{CourseID: "course-9", Amount: "5000", Currency: "NGN"})
	require.NoError(t, err)

	_, err = svc.CheckAndReserve(ctx, key, "user-1", "purchase", purchaseParams{CourseID: "course-9", Amount: "9000", Currency: "NGN"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestReuseByDifferentSubjectConflicts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()
	params := purchaseParams{CourseID: "course-9", Amount: "5000", Currency: "NGN"}

	_, err := svc.CheckAndReserve(ctx, key, "user-1", "purchase", params)
	require.NoError(t, err)

	_, err = svc.CheckAndReserve(ctx, key, "user-2", "purchase", params)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSameKeyDifferentSubjectsAreIsolatedOnConflictOnly(t *testing.T) {
	// Two subjects may not share a key; the second caller gets a conflict,
	// never the first caller's cached result.
	svc := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()
	params := purchaseParams{CourseID: "course-9", Amount: "5000", Currency: "NGN"}

	_, err := svc.CheckAndReserve(ctx, key, "user-1", "purchase", params)
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, key, domain.StatusCompleted, map[string]string{"transaction_id": "txn-1"}))

	res, err := svc.CheckAndReserve(ctx, key, "user-2", "purchase", params)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Nil(t, res)
}

func TestConcurrentReservationsSingleWinner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()
	params := purchaseParams{CourseID: "course-9", Amount: "5000", Currency: "NGN"}

	const attempts = 32
	var wg sync.WaitGroup
	results := make([]*Reservation, attempts)
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.CheckAndReserve(ctx, key, "user-1", "purchase", params)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < attempts; i++ {
		require.NoError(t, errs[i])
		if results[i].IsNew {
			winners++
		} else {
			assert.Equal(t, domain.StatusProcessing, results[i].Status)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestExpiredRecordAllowsKeyReuse(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()
	params := purchaseParams{CourseID: "course-9", Amount: "5000", Currency: "NGN"}

	base := time.Now()
	svc.now = func() time.Time { return base }
	_, err := svc.CheckAndReserve(ctx, key, "user-1", "purchase", params)
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, key, domain.StatusCompleted, map[string]string{"transaction_id": "txn-1"}))

	svc.now = func() time.Time { return base.Add(domain.RecordTTL + time.Minute) }
	res, err := svc.CheckAndReserve(ctx, key, "user-1", "purchase", purchaseParams{CourseID: "course-9", Amount: "9000", Currency: "NGN"})
	require.NoError(t, err)
	assert.True(t, res.IsNew)
}

func TestCompleteTwiceFails(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	key := uuid.NewString()

	_, err := svc.CheckAndReserve(ctx, key, "user-1", "purchase", purchaseParams{CourseID: "c", Amount: "1", Currency: "NGN"})
	require.NoError(t, err)

	require.NoError(t, svc.Complete(ctx, key, domain.StatusCompleted, "ok"))
	assert.ErrorIs(t, svc.Complete(ctx, key, domain.StatusFailed, "late"), domain.ErrAlreadyTerminal)
}

func TestSweepExpired(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	base := time.Now()
	svc.now = func() time.Time { return base }
	for i := 0; i < 3; i++ {
		_, err := svc.CheckAndReserve(ctx, uuid.NewString(), "user-1", "purchase", purchaseParams{CourseID: "c", Amount: "1", Currency: "NGN"})
		require.NoError(t, err)
	}

	svc.now = func() time.Time { return base.Add(domain.RecordTTL + time.Minute) }
	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
