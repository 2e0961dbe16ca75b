package application

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/calculus-guy/paymentscore/internal/idempotency/domain"
	"github.com/google/uuid"
)

// Reservation is the outcome of CheckAndReserve.
type Reservation struct {
	IsNew        bool
	Status       domain.Status
	CachedResult []byte
}

// Service implements the idempotency ledger contract on top of a Repository.
type Service struct {
	repo   domain.Repository
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo domain.Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// CheckAndReserve records the first attempt for key or classifies a retry.
// A retry with identical fingerprint and subject returns the cached outcome
// (or processing status while the first attempt is in flight); any other
// reuse is a conflict.
func (s *Service) CheckAndReserve(ctx context.Context, key, subjectID, operationType string, params interface{}) (*Reservation, error) {
	if _, err := uuid.Parse(key); err != nil {
		return nil, domain.ErrInvalidKeyFormat
	}

	fingerprint, err := domain.Fingerprint(params)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rec := &domain.Record{
		Key:           key,
		SubjectID:     subjectID,
		OperationType: operationType,
		Fingerprint:   fingerprint,
		Status:        domain.StatusProcessing,
		CreatedAt:     now,
		ExpiresAt:     now.Add(domain.RecordTTL),
	}

	inserted, existing, err := s.repo.Reserve(ctx, rec)
	if err != nil {
		return nil, err
	}
	if inserted {
		return &Reservation{IsNew: true, Status: domain.StatusProcessing}, nil
	}

	if existing.Expired(now) {
		// The live record lapsed between the insert attempt and now;
		// drop it and reserve again.
		if err := s.repo.Delete(ctx, key); err != nil {
			return nil, err
		}
		return s.CheckAndReserve(ctx, key, subjectID, operationType, params)
	}

	if existing.Fingerprint != fingerprint || existing.SubjectID != subjectID {
		s.logger.Warn("idempotency conflict",
			"key", key,
			"subject_id", subjectID,
			"operation_type", operationType,
		)
		return nil, domain.ErrConflict
	}

	return &Reservation{
		IsNew:        false,
		Status:       existing.Status,
		CachedResult: existing.Result,
	}, nil
}

// Complete stores the terminal outcome for key. It is called exactly once by
// the operation's owner; a second call returns ErrAlreadyTerminal.
func (s *Service) Complete(ctx context.Context, key string, status domain.Status, result interface{}) error {
	if status != domain.StatusCompleted && status != domain.StatusFailed {
		return domain.ErrAlreadyTerminal
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}

	return s.repo.Complete(ctx, key, status, payload)
}

// Invalidate removes the record so the caller can retry with the same key.
func (s *Service) Invalidate(ctx context.Context, key string) error {
	return s.repo.Delete(ctx, key)
}

// SweepExpired removes lapsed records. Run from a periodic background task.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("idempotency records swept", "count", n)
	}
	return n, nil
}
