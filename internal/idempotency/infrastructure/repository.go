package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/calculus-guy/paymentscore/internal/idempotency/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type IdempotencyRecordPO struct {
	ID            uint64    `gorm:"column:id;primaryKey;autoIncrement"`
	KeyID         string    `gorm:"column:key_id;type:varchar(36);uniqueIndex;not null"`
	SubjectID     string    `gorm:"column:subject_id;type:varchar(64);index"`
	OperationType string    `gorm:"column:operation_type;type:varchar(32);not null"`
	Fingerprint   string    `gorm:"column:fingerprint;type:varchar(64);not null"`
	Status        string    `gorm:"column:status;type:varchar(16);not null;default:'processing'"`
	Result        []byte    `gorm:"column:result;type:blob"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	ExpiresAt     time.Time `gorm:"column:expires_at;index;not null"`
}

func (IdempotencyRecordPO) TableName() string { return "idempotency_records" }

// GormIdempotencyRepository enforces single-writer reservations with the
// unique key index plus a row lock on the losing path.
type GormIdempotencyRepository struct {
	db *gorm.DB
}

func NewGormIdempotencyRepository(db *gorm.DB) *GormIdempotencyRepository {
	return &GormIdempotencyRepository{db: db}
}

func (r *GormIdempotencyRepository) Reserve(ctx context.Context, rec *domain.Record) (bool, *domain.Record, error) {
	var existing *domain.Record
	inserted := false

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lapsed rows no longer shield the key.
		if err := tx.Where("key_id = ? AND expires_at <= ?", rec.Key, rec.CreatedAt).
			Delete(&IdempotencyRecordPO{}).Error; err != nil {
			return err
		}

		po := toRecordPO(rec)
		err := tx.Create(po).Error
		if err == nil {
			inserted = true
			rec.ID = po.ID
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}

		// Lost the insert race: block on the winner's row lock, then read
		// its committed state.
		var current IdempotencyRecordPO
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("key_id = ?", rec.Key).
			First(&current).Error; err != nil {
			return err
		}
		existing = toRecord(&current)
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return inserted, existing, nil
}

func (r *GormIdempotencyRepository) Get(ctx context.Context, key string) (*domain.Record, error) {
	var po IdempotencyRecordPO
	err := r.db.WithContext(ctx).Where("key_id = ?", key).First(&po).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toRecord(&po), nil
}

func (r *GormIdempotencyRepository) Complete(ctx context.Context, key string, status domain.Status, result []byte) error {
	res := r.db.WithContext(ctx).Model(&IdempotencyRecordPO{}).
		Where("key_id = ? AND status = ?", key, string(domain.StatusProcessing)).
		Updates(map[string]any{
			"status": string(status),
			"result": result,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&IdempotencyRecordPO{}).
			Where("key_id = ?", key).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return domain.ErrNotFound
		}
		return domain.ErrAlreadyTerminal
	}
	return nil
}

func (r *GormIdempotencyRepository) Delete(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).Where("key_id = ?", key).Delete(&IdempotencyRecordPO{}).Error
}

func (r *GormIdempotencyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&IdempotencyRecordPO{})
	return res.RowsAffected, res.Error
}

func toRecordPO(rec *domain.Record) *IdempotencyRecordPO {
	return &IdempotencyRecordPO{
		ID:            rec.ID,
		KeyID:         rec.Key,
		SubjectID:     rec.SubjectID,
		OperationType: rec.OperationType,
		Fingerprint:   rec.Fingerprint,
		Status:        string(rec.Status),
		Result:        rec.Result,
		CreatedAt:     rec.CreatedAt,
		ExpiresAt:     rec.ExpiresAt,
	}
}

func toRecord(po *IdempotencyRecordPO) *domain.Record {
	return &domain.Record{
		ID:            po.ID,
		Key:           po.KeyID,
		SubjectID:     po.SubjectID,
		OperationType: po.OperationType,
		Fingerprint:   po.Fingerprint,
		Status:        domain.Status(po.Status),
		Result:        po.Result,
		CreatedAt:     po.CreatedAt,
		ExpiresAt:     po.ExpiresAt,
	}
}
