package infrastructure

import (
	"context"
	"time"

	"github.com/calculus-guy/paymentscore/internal/guard/domain"
	"gorm.io/gorm"
)

// ViolationPO is the persistence object for limit violations.
type ViolationPO struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	Scope        string    `gorm:"type:varchar(16);not null"`
	ScopeKey     string    `gorm:"type:varchar(191);not null;index"`
	SubjectID    string    `gorm:"type:varchar(64);not null;index:idx_violation_subject_created"`
	Kind         string    `gorm:"type:varchar(32);not null"`
	Reason       string    `gorm:"type:varchar(255);not null"`
	Sequence     int       `gorm:"not null"`
	BlockedUntil time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_violation_subject_created"`
}

func (ViolationPO) TableName() string {
	return "limit_violations"
}

// GormViolationRepository persists violations to MySQL.
type GormViolationRepository struct {
	db *gorm.DB
}

func NewGormViolationRepository(db *gorm.DB) *GormViolationRepository {
	return &GormViolationRepository{db: db}
}

func (r *GormViolationRepository) Save(ctx context.Context, v *domain.Violation) error {
	po := toViolationPO(v)
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return err
	}
	v.ID = po.ID
	return nil
}

func (r *GormViolationRepository) ListBySubject(ctx context.Context, subjectID string, since time.Time) ([]*domain.Violation, error) {
	var pos []ViolationPO
	err := r.db.WithContext(ctx).
		Where("subject_id = ? AND created_at >= ?", subjectID, since).
		Order("created_at DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	violations := make([]*domain.Violation, 0, len(pos))
	for i := range pos {
		violations = append(violations, toViolation(&pos[i]))
	}
	return violations, nil
}

func toViolationPO(v *domain.Violation) *ViolationPO {
	return &ViolationPO{
		ID:           v.ID,
		Scope:        string(v.Scope),
		ScopeKey:     v.ScopeKey,
		SubjectID:    v.SubjectID,
		Kind:         v.Kind,
		Reason:       v.Reason,
		Sequence:     v.Sequence,
		BlockedUntil: v.BlockedUntil,
		CreatedAt:    v.CreatedAt,
	}
}

func toViolation(po *ViolationPO) *domain.Violation {
	return &domain.Violation{
		ID:           po.ID,
		Scope:        domain.Scope(po.Scope),
		ScopeKey:     po.ScopeKey,
		SubjectID:    po.SubjectID,
		Kind:         po.Kind,
		Reason:       po.Reason,
		Sequence:     po.Sequence,
		BlockedUntil: po.BlockedUntil,
		CreatedAt:    po.CreatedAt,
	}
}
