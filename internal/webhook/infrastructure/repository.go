package infrastructure

import (
	"context"
	"time"

	"github.com/calculus-guy/paymentscore/internal/webhook/domain"
	"gorm.io/gorm"
)

// WebhookAuditPO is the persistence object for webhook acceptance logs.
type WebhookAuditPO struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Provider  string    `gorm:"size:32;not null;index:idx_webhook_audit_provider_created"`
	EventID   string    `gorm:"size:128;not null"`
	OriginIP  string    `gorm:"size:64"`
	Valid     bool      `gorm:"not null"`
	Duplicate bool      `gorm:"not null"`
	Reason    string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"not null;index:idx_webhook_audit_provider_created"`
}

func (WebhookAuditPO) TableName() string {
	return "webhook_audits"
}

type GormAuditRepository struct {
	db *gorm.DB
}

func NewGormAuditRepository(db *gorm.DB) *GormAuditRepository {
	return &GormAuditRepository{db: db}
}

func (r *GormAuditRepository) Save(ctx context.Context, a *domain.Audit) error {
	po := toAuditPO(a)
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return err
	}
	a.ID = po.ID
	return nil
}

func (r *GormAuditRepository) ListByProvider(ctx context.Context, provider string, since time.Time) ([]*domain.Audit, error) {
	var pos []WebhookAuditPO
	err := r.db.WithContext(ctx).
		Where("provider = ? AND created_at >= ?", provider, since).
		Order("created_at DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	audits := make([]*domain.Audit, 0, len(pos))
	for i := range pos {
		audits = append(audits, toAudit(&pos[i]))
	}
	return audits, nil
}

func toAuditPO(a *domain.Audit) *WebhookAuditPO {
	return &WebhookAuditPO{
		ID:        a.ID,
		Provider:  a.Provider,
		EventID:   a.EventID,
		OriginIP:  a.OriginIP,
		Valid:     a.Valid,
		Duplicate: a.Duplicate,
		Reason:    string(a.Reason),
		CreatedAt: a.CreatedAt,
	}
}

func toAudit(po *WebhookAuditPO) *domain.Audit {
	return &domain.Audit{
		ID:        po.ID,
		Provider:  po.Provider,
		EventID:   po.EventID,
		OriginIP:  po.OriginIP,
		Valid:     po.Valid,
		Duplicate: po.Duplicate,
		Reason:    domain.RejectReason(po.Reason),
		CreatedAt: po.CreatedAt,
	}
}
