package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/calculus-guy/paymentscore/internal/review/domain"
	"gorm.io/gorm"
)

// ReviewItemPO is the persistence object for review items. The escalation
// history is an append-only JSON document.
type ReviewItemPO struct {
	ID                 uint64     `gorm:"primaryKey;autoIncrement"`
	ReviewID           string     `gorm:"type:varchar(36);not null;uniqueIndex"`
	TransactionID      string     `gorm:"type:varchar(36);not null;index"`
	SubjectID          string     `gorm:"type:varchar(64);not null;index"`
	Type               string     `gorm:"type:varchar(64);not null"`
	Priority           string     `gorm:"type:varchar(16);not null"`
	Status             string     `gorm:"type:varchar(16);not null;index"`
	SLADeadline        time.Time  `gorm:"not null"`
	EscalationDeadline time.Time  `gorm:"not null"`
	AssignedReviewer   string     `gorm:"type:varchar(64);index"`
	AssignedAt         *time.Time ``
	CompletedAt        *time.Time ``
	Decision           string     `gorm:"type:varchar(16)"`
	ReviewNotes        string     `gorm:"type:varchar(1024)"`
	SLABreached        bool       `gorm:"not null;default:false"`
	EscalationHistory  []byte     `gorm:"type:json"`
	CreatedAt          time.Time  `gorm:"not null"`
	UpdatedAt          time.Time  `gorm:"not null"`
}

func (ReviewItemPO) TableName() string {
	return "review_items"
}

type GormReviewRepository struct {
	db *gorm.DB
}

func NewGormReviewRepository(db *gorm.DB) *GormReviewRepository {
	return &GormReviewRepository{db: db}
}

func (r *GormReviewRepository) Save(ctx context.Context, item *domain.Item) error {
	po, err := toReviewItemPO(item)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(po).Error
}

func (r *GormReviewRepository) Update(ctx context.Context, item *domain.Item) error {
	po, err := toReviewItemPO(item)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&ReviewItemPO{}).
		Where("review_id = ?", item.ID).
		Select("priority", "status", "sla_deadline", "escalation_deadline",
			"assigned_reviewer", "assigned_at", "completed_at", "decision",
			"review_notes", "sla_breached", "escalation_history", "updated_at").
		Updates(po).Error
}

func (r *GormReviewRepository) Get(ctx context.Context, reviewID string) (*domain.Item, error) {
	var po ReviewItemPO
	err := r.db.WithContext(ctx).Where("review_id = ?", reviewID).First(&po).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toReviewItem(&po)
}

func (r *GormReviewRepository) ListPending(ctx context.Context) ([]*domain.Item, error) {
	var pos []ReviewItemPO
	err := r.db.WithContext(ctx).
		Where("status IN ?", []string{string(domain.StatusPending), string(domain.StatusInReview)}).
		Order("FIELD(priority, 'critical', 'high', 'medium', 'low'), created_at ASC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return toReviewItems(pos)
}

func (r *GormReviewRepository) ListByReviewer(ctx context.Context, reviewerID string) ([]*domain.Item, error) {
	var pos []ReviewItemPO
	err := r.db.WithContext(ctx).
		Where("assigned_reviewer = ? AND status = ?", reviewerID, string(domain.StatusInReview)).
		Order("FIELD(priority, 'critical', 'high', 'medium', 'low'), created_at ASC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}
	return toReviewItems(pos)
}

func (r *GormReviewRepository) Workload(ctx context.Context) (map[string]int, error) {
	type row struct {
		AssignedReviewer string
		N                int
	}
	var rows []row
	err := r.db.WithContext(ctx).
		Model(&ReviewItemPO{}).
		Select("assigned_reviewer, COUNT(*) AS n").
		Where("status = ? AND assigned_reviewer <> ''", string(domain.StatusInReview)).
		Group("assigned_reviewer").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	workload := make(map[string]int, len(rows))
	for _, r := range rows {
		workload[r.AssignedReviewer] = r.N
	}
	return workload, nil
}

func (r *GormReviewRepository) CountPending(ctx context.Context) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ReviewItemPO{}).
		Where("status IN ?", []string{string(domain.StatusPending), string(domain.StatusInReview)}).
		Count(&count).Error
	return int(count), err
}

func toReviewItemPO(item *domain.Item) (*ReviewItemPO, error) {
	var history []byte
	if len(item.EscalationHistory) > 0 {
		data, err := json.Marshal(item.EscalationHistory)
		if err != nil {
			return nil, err
		}
		history = data
	}
	return &ReviewItemPO{
		ReviewID:           item.ID,
		TransactionID:      item.TransactionID,
		SubjectID:          item.SubjectID,
		Type:               item.Type,
		Priority:           string(item.Priority),
		Status:             string(item.Status),
		SLADeadline:        item.SLADeadline,
		EscalationDeadline: item.EscalationDeadline,
		AssignedReviewer:   item.AssignedReviewer,
		AssignedAt:         item.AssignedAt,
		CompletedAt:        item.CompletedAt,
		Decision:           string(item.Decision),
		ReviewNotes:        item.ReviewNotes,
		SLABreached:        item.SLABreached,
		EscalationHistory:  history,
		CreatedAt:          item.CreatedAt,
		UpdatedAt:          item.UpdatedAt,
	}, nil
}

func toReviewItem(po *ReviewItemPO) (*domain.Item, error) {
	item := &domain.Item{
		ID:                 po.ReviewID,
		TransactionID:      po.TransactionID,
		SubjectID:          po.SubjectID,
		Type:               po.Type,
		Priority:           domain.Priority(po.Priority),
		Status:             domain.Status(po.Status),
		SLADeadline:        po.SLADeadline,
		EscalationDeadline: po.EscalationDeadline,
		AssignedReviewer:   po.AssignedReviewer,
		AssignedAt:         po.AssignedAt,
		CompletedAt:        po.CompletedAt,
		Decision:           domain.Decision(po.Decision),
		ReviewNotes:        po.ReviewNotes,
		SLABreached:        po.SLABreached,
		CreatedAt:          po.CreatedAt,
		UpdatedAt:          po.UpdatedAt,
	}
	if len(po.EscalationHistory) > 0 {
		if err := json.Unmarshal(po.EscalationHistory, &item.EscalationHistory); err != nil {
			return nil, err
		}
	}
	return item, nil
}

func toReviewItems(pos []ReviewItemPO) ([]*domain.Item, error) {
	items := make([]*domain.Item, 0, len(pos))
	for i := range pos {
		item, err := toReviewItem(&pos[i])
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}
