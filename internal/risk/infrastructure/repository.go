package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	"github.com/calculus-guy/paymentscore/internal/risk/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RiskProfilePO is the persistence object for per-subject risk state. The
// baseline is stored as a JSON document; it is always read and written
// whole.
type RiskProfilePO struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	SubjectID     string    `gorm:"type:varchar(64);not null;uniqueIndex"`
	Baseline      []byte    `gorm:"type:json"`
	SmoothedScore float64   `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (RiskProfilePO) TableName() string {
	return "risk_profiles"
}

type GormProfileRepository struct {
	db *gorm.DB
}

func NewGormProfileRepository(db *gorm.DB) *GormProfileRepository {
	return &GormProfileRepository{db: db}
}

func (r *GormProfileRepository) Get(ctx context.Context, subjectID string) (*domain.Profile, error) {
	var po RiskProfilePO
	err := r.db.WithContext(ctx).Where("subject_id = ?", subjectID).First(&po).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toProfile(&po)
}

func (r *GormProfileRepository) Save(ctx context.Context, profile *domain.Profile) error {
	po, err := toProfilePO(profile)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"baseline", "smoothed_score", "updated_at"}),
	}).Create(po).Error
}

func toProfilePO(profile *domain.Profile) (*RiskProfilePO, error) {
	po := &RiskProfilePO{
		SubjectID:     profile.SubjectID,
		SmoothedScore: profile.SmoothedScore,
		UpdatedAt:     profile.UpdatedAt,
	}
	if profile.Baseline != nil {
		data, err := json.Marshal(profile.Baseline)
		if err != nil {
			return nil, err
		}
		po.Baseline = data
	}
	return po, nil
}

func toProfile(po *RiskProfilePO) (*domain.Profile, error) {
	profile := &domain.Profile{
		SubjectID:     po.SubjectID,
		SmoothedScore: po.SmoothedScore,
		UpdatedAt:     po.UpdatedAt,
	}
	if len(po.Baseline) > 0 {
		var baseline domain.Baseline
		if err := json.Unmarshal(po.Baseline, &baseline); err != nil {
			return nil, err
		}
		profile.Baseline = &baseline
	}
	return profile, nil
}

// SuspiciousActivityPO is the persistence object for suspicious activity
// entries.
type SuspiciousActivityPO struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement"`
	SubjectID    string    `gorm:"type:varchar(64);not null;index:idx_suspicious_subject_created"`
	ActivityType string    `gorm:"type:varchar(64);not null"`
	Details      string    `gorm:"type:varchar(512);not null"`
	CreatedAt    time.Time `gorm:"not null;index:idx_suspicious_subject_created;index"`
}

func (SuspiciousActivityPO) TableName() string {
	return "suspicious_activities"
}

type GormSuspiciousRepository struct {
	db *gorm.DB
}

func NewGormSuspiciousRepository(db *gorm.DB) *GormSuspiciousRepository {
	return &GormSuspiciousRepository{db: db}
}

func (r *GormSuspiciousRepository) Save(ctx context.Context, activity *domain.SuspiciousActivity) error {
	po := &SuspiciousActivityPO{
		SubjectID:    activity.SubjectID,
		ActivityType: activity.ActivityType,
		Details:      activity.Details,
		CreatedAt:    activity.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(po).Error; err != nil {
		return err
	}
	activity.ID = po.ID
	return nil
}

func (r *GormSuspiciousRepository) CountBySubject(ctx context.Context, subjectID string, since time.Time) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&SuspiciousActivityPO{}).
		Where("subject_id = ? AND created_at >= ?", subjectID, since).
		Count(&count).Error
	return int(count), err
}

func (r *GormSuspiciousRepository) ListBySubject(ctx context.Context, subjectID string, since time.Time) ([]*domain.SuspiciousActivity, error) {
	var pos []SuspiciousActivityPO
	err := r.db.WithContext(ctx).
		Where("subject_id = ? AND created_at >= ?", subjectID, since).
		Order("created_at DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	activities := make([]*domain.SuspiciousActivity, 0, len(pos))
	for i := range pos {
		po := &pos[i]
		activities = append(activities, &domain.SuspiciousActivity{
			ID:           po.ID,
			SubjectID:    po.SubjectID,
			ActivityType: po.ActivityType,
			Details:      po.Details,
			CreatedAt:    po.CreatedAt,
		})
	}
	return activities, nil
}

func (r *GormSuspiciousRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&SuspiciousActivityPO{})
	return result.RowsAffected, result.Error
}
