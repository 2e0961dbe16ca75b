package infrastructure

import (
	"context"
	"encoding/json"
	"time"

	riskdomain "github.com/calculus-guy/paymentscore/internal/risk/domain"
	"github.com/calculus-guy/paymentscore/internal/transaction/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TransactionPO is the persistence object for transactions.
type TransactionPO struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement"`
	TransactionID  string          `gorm:"type:varchar(36);not null;uniqueIndex"`
	IdempotencyKey string          `gorm:"type:varchar(36);index"`
	SubjectID      string          `gorm:"type:varchar(64);not null;index:idx_txn_subject_created"`
	OriginID       string          `gorm:"type:varchar(64)"`
	OperationType  string          `gorm:"type:varchar(32);not null"`
	Currency       string          `gorm:"type:varchar(8);not null"`
	Amount         decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Params         []byte          `gorm:"type:json"`
	State          string          `gorm:"type:varchar(32);not null;index"`
	RiskScore      int             `gorm:"not null;default:0"`
	RiskFlags      []byte          `gorm:"type:json"`
	ReviewID       string          `gorm:"type:varchar(36)"`
	GatewayRef     string          `gorm:"type:varchar(128)"`
	FailureKind    string          `gorm:"type:varchar(32)"`
	FailureReason  string          `gorm:"type:varchar(512)"`
	CreatedAt      time.Time       `gorm:"not null;index:idx_txn_subject_created"`
	UpdatedAt      time.Time       `gorm:"not null"`
	CompletedAt    *time.Time      ``
}

func (TransactionPO) TableName() string {
	return "transactions"
}

// GormTransactionRepository persists transactions and doubles as the risk
// engine's history source.
type GormTransactionRepository struct {
	db *gorm.DB
}

func NewGormTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

func (r *GormTransactionRepository) Save(ctx context.Context, txn *domain.Transaction) error {
	po, err := toTransactionPO(txn)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(po).Error
}

func (r *GormTransactionRepository) Update(ctx context.Context, txn *domain.Transaction) error {
	po, err := toTransactionPO(txn)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Model(&TransactionPO{}).
		Where("transaction_id = ?", txn.ID).
		Select("state", "risk_score", "risk_flags", "review_id", "gateway_ref",
			"failure_kind", "failure_reason", "updated_at", "completed_at").
		Updates(po).Error
}

func (r *GormTransactionRepository) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	var po TransactionPO
	err := r.db.WithContext(ctx).Where("transaction_id = ?", id).First(&po).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return toTransaction(&po)
}

func (r *GormTransactionRepository) ListBySubject(ctx context.Context, subjectID string, limit int) ([]*domain.Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var pos []TransactionPO
	err := r.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("created_at DESC").
		Limit(limit).
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	txns := make([]*domain.Transaction, 0, len(pos))
	for i := range pos {
		txn, err := toTransaction(&pos[i])
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// RecentBySubject implements the risk engine's history feed. Rejected
// transactions still count: attempts shape the behavioral picture.
func (r *GormTransactionRepository) RecentBySubject(ctx context.Context, subjectID string, since time.Time) ([]riskdomain.HistoryEntry, error) {
	var pos []TransactionPO
	err := r.db.WithContext(ctx).
		Select("amount", "operation_type", "created_at").
		Where("subject_id = ? AND created_at >= ?", subjectID, since).
		Order("created_at ASC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	entries := make([]riskdomain.HistoryEntry, 0, len(pos))
	for i := range pos {
		entries = append(entries, riskdomain.HistoryEntry{
			Amount:        pos[i].Amount,
			OperationType: pos[i].OperationType,
			At:            pos[i].CreatedAt,
		})
	}
	return entries, nil
}

// ActiveSubjects lists subjects with any activity since the cutoff, for
// baseline recomputation.
func (r *GormTransactionRepository) ActiveSubjects(ctx context.Context, since time.Time) ([]string, error) {
	var subjects []string
	err := r.db.WithContext(ctx).
		Model(&TransactionPO{}).
		Distinct("subject_id").
		Where("created_at >= ?", since).
		Pluck("subject_id", &subjects).Error
	return subjects, err
}

func toTransactionPO(txn *domain.Transaction) (*TransactionPO, error) {
	var flags []byte
	if len(txn.RiskFlags) > 0 {
		data, err := json.Marshal(txn.RiskFlags)
		if err != nil {
			return nil, err
		}
		flags = data
	}
	return &TransactionPO{
		TransactionID:  txn.ID,
		IdempotencyKey: txn.IdempotencyKey,
		SubjectID:      txn.SubjectID,
		OriginID:       txn.OriginID,
		OperationType:  txn.OperationType,
		Currency:       txn.Currency,
		Amount:         txn.Amount,
		Params:         txn.Params,
		State:          string(txn.State),
		RiskScore:      txn.RiskScore,
		RiskFlags:      flags,
		ReviewID:       txn.ReviewID,
		GatewayRef:     txn.GatewayRef,
		FailureKind:    string(txn.FailureKind),
		FailureReason:  txn.FailureReason,
		CreatedAt:      txn.CreatedAt,
		UpdatedAt:      txn.UpdatedAt,
		CompletedAt:    txn.CompletedAt,
	}, nil
}

func toTransaction(po *TransactionPO) (*domain.Transaction, error) {
	txn := &domain.Transaction{
		ID:             po.TransactionID,
		IdempotencyKey: po.IdempotencyKey,
		SubjectID:      po.SubjectID,
		OriginID:       po.OriginID,
		OperationType:  po.OperationType,
		Currency:       po.Currency,
		Amount:         po.Amount,
		Params:         po.Params,
		State:          domain.State(po.State),
		RiskScore:      po.RiskScore,
		ReviewID:       po.ReviewID,
		GatewayRef:     po.GatewayRef,
		FailureKind:    domain.ErrorKind(po.FailureKind),
		FailureReason:  po.FailureReason,
		CreatedAt:      po.CreatedAt,
		UpdatedAt:      po.UpdatedAt,
		CompletedAt:    po.CompletedAt,
	}
	if len(po.RiskFlags) > 0 {
		if err := json.Unmarshal(po.RiskFlags, &txn.RiskFlags); err != nil {
			return nil, err
		}
	}
	return txn, nil
}
