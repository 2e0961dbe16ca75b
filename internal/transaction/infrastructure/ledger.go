package infrastructure

import (
	"context"
	"errors"
	"time"

	"github.com/calculus-guy/paymentscore/internal/transaction/domain"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerAccountPO is one subject's balance in one currency.
type LedgerAccountPO struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement"`
	SubjectID string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_ledger_subject_currency"`
	Currency  string          `gorm:"type:varchar(8);not null;uniqueIndex:idx_ledger_subject_currency"`
	Balance   decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	Reserved  decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0"`
	UpdatedAt time.Time       `gorm:"not null"`
}

func (LedgerAccountPO) TableName() string {
	return "ledger_accounts"
}

// LedgerEntryPO is one posted mutation. The unique reference is what makes
// ApplyDelta idempotent: a replay hits the index and posts nothing.
type LedgerEntryPO struct {
	ID        uint64          `gorm:"primaryKey;autoIncrement"`
	SubjectID string          `gorm:"type:varchar(64);not null;index"`
	Currency  string          `gorm:"type:varchar(8);not null"`
	Delta     decimal.Decimal `gorm:"type:decimal(20,4);not null"`
	Reference string          `gorm:"type:varchar(191);not null;uniqueIndex"`
	CreatedAt time.Time       `gorm:"not null"`
}

func (LedgerEntryPO) TableName() string {
	return "ledger_entries"
}

// GormLedgerStore implements the ledger on MySQL with row locks.
type GormLedgerStore struct {
	db *gorm.DB
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

func (s *GormLedgerStore) Balance(ctx context.Context, subjectID, currency string) (decimal.Decimal, error) {
	var acct LedgerAccountPO
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND currency = ?", subjectID, currency).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return acct.Balance.Sub(acct.Reserved), nil
}

func (s *GormLedgerStore) ApplyDelta(ctx context.Context, subjectID, currency string, delta decimal.Decimal, reference string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posted, err := postEntry(tx, subjectID, currency, delta, reference)
		if err != nil || !posted {
			return err
		}

		acct, err := lockAccount(tx, subjectID, currency)
		if err != nil {
			return err
		}
		next := acct.Balance.Add(delta)
		if next.IsNegative() {
			return domain.ErrInsufficientFunds
		}
		acct.Balance = next
		acct.UpdatedAt = time.Now()
		return tx.Save(acct).Error
	})
}

func (s *GormLedgerStore) Reserve(ctx context.Context, subjectID, currency string, amount decimal.Decimal, reference string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posted, err := postEntry(tx, subjectID, currency, decimal.Zero, "hold:"+reference)
		if err != nil || !posted {
			return err
		}

		acct, err := lockAccount(tx, subjectID, currency)
		if err != nil {
			return err
		}
		if acct.Balance.Sub(acct.Reserved).LessThan(amount) {
			return domain.ErrInsufficientFunds
		}
		acct.Reserved = acct.Reserved.Add(amount)
		acct.UpdatedAt = time.Now()
		return tx.Save(acct).Error
	})
}

func (s *GormLedgerStore) Release(ctx context.Context, subjectID, currency string, amount decimal.Decimal, reference string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		posted, err := postEntry(tx, subjectID, currency, decimal.Zero, "release:"+reference)
		if err != nil || !posted {
			return err
		}

		acct, err := lockAccount(tx, subjectID, currency)
		if err != nil {
			return err
		}
		acct.Reserved = acct.Reserved.Sub(amount)
		if acct.Reserved.IsNegative() {
			acct.Reserved = decimal.Zero
		}
		acct.UpdatedAt = time.Now()
		return tx.Save(acct).Error
	})
}

// postEntry inserts the mutation record; false means the reference was
// already posted and the caller must not re-apply.
func postEntry(tx *gorm.DB, subjectID, currency string, delta decimal.Decimal, reference string) (bool, error) {
	entry := &LedgerEntryPO{
		SubjectID: subjectID,
		Currency:  currency,
		Delta:     delta,
		Reference: reference,
		CreatedAt: time.Now(),
	}
	err := tx.Create(entry).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func lockAccount(tx *gorm.DB, subjectID, currency string) (*LedgerAccountPO, error) {
	var acct LedgerAccountPO
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("subject_id = ? AND currency = ?", subjectID, currency).
		First(&acct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		acct = LedgerAccountPO{
			SubjectID: subjectID,
			Currency:  currency,
			Balance:   decimal.Zero,
			Reserved:  decimal.Zero,
			UpdatedAt: time.Now(),
		}
		if err := tx.Create(&acct).Error; err != nil {
			return nil, err
		}
		return &acct, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}
