package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrPendingExists       = errors.New("a pending transaction of this type already exists")
	ErrInvalidTransition   = errors.New("transaction is not in a transitionable state")
)

// PendingIndexSQL enforces the one-pending-transaction-per-account-and-type
// rule at the storage layer. Applied once at startup after auto-migration.
const PendingIndexSQL = `CREATE UNIQUE INDEX IF NOT EXISTS idx_one_pending_per_account ON transactions (account_id, type) WHERE status = 'pending'`

type Repository interface {
	CreatePending(ctx context.Context, tx *gorm.DB, t *Transaction) error
	CreateApproved(ctx context.Context, tx *gorm.DB, t *Transaction) error
	GetByID(ctx context.Context, transactionID string) (*Transaction, error)
	LatestApproved(ctx context.Context, accountID string, txType string) (*Transaction, error)
	SetStatus(ctx context.Context, tx *gorm.DB, transactionID string, status string, processedBy string) error
	MarkReverted(ctx context.Context, transactionID string) error
	ActivityTotals(ctx context.Context, accountIDs []string, from, to time.Time) (map[string]ActivityTotals, error)
	CountApprovedSince(ctx context.Context, accountID string, txType string, since time.Time) (int64, error)
	CreateWalletLog(ctx context.Context, tx *gorm.DB, entry *WalletLog) error
	WalletLogs(ctx context.Context, accountID string, limit int) ([]WalletLog, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepositoryImpl(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

// CreatePending inserts a pending transaction. The partial unique index closes
// the race between concurrent submissions; a duplicate-key error from the
// storage layer maps to ErrPendingExists.
func (r *RepositoryImpl) CreatePending(ctx context.Context, tx *gorm.DB, t *Transaction) error {
	if tx == nil {
		tx = r.db
	}
	t.Status = StatusPending
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrPendingExists
		}
		return err
	}
	return nil
}

func (r *RepositoryImpl) CreateApproved(ctx context.Context, tx *gorm.DB, t *Transaction) error {
	if tx == nil {
		tx = r.db
	}
	t.Status = StatusApproved
	now := time.Now()
	t.ProcessedAt = &now
	return tx.WithContext(ctx).Create(t).Error
}

func (r *RepositoryImpl) GetByID(ctx context.Context, transactionID string) (*Transaction, error) {
	var t Transaction
	err := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

// LatestApproved returns the newest approved, non-reverted transaction of the
// given type, or nil when the account has none.
func (r *RepositoryImpl) LatestApproved(ctx context.Context, accountID string, txType string) (*Transaction, error) {
	var t Transaction
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND type = ? AND status = ? AND reverted = false", accountID, txType, StatusApproved).
		Order("created_at DESC").
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// SetStatus moves a pending transaction to approved or rejected. The guard on
// status closes the race between concurrent admin actions; losing the race
// surfaces as ErrInvalidTransition, never a silent double transition.
func (r *RepositoryImpl) SetStatus(ctx context.Context, tx *gorm.DB, transactionID string, status string, processedBy string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Model(&Transaction{}).
		Where("transaction_id = ? AND status = ?", transactionID, StatusPending).
		Updates(map[string]interface{}{
			"status":       status,
			"processed_by": processedBy,
			"processed_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

func (r *RepositoryImpl) MarkReverted(ctx context.Context, transactionID string) error {
	result := r.db.WithContext(ctx).Model(&Transaction{}).
		Where("transaction_id = ? AND reverted = false", transactionID).
		Update("reverted", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrInvalidTransition
	}
	return nil
}

type totalsRow struct {
	AccountID string
	Type      string
	Total     decimal.Decimal
}

// ActivityTotals sums approved, non-reverted amounts grouped by account and
// type over [from, to). A nil accountIDs slice covers every account with
// in-window activity.
func (r *RepositoryImpl) ActivityTotals(ctx context.Context, accountIDs []string, from, to time.Time) (map[string]ActivityTotals, error) {
	query := r.db.WithContext(ctx).Model(&Transaction{}).
		Select("account_id, type, COALESCE(SUM(amount), 0) AS total").
		Where("status = ? AND reverted = false", StatusApproved).
		Where("created_at >= ? AND created_at < ?", from, to).
		Group("account_id, type")
	if accountIDs != nil {
		query = query.Where("account_id IN ?", accountIDs)
	}

	var rows []totalsRow
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate activity totals: %w", err)
	}

	totals := make(map[string]ActivityTotals, len(rows))
	for _, row := range rows {
		t := totals[row.AccountID]
		switch row.Type {
		case TypeDeposit:
			t.Deposit = t.Deposit.Add(row.Total)
		case TypeWithdrawal:
			t.Withdraw = t.Withdraw.Add(row.Total)
		case TypeBonus:
			t.Bonus = t.Bonus.Add(row.Total)
		}
		totals[row.AccountID] = t
	}
	return totals, nil
}

func (r *RepositoryImpl) CountApprovedSince(ctx context.Context, accountID string, txType string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&Transaction{}).
		Where("account_id = ? AND type = ? AND status = ? AND created_at >= ?", accountID, txType, StatusApproved, since).
		Count(&count).Error
	return count, err
}

func (r *RepositoryImpl) CreateWalletLog(ctx context.Context, tx *gorm.DB, entry *WalletLog) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *RepositoryImpl) WalletLogs(ctx context.Context, accountID string, limit int) ([]WalletLog, error) {
	var logs []WalletLog
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(limit).
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
