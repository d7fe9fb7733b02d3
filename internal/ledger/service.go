package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"settlement_service/internal/account"
	"settlement_service/internal/period"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrWithdrawalLocked = errors.New("withdrawals are locked for this account")
	ErrWithdrawalLimit  = errors.New("daily withdrawal count limit reached")
	ErrInvalidAmount    = errors.New("amount must be positive")
)

// EligibilityChecker gates withdrawal submissions. Implementations return a
// typed blocked error when the account has an unmet turnover or winover
// requirement, and a plain error when the decision could not be made (the
// submission is declined either way).
type EligibilityChecker interface {
	Check(ctx context.Context, accountID string) error
}

// WithdrawalLimiter resolves the per-day withdrawal count limit for a VIP
// level. A limit of 0 means unlimited.
type WithdrawalLimiter interface {
	WithdrawalLimit(vipLevel int) int
}

type Service struct {
	db       *gorm.DB
	repo     Repository
	accounts account.Repository
	gate     EligibilityChecker
	limiter  WithdrawalLimiter
}

func NewService(db *gorm.DB, repo Repository, accounts account.Repository, gate EligibilityChecker, limiter WithdrawalLimiter) *Service {
	return &Service{db: db, repo: repo, accounts: accounts, gate: gate, limiter: limiter}
}

// SubmitDeposit creates a pending deposit. The wallet is only credited when an
// admin approves it.
func (s *Service) SubmitDeposit(ctx context.Context, accountID string, amount decimal.Decimal) (*Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	t := &Transaction{
		TransactionID:  uuid.New().String(),
		AccountID:      acct.AccountID,
		Type:           TypeDeposit,
		Amount:         amount.Round(2),
		WalletSnapshot: acct.WalletBalance,
	}
	if err := s.repo.CreatePending(ctx, nil, t); err != nil {
		return nil, err
	}
	return t, nil
}

// SubmitWithdrawal holds the requested amount and creates a pending
// withdrawal. The gate decision, the balance guard and the single-pending rule
// all have to pass; the hold is rolled back if the insert loses the
// single-pending race.
func (s *Service) SubmitWithdrawal(ctx context.Context, accountID string, amount decimal.Decimal) (*Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if acct.WithdrawalLocked {
		return nil, ErrWithdrawalLocked
	}
	if s.gate != nil {
		if err := s.gate.Check(ctx, accountID); err != nil {
			return nil, err
		}
	}
	if s.limiter != nil {
		if limit := s.limiter.WithdrawalLimit(acct.VIPLevel); limit > 0 {
			dayStart := period.DayStart(time.Now())
			count, err := s.repo.CountApprovedSince(ctx, accountID, TypeWithdrawal, dayStart)
			if err != nil {
				return nil, err
			}
			if count >= int64(limit) {
				return nil, ErrWithdrawalLimit
			}
		}
	}

	t := &Transaction{
		TransactionID:  uuid.New().String(),
		AccountID:      acct.AccountID,
		Type:           TypeWithdrawal,
		Amount:         amount.Round(2),
		WalletSnapshot: acct.WalletBalance,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accounts.DebitWallet(ctx, tx, accountID, amount); err != nil {
			return err
		}
		if err := s.repo.CreatePending(ctx, tx, t); err != nil {
			return err
		}
		return s.repo.CreateWalletLog(ctx, tx, &WalletLog{
			LogID:     uuid.New().String(),
			AccountID: accountID,
			Amount:    amount.Neg(),
			Reason:    "withdrawal_hold",
			Reference: t.TransactionID,
		})
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ApproveDeposit credits the wallet and marks the deposit approved in one
// storage transaction.
func (s *Service) ApproveDeposit(ctx context.Context, transactionID string, adminID string) error {
	t, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if t.Type != TypeDeposit {
		return ErrInvalidTransition
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.SetStatus(ctx, tx, transactionID, StatusApproved, adminID); err != nil {
			return err
		}
		if err := s.accounts.CreditWallet(ctx, tx, t.AccountID, t.Amount); err != nil {
			return err
		}
		return s.repo.CreateWalletLog(ctx, tx, &WalletLog{
			LogID:     uuid.New().String(),
			AccountID: t.AccountID,
			Amount:    t.Amount,
			Reason:    "deposit",
			Reference: transactionID,
			Note:      fmt.Sprintf("deposit approved by %s", adminID),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to approve deposit: %w", err)
	}
	log.Printf("deposit approved: tx=%s account=%s amount=%s admin=%s", transactionID, t.AccountID, t.Amount.String(), adminID)
	return nil
}

// ApproveWithdrawal finalizes a withdrawal. The funds were already held at
// submission time, so approval is a status transition plus an audit entry.
func (s *Service) ApproveWithdrawal(ctx context.Context, transactionID string, adminID string) error {
	t, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	if t.Type != TypeWithdrawal {
		return ErrInvalidTransition
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.SetStatus(ctx, tx, transactionID, StatusApproved, adminID); err != nil {
			return err
		}
		return s.repo.CreateWalletLog(ctx, tx, &WalletLog{
			LogID:     uuid.New().String(),
			AccountID: t.AccountID,
			Amount:    decimal.Zero,
			Reason:    "withdrawal",
			Reference: transactionID,
			Note:      fmt.Sprintf("withdrawal approved by %s", adminID),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to approve withdrawal: %w", err)
	}
	log.Printf("withdrawal approved: tx=%s account=%s amount=%s admin=%s", transactionID, t.AccountID, t.Amount.String(), adminID)
	return nil
}

// Reject moves a pending transaction to rejected. A rejected withdrawal
// releases the held amount back to the wallet.
func (s *Service) Reject(ctx context.Context, transactionID string, adminID string) error {
	t, err := s.repo.GetByID(ctx, transactionID)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.SetStatus(ctx, tx, transactionID, StatusRejected, adminID); err != nil {
			return err
		}
		if t.Type != TypeWithdrawal {
			return nil
		}
		if err := s.accounts.CreditWallet(ctx, tx, t.AccountID, t.Amount); err != nil {
			return err
		}
		return s.repo.CreateWalletLog(ctx, tx, &WalletLog{
			LogID:     uuid.New().String(),
			AccountID: t.AccountID,
			Amount:    t.Amount,
			Reason:    "withdrawal_release",
			Reference: transactionID,
			Note:      fmt.Sprintf("withdrawal rejected by %s", adminID),
		})
	})
	if err != nil {
		return fmt.Errorf("failed to reject transaction: %w", err)
	}
	log.Printf("transaction rejected: tx=%s type=%s account=%s admin=%s", transactionID, t.Type, t.AccountID, adminID)
	return nil
}
