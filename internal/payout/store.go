package payout

import (
	"context"
	"fmt"
	"time"

	"settlement_service/internal/account"
	"settlement_service/internal/ledger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StoreImpl struct {
	db       *gorm.DB
	accounts account.Repository
	ledger   ledger.Repository
}

func NewStoreImpl(db *gorm.DB, accounts account.Repository, ledgerRepo ledger.Repository) Store {
	return &StoreImpl{db: db, accounts: accounts, ledger: ledgerRepo}
}

// Apply runs steps 2-5 of a payout in one storage transaction: atomic wallet
// credit, approved bonus ledger row, wallet log, claim marking. Failing any
// step rolls back all of them.
func (s *StoreImpl) Apply(ctx context.Context, req ApplyRequest, claim ClaimFunc) (string, error) {
	bonusTxID := uuid.New().String()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accounts.CreditWallet(ctx, tx, req.AccountID, req.Amount); err != nil {
			return err
		}
		now := time.Now()
		bonusTx := &ledger.Transaction{
			TransactionID: bonusTxID,
			AccountID:     req.AccountID,
			Type:          ledger.TypeBonus,
			Amount:        req.Amount,
			Source:        req.Source,
			ProcessedBy:   req.ClaimedBy,
			Note:          req.Note,
			CreatedAt:     now,
		}
		if err := s.ledger.CreateApproved(ctx, tx, bonusTx); err != nil {
			return fmt.Errorf("failed to record payout transaction: %w", err)
		}
		entry := &ledger.WalletLog{
			LogID:     uuid.New().String(),
			AccountID: req.AccountID,
			Amount:    req.Amount,
			Reason:    req.Source,
			Reference: req.Reference,
			Note:      req.Note,
		}
		if err := s.ledger.CreateWalletLog(ctx, tx, entry); err != nil {
			return fmt.Errorf("failed to write wallet log: %w", err)
		}
		if claim != nil {
			if err := claim(tx, bonusTxID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return bonusTxID, nil
}
