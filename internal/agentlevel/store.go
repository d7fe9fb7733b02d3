package agentlevel

import (
	"context"

	"settlement_service/internal/account"
	"settlement_service/internal/ledger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type GormStore struct {
	db       *gorm.DB
	accounts account.Repository
	ledger   ledger.Repository
}

func NewGormStore(db *gorm.DB, accounts account.Repository, ledgerRepo ledger.Repository) *GormStore {
	return &GormStore{db: db, accounts: accounts, ledger: ledgerRepo}
}

func (s *GormStore) AgentWithDownlines(ctx context.Context, agentID string) (int, []int, error) {
	agent, err := s.accounts.GetByID(ctx, agentID)
	if err != nil {
		return 0, nil, err
	}
	downlines, err := s.accounts.GetDownlines(ctx, agentID)
	if err != nil {
		return 0, nil, err
	}
	vipLevels := make([]int, 0, len(downlines))
	for _, d := range downlines {
		vipLevels = append(vipLevels, d.VIPLevel)
	}
	return agent.AgentLevel, vipLevels, nil
}

func (s *GormStore) AwardLevelUp(ctx context.Context, agentID string, level int, bonus decimal.Decimal, note string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accounts.UpdateAgentLevel(ctx, tx, agentID, level); err != nil {
			return err
		}
		if bonus.LessThanOrEqual(decimal.Zero) {
			return nil
		}
		if err := s.accounts.CreditWallet(ctx, tx, agentID, bonus); err != nil {
			return err
		}
		return s.ledger.CreateWalletLog(ctx, tx, &ledger.WalletLog{
			LogID:     uuid.New().String(),
			AccountID: agentID,
			Amount:    bonus,
			Reason:    ledger.SourceAgentLevel,
			Note:      note,
		})
	})
}
