package account

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrReferralCycle     = errors.New("referral cycle detected")
)

type Repository interface {
	GetByID(ctx context.Context, accountID string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetDownlines(ctx context.Context, accountID string) ([]Account, error)
	GetAgents(ctx context.Context) ([]Account, error)
	UplineChain(ctx context.Context, accountID string, maxDepth int) ([]Account, error)
	CreditWallet(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal) error
	DebitWallet(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal) error
	AddTurnover(ctx context.Context, accountID string, amount decimal.Decimal) error
	UpdateTurnoverAndVIP(ctx context.Context, accountID string, turnover decimal.Decimal, vipLevel int) error
	UpdateAgentLevel(ctx context.Context, tx *gorm.DB, accountID string, level int) error
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepositoryImpl(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) GetByID(ctx context.Context, accountID string) (*Account, error) {
	var a Account
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *RepositoryImpl) GetByUsername(ctx context.Context, username string) (*Account, error) {
	var a Account
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *RepositoryImpl) GetDownlines(ctx context.Context, accountID string) ([]Account, error) {
	var downlines []Account
	err := r.db.WithContext(ctx).Where("referrer_id = ?", accountID).Find(&downlines).Error
	if err != nil {
		return nil, err
	}
	return downlines, nil
}

// GetAgents returns accounts with at least one downline and no position taking.
// Position-taking agents are settled by a separate profit-sharing track.
func (r *RepositoryImpl) GetAgents(ctx context.Context) ([]Account, error) {
	var agents []Account
	err := r.db.WithContext(ctx).
		Where("position_taking = 0").
		Where("account_id IN (?)", r.db.Model(&Account{}).Select("referrer_id").Where("referrer_id IS NOT NULL")).
		Find(&agents).Error
	if err != nil {
		return nil, err
	}
	return agents, nil
}

// UplineChain walks referrer edges starting at accountID, returning ancestors
// ordered by distance (index 0 = direct upline). The walk is iterative and
// bounded by maxDepth; revisiting an account means the referral data is
// corrupted and the walk fails with ErrReferralCycle.
func (r *RepositoryImpl) UplineChain(ctx context.Context, accountID string, maxDepth int) ([]Account, error) {
	var chain []Account
	seen := map[string]bool{accountID: true}

	current, err := r.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for depth := 0; depth < maxDepth; depth++ {
		if current.ReferrerID == nil {
			break
		}
		if seen[*current.ReferrerID] {
			return nil, ErrReferralCycle
		}
		upline, err := r.GetByID(ctx, *current.ReferrerID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				break
			}
			return nil, err
		}
		seen[upline.AccountID] = true
		chain = append(chain, *upline)
		current = upline
	}
	return chain, nil
}

// CreditWallet applies an account-scoped atomic increment. It never reads the
// balance into application code.
func (r *RepositoryImpl) CreditWallet(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Model(&Account{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"wallet_balance": gorm.Expr("wallet_balance + ?", amount),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// DebitWallet decrements the balance, guarded so the balance can never go
// negative. RowsAffected == 0 with an existing account means the guard fired.
func (r *RepositoryImpl) DebitWallet(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Model(&Account{}).
		Where("account_id = ? AND wallet_balance >= ?", accountID, amount).
		Updates(map[string]interface{}{
			"wallet_balance": gorm.Expr("wallet_balance - ?", amount),
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).Model(&Account{}).Where("account_id = ?", accountID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrAccountNotFound
		}
		return ErrInsufficientFunds
	}
	return nil
}

func (r *RepositoryImpl) AddTurnover(ctx context.Context, accountID string, amount decimal.Decimal) error {
	result := r.db.WithContext(ctx).Model(&Account{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"turnover":   gorm.Expr("turnover + ?", amount),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// UpdateTurnoverAndVIP persists a tier promotion and the new turnover in a
// single update so the two can never diverge.
func (r *RepositoryImpl) UpdateTurnoverAndVIP(ctx context.Context, accountID string, turnover decimal.Decimal, vipLevel int) error {
	result := r.db.WithContext(ctx).Model(&Account{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"turnover":   turnover,
			"vip_level":  vipLevel,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *RepositoryImpl) UpdateAgentLevel(ctx context.Context, tx *gorm.DB, accountID string, level int) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Model(&Account{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"agent_level": level,
			"updated_at":  time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}
