package gate

import (
	"context"
	"fmt"

	"settlement_service/internal/account"
	"settlement_service/internal/gamefeed"
	"settlement_service/internal/ledger"
	"settlement_service/internal/promotion"

	"github.com/shopspring/decimal"
)

const (
	ReasonEligible         = "eligible"
	ReasonTurnoverShortage = "turnover requirement not met"
	ReasonWinoverShortage  = "winover requirement not met"
)

var (
	defaultTurnoverMultiplier = decimal.NewFromInt(1)
	defaultWinoverMultiplier  = decimal.NewFromInt(3)
)

// Result is the gate's decision. Required, Current and Remaining carry the
// figures behind a blocked decision so the caller can show the shortfall.
type Result struct {
	Eligible  bool            `json:"eligible"`
	Reason    string          `json:"reason"`
	Required  decimal.Decimal `json:"required"`
	Current   decimal.Decimal `json:"current"`
	Remaining decimal.Decimal `json:"remaining"`
}

// BlockedError wraps a blocked Result so the gate can satisfy
// ledger.EligibilityChecker with a single error return.
type BlockedError struct {
	Result *Result
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("withdrawal blocked: %s (required=%s current=%s remaining=%s)",
		e.Result.Reason, e.Result.Required.String(), e.Result.Current.String(), e.Result.Remaining.String())
}

// Service decides withdrawal eligibility from the account's most recent
// deposit or bonus and the promotion rule attached to it. Any lookup failure
// blocks the withdrawal rather than letting it through ungated.
type Service struct {
	accounts account.Repository
	ledger   ledger.Repository
	promos   promotion.Repository
	feed     gamefeed.Client
}

func NewService(accounts account.Repository, ledgerRepo ledger.Repository, promos promotion.Repository, feed gamefeed.Client) *Service {
	return &Service{accounts: accounts, ledger: ledgerRepo, promos: promos, feed: feed}
}

// Check adapts the eligibility decision to an error return for the withdrawal
// submission path.
func (s *Service) Check(ctx context.Context, accountID string) error {
	res, err := s.CheckWithdrawalEligibility(ctx, accountID)
	if err != nil {
		return err
	}
	if !res.Eligible {
		return &BlockedError{Result: res}
	}
	return nil
}

func (s *Service) CheckWithdrawalEligibility(ctx context.Context, accountID string) (*Result, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	latestWithdrawal, err := s.ledger.LatestApproved(ctx, accountID, ledger.TypeWithdrawal)
	if err != nil {
		return nil, err
	}
	latestDeposit, err := s.ledger.LatestApproved(ctx, accountID, ledger.TypeDeposit)
	if err != nil {
		return nil, err
	}
	latestBonus, err := s.ledger.LatestApproved(ctx, accountID, ledger.TypeBonus)
	if err != nil {
		return nil, err
	}

	// No deposit or bonus on record, or the last withdrawal already settled
	// whatever obligation existed.
	if latestDeposit == nil && latestBonus == nil {
		return eligible(), nil
	}
	if latestWithdrawal != nil && newerThan(latestWithdrawal, latestDeposit) && newerThan(latestWithdrawal, latestBonus) {
		return eligible(), nil
	}

	// The anchor is whichever of deposit/bonus is most recent. A bonus tied to
	// a deposit obligates the combined amount.
	anchor := latestDeposit
	combined := decimal.Zero
	if latestDeposit != nil {
		combined = latestDeposit.Amount
	}
	if latestBonus != nil && newerThan(latestBonus, latestDeposit) {
		anchor = latestBonus
		combined = latestBonus.Amount
		if latestBonus.DepositID != nil {
			dep, err := s.ledger.GetByID(ctx, *latestBonus.DepositID)
			if err != nil {
				return nil, err
			}
			combined = combined.Add(dep.Amount)
		}
	}

	if anchor.PromotionID == nil {
		required := anchor.Amount.Mul(defaultTurnoverMultiplier).Round(2)
		return s.turnoverResult(ctx, acct.AccountID, anchor, required)
	}

	promo, err := s.promos.GetByID(ctx, *anchor.PromotionID)
	if err != nil {
		return nil, err
	}
	multiplier := promo.Multiplier
	if multiplier.IsZero() {
		if promo.RequirementType == promotion.RequirementWinover {
			multiplier = defaultWinoverMultiplier
		} else {
			multiplier = defaultTurnoverMultiplier
		}
	}
	required := combined.Mul(multiplier).Round(2)

	if promo.RequirementType == promotion.RequirementWinover {
		// Winover compares the wallet balance directly, no turnover query.
		current := acct.WalletBalance.Round(2)
		if current.GreaterThanOrEqual(required) {
			return eligible(), nil
		}
		return &Result{
			Eligible:  false,
			Reason:    ReasonWinoverShortage,
			Required:  required,
			Current:   current,
			Remaining: required.Sub(current),
		}, nil
	}
	return s.turnoverResult(ctx, acct.AccountID, anchor, required)
}

func (s *Service) turnoverResult(ctx context.Context, accountID string, anchor *ledger.Transaction, required decimal.Decimal) (*Result, error) {
	current, err := s.feed.TurnoverSince(ctx, accountID, anchor.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("turnover feed unavailable: %w", err)
	}
	current = current.Round(2)
	if current.GreaterThanOrEqual(required) {
		return eligible(), nil
	}
	return &Result{
		Eligible:  false,
		Reason:    ReasonTurnoverShortage,
		Required:  required,
		Current:   current,
		Remaining: required.Sub(current),
	}, nil
}

func eligible() *Result {
	return &Result{Eligible: true, Reason: ReasonEligible}
}

func newerThan(t *ledger.Transaction, other *ledger.Transaction) bool {
	if other == nil {
		return true
	}
	return t.CreatedAt.After(other.CreatedAt)
}
