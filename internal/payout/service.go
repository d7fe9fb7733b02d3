package payout

import (
	"context"
	"errors"
	"fmt"
	"log"

	"settlement_service/internal/kiosk"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidAmount  = errors.New("payout amount must be positive")
	ErrFundingFailure = errors.New("kiosk funding debit failed")
)

// AutoPayoutBalanceLimit is the wallet balance above which a computed payout
// is recorded as claimable instead of being credited immediately.
var AutoPayoutBalanceLimit = decimal.NewFromInt(5)

// ClaimFunc marks the originating report or log as claimed inside the same
// storage transaction that credits the wallet. It receives the id of the bonus
// transaction recording the payout.
type ClaimFunc func(tx *gorm.DB, bonusTxID string) error

type ApplyRequest struct {
	AccountID string
	Amount    decimal.Decimal
	Source    string // commission, rebate, agent_level, admin_claim
	Reference string // originating report/log id
	Note      string // human-readable derivation
	ClaimedBy string
	SkipKiosk bool
}

// Store performs the atomic tail of a payout: wallet credit, bonus ledger row,
// wallet log and claim marking, all or nothing.
type Store interface {
	Apply(ctx context.Context, req ApplyRequest, claim ClaimFunc) (string, error)
}

// Service is the payout applier shared by the commission engine, the rebate
// engine and admin manual claims. The kiosk debit always precedes the wallet
// credit; a kiosk failure leaves the report unclaimed for manual retry.
type Service struct {
	store Store
	kiosk kiosk.Client
}

func NewService(store Store, kioskClient kiosk.Client) *Service {
	return &Service{store: store, kiosk: kioskClient}
}

// AutoApplicable is the shared claimable-vs-auto policy: payouts are credited
// immediately only while the beneficiary's wallet stays at or under the limit.
func AutoApplicable(balance decimal.Decimal) bool {
	return balance.LessThanOrEqual(AutoPayoutBalanceLimit)
}

func (s *Service) Apply(ctx context.Context, req ApplyRequest, claim ClaimFunc) (string, error) {
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		return "", ErrInvalidAmount
	}
	req.Amount = req.Amount.Round(2)

	if !req.SkipKiosk {
		note := fmt.Sprintf("%s payout ref=%s", req.Source, req.Reference)
		if _, err := s.kiosk.AdjustBalance(ctx, kiosk.DirectionOut, req.Amount, note); err != nil {
			return "", fmt.Errorf("%w: %v", ErrFundingFailure, err)
		}
	}

	bonusTxID, err := s.store.Apply(ctx, req, claim)
	if err != nil {
		return "", err
	}
	log.Printf("payout applied: account=%s amount=%s source=%s ref=%s tx=%s",
		req.AccountID, req.Amount.String(), req.Source, req.Reference, bonusTxID)
	return bonusTxID, nil
}
