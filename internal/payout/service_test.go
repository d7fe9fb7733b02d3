package payout_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"settlement_service/internal/account"
	"settlement_service/internal/ledger"
	"settlement_service/internal/payout"
	"settlement_service/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type payoutFixture struct {
	accounts *testutil.FakeAccountRepo
	ledger   *testutil.FakeLedgerRepo
	kiosk    *testutil.FakeKiosk
	svc      *payout.Service
}

func newPayoutFixture() *payoutFixture {
	f := &payoutFixture{
		accounts: testutil.NewFakeAccountRepo(),
		ledger:   testutil.NewFakeLedgerRepo(),
		kiosk:    &testutil.FakeKiosk{},
	}
	f.accounts.Add(&account.Account{AccountID: "u1", Username: "u1"})
	f.svc = payout.NewService(testutil.NewFakePayoutStore(f.accounts, f.ledger), f.kiosk)
	return f
}

func TestApplyRejectsNonPositiveAmount(t *testing.T) {
	f := newPayoutFixture()
	_, err := f.svc.Apply(context.Background(), payout.ApplyRequest{
		AccountID: "u1",
		Amount:    decimal.Zero,
		Source:    ledger.SourceRebate,
	}, nil)
	assert.ErrorIs(t, err, payout.ErrInvalidAmount)
	assert.Equal(t, 0, f.kiosk.CallCount())
}

func TestApplyDebitsKioskBeforeCrediting(t *testing.T) {
	f := newPayoutFixture()
	claimed := false
	txID, err := f.svc.Apply(context.Background(), payout.ApplyRequest{
		AccountID: "u1",
		Amount:    decimal.NewFromFloat(12.345),
		Source:    ledger.SourceCommission,
		Reference: "rep-1",
	}, func(tx *gorm.DB, bonusTxID string) error {
		claimed = true
		assert.NotEmpty(t, bonusTxID)
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, txID)
	assert.True(t, claimed)

	require.Equal(t, 1, f.kiosk.CallCount())
	// The amount is rounded before it reaches the kiosk and the wallet.
	assert.True(t, f.kiosk.Calls[0].Equal(decimal.NewFromFloat(12.35)))

	acct, err := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, acct.WalletBalance.Equal(decimal.NewFromFloat(12.35)))

	bonus, err := f.ledger.GetByID(context.Background(), txID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TypeBonus, bonus.Type)
	assert.Equal(t, ledger.SourceCommission, bonus.Source)
}

func TestApplyKioskFailureLeavesWalletUntouched(t *testing.T) {
	f := newPayoutFixture()
	f.kiosk.Fail = true

	_, err := f.svc.Apply(context.Background(), payout.ApplyRequest{
		AccountID: "u1",
		Amount:    decimal.NewFromInt(10),
		Source:    ledger.SourceRebate,
	}, func(tx *gorm.DB, bonusTxID string) error {
		t.Fatal("claim must not run after a funding failure")
		return nil
	})
	assert.ErrorIs(t, err, payout.ErrFundingFailure)

	acct, getErr := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, getErr)
	assert.True(t, acct.WalletBalance.IsZero())
}

func TestApplyClaimFailureAbortsCredit(t *testing.T) {
	f := newPayoutFixture()
	lost := errors.New("already claimed")

	_, err := f.svc.Apply(context.Background(), payout.ApplyRequest{
		AccountID: "u1",
		Amount:    decimal.NewFromInt(10),
		Source:    ledger.SourceCommission,
	}, func(tx *gorm.DB, bonusTxID string) error {
		return lost
	})
	assert.ErrorIs(t, err, lost)

	acct, getErr := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, getErr)
	assert.True(t, acct.WalletBalance.IsZero())
}

func TestApplySkipKiosk(t *testing.T) {
	f := newPayoutFixture()
	_, err := f.svc.Apply(context.Background(), payout.ApplyRequest{
		AccountID: "u1",
		Amount:    decimal.NewFromInt(10),
		Source:    ledger.SourceAdminClaim,
		SkipKiosk: true,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, f.kiosk.CallCount())
}

func TestConcurrentAppliesSumExactly(t *testing.T) {
	f := newPayoutFixture()
	const workers = 20

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Apply(context.Background(), payout.ApplyRequest{
				AccountID: "u1",
				Amount:    decimal.NewFromFloat(1.50),
				Source:    ledger.SourceRebate,
			}, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acct, err := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, acct.WalletBalance.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, workers, f.kiosk.CallCount())
}

func TestAutoApplicableBoundary(t *testing.T) {
	assert.True(t, payout.AutoApplicable(decimal.Zero))
	assert.True(t, payout.AutoApplicable(decimal.NewFromInt(5)))
	assert.False(t, payout.AutoApplicable(decimal.NewFromFloat(5.01)))
}
