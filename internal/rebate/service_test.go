package rebate_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"settlement_service/internal/account"
	"settlement_service/internal/gamefeed"
	"settlement_service/internal/ledger"
	"settlement_service/internal/payout"
	"settlement_service/internal/rebate"
	"settlement_service/internal/testutil"
	"settlement_service/internal/vip"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeLogs struct {
	mu   sync.Mutex
	logs []*rebate.Log
}

func (f *fakeLogs) Create(ctx context.Context, entry *rebate.Log) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *entry
	f.logs = append(f.logs, &copied)
	return nil
}

func (f *fakeLogs) GetByID(ctx context.Context, logID string) (*rebate.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.logs {
		if l.LogID == logID {
			copied := *l
			return &copied, nil
		}
	}
	return nil, rebate.ErrLogNotFound
}

func (f *fakeLogs) ForPeriod(ctx context.Context, accountID string, periodStart time.Time, mode string) (*rebate.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.logs {
		if l.AccountID == accountID && l.PeriodStart.Equal(periodStart) && l.Mode == mode {
			copied := *l
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeLogs) Unclaimed(ctx context.Context, accountID string, limit int) ([]rebate.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rebate.Log
	for _, l := range f.logs {
		if !l.Claimed && (accountID == "" || l.AccountID == accountID) {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (f *fakeLogs) MarkClaimed(ctx context.Context, tx *gorm.DB, logID string, claimedBy string, bonusTxID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.logs {
		if l.LogID == logID {
			if l.Claimed {
				return rebate.ErrAlreadyClaimed
			}
			l.Claimed = true
			l.ClaimedBy = claimedBy
			l.BonusTxID = bonusTxID
			now := time.Now()
			l.ClaimedAt = &now
			return nil
		}
	}
	return rebate.ErrAlreadyClaimed
}

type fakeGameLogs struct {
	mu      sync.Mutex
	entries []rebate.GameLog
	pruned  []time.Time
}

func (f *fakeGameLogs) Record(ctx context.Context, entries []rebate.GameLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, entries...)
	return nil
}

func (f *fakeGameLogs) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = append(f.pruned, cutoff)
	var kept []rebate.GameLog
	var removed int64
	for _, e := range f.entries {
		if e.Day.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	f.entries = kept
	return removed, nil
}

func (f *fakeGameLogs) History(ctx context.Context, accountID string, from, to time.Time) ([]rebate.GameLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []rebate.GameLog
	for _, e := range f.entries {
		if e.AccountID == accountID && !e.Day.Before(from) && e.Day.Before(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

type rebateFixture struct {
	accounts *testutil.FakeAccountRepo
	ledger   *testutil.FakeLedgerRepo
	logs     *fakeLogs
	gameLogs *fakeGameLogs
	feed     *testutil.FakeFeed
	kiosk    *testutil.FakeKiosk
	svc      *rebate.Service
}

var rebateNow = time.Date(2024, 7, 10, 6, 0, 0, 0, time.UTC)

func newRebateFixture(t *testing.T, cfg rebate.Config) *rebateFixture {
	t.Helper()
	f := &rebateFixture{
		accounts: testutil.NewFakeAccountRepo(),
		ledger:   testutil.NewFakeLedgerRepo(),
		logs:     &fakeLogs{},
		gameLogs: &fakeGameLogs{},
		feed:     &testutil.FakeFeed{},
		kiosk:    &testutil.FakeKiosk{},
	}
	tiers, err := vip.NewTable([]vip.Tier{
		{Level: 0, Threshold: decimal.Zero, RebatePercents: map[string]decimal.Decimal{"slots": decimal.NewFromFloat(0.005)}},
		{Level: 1, Threshold: decimal.NewFromInt(5000), RebatePercents: map[string]decimal.Decimal{"slots": decimal.NewFromFloat(0.008)}},
	})
	require.NoError(t, err)
	tracker := vip.NewTracker(f.accounts, tiers, vip.NewCheckpoint())
	payouts := payout.NewService(testutil.NewFakePayoutStore(f.accounts, f.ledger), f.kiosk)
	f.svc = rebate.NewService(f.accounts, f.ledger, f.logs, f.gameLogs, f.feed, payouts, tracker, tiers, cfg)
	return f
}

func (f *rebateFixture) addApproved(t *testing.T, accountID, txType string, amount int64) {
	t.Helper()
	require.NoError(t, f.ledger.CreateApproved(context.Background(), nil, &ledger.Transaction{
		TransactionID: accountID + "-" + txType + "-" + decimal.NewFromInt(amount).String(),
		AccountID:     accountID,
		Type:          txType,
		Amount:        decimal.NewFromInt(amount),
		CreatedAt:     time.Date(2024, 7, 3, 12, 0, 0, 0, time.UTC),
	}))
}

func TestRunWinLoseRebates(t *testing.T) {
	f := newRebateFixture(t, rebate.Config{Mode: rebate.ModeWinLose, FlatRate: decimal.NewFromFloat(0.01)})
	f.accounts.Add(&account.Account{AccountID: "u1", Username: "u1"})
	f.accounts.Add(&account.Account{AccountID: "u2", Username: "u2"})
	f.accounts.Add(&account.Account{AccountID: "u3", Username: "u3"})
	f.addApproved(t, "u1", ledger.TypeDeposit, 250) // 2.50 rebate
	f.addApproved(t, "u2", ledger.TypeDeposit, 50)  // 0.50, below the floor
	f.addApproved(t, "u3", ledger.TypeWithdrawal, 100)

	summary, err := f.svc.Run(context.Background(), rebateNow)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Users)
	assert.Equal(t, 1, summary.Logs)
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, 1, summary.Suppressed)
	assert.Equal(t, 1, summary.Skipped)

	require.Len(t, f.logs.logs, 1)
	entry := f.logs.logs[0]
	assert.Equal(t, "u1", entry.AccountID)
	assert.True(t, entry.Amount.Equal(decimal.NewFromFloat(2.50)))
	assert.True(t, entry.Claimed)

	u1, err := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, u1.WalletBalance.Equal(decimal.NewFromFloat(2.50)))
	u2, err := f.accounts.GetByID(context.Background(), "u2")
	require.NoError(t, err)
	assert.True(t, u2.WalletBalance.IsZero())
}

func TestRunWinLoseHighBalanceLeftClaimable(t *testing.T) {
	f := newRebateFixture(t, rebate.Config{Mode: rebate.ModeWinLose, FlatRate: decimal.NewFromFloat(0.01)})
	f.accounts.Add(&account.Account{AccountID: "u1", Username: "u1", WalletBalance: decimal.NewFromInt(50)})
	f.addApproved(t, "u1", ledger.TypeDeposit, 250)

	summary, err := f.svc.Run(context.Background(), rebateNow)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Logs)
	assert.Equal(t, 0, summary.Applied)
	assert.Equal(t, 1, summary.Skipped)

	require.Len(t, f.logs.logs, 1)
	entry := f.logs.logs[0]
	require.False(t, entry.Claimed)

	require.NoError(t, f.svc.Claim(context.Background(), entry.LogID, "admin-1"))
	u1, err := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, u1.WalletBalance.Equal(decimal.NewFromFloat(52.50)))

	assert.ErrorIs(t, f.svc.Claim(context.Background(), entry.LogID, "admin-2"), rebate.ErrAlreadyClaimed)
}

func TestRunWinLoseKioskFailureLeavesLogUnclaimed(t *testing.T) {
	f := newRebateFixture(t, rebate.Config{Mode: rebate.ModeWinLose, FlatRate: decimal.NewFromFloat(0.01)})
	f.accounts.Add(&account.Account{AccountID: "u1", Username: "u1"})
	f.addApproved(t, "u1", ledger.TypeDeposit, 250)
	f.kiosk.Fail = true

	summary, err := f.svc.Run(context.Background(), rebateNow)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	require.Len(t, f.logs.logs, 1)
	assert.False(t, f.logs.logs[0].Claimed)
	u1, err := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, u1.WalletBalance.IsZero())
}

func TestRunTurnoverAppliesTierRates(t *testing.T) {
	f := newRebateFixture(t, rebate.Config{Mode: rebate.ModeTurnover})
	f.accounts.Add(&account.Account{AccountID: "u1", Username: "u1"})
	f.accounts.Add(&account.Account{AccountID: "u2", Username: "u2", Turnover: decimal.NewFromInt(4500), VIPLevel: 0})
	f.feed.Daily = []gamefeed.CategoryTurnover{
		{AccountID: "u1", Category: "slots", Turnover: decimal.NewFromInt(1000), WinLoss: decimal.NewFromInt(-200)},
		{AccountID: "u2", Category: "slots", Turnover: decimal.NewFromInt(1000), WinLoss: decimal.NewFromInt(100)},
	}

	summary, err := f.svc.Run(context.Background(), rebateNow)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Users)
	assert.Equal(t, 2, summary.Logs)
	assert.Equal(t, 2, summary.Applied)
	assert.Equal(t, 0, summary.Failed)

	// u1 stays at tier 0: 1000 x 0.5% = 5.00. u2 crosses the 5000 threshold
	// mid-settlement and earns the tier 1 rate: 1000 x 0.8% = 8.00.
	u1, err := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, u1.WalletBalance.Equal(decimal.NewFromInt(5)))
	assert.True(t, u1.Turnover.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 0, u1.VIPLevel)

	u2, err := f.accounts.GetByID(context.Background(), "u2")
	require.NoError(t, err)
	assert.True(t, u2.WalletBalance.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, 1, u2.VIPLevel)

	assert.Len(t, f.gameLogs.entries, 2)
	require.Len(t, f.gameLogs.pruned, 1)
	assert.Equal(t, time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC), f.gameLogs.pruned[0])
}

func TestRunTurnoverRerunIsIdempotent(t *testing.T) {
	f := newRebateFixture(t, rebate.Config{Mode: rebate.ModeTurnover})
	f.accounts.Add(&account.Account{AccountID: "u1", Username: "u1"})
	f.feed.Daily = []gamefeed.CategoryTurnover{
		{AccountID: "u1", Category: "slots", Turnover: decimal.NewFromInt(1000)},
	}

	_, err := f.svc.Run(context.Background(), rebateNow)
	require.NoError(t, err)
	summary, err := f.svc.Run(context.Background(), rebateNow)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Logs)
	require.Len(t, f.logs.logs, 1)
	assert.Len(t, f.gameLogs.entries, 1)

	u1, err := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, u1.WalletBalance.Equal(decimal.NewFromInt(5)))
	assert.True(t, u1.Turnover.Equal(decimal.NewFromInt(1000)))
}

func TestRunTurnoverKioskFailureRetryCountsTurnoverOnce(t *testing.T) {
	f := newRebateFixture(t, rebate.Config{Mode: rebate.ModeTurnover})
	f.accounts.Add(&account.Account{AccountID: "u1", Username: "u1"})
	f.feed.Daily = []gamefeed.CategoryTurnover{
		{AccountID: "u1", Category: "slots", Turnover: decimal.NewFromInt(1000)},
	}
	f.kiosk.Fail = true

	summary, err := f.svc.Run(context.Background(), rebateNow)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, f.logs.logs, 1)
	require.False(t, f.logs.logs[0].Claimed)

	u1, err := f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	require.True(t, u1.Turnover.Equal(decimal.NewFromInt(1000)))
	require.True(t, u1.WalletBalance.IsZero())

	// Funding recovers: the retry pays the recorded log but must not
	// advance the cumulative turnover or the game history a second time.
	f.kiosk.Fail = false
	summary, err = f.svc.Run(context.Background(), rebateNow)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Applied)
	assert.Equal(t, 0, summary.Logs)
	require.Len(t, f.logs.logs, 1)
	assert.True(t, f.logs.logs[0].Claimed)
	assert.Len(t, f.gameLogs.entries, 1)

	u1, err = f.accounts.GetByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, u1.Turnover.Equal(decimal.NewFromInt(1000)))
	assert.True(t, u1.WalletBalance.Equal(decimal.NewFromInt(5)))
}

func TestRunTurnoverUnknownAccountSkipped(t *testing.T) {
	f := newRebateFixture(t, rebate.Config{Mode: rebate.ModeTurnover})
	f.feed.Daily = []gamefeed.CategoryTurnover{
		{AccountID: "ghost", Category: "slots", Turnover: decimal.NewFromInt(1000)},
	}

	summary, err := f.svc.Run(context.Background(), rebateNow)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, f.logs.logs)
}
