// Package testutil provides in-memory fakes for the repository and client
// interfaces, guarded the same way the storage layer guards the real thing.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"settlement_service/internal/account"
	"settlement_service/internal/gamefeed"
	"settlement_service/internal/kiosk"
	"settlement_service/internal/ledger"
	"settlement_service/internal/payout"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	_ account.Repository = (*FakeAccountRepo)(nil)
	_ kiosk.Client       = (*FakeKiosk)(nil)
	_ gamefeed.Client    = (*FakeFeed)(nil)
	_ ledger.Repository  = (*FakeLedgerRepo)(nil)
	_ payout.Store       = (*FakePayoutStore)(nil)
)

type FakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*account.Account

	TurnoverVIPUpdates int // UpdateTurnoverAndVIP call count, for cheap-path assertions
}

func NewFakeAccountRepo() *FakeAccountRepo {
	return &FakeAccountRepo{accounts: make(map[string]*account.Account)}
}

func (f *FakeAccountRepo) Add(a *account.Account) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts[a.AccountID] = a
}

func (f *FakeAccountRepo) GetByID(ctx context.Context, accountID string) (*account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	copied := *a
	return &copied, nil
}

func (f *FakeAccountRepo) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.accounts {
		if a.Username == username {
			copied := *a
			return &copied, nil
		}
	}
	return nil, account.ErrAccountNotFound
}

func (f *FakeAccountRepo) GetDownlines(ctx context.Context, accountID string) ([]account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var downlines []account.Account
	for _, a := range f.accounts {
		if a.ReferrerID != nil && *a.ReferrerID == accountID {
			downlines = append(downlines, *a)
		}
	}
	sort.Slice(downlines, func(i, j int) bool { return downlines[i].Username < downlines[j].Username })
	return downlines, nil
}

func (f *FakeAccountRepo) GetAgents(ctx context.Context) ([]account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hasDownline := make(map[string]bool)
	for _, a := range f.accounts {
		if a.ReferrerID != nil {
			hasDownline[*a.ReferrerID] = true
		}
	}
	var agents []account.Account
	for _, a := range f.accounts {
		if hasDownline[a.AccountID] && a.PositionTaking.IsZero() {
			agents = append(agents, *a)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].Username < agents[j].Username })
	return agents, nil
}

func (f *FakeAccountRepo) UplineChain(ctx context.Context, accountID string, maxDepth int) ([]account.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.accounts[accountID]
	if !ok {
		return nil, account.ErrAccountNotFound
	}
	seen := map[string]bool{accountID: true}
	var chain []account.Account
	for depth := 0; depth < maxDepth; depth++ {
		if current.ReferrerID == nil {
			break
		}
		if seen[*current.ReferrerID] {
			return nil, account.ErrReferralCycle
		}
		upline, ok := f.accounts[*current.ReferrerID]
		if !ok {
			break
		}
		seen[upline.AccountID] = true
		chain = append(chain, *upline)
		current = upline
	}
	return chain, nil
}

func (f *FakeAccountRepo) CreditWallet(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return account.ErrAccountNotFound
	}
	a.WalletBalance = a.WalletBalance.Add(amount)
	return nil
}

func (f *FakeAccountRepo) DebitWallet(ctx context.Context, tx *gorm.DB, accountID string, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return account.ErrAccountNotFound
	}
	if a.WalletBalance.LessThan(amount) {
		return account.ErrInsufficientFunds
	}
	a.WalletBalance = a.WalletBalance.Sub(amount)
	return nil
}

func (f *FakeAccountRepo) AddTurnover(ctx context.Context, accountID string, amount decimal.Decimal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return account.ErrAccountNotFound
	}
	a.Turnover = a.Turnover.Add(amount)
	return nil
}

func (f *FakeAccountRepo) UpdateTurnoverAndVIP(ctx context.Context, accountID string, turnover decimal.Decimal, vipLevel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return account.ErrAccountNotFound
	}
	a.Turnover = turnover
	a.VIPLevel = vipLevel
	f.TurnoverVIPUpdates++
	return nil
}

func (f *FakeAccountRepo) UpdateAgentLevel(ctx context.Context, tx *gorm.DB, accountID string, level int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.accounts[accountID]
	if !ok {
		return account.ErrAccountNotFound
	}
	a.AgentLevel = level
	return nil
}

// FakeKiosk records adjustments and can be told to fail.
type FakeKiosk struct {
	mu    sync.Mutex
	Fail  bool
	Calls []decimal.Decimal
}

func (f *FakeKiosk) AdjustBalance(ctx context.Context, direction string, amount decimal.Decimal, note string) (*kiosk.AdjustResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail {
		return &kiosk.AdjustResult{Success: false, Message: "pool exhausted"}, kiosk.ErrKioskRejected
	}
	f.Calls = append(f.Calls, amount)
	return &kiosk.AdjustResult{Success: true}, nil
}

func (f *FakeKiosk) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}

// FakeFeed serves canned game-turnover data.
type FakeFeed struct {
	Since map[string]decimal.Decimal // accountID -> turnover since anchor
	Daily []gamefeed.CategoryTurnover
	Range []gamefeed.CategoryTurnover
	Err   error
}

func (f *FakeFeed) TurnoverSince(ctx context.Context, accountID string, since time.Time) (decimal.Decimal, error) {
	if f.Err != nil {
		return decimal.Zero, f.Err
	}
	return f.Since[accountID], nil
}

func (f *FakeFeed) DailyTurnover(ctx context.Context, date time.Time) ([]gamefeed.CategoryTurnover, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Daily, nil
}

func (f *FakeFeed) RangeTurnover(ctx context.Context, from, to time.Time) ([]gamefeed.CategoryTurnover, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Range, nil
}

// FakeLedgerRepo is an in-memory ledger.Repository enforcing the same
// single-pending and guarded-transition rules as the storage layer.
type FakeLedgerRepo struct {
	mu           sync.Mutex
	Transactions []*ledger.Transaction
	Logs         []*ledger.WalletLog
}

func NewFakeLedgerRepo() *FakeLedgerRepo {
	return &FakeLedgerRepo{}
}

func (f *FakeLedgerRepo) CreatePending(ctx context.Context, tx *gorm.DB, t *ledger.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.Transactions {
		if existing.AccountID == t.AccountID && existing.Type == t.Type && existing.Status == ledger.StatusPending {
			return ledger.ErrPendingExists
		}
	}
	t.Status = ledger.StatusPending
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	f.Transactions = append(f.Transactions, t)
	return nil
}

func (f *FakeLedgerRepo) CreateApproved(ctx context.Context, tx *gorm.DB, t *ledger.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.Status = ledger.StatusApproved
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	now := time.Now()
	t.ProcessedAt = &now
	f.Transactions = append(f.Transactions, t)
	return nil
}

func (f *FakeLedgerRepo) GetByID(ctx context.Context, transactionID string) (*ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.Transactions {
		if t.TransactionID == transactionID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, ledger.ErrTransactionNotFound
}

func (f *FakeLedgerRepo) LatestApproved(ctx context.Context, accountID string, txType string) (*ledger.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *ledger.Transaction
	for _, t := range f.Transactions {
		if t.AccountID != accountID || t.Type != txType || t.Status != ledger.StatusApproved || t.Reverted {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (f *FakeLedgerRepo) SetStatus(ctx context.Context, tx *gorm.DB, transactionID string, status string, processedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.Transactions {
		if t.TransactionID == transactionID && t.Status == ledger.StatusPending {
			t.Status = status
			t.ProcessedBy = processedBy
			now := time.Now()
			t.ProcessedAt = &now
			return nil
		}
	}
	return ledger.ErrInvalidTransition
}

func (f *FakeLedgerRepo) MarkReverted(ctx context.Context, transactionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.Transactions {
		if t.TransactionID == transactionID && !t.Reverted {
			t.Reverted = true
			return nil
		}
	}
	return ledger.ErrInvalidTransition
}

func (f *FakeLedgerRepo) ActivityTotals(ctx context.Context, accountIDs []string, from, to time.Time) (map[string]ledger.ActivityTotals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	include := func(id string) bool {
		if accountIDs == nil {
			return true
		}
		for _, want := range accountIDs {
			if want == id {
				return true
			}
		}
		return false
	}
	totals := make(map[string]ledger.ActivityTotals)
	for _, t := range f.Transactions {
		if t.Status != ledger.StatusApproved || t.Reverted || !include(t.AccountID) {
			continue
		}
		if t.CreatedAt.Before(from) || !t.CreatedAt.Before(to) {
			continue
		}
		at := totals[t.AccountID]
		switch t.Type {
		case ledger.TypeDeposit:
			at.Deposit = at.Deposit.Add(t.Amount)
		case ledger.TypeWithdrawal:
			at.Withdraw = at.Withdraw.Add(t.Amount)
		case ledger.TypeBonus:
			at.Bonus = at.Bonus.Add(t.Amount)
		}
		totals[t.AccountID] = at
	}
	return totals, nil
}

func (f *FakeLedgerRepo) CountApprovedSince(ctx context.Context, accountID string, txType string, since time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, t := range f.Transactions {
		if t.AccountID == accountID && t.Type == txType && t.Status == ledger.StatusApproved && !t.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *FakeLedgerRepo) CreateWalletLog(ctx context.Context, tx *gorm.DB, entry *ledger.WalletLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if entry.LogID == "" {
		entry.LogID = uuid.New().String()
	}
	f.Logs = append(f.Logs, entry)
	return nil
}

func (f *FakeLedgerRepo) WalletLogs(ctx context.Context, accountID string, limit int) ([]ledger.WalletLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var logs []ledger.WalletLog
	for _, entry := range f.Logs {
		if entry.AccountID == accountID {
			logs = append(logs, *entry)
		}
	}
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

// FakePayoutStore applies payouts against the fakes under one lock. The claim
// runs first so a losing double-claim aborts without crediting, mirroring the
// real store's transaction rollback.
type FakePayoutStore struct {
	mu       sync.Mutex
	Accounts *FakeAccountRepo
	Ledger   *FakeLedgerRepo
	Applied  []payout.ApplyRequest
}

func NewFakePayoutStore(accounts *FakeAccountRepo, ledgerRepo *FakeLedgerRepo) *FakePayoutStore {
	return &FakePayoutStore{Accounts: accounts, Ledger: ledgerRepo}
}

func (f *FakePayoutStore) Apply(ctx context.Context, req payout.ApplyRequest, claim payout.ClaimFunc) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	bonusTxID := uuid.New().String()
	if claim != nil {
		if err := claim(nil, bonusTxID); err != nil {
			return "", err
		}
	}
	if err := f.Accounts.CreditWallet(ctx, nil, req.AccountID, req.Amount); err != nil {
		return "", err
	}
	if err := f.Ledger.CreateApproved(ctx, nil, &ledger.Transaction{
		TransactionID: bonusTxID,
		AccountID:     req.AccountID,
		Type:          ledger.TypeBonus,
		Amount:        req.Amount,
		Source:        req.Source,
		Note:          req.Note,
	}); err != nil {
		return "", err
	}
	f.Applied = append(f.Applied, req)
	return bonusTxID, nil
}
