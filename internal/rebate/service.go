package rebate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"settlement_service/internal/account"
	"settlement_service/internal/gamefeed"
	"settlement_service/internal/ledger"
	"settlement_service/internal/payout"
	"settlement_service/internal/period"
	"settlement_service/internal/vip"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// minAutoRebate suppresses sub-unit winlose rebates entirely; they are not
// queued for later.
var minAutoRebate = decimal.NewFromInt(1)

// Service computes periodic user rebates. Winlose mode settles weekly on net
// loss; turnover mode settles daily on category turnover at the user's VIP
// tier rates, feeding the VIP progression tracker along the way.
type Service struct {
	accounts account.Repository
	ledger   ledger.Repository
	logs     Repository
	gameLogs GameLogRepository
	feed     gamefeed.Client
	payouts  *payout.Service
	tracker  *vip.Tracker
	tiers    *vip.Table
	cfg      Config
}

func NewService(accounts account.Repository, ledgerRepo ledger.Repository, logs Repository, gameLogs GameLogRepository, feed gamefeed.Client, payouts *payout.Service, tracker *vip.Tracker, tiers *vip.Table, cfg Config) *Service {
	return &Service{
		accounts: accounts,
		ledger:   ledgerRepo,
		logs:     logs,
		gameLogs: gameLogs,
		feed:     feed,
		payouts:  payouts,
		tracker:  tracker,
		tiers:    tiers,
		cfg:      cfg,
	}
}

func (s *Service) Run(ctx context.Context, now time.Time) (*RunSummary, error) {
	switch s.cfg.Mode {
	case ModeTurnover:
		return s.RunTurnover(ctx, now)
	default:
		return s.RunWinLose(ctx, now)
	}
}

// RunWinLose pays a flat rate on positive net deposit-minus-withdraw over the
// previous ISO week.
func (s *Service) RunWinLose(ctx context.Context, now time.Time) (*RunSummary, error) {
	from, to := period.PreviousISOWeek(now)
	summary := &RunSummary{Mode: ModeWinLose, PeriodStart: from, PeriodEnd: to}

	totals, err := s.ledger.ActivityTotals(ctx, nil, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate activity: %w", err)
	}
	summary.Users = len(totals)

	for accountID, t := range totals {
		if err := s.settleWinLose(ctx, accountID, t, from, to, summary); err != nil {
			summary.Failed++
			log.Printf("rebate winlose: account=%s failed: %v", accountID, err)
		}
	}
	log.Printf("rebate winlose run: window=%s..%s users=%d logs=%d applied=%d suppressed=%d skipped=%d failed=%d",
		from.Format("2006-01-02"), to.Format("2006-01-02"),
		summary.Users, summary.Logs, summary.Applied, summary.Suppressed, summary.Skipped, summary.Failed)
	return summary, nil
}

func (s *Service) settleWinLose(ctx context.Context, accountID string, t ledger.ActivityTotals, from, to time.Time, summary *RunSummary) error {
	net := t.Deposit.Sub(t.Withdraw)
	if net.LessThanOrEqual(decimal.Zero) {
		summary.Skipped++
		return nil
	}
	amount := net.Mul(s.cfg.FlatRate).Round(2)
	if amount.LessThan(minAutoRebate) {
		summary.Suppressed++
		return nil
	}

	existing, err := s.logs.ForPeriod(ctx, accountID, from, ModeWinLose)
	if err != nil {
		return err
	}
	if existing != nil && existing.Claimed {
		summary.Skipped++
		return nil
	}

	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			summary.Skipped++
			log.Printf("rebate winlose: account=%s missing, skipping", accountID)
			return nil
		}
		return err
	}

	entry := existing
	if entry == nil {
		entry = &Log{
			LogID:       uuid.New().String(),
			AccountID:   accountID,
			Mode:        ModeWinLose,
			Amount:      amount,
			Formula:     fmt.Sprintf("net winlose %s x rate %s = %s", net.StringFixed(2), s.cfg.FlatRate.String(), amount.StringFixed(2)),
			PeriodStart: from,
			PeriodEnd:   to,
		}
		if err := s.logs.Create(ctx, entry); err != nil {
			return err
		}
		summary.Logs++
	}

	if !payout.AutoApplicable(acct.WalletBalance) {
		summary.Skipped++
		return nil
	}
	if err := s.applyLog(ctx, entry, "system"); err != nil {
		return err
	}
	summary.Applied++
	return nil
}

// RunTurnover settles the previous day's feed: per user it records the daily
// game history, advances cumulative turnover through the VIP tracker, and
// auto-applies the tier-rate rebate. A kiosk failure aborts only that user.
func (s *Service) RunTurnover(ctx context.Context, now time.Time) (*RunSummary, error) {
	from, to := period.PreviousDay(now)
	summary := &RunSummary{Mode: ModeTurnover, PeriodStart: from, PeriodEnd: to}

	rows, err := s.feed.DailyTurnover(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("turnover feed unavailable: %w", err)
	}

	byUser := make(map[string][]gamefeed.CategoryTurnover)
	for _, row := range rows {
		byUser[row.AccountID] = append(byUser[row.AccountID], row)
	}
	summary.Users = len(byUser)

	cutoff := from.AddDate(0, -HistoryRetention, 0)
	if pruned, err := s.gameLogs.PruneBefore(ctx, cutoff); err != nil {
		log.Printf("rebate turnover: history prune failed: %v", err)
	} else if pruned > 0 {
		log.Printf("rebate turnover: pruned %d game log rows before %s", pruned, cutoff.Format("2006-01-02"))
	}

	for accountID, userRows := range byUser {
		if err := s.settleTurnover(ctx, accountID, userRows, from, to, summary); err != nil {
			summary.Failed++
			log.Printf("rebate turnover: account=%s failed: %v", accountID, err)
		}
	}
	log.Printf("rebate turnover run: day=%s users=%d logs=%d applied=%d skipped=%d failed=%d",
		from.Format("2006-01-02"), summary.Users, summary.Logs, summary.Applied, summary.Skipped, summary.Failed)
	return summary, nil
}

func (s *Service) settleTurnover(ctx context.Context, accountID string, rows []gamefeed.CategoryTurnover, from, to time.Time, summary *RunSummary) error {
	existing, err := s.logs.ForPeriod(ctx, accountID, from, ModeTurnover)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Claimed {
			// Day already settled for this user; safe re-run.
			summary.Skipped++
			return nil
		}
		// The day's turnover and game history were already recorded by a
		// previous attempt whose payout failed; retry the payout only, the
		// cumulative turnover must not advance twice.
		if err := s.applyLog(ctx, existing, "system"); err != nil {
			return err
		}
		summary.Applied++
		return nil
	}

	totalBet := decimal.Zero
	entries := make([]GameLog, 0, len(rows))
	for _, row := range rows {
		totalBet = totalBet.Add(row.Turnover)
		entries = append(entries, GameLog{
			GameLogID: uuid.New().String(),
			AccountID: accountID,
			Day:       from,
			Category:  row.Category,
			Turnover:  row.Turnover,
			WinLoss:   row.WinLoss,
		})
	}

	progress, err := s.tracker.ApplyTurnover(ctx, accountID, totalBet)
	if err != nil {
		if errors.Is(err, account.ErrAccountNotFound) {
			summary.Skipped++
			log.Printf("rebate turnover: account=%s missing, skipping", accountID)
			return nil
		}
		return err
	}
	if err := s.gameLogs.Record(ctx, entries); err != nil {
		return err
	}

	amount := decimal.Zero
	cats := make([]string, 0, len(rows))
	byCategory := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		if _, ok := byCategory[row.Category]; !ok {
			cats = append(cats, row.Category)
		}
		byCategory[row.Category] = byCategory[row.Category].Add(row.Turnover)
	}
	sort.Strings(cats)
	var lines []string
	for _, c := range cats {
		pct := s.tiers.RebatePercent(progress.NewLevel, c)
		earned := byCategory[c].Mul(pct).Round(2)
		amount = amount.Add(earned)
		lines = append(lines, fmt.Sprintf("%s %s x %s%% = %s", c, byCategory[c].StringFixed(2), pct.Mul(decimal.NewFromInt(100)).String(), earned.StringFixed(2)))
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		summary.Skipped++
		return nil
	}

	entry := &Log{
		LogID:       uuid.New().String(),
		AccountID:   accountID,
		Mode:        ModeTurnover,
		Amount:      amount,
		Formula:     strings.Join(lines, "; "),
		PeriodStart: from,
		PeriodEnd:   to,
	}
	if err := s.logs.Create(ctx, entry); err != nil {
		return err
	}
	summary.Logs++

	// Turnover-mode rebates have no claimable split; they always auto-apply.
	if err := s.applyLog(ctx, entry, "system"); err != nil {
		return err
	}
	summary.Applied++
	return nil
}

func (s *Service) applyLog(ctx context.Context, entry *Log, claimedBy string) error {
	_, err := s.payouts.Apply(ctx, payout.ApplyRequest{
		AccountID: entry.AccountID,
		Amount:    entry.Amount,
		Source:    ledger.SourceRebate,
		Reference: entry.LogID,
		Note:      entry.Formula,
		ClaimedBy: claimedBy,
	}, func(tx *gorm.DB, bonusTxID string) error {
		return s.logs.MarkClaimed(ctx, tx, entry.LogID, claimedBy, bonusTxID)
	})
	return err
}

// Claim pays out a claimable rebate log on behalf of an admin operator.
func (s *Service) Claim(ctx context.Context, logID string, adminID string) error {
	entry, err := s.logs.GetByID(ctx, logID)
	if err != nil {
		return err
	}
	if entry.Claimed {
		return ErrAlreadyClaimed
	}
	return s.applyLog(ctx, entry, adminID)
}
