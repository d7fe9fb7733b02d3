package commission

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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service computes periodic agent commission over the previous completed ISO
// week. Re-running a window is safe: agents whose reports are already claimed
// are skipped, unclaimed reports just get another payout attempt.
type Service struct {
	accounts account.Repository
	ledger   ledger.Repository
	reports  Repository
	feed     gamefeed.Client
	payouts  *payout.Service
	cfg      Config
}

func NewService(accounts account.Repository, ledgerRepo ledger.Repository, reports Repository, feed gamefeed.Client, payouts *payout.Service, cfg Config) *Service {
	return &Service{accounts: accounts, ledger: ledgerRepo, reports: reports, feed: feed, payouts: payouts, cfg: cfg}
}

// Run dispatches to the configured calculation mode.
func (s *Service) Run(ctx context.Context, now time.Time) (*RunSummary, error) {
	switch s.cfg.Mode {
	case ModeTurnover:
		return s.RunTurnover(ctx, now)
	default:
		return s.RunWinLose(ctx, now)
	}
}

// RunWinLose settles agents on net downline deposit-minus-withdraw. Agents
// with a position-taking percentage are excluded entirely; they belong to the
// separate profit-sharing track.
func (s *Service) RunWinLose(ctx context.Context, now time.Time) (*RunSummary, error) {
	from, to := period.PreviousISOWeek(now)
	summary := &RunSummary{Mode: ModeWinLose, PeriodStart: from, PeriodEnd: to}

	agents, err := s.accounts.GetAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load agents: %w", err)
	}
	summary.Agents = len(agents)

	for _, agent := range agents {
		if err := s.settleAgentWinLose(ctx, &agent, from, to, summary); err != nil {
			summary.Failed++
			log.Printf("commission winlose: agent=%s failed: %v", agent.AccountID, err)
		}
	}
	log.Printf("commission winlose run: window=%s..%s agents=%d reports=%d applied=%d skipped=%d failed=%d",
		from.Format("2006-01-02"), to.Format("2006-01-02"),
		summary.Agents, summary.Reports, summary.Applied, summary.Skipped, summary.Failed)
	return summary, nil
}

func (s *Service) settleAgentWinLose(ctx context.Context, agent *account.Account, from, to time.Time, summary *RunSummary) error {
	existing, err := s.reports.AgentReportsForPeriod(ctx, agent.AccountID, from, ModeWinLose)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		// Already computed for this window; only retry the payout of an
		// unclaimed report, and only while the auto-payout policy still
		// allows it. A report left claimable for a manual admin claim stays
		// claimable across re-runs.
		for _, rep := range existing {
			if rep.Claimed || rep.Amount.LessThanOrEqual(decimal.Zero) {
				summary.Skipped++
				continue
			}
			if !payout.AutoApplicable(agent.WalletBalance) {
				summary.Skipped++
				continue
			}
			if err := s.applyReport(ctx, agent, rep); err != nil {
				return err
			}
			summary.Applied++
		}
		return nil
	}

	downlines, err := s.accounts.GetDownlines(ctx, agent.AccountID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(downlines))
	names := make(map[string]string, len(downlines))
	for _, d := range downlines {
		ids = append(ids, d.AccountID)
		names[d.AccountID] = d.Username
	}
	totals, err := s.ledger.ActivityTotals(ctx, ids, from, to)
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		summary.Skipped++
		return nil
	}

	net := decimal.Zero
	var lines []string
	for _, id := range ids {
		t, ok := totals[id]
		if !ok {
			continue
		}
		downlineNet := t.Deposit.Sub(t.Withdraw)
		net = net.Add(downlineNet)
		lines = append(lines, fmt.Sprintf("%s: deposit %s - withdraw %s = %s",
			names[id], t.Deposit.StringFixed(2), t.Withdraw.StringFixed(2), downlineNet.StringFixed(2)))
	}

	amount := decimal.Zero
	if net.GreaterThan(decimal.Zero) {
		amount = net.Mul(s.cfg.FlatRate).Round(2)
	}
	formula := fmt.Sprintf("%s\nnet winlose %s x rate %s = %s",
		strings.Join(lines, "\n"), net.StringFixed(2), s.cfg.FlatRate.String(), amount.StringFixed(2))

	report := Report{
		ReportID:    uuid.New().String(),
		AgentID:     agent.AccountID,
		Mode:        ModeWinLose,
		Amount:      amount,
		Total:       amount,
		Formula:     formula,
		PeriodStart: from,
		PeriodEnd:   to,
	}
	if err := s.reports.Create(ctx, &report); err != nil {
		return err
	}
	summary.Reports++

	if amount.LessThanOrEqual(decimal.Zero) {
		summary.Skipped++
		return nil
	}
	if !payout.AutoApplicable(agent.WalletBalance) {
		// Left claimable for a manual admin claim.
		summary.Skipped++
		return nil
	}
	if err := s.applyReport(ctx, agent, report); err != nil {
		return err
	}
	summary.Applied++
	return nil
}

func (s *Service) applyReport(ctx context.Context, agent *account.Account, report Report) error {
	_, err := s.payouts.Apply(ctx, payout.ApplyRequest{
		AccountID: agent.AccountID,
		Amount:    report.Amount,
		Source:    ledger.SourceCommission,
		Reference: report.ReportID,
		Note:      report.Formula,
		ClaimedBy: "system",
	}, func(tx *gorm.DB, bonusTxID string) error {
		return s.reports.MarkClaimed(ctx, tx, report.ReportID, "system", bonusTxID)
	})
	return err
}

// RunTurnover settles agents on downline category turnover. Each user's
// turnover contributes to every ancestor up to the configured depth, at that
// ancestor's per-level category rate.
func (s *Service) RunTurnover(ctx context.Context, now time.Time) (*RunSummary, error) {
	from, to := period.PreviousISOWeek(now)
	summary := &RunSummary{Mode: ModeTurnover, PeriodStart: from, PeriodEnd: to}

	rows, err := s.feed.RangeTurnover(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("turnover feed unavailable: %w", err)
	}

	byUser := make(map[string]map[string]decimal.Decimal)
	for _, row := range rows {
		if byUser[row.AccountID] == nil {
			byUser[row.AccountID] = make(map[string]decimal.Decimal)
		}
		byUser[row.AccountID][row.Category] = byUser[row.AccountID][row.Category].Add(row.Turnover)
	}

	agentTotals := make(map[string]decimal.Decimal)
	// agent -> downline -> category -> earned commission
	pairs := make(map[string]map[string]map[string]decimal.Decimal)

	for userID, categories := range byUser {
		chain, err := s.accounts.UplineChain(ctx, userID, s.cfg.MaxUplineDepth)
		if err != nil {
			if errors.Is(err, account.ErrReferralCycle) {
				summary.Failed++
				log.Printf("commission turnover: referral cycle at account=%s, skipping", userID)
				continue
			}
			if errors.Is(err, account.ErrAccountNotFound) {
				summary.Skipped++
				continue
			}
			return nil, err
		}
		for depth, ancestor := range chain {
			rates := s.cfg.LevelRates[depth+1]
			if rates == nil {
				continue
			}
			for category, turnover := range categories {
				rate, ok := rates[category]
				if !ok {
					continue
				}
				earned := turnover.Mul(rate).Round(2)
				if earned.LessThanOrEqual(decimal.Zero) {
					continue
				}
				if pairs[ancestor.AccountID] == nil {
					pairs[ancestor.AccountID] = make(map[string]map[string]decimal.Decimal)
				}
				if pairs[ancestor.AccountID][userID] == nil {
					pairs[ancestor.AccountID][userID] = make(map[string]decimal.Decimal)
				}
				pairs[ancestor.AccountID][userID][category] = pairs[ancestor.AccountID][userID][category].Add(earned)
				agentTotals[ancestor.AccountID] = agentTotals[ancestor.AccountID].Add(earned)
			}
		}
	}
	summary.Agents = len(agentTotals)

	for agentID, downlineMap := range pairs {
		if err := s.settleAgentTurnover(ctx, agentID, downlineMap, agentTotals[agentID], from, to, summary); err != nil {
			summary.Failed++
			log.Printf("commission turnover: agent=%s failed: %v", agentID, err)
		}
	}
	log.Printf("commission turnover run: window=%s..%s agents=%d reports=%d applied=%d skipped=%d failed=%d",
		from.Format("2006-01-02"), to.Format("2006-01-02"),
		summary.Agents, summary.Reports, summary.Applied, summary.Skipped, summary.Failed)
	return summary, nil
}

func (s *Service) settleAgentTurnover(ctx context.Context, agentID string, downlineMap map[string]map[string]decimal.Decimal, total decimal.Decimal, from, to time.Time, summary *RunSummary) error {
	existing, err := s.reports.AgentReportsForPeriod(ctx, agentID, from, ModeTurnover)
	if err != nil {
		return err
	}
	for _, rep := range existing {
		if rep.Claimed {
			summary.Skipped++
			return nil
		}
	}

	reportIDs := make([]string, 0, len(downlineMap))
	if len(existing) > 0 {
		// Reports were written by a previous attempt whose payout failed;
		// retry the payout against them instead of duplicating rows.
		for _, rep := range existing {
			reportIDs = append(reportIDs, rep.ReportID)
		}
	} else {
		for downlineID, categories := range downlineMap {
			pairAmount := decimal.Zero
			cats := make([]string, 0, len(categories))
			for c := range categories {
				cats = append(cats, c)
			}
			sort.Strings(cats)
			var lines []string
			for _, c := range cats {
				pairAmount = pairAmount.Add(categories[c])
				lines = append(lines, fmt.Sprintf("%s: %s", c, categories[c].StringFixed(2)))
			}
			report := Report{
				ReportID:    uuid.New().String(),
				AgentID:     agentID,
				DownlineID:  downlineID,
				Mode:        ModeTurnover,
				Amount:      pairAmount,
				Total:       total,
				Formula:     strings.Join(lines, "; "),
				PeriodStart: from,
				PeriodEnd:   to,
			}
			if err := s.reports.Create(ctx, &report); err != nil {
				return err
			}
			reportIDs = append(reportIDs, report.ReportID)
			summary.Reports++
		}
	}

	if total.LessThanOrEqual(decimal.Zero) {
		summary.Skipped++
		return nil
	}
	// One wallet credit per agent regardless of how many downline reports
	// back it; all the reports are claimed in the same transaction.
	_, err = s.payouts.Apply(ctx, payout.ApplyRequest{
		AccountID: agentID,
		Amount:    total,
		Source:    ledger.SourceCommission,
		Reference: reportIDs[0],
		Note:      fmt.Sprintf("turnover commission, %d downline reports", len(reportIDs)),
		ClaimedBy: "system",
	}, func(tx *gorm.DB, bonusTxID string) error {
		for _, id := range reportIDs {
			if err := s.reports.MarkClaimed(ctx, tx, id, "system", bonusTxID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	summary.Applied++
	return nil
}

// Claim pays out a claimable report on behalf of an admin operator.
func (s *Service) Claim(ctx context.Context, reportID string, adminID string) error {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return err
	}
	if report.Claimed {
		return ErrAlreadyClaimed
	}
	_, err = s.payouts.Apply(ctx, payout.ApplyRequest{
		AccountID: report.AgentID,
		Amount:    report.Amount,
		Source:    ledger.SourceCommission,
		Reference: report.ReportID,
		Note:      report.Formula,
		ClaimedBy: adminID,
	}, func(tx *gorm.DB, bonusTxID string) error {
		return s.reports.MarkClaimed(ctx, tx, report.ReportID, adminID, bonusTxID)
	})
	return err
}
