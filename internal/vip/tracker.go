package vip

import (
	"context"
	"log"

	"settlement_service/internal/account"

	"github.com/shopspring/decimal"
)

// Progress reports the outcome of applying turnover to an account.
type Progress struct {
	AccountID   string
	NewTurnover decimal.Decimal
	OldLevel    int
	NewLevel    int
	Promoted    bool
}

// Tracker applies wagering turnover to accounts and promotes their VIP tier
// when a threshold is crossed. It runs inline with bet ingestion, so the cheap
// path (cached next threshold not reached) only issues a single atomic
// turnover increment.
type Tracker struct {
	accounts account.Repository
	table    *Table
	cache    *Checkpoint
}

func NewTracker(accounts account.Repository, table *Table, cache *Checkpoint) *Tracker {
	return &Tracker{accounts: accounts, table: table, cache: cache}
}

func (t *Tracker) ApplyTurnover(ctx context.Context, accountID string, betAmount decimal.Decimal) (*Progress, error) {
	betAmount = betAmount.Round(2)
	if betAmount.LessThanOrEqual(decimal.Zero) {
		acct, err := t.accounts.GetByID(ctx, accountID)
		if err != nil {
			return nil, err
		}
		return &Progress{AccountID: accountID, NewTurnover: acct.Turnover, OldLevel: acct.VIPLevel, NewLevel: acct.VIPLevel}, nil
	}

	entry, ok := t.cache.get(accountID)
	if ok {
		newTurnover := entry.lastCheckedTurnover.Add(betAmount).Round(2)
		if entry.atTopTier || newTurnover.LessThan(entry.nextThreshold) {
			// Cheap path: no tier boundary crossed, increment only.
			if err := t.accounts.AddTurnover(ctx, accountID, betAmount); err != nil {
				return nil, err
			}
			entry.lastCheckedTurnover = newTurnover
			t.cache.set(accountID, entry)
			return &Progress{
				AccountID:   accountID,
				NewTurnover: newTurnover,
				OldLevel:    entry.level,
				NewLevel:    entry.level,
			}, nil
		}
	}

	// Cold cache or threshold reached: re-evaluate against the canonical
	// persisted turnover.
	acct, err := t.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	newTurnover := acct.Turnover.Add(betAmount).Round(2)
	tier := t.table.TierFor(newTurnover)

	if tier.Level != acct.VIPLevel {
		if err := t.accounts.UpdateTurnoverAndVIP(ctx, accountID, newTurnover, tier.Level); err != nil {
			return nil, err
		}
		log.Printf("vip promotion: account=%s turnover=%s level=%d->%d", accountID, newTurnover.String(), acct.VIPLevel, tier.Level)
	} else {
		if err := t.accounts.AddTurnover(ctx, accountID, betAmount); err != nil {
			return nil, err
		}
	}

	next, hasNext := t.table.NextThreshold(newTurnover)
	t.cache.set(accountID, checkpointEntry{
		lastCheckedTurnover: newTurnover,
		nextThreshold:       next,
		level:               tier.Level,
		atTopTier:           !hasNext,
	})

	return &Progress{
		AccountID:   accountID,
		NewTurnover: newTurnover,
		OldLevel:    acct.VIPLevel,
		NewLevel:    tier.Level,
		Promoted:    tier.Level != acct.VIPLevel,
	}, nil
}
