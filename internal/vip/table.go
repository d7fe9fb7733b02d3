package vip

import (
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrInvalidTierTable = errors.New("tier thresholds must be strictly increasing")

// Tier is one row of the VIP progression table. RebatePercents maps a game
// category to the rebate percentage earned at this tier; an absent category
// earns nothing.
type Tier struct {
	Level           int
	Name            string
	Threshold       decimal.Decimal
	RebatePercents  map[string]decimal.Decimal
	WithdrawalLimit int // approved withdrawals allowed per day, 0 = unlimited
}

// Table holds the ordered tier list. It is hot-reloadable: Reload swaps the
// whole list under a write lock after validating the threshold ordering.
type Table struct {
	mu    sync.RWMutex
	tiers []Tier
}

func NewTable(tiers []Tier) (*Table, error) {
	t := &Table{}
	if err := t.Reload(tiers); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) Reload(tiers []Tier) error {
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	for i := 1; i < len(sorted); i++ {
		if !sorted[i].Threshold.GreaterThan(sorted[i-1].Threshold) {
			return ErrInvalidTierTable
		}
	}
	t.mu.Lock()
	t.tiers = sorted
	t.mu.Unlock()
	return nil
}

// TierFor returns the tier with the greatest threshold <= turnover, or the
// base tier when turnover is below every threshold.
func (t *Table) TierFor(turnover decimal.Decimal) Tier {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.tiers) == 0 {
		return Tier{}
	}
	// First index whose threshold exceeds turnover; the tier before it wins.
	idx := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].Threshold.GreaterThan(turnover)
	})
	if idx == 0 {
		return t.tiers[0]
	}
	return t.tiers[idx-1]
}

// NextThreshold returns the first threshold strictly above turnover. The
// second return is false when the turnover already sits at or past the top
// tier.
func (t *Table) NextThreshold(turnover decimal.Decimal) (decimal.Decimal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	idx := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].Threshold.GreaterThan(turnover)
	})
	if idx >= len(t.tiers) {
		return decimal.Zero, false
	}
	return t.tiers[idx].Threshold, true
}

// RebatePercent resolves the rebate percentage for a VIP level and category.
func (t *Table) RebatePercent(level int, category string) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, tier := range t.tiers {
		if tier.Level == level {
			if pct, ok := tier.RebatePercents[category]; ok {
				return pct
			}
			return decimal.Zero
		}
	}
	return decimal.Zero
}

// WithdrawalLimit resolves the per-day withdrawal count limit for a VIP level.
func (t *Table) WithdrawalLimit(level int) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, tier := range t.tiers {
		if tier.Level == level {
			return tier.WithdrawalLimit
		}
	}
	return 0
}
