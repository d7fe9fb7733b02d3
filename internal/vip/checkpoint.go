package vip

import (
	"sync"

	"github.com/shopspring/decimal"
)

type checkpointEntry struct {
	lastCheckedTurnover decimal.Decimal
	nextThreshold       decimal.Decimal
	level               int
	atTopTier           bool
}

// Checkpoint is the tracker's per-account cache of the next tier threshold.
// It is process-local and best-effort only: the persisted account turnover is
// canonical, and a cold or stale entry just costs one extra tier evaluation.
type Checkpoint struct {
	mu      sync.Mutex
	entries map[string]checkpointEntry
}

func NewCheckpoint() *Checkpoint {
	return &Checkpoint{entries: make(map[string]checkpointEntry)}
}

func (c *Checkpoint) get(accountID string) (checkpointEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[accountID]
	return e, ok
}

func (c *Checkpoint) set(accountID string, e checkpointEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[accountID] = e
}

// Invalidate drops an account's entry, forcing a full re-evaluation on the
// next turnover application.
func (c *Checkpoint) Invalidate(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, accountID)
}
