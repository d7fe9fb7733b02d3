package agentlevel

import (
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var ErrInvalidLevelTable = errors.New("agent level table must be strictly increasing by level")

// Requirement is one row of the agent level table: to reach Level, the agent
// needs RequiredCount direct downlines at VIP tier RequiredVIPLevel or above.
// Bonus is awarded once, on the first promotion to that level.
type Requirement struct {
	Level            int
	RequiredVIPLevel int
	RequiredCount    int
	Bonus            decimal.Decimal
}

// Table holds the ordered requirement list, hot-reloadable like the VIP tier
// table.
type Table struct {
	mu   sync.RWMutex
	rows []Requirement
}

func NewTable(rows []Requirement) (*Table, error) {
	t := &Table{}
	if err := t.Reload(rows); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) Reload(rows []Requirement) error {
	sorted := make([]Requirement, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Level <= sorted[i-1].Level {
			return ErrInvalidLevelTable
		}
	}
	t.mu.Lock()
	t.rows = sorted
	t.mu.Unlock()
	return nil
}

// Requirements returns the rows in ascending level order.
func (t *Table) Requirements() []Requirement {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rows := make([]Requirement, len(t.rows))
	copy(rows, t.rows)
	return rows
}
