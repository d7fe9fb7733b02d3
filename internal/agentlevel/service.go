package agentlevel

import (
	"context"
	"fmt"
	"log"

	"settlement_service/internal/kiosk"

	"github.com/shopspring/decimal"
)

// Result reports one re-evaluation. When nothing new qualifies it is a pure
// no-op: OldLevel == NewLevel and BonusAwarded is zero.
type Result struct {
	AgentID                string
	OldLevel               int
	NewLevel               int
	BonusAwarded           decimal.Decimal
	QualifiedDownlineCount int
}

// DownlineSource supplies the agent record and its direct downlines.
type DownlineSource interface {
	AgentWithDownlines(ctx context.Context, agentID string) (currentLevel int, downlineVIPLevels []int, err error)
}

// Store persists a level-up award: wallet credit, level update and wallet log
// in one storage transaction.
type Store interface {
	AwardLevelUp(ctx context.Context, agentID string, level int, bonus decimal.Decimal, note string) error
}

// Service awards one-time level-up bonuses when an agent's downline quality
// crosses a requirement row. The kiosk debit funds the bonus and must succeed
// before any state changes.
type Service struct {
	source DownlineSource
	table  *Table
	store  Store
	kiosk  kiosk.Client
}

func NewService(source DownlineSource, table *Table, store Store, kioskClient kiosk.Client) *Service {
	return &Service{source: source, table: table, store: store, kiosk: kioskClient}
}

func (s *Service) Reevaluate(ctx context.Context, agentID string) (*Result, error) {
	currentLevel, downlineVIPs, err := s.source.AgentWithDownlines(ctx, agentID)
	if err != nil {
		return nil, err
	}

	result := &Result{AgentID: agentID, OldLevel: currentLevel, NewLevel: currentLevel}

	// Ascending pass; a later, higher qualifying requirement overrides an
	// earlier candidate.
	var winner *Requirement
	for _, req := range s.table.Requirements() {
		qualified := 0
		for _, vip := range downlineVIPs {
			if vip >= req.RequiredVIPLevel {
				qualified++
			}
		}
		if qualified >= req.RequiredCount && req.Level > currentLevel {
			r := req
			winner = &r
			result.QualifiedDownlineCount = qualified
		}
	}
	if winner == nil {
		return result, nil
	}

	note := fmt.Sprintf("agent level up %d->%d", currentLevel, winner.Level)
	if winner.Bonus.GreaterThan(decimal.Zero) {
		if _, err := s.kiosk.AdjustBalance(ctx, kiosk.DirectionOut, winner.Bonus, note); err != nil {
			return nil, fmt.Errorf("level-up funding debit failed: %w", err)
		}
	}
	if err := s.store.AwardLevelUp(ctx, agentID, winner.Level, winner.Bonus, note); err != nil {
		return nil, err
	}

	result.NewLevel = winner.Level
	result.BonusAwarded = winner.Bonus
	log.Printf("agent level up: agent=%s level=%d->%d bonus=%s qualified=%d",
		agentID, currentLevel, winner.Level, winner.Bonus.String(), result.QualifiedDownlineCount)
	return result, nil
}
