package commission

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ModeWinLose  = "winlose"
	ModeTurnover = "turnover"
)

// Report is one computed commission opportunity. In winlose mode there is one
// report per agent and period; in turnover mode one per (agent, downline)
// pair, each carrying the agent's grand total for the period.
type Report struct {
	ReportID    string          `gorm:"column:report_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	AgentID     string          `gorm:"column:agent_id;type:uuid;not null;index"`
	DownlineID  string          `gorm:"column:downline_id;type:uuid;index"` // empty in winlose mode
	Mode        string          `gorm:"column:mode;type:varchar(16);not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	Total       decimal.Decimal `gorm:"column:total;type:numeric(20,2);not null"` // agent grand total for the period
	Formula     string          `gorm:"column:formula;type:text"`
	PeriodStart time.Time       `gorm:"column:period_start;not null;index"`
	PeriodEnd   time.Time       `gorm:"column:period_end;not null"`
	Claimed     bool            `gorm:"column:claimed;not null;default:false"`
	ClaimedBy   string          `gorm:"column:claimed_by;type:varchar(64)"`
	ClaimedAt   *time.Time      `gorm:"column:claimed_at"`
	BonusTxID   string          `gorm:"column:bonus_tx_id;type:varchar(64)"`
	CreatedAt   time.Time       `gorm:"column:created_at;not null;default:now()"`
}

func (Report) TableName() string {
	return "commission_reports"
}

// Config is the engine's read-only settlement schedule input.
type Config struct {
	Mode           string
	FlatRate       decimal.Decimal                    // winlose mode
	MaxUplineDepth int                                // turnover mode
	LevelRates     map[int]map[string]decimal.Decimal // level -> category -> rate
}

// RunSummary reports one engine run for logging and the manual trigger
// response.
type RunSummary struct {
	Mode        string    `json:"mode"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Agents      int       `json:"agents"`
	Reports     int       `json:"reports"`
	Applied     int       `json:"applied"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
}
