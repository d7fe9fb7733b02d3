package rebate

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ModeWinLose  = "winlose"
	ModeTurnover = "turnover"
)

// Log is one computed rebate opportunity for an ordinary user.
type Log struct {
	LogID       string          `gorm:"column:log_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	AccountID   string          `gorm:"column:account_id;type:uuid;not null;index"`
	Mode        string          `gorm:"column:mode;type:varchar(16);not null"`
	Amount      decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	Formula     string          `gorm:"column:formula;type:text"`
	PeriodStart time.Time       `gorm:"column:period_start;not null;index"`
	PeriodEnd   time.Time       `gorm:"column:period_end;not null"`
	Claimed     bool            `gorm:"column:claimed;not null;default:false"`
	ClaimedBy   string          `gorm:"column:claimed_by;type:varchar(64)"`
	ClaimedAt   *time.Time      `gorm:"column:claimed_at"`
	BonusTxID   string          `gorm:"column:bonus_tx_id;type:varchar(64)"`
	CreatedAt   time.Time       `gorm:"column:created_at;not null;default:now()"`
}

func (Log) TableName() string {
	return "rebate_logs"
}

// GameLog is one account's daily turnover in one category, kept as a rolling
// two-month history.
type GameLog struct {
	GameLogID string          `gorm:"column:game_log_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	AccountID string          `gorm:"column:account_id;type:uuid;not null;index:idx_game_log_day"`
	Day       time.Time       `gorm:"column:day;not null;index:idx_game_log_day"`
	Category  string          `gorm:"column:category;type:varchar(32);not null"`
	Turnover  decimal.Decimal `gorm:"column:turnover;type:numeric(20,2);not null"`
	WinLoss   decimal.Decimal `gorm:"column:win_loss;type:numeric(20,2);not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;not null;default:now()"`
}

func (GameLog) TableName() string {
	return "game_logs"
}

// HistoryRetention bounds the per-user game history window.
const HistoryRetention = 2 // months

type Config struct {
	Mode     string
	FlatRate decimal.Decimal // winlose mode
}

type RunSummary struct {
	Mode        string    `json:"mode"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Users       int       `json:"users"`
	Logs        int       `json:"logs"`
	Applied     int       `json:"applied"`
	Suppressed  int       `json:"suppressed"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
}
