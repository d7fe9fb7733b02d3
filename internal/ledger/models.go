package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeDeposit    = "deposit"
	TypeWithdrawal = "withdrawal"
	TypeBonus      = "bonus"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// Payout sources recorded on engine-created bonus transactions.
const (
	SourceCommission = "commission"
	SourceRebate     = "rebate"
	SourceAgentLevel = "agent_level"
	SourcePromotion  = "promotion"
	SourceAdminClaim = "admin_claim"
)

type Transaction struct {
	TransactionID  string          `gorm:"column:transaction_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	AccountID      string          `gorm:"column:account_id;type:uuid;not null;index"`
	Type           string          `gorm:"column:type;type:varchar(16);not null;index"`
	Amount         decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"`
	WalletSnapshot decimal.Decimal `gorm:"column:wallet_snapshot;type:numeric(20,4);not null;default:0"`
	Status         string          `gorm:"column:status;type:varchar(16);not null;index"`
	Reverted       bool            `gorm:"column:reverted;not null;default:false"`
	ProcessedBy    string          `gorm:"column:processed_by;type:varchar(64)"`
	PromotionID    *string         `gorm:"column:promotion_id;type:uuid"`
	DepositID      *string         `gorm:"column:deposit_id;type:uuid"` // bonus granted against a specific deposit
	Source         string          `gorm:"column:source;type:varchar(32)"`
	Note           string          `gorm:"column:note;type:text"`
	CreatedAt      time.Time       `gorm:"column:created_at;not null;default:now();index"`
	ProcessedAt    *time.Time      `gorm:"column:processed_at"`
}

func (Transaction) TableName() string {
	return "transactions"
}

type WalletLog struct {
	LogID     string          `gorm:"column:log_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	AccountID string          `gorm:"column:account_id;type:uuid;not null;index"`
	Amount    decimal.Decimal `gorm:"column:amount;type:numeric(20,2);not null"` // positive = credit, negative = debit
	Reason    string          `gorm:"column:reason;type:varchar(32);not null"`
	Reference string          `gorm:"column:reference;type:varchar(64)"` // linked transaction or report id
	Note      string          `gorm:"column:note;type:text"`
	CreatedAt time.Time       `gorm:"column:created_at;not null;default:now()"`
}

func (WalletLog) TableName() string {
	return "wallet_logs"
}

// ActivityTotals holds per-account approved, non-reverted sums over a window.
type ActivityTotals struct {
	Deposit  decimal.Decimal
	Withdraw decimal.Decimal
	Bonus    decimal.Decimal
}
