package account

import (
	"time"

	"github.com/shopspring/decimal"
)

type Account struct {
	AccountID        string          `gorm:"column:account_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	Username         string          `gorm:"column:username;type:varchar(64);not null;uniqueIndex"`
	ReferrerID       *string         `gorm:"column:referrer_id;type:uuid;index"`
	WalletBalance    decimal.Decimal `gorm:"column:wallet_balance;type:numeric(20,4);not null;default:0"`
	Turnover         decimal.Decimal `gorm:"column:turnover;type:numeric(20,2);not null;default:0"`
	VIPLevel         int             `gorm:"column:vip_level;not null;default:0"`
	AgentLevel       int             `gorm:"column:agent_level;not null;default:0"`
	PositionTaking   decimal.Decimal `gorm:"column:position_taking;type:numeric(5,2);not null;default:0"` // >0 excludes the agent from winlose commission
	WithdrawalLocked bool            `gorm:"column:withdrawal_locked;not null;default:false"`
	DuplicateIP      bool            `gorm:"column:duplicate_ip;not null;default:false"`
	CreatedAt        time.Time       `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;not null;default:now()"`
}

func (Account) TableName() string {
	return "accounts"
}
