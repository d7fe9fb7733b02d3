package promotion

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	ClaimTypePercentage = "percentage"
	ClaimTypeExact      = "exact"
)

const (
	RequirementTurnover = "turnover"
	RequirementWinover  = "winover"
)

// Promotion is a static per-campaign rule set. The catalog is read-only from
// the settlement core's point of view.
type Promotion struct {
	PromotionID     string          `gorm:"column:promotion_id;primaryKey;type:uuid;default:uuid_generate_v4()"`
	Name            string          `gorm:"column:name;type:varchar(128);not null"`
	ClaimType       string          `gorm:"column:claim_type;type:varchar(16);not null"`
	ClaimValue      decimal.Decimal `gorm:"column:claim_value;type:numeric(20,2);not null"`
	BonusCap        decimal.Decimal `gorm:"column:bonus_cap;type:numeric(20,2);not null;default:0"`
	RequirementType string          `gorm:"column:requirement_type;type:varchar(16);not null"`
	Multiplier      decimal.Decimal `gorm:"column:multiplier;type:numeric(10,2);not null;default:1"`
	Active          bool            `gorm:"column:active;not null;default:true"`
	CreatedAt       time.Time       `gorm:"column:created_at;not null;default:now()"`
}

func (Promotion) TableName() string {
	return "promotions"
}
