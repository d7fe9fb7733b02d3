package commission

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrReportNotFound = errors.New("commission report not found")
	ErrAlreadyClaimed = errors.New("commission report already claimed")
)

type Repository interface {
	Create(ctx context.Context, report *Report) error
	GetByID(ctx context.Context, reportID string) (*Report, error)
	AgentReportsForPeriod(ctx context.Context, agentID string, periodStart time.Time, mode string) ([]Report, error)
	Unclaimed(ctx context.Context, agentID string, limit int) ([]Report, error)
	MarkClaimed(ctx context.Context, tx *gorm.DB, reportID string, claimedBy string, bonusTxID string) error
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepositoryImpl(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Create(ctx context.Context, report *Report) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *RepositoryImpl) GetByID(ctx context.Context, reportID string) (*Report, error) {
	var report Report
	err := r.db.WithContext(ctx).Where("report_id = ?", reportID).First(&report).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	return &report, nil
}

func (r *RepositoryImpl) AgentReportsForPeriod(ctx context.Context, agentID string, periodStart time.Time, mode string) ([]Report, error) {
	var reports []Report
	err := r.db.WithContext(ctx).
		Where("agent_id = ? AND period_start = ? AND mode = ?", agentID, periodStart, mode).
		Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

func (r *RepositoryImpl) Unclaimed(ctx context.Context, agentID string, limit int) ([]Report, error) {
	query := r.db.WithContext(ctx).Where("claimed = false")
	if agentID != "" {
		query = query.Where("agent_id = ?", agentID)
	}
	var reports []Report
	err := query.Order("created_at DESC").Limit(limit).Find(&reports).Error
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// MarkClaimed flips claimed false->true exactly once. The guard on claimed
// makes double claims lose with ErrAlreadyClaimed instead of double-paying.
func (r *RepositoryImpl) MarkClaimed(ctx context.Context, tx *gorm.DB, reportID string, claimedBy string, bonusTxID string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Model(&Report{}).
		Where("report_id = ? AND claimed = false", reportID).
		Updates(map[string]interface{}{
			"claimed":     true,
			"claimed_by":  claimedBy,
			"claimed_at":  time.Now(),
			"bonus_tx_id": bonusTxID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyClaimed
	}
	return nil
}
