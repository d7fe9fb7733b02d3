package rebate

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

var (
	ErrLogNotFound    = errors.New("rebate log not found")
	ErrAlreadyClaimed = errors.New("rebate log already claimed")
)

type Repository interface {
	Create(ctx context.Context, entry *Log) error
	GetByID(ctx context.Context, logID string) (*Log, error)
	ForPeriod(ctx context.Context, accountID string, periodStart time.Time, mode string) (*Log, error)
	Unclaimed(ctx context.Context, accountID string, limit int) ([]Log, error)
	MarkClaimed(ctx context.Context, tx *gorm.DB, logID string, claimedBy string, bonusTxID string) error
}

type GameLogRepository interface {
	Record(ctx context.Context, entries []GameLog) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	History(ctx context.Context, accountID string, from, to time.Time) ([]GameLog, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepositoryImpl(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) Create(ctx context.Context, entry *Log) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *RepositoryImpl) GetByID(ctx context.Context, logID string) (*Log, error) {
	var entry Log
	err := r.db.WithContext(ctx).Where("log_id = ?", logID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}
	return &entry, nil
}

func (r *RepositoryImpl) ForPeriod(ctx context.Context, accountID string, periodStart time.Time, mode string) (*Log, error) {
	var entry Log
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND period_start = ? AND mode = ?", accountID, periodStart, mode).
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *RepositoryImpl) Unclaimed(ctx context.Context, accountID string, limit int) ([]Log, error) {
	query := r.db.WithContext(ctx).Where("claimed = false")
	if accountID != "" {
		query = query.Where("account_id = ?", accountID)
	}
	var logs []Log
	err := query.Order("created_at DESC").Limit(limit).Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}

func (r *RepositoryImpl) MarkClaimed(ctx context.Context, tx *gorm.DB, logID string, claimedBy string, bonusTxID string) error {
	if tx == nil {
		tx = r.db
	}
	result := tx.WithContext(ctx).Model(&Log{}).
		Where("log_id = ? AND claimed = false", logID).
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

type GameLogRepositoryImpl struct {
	db *gorm.DB
}

func NewGameLogRepositoryImpl(db *gorm.DB) GameLogRepository {
	return &GameLogRepositoryImpl{db: db}
}

func (r *GameLogRepositoryImpl) Record(ctx context.Context, entries []GameLog) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&entries).Error
}

func (r *GameLogRepositoryImpl) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("day < ?", cutoff).Delete(&GameLog{})
	return result.RowsAffected, result.Error
}

func (r *GameLogRepositoryImpl) History(ctx context.Context, accountID string, from, to time.Time) ([]GameLog, error) {
	var logs []GameLog
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND day >= ? AND day < ?", accountID, from, to).
		Order("day DESC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
