package promotion

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var ErrPromotionNotFound = errors.New("promotion not found")

type Repository interface {
	GetByID(ctx context.Context, promotionID string) (*Promotion, error)
}

type RepositoryImpl struct {
	db *gorm.DB
}

func NewRepositoryImpl(db *gorm.DB) Repository {
	return &RepositoryImpl{db: db}
}

func (r *RepositoryImpl) GetByID(ctx context.Context, promotionID string) (*Promotion, error) {
	var p Promotion
	err := r.db.WithContext(ctx).Where("promotion_id = ?", promotionID).First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPromotionNotFound
		}
		return nil, err
	}
	return &p, nil
}
