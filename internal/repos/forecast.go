package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/types"
)

type ForecastRepo interface {
	Create(ctx context.Context, tx *gorm.DB, row *types.Forecast) error
	GetLatestByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Forecast, error)
	GetHistoryByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.Forecast, error)
}

type forecastRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewForecastRepo(db *gorm.DB, baseLog *logger.Logger) ForecastRepo {
	return &forecastRepo{db: db, log: baseLog.With("repo", "ForecastRepo")}
}

func (r *forecastRepo) Create(ctx context.Context, tx *gorm.DB, row *types.Forecast) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil {
		return nil
	}
	return transaction.WithContext(ctx).Create(row).Error
}

func (r *forecastRepo) GetLatestByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.Forecast, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}

	var row types.Forecast
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("generated_at DESC").
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *forecastRepo) GetHistoryByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, limit int) ([]*types.Forecast, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Forecast
	if userID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("generated_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
