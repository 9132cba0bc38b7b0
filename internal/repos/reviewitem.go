package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/types"
)

type ReviewItemRepo interface {
	Create(ctx context.Context, tx *gorm.DB, rows []*types.ReviewItem) ([]*types.ReviewItem, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ReviewItem, error)
	GetByUserAndItem(ctx context.Context, tx *gorm.DB, userID, itemID uuid.UUID) (*types.ReviewItem, error)
	GetDueByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, asOf time.Time) ([]*types.ReviewItem, error)
	UpdateGraded(ctx context.Context, tx *gorm.DB, updated *types.ReviewItem, prevRepetitions, prevIntervalDays int) (bool, error)
	RetireByItemIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) (int64, error)
}

type reviewItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReviewItemRepo(db *gorm.DB, baseLog *logger.Logger) ReviewItemRepo {
	return &reviewItemRepo{db: db, log: baseLog.With("repo", "ReviewItemRepo")}
}

func (r *reviewItemRepo) Create(ctx context.Context, tx *gorm.DB, rows []*types.ReviewItem) ([]*types.ReviewItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return []*types.ReviewItem{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *reviewItemRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.ReviewItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}

	var row types.ReviewItem
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *reviewItemRepo) GetByUserAndItem(ctx context.Context, tx *gorm.DB, userID, itemID uuid.UUID) (*types.ReviewItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil || itemID == uuid.Nil {
		return nil, nil
	}

	var row types.ReviewItem
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *reviewItemRepo) GetDueByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, asOf time.Time) ([]*types.ReviewItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.ReviewItem
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND retired = ? AND due_at <= ?", userID, false, asOf).
		Order("due_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// UpdateGraded persists a graded card with an optimistic check on the
// previous scheduling state. A false return means another grader got
// there first; the caller re-reads and re-grades.
func (r *reviewItemRepo) UpdateGraded(ctx context.Context, tx *gorm.DB, updated *types.ReviewItem, prevRepetitions, prevIntervalDays int) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if updated == nil || updated.ID == uuid.Nil {
		return false, nil
	}

	res := transaction.WithContext(ctx).
		Model(&types.ReviewItem{}).
		Where("id = ? AND repetitions = ? AND interval_days = ?", updated.ID, prevRepetitions, prevIntervalDays).
		Updates(map[string]interface{}{
			"easiness_factor":  updated.EasinessFactor,
			"interval_days":    updated.IntervalDays,
			"repetitions":      updated.Repetitions,
			"due_at":           updated.DueAt,
			"last_reviewed_at": updated.LastReviewedAt,
			"updated_at":       time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *reviewItemRepo) RetireByItemIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(itemIDs) == 0 {
		return 0, nil
	}

	res := transaction.WithContext(ctx).
		Model(&types.ReviewItem{}).
		Where("item_id IN ? AND retired = ?", itemIDs, false).
		Updates(map[string]interface{}{
			"retired":    true,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
