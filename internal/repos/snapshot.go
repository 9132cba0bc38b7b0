package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/types"
)

// SnapshotRepo is the append-only performance snapshot store. Snapshots
// are never updated; retention is handled by compaction into daily
// aggregates.
type SnapshotRepo interface {
	Append(ctx context.Context, tx *gorm.DB, rows []*types.PerformanceSnapshot) error
	GetByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.PerformanceSnapshot, error)
	GetLastNByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, n int) ([]*types.PerformanceSnapshot, error)
	CountByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error)
	ListActiveUserIDs(ctx context.Context, tx *gorm.DB, since time.Time) ([]uuid.UUID, error)
	GetAllSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]*types.PerformanceSnapshot, error)
	GetOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.PerformanceSnapshot, error)
	DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error
	MergeDailyAggregates(ctx context.Context, tx *gorm.DB, rows []*types.SnapshotDailyAggregate) error
}

type snapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) SnapshotRepo {
	return &snapshotRepo{db: db, log: baseLog.With("repo", "SnapshotRepo")}
}

func (r *snapshotRepo) Append(ctx context.Context, tx *gorm.DB, rows []*types.PerformanceSnapshot) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(rows) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).Create(&rows).Error
}

func (r *snapshotRepo) GetByUserSince(ctx context.Context, tx *gorm.DB, userID uuid.UUID, since time.Time) ([]*types.PerformanceSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.PerformanceSnapshot
	if userID == uuid.Nil {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ? AND observed_at >= ?", userID, since).
		Order("observed_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *snapshotRepo) GetLastNByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID, n int) ([]*types.PerformanceSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.PerformanceSnapshot
	if userID == uuid.Nil || n <= 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("observed_at DESC").
		Limit(n).
		Find(&results).Error; err != nil {
		return nil, err
	}
	// Callers expect ascending observation order.
	for i, j := 0, len(results)-1; i < j; i, j = i+1, j-1 {
		results[i], results[j] = results[j], results[i]
	}
	return results, nil
}

func (r *snapshotRepo) CountByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var count int64
	if userID == uuid.Nil {
		return 0, nil
	}
	if err := transaction.WithContext(ctx).
		Model(&types.PerformanceSnapshot{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *snapshotRepo) ListActiveUserIDs(ctx context.Context, tx *gorm.DB, since time.Time) ([]uuid.UUID, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var ids []uuid.UUID
	if err := transaction.WithContext(ctx).
		Model(&types.PerformanceSnapshot{}).
		Where("observed_at >= ?", since).
		Distinct("user_id").
		Pluck("user_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *snapshotRepo) GetAllSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]*types.PerformanceSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.PerformanceSnapshot
	if err := transaction.WithContext(ctx).
		Where("observed_at >= ?", since).
		Order("user_id ASC, observed_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *snapshotRepo) GetOlderThan(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) ([]*types.PerformanceSnapshot, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.PerformanceSnapshot
	q := transaction.WithContext(ctx).
		Where("observed_at < ?", cutoff).
		Order("observed_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *snapshotRepo) DeleteByIDs(ctx context.Context, tx *gorm.DB, ids []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&types.PerformanceSnapshot{}).Error
}

// MergeDailyAggregates folds new per-day aggregates into any existing
// row for the same (user, skill, day), combining counts and the
// count-weighted mean. Compaction may deliver one day across several
// batches, so a plain conflict-replace would lose the earlier batch;
// the lookup also has to match NULL skill_id explicitly, which a unique
// index never conflicts on.
func (r *snapshotRepo) MergeDailyAggregates(ctx context.Context, tx *gorm.DB, rows []*types.SnapshotDailyAggregate) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	for _, row := range rows {
		q := transaction.WithContext(ctx).
			Where("user_id = ? AND day = ?", row.UserID, row.Day)
		if row.SkillID != nil {
			q = q.Where("skill_id = ?", *row.SkillID)
		} else {
			q = q.Where("skill_id IS NULL")
		}

		var existing types.SnapshotDailyAggregate
		err := q.First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			if err := transaction.WithContext(ctx).Create(row).Error; err != nil {
				return err
			}
			continue
		}
		if err != nil {
			return err
		}

		total := existing.SnapshotCount + row.SnapshotCount
		existing.MeanScore = (existing.MeanScore*float64(existing.SnapshotCount) + row.MeanScore*float64(row.SnapshotCount)) / float64(total)
		existing.SnapshotCount = total
		existing.TotalTimeSeconds += row.TotalTimeSeconds
		if err := transaction.WithContext(ctx).Save(&existing).Error; err != nil {
			return err
		}
	}
	return nil
}
