package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/types"
)

type AlertRepo interface {
	CreateIfNoneUnacknowledged(ctx context.Context, tx *gorm.DB, alert *types.Alert) (bool, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Alert, error)
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, includeAcknowledged bool, limit int) ([]*types.Alert, error)
	Acknowledge(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error)
}

type alertRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlertRepo(db *gorm.DB, baseLog *logger.Logger) AlertRepo {
	return &alertRepo{db: db, log: baseLog.With("repo", "AlertRepo")}
}

// CreateIfNoneUnacknowledged inserts the alert unless an unacknowledged
// alert of the same (user, category) already exists. The insert-if-absent
// runs as a single statement so concurrent monitors cannot double-insert.
func (r *alertRepo) CreateIfNoneUnacknowledged(ctx context.Context, tx *gorm.DB, alert *types.Alert) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if alert == nil || alert.UserID == uuid.Nil {
		return false, nil
	}
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	res := transaction.WithContext(ctx).Exec(`
		INSERT INTO alert (id, user_id, category, severity, evidence, created_at)
		SELECT ?, ?, ?, ?, ?, ?
		WHERE NOT EXISTS (
			SELECT 1 FROM alert
			WHERE user_id = ? AND category = ? AND acknowledged_at IS NULL
		)`,
		alert.ID, alert.UserID, alert.Category, alert.Severity, alert.Evidence, alert.CreatedAt,
		alert.UserID, alert.Category,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *alertRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Alert, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}

	var row types.Alert
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *alertRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID, includeAcknowledged bool, limit int) ([]*types.Alert, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	var results []*types.Alert
	if userID == uuid.Nil {
		return results, nil
	}
	q := transaction.WithContext(ctx).Where("user_id = ?", userID)
	if !includeAcknowledged {
		q = q.Where("acknowledged_at IS NULL")
	}
	q = q.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// Acknowledge stamps acknowledged_at exactly once. A second call is a
// no-op and reports false with no error.
func (r *alertRepo) Acknowledge(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return false, nil
	}

	res := transaction.WithContext(ctx).
		Model(&types.Alert{}).
		Where("id = ? AND acknowledged_at IS NULL", id).
		Update("acknowledged_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
