package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/types"
)

type SignatureRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, row *types.LearningSignature) error
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.LearningSignature, error)
}

type signatureRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSignatureRepo(db *gorm.DB, baseLog *logger.Logger) SignatureRepo {
	return &signatureRepo{db: db, log: baseLog.With("repo", "SignatureRepo")}
}

// Upsert is last-write-wins per user: recomputation is idempotent for a
// fixed input window, so the newest write is always acceptable.
func (r *signatureRepo) Upsert(ctx context.Context, tx *gorm.DB, row *types.LearningSignature) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if row == nil || row.UserID == uuid.Nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	row.UpdatedAt = time.Now().UTC()

	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"style_scores", "behavioral_cluster_id", "anomaly_flags", "sample_count", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *signatureRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.LearningSignature, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if userID == uuid.Nil {
		return nil, nil
	}

	var row types.LearningSignature
	err := transaction.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
