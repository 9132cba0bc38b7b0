package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/repos"
	"github.com/learnloop/analytics-engine/internal/scheduler"
	"github.com/learnloop/analytics-engine/internal/types"
)

// Grading is optimistic: re-read and re-grade when a concurrent grade of
// the same card won the race. Contention on one card is rare, so a small
// retry budget is enough.
const gradeRetries = 3

type ReviewService interface {
	GradeReview(ctx context.Context, userID, itemID uuid.UUID, quality int) (*types.ReviewItem, error)
	GetDueReviews(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*types.ReviewItem, error)
	CreateItems(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) ([]*types.ReviewItem, error)
	RetireItemsForContent(ctx context.Context, itemIDs []uuid.UUID) (int64, error)
}

type reviewService struct {
	db          *gorm.DB
	log         *logger.Logger
	cfg         scheduler.Config
	reviewRepo  repos.ReviewItemRepo
	snapshotSvc SnapshotService
}

func NewReviewService(db *gorm.DB, baseLog *logger.Logger, cfg scheduler.Config, reviewRepo repos.ReviewItemRepo, snapshotSvc SnapshotService) ReviewService {
	return &reviewService{
		db:          db,
		log:         baseLog.With("service", "ReviewService"),
		cfg:         cfg,
		reviewRepo:  reviewRepo,
		snapshotSvc: snapshotSvc,
	}
}

func (s *reviewService) GradeReview(ctx context.Context, userID, itemID uuid.UUID, quality int) (*types.ReviewItem, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	if itemID == uuid.Nil {
		return nil, analyticserr.Validationf("item_id", "required")
	}

	now := time.Now().UTC()
	var graded *types.ReviewItem
	for attempt := 0; attempt < gradeRetries; attempt++ {
		item, err := s.reviewRepo.GetByUserAndItem(ctx, nil, userID, itemID)
		if err != nil {
			return nil, analyticserr.Store("load review item", err)
		}
		if item == nil {
			created, err := s.CreateItems(ctx, userID, []uuid.UUID{itemID})
			if err != nil {
				return nil, err
			}
			item = created[0]
		}
		if item.Retired {
			return nil, analyticserr.Validationf("item_id", "item is retired")
		}

		next, err := scheduler.Grade(s.cfg, *item, quality, now)
		if err != nil {
			return nil, err
		}
		ok, err := s.reviewRepo.UpdateGraded(ctx, nil, &next, item.Repetitions, item.IntervalDays)
		if err != nil {
			return nil, analyticserr.Store("update review item", err)
		}
		if ok {
			graded = &next
			break
		}
		s.log.Debug("concurrent grade detected, retrying", "item_id", itemID, "attempt", attempt+1)
	}
	if graded == nil {
		return nil, analyticserr.Store("grade review", gorm.ErrInvalidTransaction)
	}

	// Every grade is also a performance observation for the analytics
	// pipeline. Failure here must not lose the grade itself.
	if _, err := s.snapshotSvc.Record(ctx, RecordSnapshotInput{
		UserID:     userID,
		SkillID:    &itemID,
		Score:      float64(quality) / 5,
		Source:     types.SnapshotSourceQuiz,
		ObservedAt: now,
	}); err != nil {
		s.log.Warn("review snapshot not recorded", "item_id", itemID, "error", err)
	}
	return graded, nil
}

func (s *reviewService) GetDueReviews(ctx context.Context, userID uuid.UUID, asOf time.Time) ([]*types.ReviewItem, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	rows, err := s.reviewRepo.GetDueByUser(ctx, nil, userID, asOf)
	if err != nil {
		return nil, analyticserr.Store("load due reviews", err)
	}
	return rows, nil
}

func (s *reviewService) CreateItems(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) ([]*types.ReviewItem, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	if len(itemIDs) == 0 {
		return nil, analyticserr.Validationf("item_ids", "required")
	}
	now := time.Now().UTC()
	rows := make([]*types.ReviewItem, 0, len(itemIDs))
	for _, id := range itemIDs {
		if id == uuid.Nil {
			return nil, analyticserr.Validationf("item_ids", "contains a nil id")
		}
		rows = append(rows, &types.ReviewItem{
			ID:             uuid.New(),
			UserID:         userID,
			ItemID:         id,
			EasinessFactor: scheduler.InitialEasinessFactor,
			DueAt:          now,
		})
	}
	created, err := s.reviewRepo.Create(ctx, nil, rows)
	if err != nil {
		return nil, analyticserr.Store("create review items", err)
	}
	return created, nil
}

func (s *reviewService) RetireItemsForContent(ctx context.Context, itemIDs []uuid.UUID) (int64, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	n, err := s.reviewRepo.RetireByItemIDs(ctx, nil, itemIDs)
	if err != nil {
		return 0, analyticserr.Store("retire review items", err)
	}
	s.log.Info("review items retired", "count", n)
	return n, nil
}
