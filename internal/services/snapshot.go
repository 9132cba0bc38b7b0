package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/repos"
	"github.com/learnloop/analytics-engine/internal/types"
)

// Clock skew we tolerate on client-supplied observation times.
const observedAtSkew = 5 * time.Minute

type RecordSnapshotInput struct {
	UserID           uuid.UUID  `json:"user_id"`
	SkillID          *uuid.UUID `json:"skill_id,omitempty"`
	Score            float64    `json:"score"`
	TimeSpentSeconds int        `json:"time_spent_seconds"`
	Source           string     `json:"source"`
	ObservedAt       time.Time  `json:"observed_at"`
}

// SnapshotSink receives every appended snapshot. The session monitor
// registers itself here so live metrics track all of a user's activity,
// not just events posted against the session directly.
type SnapshotSink interface {
	IngestSnapshot(ctx context.Context, snap *types.PerformanceSnapshot)
}

type SnapshotService interface {
	Record(ctx context.Context, input RecordSnapshotInput) (*types.PerformanceSnapshot, error)
	GetHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]*types.PerformanceSnapshot, error)
	SetSink(sink SnapshotSink)
}

type snapshotService struct {
	db           *gorm.DB
	log          *logger.Logger
	snapshotRepo repos.SnapshotRepo

	mu   sync.RWMutex
	sink SnapshotSink
}

func NewSnapshotService(db *gorm.DB, baseLog *logger.Logger, snapshotRepo repos.SnapshotRepo) SnapshotService {
	return &snapshotService{
		db:           db,
		log:          baseLog.With("service", "SnapshotService"),
		snapshotRepo: snapshotRepo,
	}
}

func validSnapshotSource(source string) bool {
	switch source {
	case types.SnapshotSourceQuiz, types.SnapshotSourceExercise, types.SnapshotSourceHeartbeat:
		return true
	}
	return false
}

func (s *snapshotService) Record(ctx context.Context, input RecordSnapshotInput) (*types.PerformanceSnapshot, error) {
	if input.UserID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	if input.Score < 0 || input.Score > 1 {
		return nil, analyticserr.Validationf("score", "must be within [0,1], got %f", input.Score)
	}
	if input.TimeSpentSeconds < 0 {
		return nil, analyticserr.Validationf("time_spent_seconds", "must be non-negative")
	}
	if !validSnapshotSource(input.Source) {
		return nil, analyticserr.Validationf("source", "unknown source %q", input.Source)
	}
	now := time.Now().UTC()
	observedAt := input.ObservedAt
	if observedAt.IsZero() {
		observedAt = now
	}
	if observedAt.After(now.Add(observedAtSkew)) {
		return nil, analyticserr.Validationf("observed_at", "in the future")
	}

	snapshot := &types.PerformanceSnapshot{
		ID:               uuid.New(),
		UserID:           input.UserID,
		SkillID:          input.SkillID,
		Score:            input.Score,
		TimeSpentSeconds: input.TimeSpentSeconds,
		Source:           input.Source,
		ObservedAt:       observedAt.UTC(),
	}
	if err := s.snapshotRepo.Append(ctx, nil, []*types.PerformanceSnapshot{snapshot}); err != nil {
		return nil, analyticserr.Store("append snapshot", err)
	}
	s.log.Debug("snapshot recorded", "user_id", input.UserID, "source", input.Source, "score", input.Score)

	s.mu.RLock()
	sink := s.sink
	s.mu.RUnlock()
	if sink != nil {
		sink.IngestSnapshot(ctx, snapshot)
	}
	return snapshot, nil
}

// SetSink wires the live fan-in target. Set once at startup, after the
// consuming service exists.
func (s *snapshotService) SetSink(sink SnapshotSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

func (s *snapshotService) GetHistory(ctx context.Context, userID uuid.UUID, since time.Time) ([]*types.PerformanceSnapshot, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	rows, err := s.snapshotRepo.GetByUserSince(ctx, nil, userID, since)
	if err != nil {
		return nil, analyticserr.Store("load snapshots", err)
	}
	return rows, nil
}
