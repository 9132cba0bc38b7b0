package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/config"
	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/realtime"
	"github.com/learnloop/analytics-engine/internal/repos"
	"github.com/learnloop/analytics-engine/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&types.PerformanceSnapshot{},
		&types.SnapshotDailyAggregate{},
		&types.ReviewItem{},
		&types.Alert{},
		&types.Forecast{},
		&types.LearningSignature{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

// captureEmitter records every emitted SSE message.
type captureEmitter struct {
	mu       sync.Mutex
	messages []realtime.SSEMessage
}

func (e *captureEmitter) Emit(ctx context.Context, msg realtime.SSEMessage) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.messages = append(e.messages, msg)
}

func (e *captureEmitter) byEvent(event realtime.SSEEvent) []realtime.SSEMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []realtime.SSEMessage
	for _, m := range e.messages {
		if m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

func seedSnapshots(t *testing.T, db *gorm.DB, userID uuid.UUID, scores []float64, spacing time.Duration, end time.Time) {
	t.Helper()
	repo := repos.NewSnapshotRepo(db, newTestLogger(t))
	start := end.Add(-spacing * time.Duration(len(scores)-1))
	rows := make([]*types.PerformanceSnapshot, 0, len(scores))
	for i, score := range scores {
		rows = append(rows, &types.PerformanceSnapshot{
			ID:               uuid.New(),
			UserID:           userID,
			Score:            score,
			TimeSpentSeconds: 300,
			Source:           types.SnapshotSourceExercise,
			ObservedAt:       start.Add(spacing * time.Duration(i)),
		})
	}
	if err := repo.Append(context.Background(), nil, rows); err != nil {
		t.Fatalf("seed snapshots: %v", err)
	}
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		InactivityTimeout: config.Duration(200 * time.Millisecond),
		EventBuffer:       8,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached within %v", timeout)
}
