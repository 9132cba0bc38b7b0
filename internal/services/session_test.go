package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/realtime"
	"github.com/learnloop/analytics-engine/internal/repos"
	"github.com/learnloop/analytics-engine/internal/types"
)

func newSessionFixture(t *testing.T) (SessionService, SnapshotService, *captureEmitter, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	emitter := &captureEmitter{}
	snapshotSvc := NewSnapshotService(db, log, repos.NewSnapshotRepo(db, log))
	svc := NewSessionService(log, testSessionConfig(), snapshotSvc, NewMetricsNotifier(emitter, NewEventSequencer(nil)))
	snapshotSvc.SetSink(svc)
	t.Cleanup(svc.Shutdown)
	return svc, snapshotSvc, emitter, db
}

func boolPtr(v bool) *bool        { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestSessionAppliesEventsInOrder(t *testing.T) {
	svc, _, emitter, _ := newSessionFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	started, err := svc.StartSession(ctx, userID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	events := []SessionEvent{
		{Type: SessionEventAnswer, Correct: boolPtr(true), Score: floatPtr(0.9), TimeSpentSeconds: 30},
		{Type: SessionEventAnswer, Correct: boolPtr(false), Score: floatPtr(0.1), TimeSpentSeconds: 45},
		{Type: SessionEventHeartbeat, TimeSpentSeconds: 15},
	}
	for _, ev := range events {
		if err := svc.RecordEvent(ctx, userID, started.SessionID, ev); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	waitFor(t, time.Second, func() bool {
		m, err := svc.GetMetrics(ctx, userID, started.SessionID)
		return err == nil && m.EventCount == 3
	})

	m, err := svc.GetMetrics(ctx, userID, started.SessionID)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.Answers != 2 || m.CorrectAnswers != 1 {
		t.Fatalf("answers=%d correct=%d", m.Answers, m.CorrectAnswers)
	}
	if m.Accuracy != 0.5 {
		t.Fatalf("accuracy: %f", m.Accuracy)
	}
	if m.MeanScore != 0.5 {
		t.Fatalf("mean score: %f", m.MeanScore)
	}
	if m.TotalTimeSeconds != 90 {
		t.Fatalf("time: %d", m.TotalTimeSeconds)
	}
	if got := emitter.byEvent(realtime.SSEEventMetricsUpdated); len(got) != 3 {
		t.Fatalf("want 3 metric pushes, got %d", len(got))
	}
}

func TestEndSessionWritesSummarySnapshot(t *testing.T) {
	svc, _, _, db := newSessionFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	started, err := svc.StartSession(ctx, userID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.RecordEvent(ctx, userID, started.SessionID, SessionEvent{Type: SessionEventAnswer, Correct: boolPtr(true), TimeSpentSeconds: 60}); err != nil {
		t.Fatalf("record: %v", err)
	}
	waitFor(t, time.Second, func() bool {
		m, err := svc.GetMetrics(ctx, userID, started.SessionID)
		return err == nil && m.EventCount == 1
	})

	ended, err := svc.EndSession(ctx, userID, started.SessionID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.EndedAt == nil {
		t.Fatalf("EndedAt not set")
	}

	var snap types.PerformanceSnapshot
	if err := db.Where("user_id = ? AND source = ?", userID, types.SnapshotSourceHeartbeat).First(&snap).Error; err != nil {
		t.Fatalf("summary snapshot missing: %v", err)
	}
	if snap.Score != 1 {
		t.Fatalf("summary score: %f", snap.Score)
	}

	// Closed sessions reject everything.
	if err := svc.RecordEvent(ctx, userID, started.SessionID, SessionEvent{Type: SessionEventHeartbeat}); !analyticserr.IsValidation(err) {
		t.Fatalf("expected validation error on closed session, got %v", err)
	}
	if _, err := svc.GetMetrics(ctx, userID, started.SessionID); !analyticserr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSessionClosesOnInactivity(t *testing.T) {
	svc, _, _, db := newSessionFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	started, err := svc.StartSession(ctx, userID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.RecordEvent(ctx, userID, started.SessionID, SessionEvent{Type: SessionEventHeartbeat, Score: floatPtr(0.7)}); err != nil {
		t.Fatalf("record: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		_, err := svc.GetMetrics(ctx, userID, started.SessionID)
		return analyticserr.IsValidation(err)
	})

	var count int64
	if err := db.Model(&types.PerformanceSnapshot{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("idle teardown should leave one summary snapshot, got %d", count)
	}
}

func TestSessionRejectsForeignUser(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t)
	ctx := context.Background()

	started, err := svc.StartSession(ctx, uuid.New())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.RecordEvent(ctx, uuid.New(), started.SessionID, SessionEvent{Type: SessionEventHeartbeat}); !analyticserr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSessionRejectsUnknownEventType(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	started, err := svc.StartSession(ctx, userID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := svc.RecordEvent(ctx, userID, started.SessionID, SessionEvent{Type: "pause"}); !analyticserr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSessionRejectsNegativeTime(t *testing.T) {
	svc, _, _, _ := newSessionFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	started, err := svc.StartSession(ctx, userID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	err = svc.RecordEvent(ctx, userID, started.SessionID, SessionEvent{Type: SessionEventAnswer, TimeSpentSeconds: -30})
	if !analyticserr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	m, err := svc.GetMetrics(ctx, userID, started.SessionID)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.EventCount != 0 || m.TotalTimeSeconds != 0 {
		t.Fatalf("rejected event must not touch metrics: %+v", m)
	}
}

func TestRecordedSnapshotFansInToLiveSession(t *testing.T) {
	svc, snapshotSvc, emitter, _ := newSessionFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	started, err := svc.StartSession(ctx, userID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// A snapshot recorded outside the session endpoint still drives the
	// session's live metrics.
	if _, err := snapshotSvc.Record(ctx, RecordSnapshotInput{
		UserID:           userID,
		Score:            0.8,
		TimeSpentSeconds: 120,
		Source:           types.SnapshotSourceExercise,
	}); err != nil {
		t.Fatalf("record snapshot: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		m, err := svc.GetMetrics(ctx, userID, started.SessionID)
		return err == nil && m.EventCount == 1
	})
	m, err := svc.GetMetrics(ctx, userID, started.SessionID)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.MeanScore != 0.8 || m.TotalTimeSeconds != 120 {
		t.Fatalf("fan-in metrics: %+v", m)
	}
	if m.Answers != 0 {
		t.Fatalf("fan-in must not count as an answer: %d", m.Answers)
	}
	if got := emitter.byEvent(realtime.SSEEventMetricsUpdated); len(got) != 1 {
		t.Fatalf("want 1 metric push, got %d", len(got))
	}

	// Snapshots for other users leave the session untouched.
	if _, err := snapshotSvc.Record(ctx, RecordSnapshotInput{
		UserID: uuid.New(),
		Score:  0.2,
		Source: types.SnapshotSourceExercise,
	}); err != nil {
		t.Fatalf("record snapshot: %v", err)
	}
	m, err = svc.GetMetrics(ctx, userID, started.SessionID)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if m.EventCount != 1 {
		t.Fatalf("foreign snapshot must not fan in: %d events", m.EventCount)
	}
}
