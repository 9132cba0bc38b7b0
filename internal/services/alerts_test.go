package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/realtime"
	"github.com/learnloop/analytics-engine/internal/repos"
	"github.com/learnloop/analytics-engine/internal/thresholds"
	"github.com/learnloop/analytics-engine/internal/types"
)

func newAlertFixture(t *testing.T) (AlertService, *captureEmitter, repos.AlertRepo) {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	emitter := &captureEmitter{}
	alertRepo := repos.NewAlertRepo(db, log)
	notifier := NewAlertNotifier(emitter, NewEventSequencer(nil))
	return NewAlertService(db, log, alertRepo, notifier), emitter, alertRepo
}

func declineCandidate() thresholds.Candidate {
	return thresholds.Candidate{
		Category: types.AlertPerformanceDecline,
		Severity: types.SeverityMedium,
		Evidence: thresholds.Evidence{
			Metrics: map[string]float64{"mean_score": 0.5},
		},
	}
}

func TestRaiseCandidatesDeduplicates(t *testing.T) {
	svc, emitter, _ := newAlertFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	first, err := svc.RaiseCandidates(ctx, userID, []thresholds.Candidate{declineCandidate()})
	if err != nil {
		t.Fatalf("first raise: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("first raise created %d alerts", len(first))
	}

	second, err := svc.RaiseCandidates(ctx, userID, []thresholds.Candidate{declineCandidate()})
	if err != nil {
		t.Fatalf("second raise: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("unacknowledged duplicate was created: %+v", second)
	}

	alerts, err := svc.ListForUser(ctx, userID, true, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("want 1 stored alert, got %d", len(alerts))
	}
	if got := emitter.byEvent(realtime.SSEEventAlertCreated); len(got) != 1 {
		t.Fatalf("want 1 notification, got %d", len(got))
	}
}

func TestRaiseAfterAcknowledgeCreatesNewAlert(t *testing.T) {
	svc, _, _ := newAlertFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	created, err := svc.RaiseCandidates(ctx, userID, []thresholds.Candidate{declineCandidate()})
	if err != nil || len(created) != 1 {
		t.Fatalf("raise: %v created=%d", err, len(created))
	}
	if _, err := svc.Acknowledge(ctx, userID, created[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	again, err := svc.RaiseCandidates(ctx, userID, []thresholds.Candidate{declineCandidate()})
	if err != nil {
		t.Fatalf("raise after ack: %v", err)
	}
	if len(again) != 1 {
		t.Fatalf("acknowledged alert must not suppress a new one")
	}
}

func TestAcknowledgeIdempotent(t *testing.T) {
	svc, _, _ := newAlertFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	created, err := svc.RaiseCandidates(ctx, userID, []thresholds.Candidate{declineCandidate()})
	if err != nil || len(created) != 1 {
		t.Fatalf("raise: %v created=%d", err, len(created))
	}

	first, err := svc.Acknowledge(ctx, userID, created[0].ID)
	if err != nil {
		t.Fatalf("first ack: %v", err)
	}
	if first.AcknowledgedAt == nil {
		t.Fatalf("AcknowledgedAt not set")
	}

	time.Sleep(10 * time.Millisecond)
	second, err := svc.Acknowledge(ctx, userID, created[0].ID)
	if err != nil {
		t.Fatalf("second ack: %v", err)
	}
	if second.AcknowledgedAt == nil || !second.AcknowledgedAt.Equal(*first.AcknowledgedAt) {
		t.Fatalf("second ack changed the timestamp: %v vs %v", second.AcknowledgedAt, first.AcknowledgedAt)
	}
}

func TestAcknowledgeOtherUsersAlert(t *testing.T) {
	svc, _, _ := newAlertFixture(t)
	owner := uuid.New()
	ctx := context.Background()

	created, err := svc.RaiseCandidates(ctx, owner, []thresholds.Candidate{declineCandidate()})
	if err != nil || len(created) != 1 {
		t.Fatalf("raise: %v", err)
	}
	if _, err := svc.Acknowledge(ctx, uuid.New(), created[0].ID); !analyticserr.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListFiltersAcknowledged(t *testing.T) {
	svc, _, _ := newAlertFixture(t)
	userID := uuid.New()
	ctx := context.Background()

	created, err := svc.RaiseCandidates(ctx, userID, []thresholds.Candidate{declineCandidate()})
	if err != nil || len(created) != 1 {
		t.Fatalf("raise: %v", err)
	}
	if _, err := svc.Acknowledge(ctx, userID, created[0].ID); err != nil {
		t.Fatalf("ack: %v", err)
	}

	open, err := svc.ListForUser(ctx, userID, false, 0)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("acknowledged alert leaked into open list")
	}
	all, err := svc.ListForUser(ctx, userID, true, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("want 1 alert with include_acknowledged, got %d", len(all))
	}
}
