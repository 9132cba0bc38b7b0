package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/config"
	"github.com/learnloop/analytics-engine/internal/patterns"
	"github.com/learnloop/analytics-engine/internal/repos"
)

func newSignatureFixture(t *testing.T) (SignatureService, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	emitter := &captureEmitter{}
	cfg := config.Default().Signature
	svc := NewSignatureService(db, log, cfg, repos.NewSnapshotRepo(db, log), repos.NewSignatureRepo(db, log), NewSignatureNotifier(emitter, NewEventSequencer(nil)))
	return svc, db
}

func TestAnalyzeStoresSignature(t *testing.T) {
	svc, db := newSignatureFixture(t)
	userID := uuid.New()
	seedSnapshots(t, db, userID, []float64{0.5, 0.6, 0.7, 0.6, 0.65}, 24*time.Hour, time.Now().UTC())

	got, err := svc.Analyze(context.Background(), userID)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.SampleCount != 5 {
		t.Fatalf("sample count: %d", got.SampleCount)
	}
	if got.BehavioralClusterID != -1 {
		t.Fatalf("cluster id before any training: %d", got.BehavioralClusterID)
	}

	var style patterns.StyleScores
	if err := json.Unmarshal(got.StyleScores, &style); err != nil {
		t.Fatalf("style scores not decodable: %v", err)
	}
	for _, v := range style.Vector() {
		if v < 0 || v > 1 {
			t.Fatalf("style axis out of range: %+v", style)
		}
	}

	stored, err := svc.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.UserID != userID {
		t.Fatalf("stored signature user mismatch")
	}
}

func TestAnalyzeOverwritesPrevious(t *testing.T) {
	svc, db := newSignatureFixture(t)
	userID := uuid.New()
	now := time.Now().UTC()
	seedSnapshots(t, db, userID, []float64{0.5, 0.6}, 24*time.Hour, now.Add(-time.Hour))

	if _, err := svc.Analyze(context.Background(), userID); err != nil {
		t.Fatalf("first analyze: %v", err)
	}
	seedSnapshots(t, db, userID, []float64{0.7, 0.8, 0.9}, time.Hour, now)
	got, err := svc.Analyze(context.Background(), userID)
	if err != nil {
		t.Fatalf("second analyze: %v", err)
	}
	if got.SampleCount != 5 {
		t.Fatalf("recomputed sample count: %d", got.SampleCount)
	}

	var rows int64
	if err := db.Table("learning_signature").Where("user_id = ?", userID).Count(&rows).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Fatalf("signature must be overwritten, found %d rows", rows)
	}
}

func TestAnalyzeWithoutHistory(t *testing.T) {
	svc, _ := newSignatureFixture(t)
	if _, err := svc.Analyze(context.Background(), uuid.New()); !analyticserr.IsInsufficientData(err) {
		t.Fatalf("expected insufficient data, got %v", err)
	}
}

func TestRetrainClustersAssignsOnNextAnalyze(t *testing.T) {
	svc, db := newSignatureFixture(t)
	now := time.Now().UTC()

	users := make([]uuid.UUID, 0, 6)
	for i := 0; i < 6; i++ {
		userID := uuid.New()
		users = append(users, userID)
		seedSnapshots(t, db, userID, []float64{0.4, 0.5, 0.6, 0.55, 0.65, 0.6}, 24*time.Hour, now)
	}

	if err := svc.RetrainClusters(context.Background()); err != nil {
		t.Fatalf("retrain: %v", err)
	}
	got, err := svc.Analyze(context.Background(), users[0])
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if got.BehavioralClusterID < 0 {
		t.Fatalf("cluster id after training: %d", got.BehavioralClusterID)
	}

	// The assigned id must round-trip through the store as-is; cluster 0
	// is a valid assignment, not "unset".
	stored, err := svc.Get(context.Background(), users[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.BehavioralClusterID != got.BehavioralClusterID {
		t.Fatalf("stored cluster id %d, analyze returned %d", stored.BehavioralClusterID, got.BehavioralClusterID)
	}
}

func TestRetrainClustersTooFewUsers(t *testing.T) {
	svc, db := newSignatureFixture(t)
	seedSnapshots(t, db, uuid.New(), []float64{0.5, 0.6}, 24*time.Hour, time.Now().UTC())

	// Below k users: keeps the old model, does not error.
	if err := svc.RetrainClusters(context.Background()); err != nil {
		t.Fatalf("retrain: %v", err)
	}
}
