package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/analytics"
	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/config"
	"github.com/learnloop/analytics-engine/internal/realtime"
	"github.com/learnloop/analytics-engine/internal/repos"
)

func newForecastFixture(t *testing.T) (ForecastService, *captureEmitter, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	log := newTestLogger(t)
	emitter := &captureEmitter{}
	cfg := config.Default().Forecast
	svc := NewForecastService(db, log, cfg, 14, repos.NewSnapshotRepo(db, log), repos.NewForecastRepo(db, log), NewForecastNotifier(emitter, NewEventSequencer(nil)))
	return svc, emitter, db
}

func TestGetForecastRejectsBadHorizon(t *testing.T) {
	svc, _, _ := newForecastFixture(t)
	for _, horizon := range []int{0, -3, 1000} {
		if _, err := svc.GetForecast(context.Background(), uuid.New(), horizon); !analyticserr.IsValidation(err) {
			t.Fatalf("horizon %d: expected validation error, got %v", horizon, err)
		}
	}
}

func TestGetForecastSparseHistoryIsLowConfidence(t *testing.T) {
	svc, emitter, _ := newForecastFixture(t)
	userID := uuid.New()

	got, err := svc.GetForecast(context.Background(), userID, 30)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if !got.LowConfidence {
		t.Fatalf("no history must be low confidence")
	}
	if got.ConfidenceLow > got.PredictedProb || got.PredictedProb > got.ConfidenceHigh {
		t.Fatalf("interval ordering: low=%f p=%f high=%f", got.ConfidenceLow, got.PredictedProb, got.ConfidenceHigh)
	}
	if got.ConfidenceLow < 0 || got.ConfidenceHigh > 1 {
		t.Fatalf("interval escapes [0,1]")
	}
	if len(emitter.byEvent(realtime.SSEEventForecastUpdated)) != 1 {
		t.Fatalf("forecast update not pushed")
	}
}

func TestGetForecastBelowMinimumUsesSimplestSubmodelOnly(t *testing.T) {
	svc, _, db := newForecastFixture(t)
	userID := uuid.New()
	seedSnapshots(t, db, userID, []float64{0.5, 0.55, 0.6}, 24*time.Hour, time.Now().UTC())

	got, err := svc.GetForecast(context.Background(), userID, 14)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if !got.LowConfidence {
		t.Fatalf("3 snapshots must be low confidence")
	}

	var breakdown []analytics.SubmodelResult
	if err := json.Unmarshal(got.ModelBreakdown, &breakdown); err != nil {
		t.Fatalf("breakdown not decodable: %v", err)
	}
	if len(breakdown) != 1 {
		t.Fatalf("low confidence must carry a single submodel, got %d", len(breakdown))
	}
	if breakdown[0].Name != "trend" || breakdown[0].Weight != 1 {
		t.Fatalf("unexpected submodel: %+v", breakdown[0])
	}
	if got.ConfidenceLow > got.PredictedProb || got.PredictedProb > got.ConfidenceHigh {
		t.Fatalf("interval ordering: low=%f p=%f high=%f", got.ConfidenceLow, got.PredictedProb, got.ConfidenceHigh)
	}
}

func TestGetForecastWithHistoryBlendsModels(t *testing.T) {
	svc, _, db := newForecastFixture(t)
	userID := uuid.New()
	seedSnapshots(t, db, userID, []float64{0.4, 0.45, 0.5, 0.55, 0.6, 0.65, 0.7}, 24*time.Hour, time.Now().UTC())

	got, err := svc.GetForecast(context.Background(), userID, 14)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if got.LowConfidence {
		t.Fatalf("7 snapshots should clear the minimum")
	}
	if got.SnapshotCount != 7 {
		t.Fatalf("snapshot count: %d", got.SnapshotCount)
	}
	// An improving learner forecasts above the recent level.
	if got.PredictedProb <= 0.6 {
		t.Fatalf("prediction: %f", got.PredictedProb)
	}
	if len(got.ModelBreakdown) == 0 {
		t.Fatalf("model breakdown missing")
	}
}

func TestGetForecastCachesUntilMaterialChange(t *testing.T) {
	svc, _, db := newForecastFixture(t)
	userID := uuid.New()
	now := time.Now().UTC()
	seedSnapshots(t, db, userID, []float64{0.5, 0.55, 0.6, 0.6, 0.65, 0.7}, 24*time.Hour, now.Add(-time.Hour))

	first, err := svc.GetForecast(context.Background(), userID, 30)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := svc.GetForecast(context.Background(), userID, 30)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("unchanged history must serve the stored forecast")
	}

	// RecomputeDelta new snapshots is a material change.
	seedSnapshots(t, db, userID, []float64{0.7, 0.72, 0.74}, time.Hour, now)
	third, err := svc.GetForecast(context.Background(), userID, 30)
	if err != nil {
		t.Fatalf("third: %v", err)
	}
	if third.ID == first.ID {
		t.Fatalf("material change must regenerate")
	}
	if third.SnapshotCount != 9 {
		t.Fatalf("snapshot count: %d", third.SnapshotCount)
	}
}

func TestGetForecastRecomputesOnNewHorizon(t *testing.T) {
	svc, _, db := newForecastFixture(t)
	userID := uuid.New()
	seedSnapshots(t, db, userID, []float64{0.5, 0.55, 0.6, 0.62, 0.64, 0.66}, 24*time.Hour, time.Now().UTC())
	ctx := context.Background()

	first, err := svc.GetForecast(ctx, userID, 30)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	other, err := svc.GetForecast(ctx, userID, 60)
	if err != nil {
		t.Fatalf("other horizon: %v", err)
	}
	if other.ID == first.ID || other.HorizonDays != 60 {
		t.Fatalf("different horizon must regenerate")
	}
}

func TestRefreshValidationTrainsWeights(t *testing.T) {
	svc, _, db := newForecastFixture(t)
	now := time.Now().UTC()
	for i := 0; i < 4; i++ {
		seedSnapshots(t, db, uuid.New(), []float64{0.4, 0.5, 0.45, 0.55, 0.5, 0.6, 0.58, 0.62, 0.6, 0.65}, 24*time.Hour, now)
	}

	if err := svc.RefreshValidation(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	// Forecasting still works with the refreshed weights and stump model.
	userID := uuid.New()
	seedSnapshots(t, db, userID, []float64{0.5, 0.55, 0.6, 0.62, 0.64, 0.66}, 24*time.Hour, now)
	got, err := svc.GetForecast(context.Background(), userID, 30)
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if got.PredictedProb < 0 || got.PredictedProb > 1 {
		t.Fatalf("prediction out of bounds: %f", got.PredictedProb)
	}
}
