package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/analytics"
	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/config"
	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/repos"
	"github.com/learnloop/analytics-engine/internal/types"
)

const (
	submodelTrend     = "trend"
	submodelSmoothing = "smoothing"
	submodelStumps    = "stumps"

	totalSubmodels = 3

	stumpRounds = 40
	stumpRate   = 0.1
)

type ForecastService interface {
	GetForecast(ctx context.Context, userID uuid.UUID, horizonDays int) (*types.Forecast, error)
	History(ctx context.Context, userID uuid.UUID, limit int) ([]*types.Forecast, error)
	RefreshValidation(ctx context.Context) error
}

type forecastService struct {
	db           *gorm.DB
	log          *logger.Logger
	cfg          config.ForecastConfig
	windowDays   int
	snapshotRepo repos.SnapshotRepo
	forecastRepo repos.ForecastRepo
	notifier     ForecastNotifier

	mu      sync.RWMutex
	weights analytics.Weights
	stumps  *analytics.StumpEnsemble
}

func NewForecastService(db *gorm.DB, baseLog *logger.Logger, cfg config.ForecastConfig, windowDays int, snapshotRepo repos.SnapshotRepo, forecastRepo repos.ForecastRepo, notifier ForecastNotifier) ForecastService {
	return &forecastService{
		db:           db,
		log:          baseLog.With("service", "ForecastService"),
		cfg:          cfg,
		windowDays:   windowDays,
		snapshotRepo: snapshotRepo,
		forecastRepo: forecastRepo,
		notifier:     notifier,
		weights:      analytics.UniformWeights([]string{submodelTrend, submodelSmoothing, submodelStumps}),
	}
}

// GetForecast serves the latest stored forecast when the user's history
// has not materially changed since it was generated, and regenerates
// otherwise. "Materially changed" means at least RecomputeDelta new
// snapshots.
func (s *forecastService) GetForecast(ctx context.Context, userID uuid.UUID, horizonDays int) (*types.Forecast, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	if horizonDays < 1 || horizonDays > s.cfg.MaxHorizonDays {
		return nil, analyticserr.Validationf("horizon_days", "must be within [1,%d], got %d", s.cfg.MaxHorizonDays, horizonDays)
	}

	count, err := s.snapshotRepo.CountByUser(ctx, nil, userID)
	if err != nil {
		return nil, analyticserr.Store("count snapshots", err)
	}
	latest, err := s.forecastRepo.GetLatestByUser(ctx, nil, userID)
	if err != nil {
		return nil, analyticserr.Store("load latest forecast", err)
	}
	if latest != nil && latest.HorizonDays == horizonDays && int(count)-latest.SnapshotCount < s.cfg.RecomputeDelta {
		return latest, nil
	}
	return s.regenerate(ctx, userID, horizonDays, int(count))
}

func (s *forecastService) regenerate(ctx context.Context, userID uuid.UUID, horizonDays, snapshotCount int) (*types.Forecast, error) {
	since := time.Now().UTC().AddDate(0, 0, -s.windowDays)
	snaps, err := s.snapshotRepo.GetByUserSince(ctx, nil, userID, since)
	if err != nil {
		return nil, analyticserr.Store("load snapshot window", err)
	}

	forecast := s.predict(userID, snaps, horizonDays, snapshotCount)
	if err := s.forecastRepo.Create(ctx, nil, forecast); err != nil {
		return nil, analyticserr.Store("persist forecast", err)
	}
	s.notifier.ForecastUpdated(ctx, userID, forecast)
	return forecast, nil
}

// predict runs every submodel that can work with the available history
// and blends the survivors. Submodel failure is not an error: the
// interval widens instead. Below MinSnapshots the result is marked
// low-confidence and carries the simplest surviving submodel alone,
// with a wide fixed interval.
func (s *forecastService) predict(userID uuid.UUID, snaps []*types.PerformanceSnapshot, horizonDays, snapshotCount int) *types.Forecast {
	pts := analytics.Series(snaps)
	features := analytics.Extract(snaps)

	s.mu.RLock()
	weights := s.weights
	stumps := s.stumps
	s.mu.RUnlock()

	estimates := make(map[string]float64, totalSubmodels)
	if v, err := (analytics.TrendModel{Degree: 1}).Predict(pts, horizonDays); err == nil {
		estimates[submodelTrend] = v
	}
	if v, err := (analytics.HoltModel{}).Predict(pts, horizonDays); err == nil {
		estimates[submodelSmoothing] = v
	}
	if stumps != nil && features.Count > 0 {
		estimates[submodelStumps] = stumps.Predict(features.Vector())
	}

	lowConfidence := len(snaps) < s.cfg.MinSnapshots
	var point, low, high float64
	var breakdown []analytics.SubmodelResult
	switch {
	case !lowConfidence && len(estimates) > 0:
		point, breakdown = analytics.Combine(estimates, weights)
		low, high = analytics.ConfidenceInterval(point, estimates, len(snaps), totalSubmodels)
	case len(estimates) > 0:
		name, est := simplestEstimate(estimates)
		point = est
		breakdown = []analytics.SubmodelResult{{Name: name, Estimate: est, Weight: 1}}
		low, high = clampInterval(point-0.3, point+0.3)
	case features.Count > 0:
		point = features.MeanScore
		lowConfidence = true
		low, high = clampInterval(point-0.3, point+0.3)
	default:
		point = 0.5
		lowConfidence = true
		low, high = clampInterval(point-0.3, point+0.3)
	}

	raw, err := json.Marshal(breakdown)
	if err != nil {
		raw = []byte("[]")
	}
	return &types.Forecast{
		ID:             uuid.New(),
		UserID:         userID,
		HorizonDays:    horizonDays,
		PredictedProb:  point,
		ConfidenceLow:  low,
		ConfidenceHigh: high,
		ModelBreakdown: datatypes.JSON(raw),
		SnapshotCount:  snapshotCount,
		LowConfidence:  lowConfidence,
		GeneratedAt:    time.Now().UTC(),
	}
}

func (s *forecastService) History(ctx context.Context, userID uuid.UUID, limit int) ([]*types.Forecast, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	rows, err := s.forecastRepo.GetHistoryByUser(ctx, nil, userID, limit)
	if err != nil {
		return nil, analyticserr.Store("load forecast history", err)
	}
	return rows, nil
}

// RefreshValidation backtests every submodel against recent history and
// rebuilds the global boosted-stump model from cross-user data. For each
// user with enough snapshots the most recent observation is held out and
// each submodel predicts it from the prefix; the mean absolute errors
// become inverse-error ensemble weights.
func (s *forecastService) RefreshValidation(ctx context.Context) error {
	since := time.Now().UTC().AddDate(0, 0, -s.windowDays)
	byUser, err := s.groupedWindow(ctx, since)
	if err != nil {
		return err
	}

	sums := map[string]float64{}
	counts := map[string]int{}
	var examples []analytics.Example

	for _, snaps := range byUser {
		if len(snaps) < 2 {
			continue
		}
		prefix, held := snaps[:len(snaps)-1], snaps[len(snaps)-1]
		pts := analytics.Series(prefix)
		gapDays := int(held.ObservedAt.Sub(prefix[len(prefix)-1].ObservedAt).Hours()/24) + 1

		if v, err := (analytics.TrendModel{Degree: 1}).Predict(pts, gapDays); err == nil {
			sums[submodelTrend] += absDiff(v, held.Score)
			counts[submodelTrend]++
		}
		if v, err := (analytics.HoltModel{}).Predict(pts, gapDays); err == nil {
			sums[submodelSmoothing] += absDiff(v, held.Score)
			counts[submodelSmoothing]++
		}

		f := analytics.Extract(prefix)
		if f.Count > 0 {
			examples = append(examples, analytics.Example{Features: f.Vector(), Target: held.Score})
		}
	}

	stumps, err := analytics.TrainStumps(examples, stumpRounds, stumpRate)
	if err != nil {
		s.log.Info("stump model unavailable this cycle", "examples", len(examples), "error", err)
		stumps = nil
	} else {
		for _, snaps := range byUser {
			if len(snaps) < 2 {
				continue
			}
			prefix, held := snaps[:len(snaps)-1], snaps[len(snaps)-1]
			f := analytics.Extract(prefix)
			if f.Count == 0 {
				continue
			}
			sums[submodelStumps] += absDiff(stumps.Predict(f.Vector()), held.Score)
			counts[submodelStumps]++
		}
	}

	validationError := make(map[string]float64, len(sums))
	for name, sum := range sums {
		if counts[name] > 0 {
			validationError[name] = sum / float64(counts[name])
		}
	}

	s.mu.Lock()
	if len(validationError) > 0 {
		s.weights = analytics.InverseErrorWeights(validationError)
	}
	if stumps != nil {
		s.stumps = stumps
	}
	s.mu.Unlock()

	s.log.Info("forecast validation refreshed", "users", len(byUser), "examples", len(examples), "validation_error", validationError)
	return nil
}

func (s *forecastService) groupedWindow(ctx context.Context, since time.Time) (map[uuid.UUID][]*types.PerformanceSnapshot, error) {
	all, err := s.snapshotRepo.GetAllSince(ctx, nil, since)
	if err != nil {
		return nil, analyticserr.Store("load snapshot window", err)
	}
	byUser := make(map[uuid.UUID][]*types.PerformanceSnapshot)
	for _, snap := range all {
		byUser[snap.UserID] = append(byUser[snap.UserID], snap)
	}
	return byUser, nil
}

// simplestEstimate picks the surviving submodel with the least machinery
// behind it, in fixed order.
func simplestEstimate(estimates map[string]float64) (string, float64) {
	for _, name := range []string{submodelTrend, submodelSmoothing, submodelStumps} {
		if v, ok := estimates[name]; ok {
			return name, v
		}
	}
	return "", 0
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}

func clampInterval(low, high float64) (float64, float64) {
	if low < 0 {
		low = 0
	}
	if high > 1 {
		high = 1
	}
	return low, high
}
