package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/config"
	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/repos"
	"github.com/learnloop/analytics-engine/internal/thresholds"
	"github.com/learnloop/analytics-engine/internal/types"
)

// MonitorService owns the recurring evaluation jobs. Each job ticks on
// its own cadence, skips the tick when the previous run is still going,
// and fans out across active users under a shared worker limit. One
// user's failure never stops the sweep.
type MonitorService interface {
	Start(ctx context.Context)
	RunJob(ctx context.Context, name string) error
}

type monitorJob struct {
	name    string
	every   time.Duration
	run     func(ctx context.Context) error
	running sync.Mutex
}

type monitorService struct {
	db           *gorm.DB
	log          *logger.Logger
	cfg          config.Config
	snapshotRepo repos.SnapshotRepo
	alertSvc     AlertService
	forecastSvc  ForecastService
	signatureSvc SignatureService

	workers *semaphore.Weighted
	userMu  keyedMutex
	jobs    []*monitorJob
}

func NewMonitorService(db *gorm.DB, baseLog *logger.Logger, cfg config.Config, snapshotRepo repos.SnapshotRepo, alertSvc AlertService, forecastSvc ForecastService, signatureSvc SignatureService) MonitorService {
	s := &monitorService{
		db:           db,
		log:          baseLog.With("service", "MonitorService"),
		cfg:          cfg,
		snapshotRepo: snapshotRepo,
		alertSvc:     alertSvc,
		forecastSvc:  forecastSvc,
		signatureSvc: signatureSvc,
		workers:      semaphore.NewWeighted(int64(cfg.Monitor.WorkerLimit)),
	}
	s.jobs = []*monitorJob{
		{name: "performance_decline", every: cfg.Monitor.PerformanceEvery.Std(), run: s.sweepCategory(types.AlertPerformanceDecline)},
		{name: "engagement_drop", every: cfg.Monitor.EngagementEvery.Std(), run: s.sweepCategory(types.AlertEngagementDrop)},
		{name: "stagnation", every: cfg.Monitor.StagnationEvery.Std(), run: s.sweepCategory(types.AlertStagnation)},
		{name: "low_consistency", every: cfg.Monitor.ConsistencyEvery.Std(), run: s.sweepCategory(types.AlertLowConsistency)},
		{name: "daily_analytics", every: cfg.Monitor.AnalyticsEvery.Std(), run: s.runDailyAnalytics},
		{name: "forecast_validation", every: cfg.Forecast.ValidationRefreshEvery.Std(), run: s.forecastSvc.RefreshValidation},
		{name: "signature_retrain", every: cfg.Signature.RetrainEvery.Std(), run: s.signatureSvc.RetrainClusters},
	}
	return s
}

func (s *monitorService) Start(ctx context.Context) {
	for _, job := range s.jobs {
		go s.loop(ctx, job)
	}
	s.log.Info("monitor started", "jobs", len(s.jobs), "worker_limit", s.cfg.Monitor.WorkerLimit)
}

func (s *monitorService) loop(ctx context.Context, job *monitorJob) {
	ticker := time.NewTicker(job.every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !job.running.TryLock() {
				s.log.Warn("job still running, skipping tick", "job", job.name)
				continue
			}
			s.runOnce(ctx, job)
			job.running.Unlock()
		}
	}
}

func (s *monitorService) runOnce(ctx context.Context, job *monitorJob) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Monitor.RunDeadline.Std())
	defer cancel()

	started := time.Now()
	if err := job.run(runCtx); err != nil {
		s.log.Error("job run failed", "job", job.name, "error", err)
		return
	}
	s.log.Info("job run complete", "job", job.name, "elapsed", time.Since(started))
}

// RunJob triggers one named job synchronously, for operational endpoints
// and tests. It respects the same single-flight guarantee as the ticker.
func (s *monitorService) RunJob(ctx context.Context, name string) error {
	for _, job := range s.jobs {
		if job.name != name {
			continue
		}
		if !job.running.TryLock() {
			return nil
		}
		defer job.running.Unlock()
		runCtx, cancel := context.WithTimeout(ctx, s.cfg.Monitor.RunDeadline.Std())
		defer cancel()
		return job.run(runCtx)
	}
	return &jobNotFoundError{name: name}
}

type jobNotFoundError struct{ name string }

func (e *jobNotFoundError) Error() string { return "unknown job: " + e.name }

func (s *monitorService) sweepCategory(category types.AlertCategory) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return s.sweep(ctx, func(ctx context.Context, userID uuid.UUID, snaps []*types.PerformanceSnapshot) error {
			cand := s.evaluateOne(category, snaps)
			if cand == nil {
				return nil
			}
			_, err := s.alertSvc.RaiseCandidates(ctx, userID, []thresholds.Candidate{*cand})
			return err
		})
	}
}

func (s *monitorService) evaluateOne(category types.AlertCategory, snaps []*types.PerformanceSnapshot) *thresholds.Candidate {
	now := time.Now().UTC()
	switch category {
	case types.AlertPerformanceDecline:
		return thresholds.EvaluateDecline(s.cfg.Thresholds.Decline, snaps)
	case types.AlertEngagementDrop:
		return thresholds.EvaluateEngagement(s.cfg.Thresholds.Engagement, snaps, now)
	case types.AlertStagnation:
		return thresholds.EvaluateStagnation(s.cfg.Thresholds.Stagnation, snaps, now)
	case types.AlertLowConsistency:
		return thresholds.EvaluateConsistency(s.cfg.Thresholds.Consistency, snaps, now)
	}
	return nil
}

// sweep loads every active user's snapshot window and applies fn under
// the worker limit. Per-user evaluation is serialized across jobs by a
// keyed mutex so two cadences never interleave on the same user.
func (s *monitorService) sweep(ctx context.Context, fn func(ctx context.Context, userID uuid.UUID, snaps []*types.PerformanceSnapshot) error) error {
	since := time.Now().UTC().AddDate(0, 0, -s.cfg.Monitor.WindowDays)
	userIDs, err := s.snapshotRepo.ListActiveUserIDs(ctx, nil, since)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, userID := range userIDs {
		if err := s.workers.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(userID uuid.UUID) {
			defer wg.Done()
			defer s.workers.Release(1)

			unlock := s.userMu.lock(userID.String())
			defer unlock()

			snaps, err := s.snapshotRepo.GetByUserSince(ctx, nil, userID, since)
			if err != nil {
				s.log.Warn("user sweep skipped", "user_id", userID, "error", err)
				return
			}
			if err := fn(ctx, userID, snaps); err != nil {
				s.log.Warn("user evaluation failed", "user_id", userID, "error", err)
			}
		}(userID)
	}
	wg.Wait()
	return ctx.Err()
}

// runDailyAnalytics compacts aged snapshots into daily aggregates and
// recomputes signatures per active user. Forecast validation and cluster
// retraining run as their own jobs on their configured cadences.
func (s *monitorService) runDailyAnalytics(ctx context.Context) error {
	if err := s.compactSnapshots(ctx); err != nil {
		s.log.Error("snapshot compaction failed", "error", err)
	}
	return s.sweep(ctx, func(ctx context.Context, userID uuid.UUID, snaps []*types.PerformanceSnapshot) error {
		if len(snaps) == 0 {
			return nil
		}
		_, err := s.signatureSvc.Analyze(ctx, userID)
		return err
	})
}

const compactBatch = 1000

func (s *monitorService) compactSnapshots(ctx context.Context) error {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.cfg.Retention.SnapshotDays)
	for {
		aged, err := s.snapshotRepo.GetOlderThan(ctx, nil, cutoff, compactBatch)
		if err != nil {
			return err
		}
		if len(aged) == 0 {
			return nil
		}

		aggregates := buildDailyAggregates(aged)
		ids := make([]uuid.UUID, 0, len(aged))
		for _, snap := range aged {
			ids = append(ids, snap.ID)
		}

		if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.snapshotRepo.MergeDailyAggregates(ctx, tx, aggregates); err != nil {
				return err
			}
			return s.snapshotRepo.DeleteByIDs(ctx, tx, ids)
		}); err != nil {
			return err
		}
		s.log.Info("snapshots compacted", "rows", len(aged), "aggregates", len(aggregates))
		if len(aged) < compactBatch {
			return nil
		}
	}
}

func buildDailyAggregates(snaps []*types.PerformanceSnapshot) []*types.SnapshotDailyAggregate {
	type key struct {
		user  uuid.UUID
		skill uuid.UUID
		day   time.Time
	}
	acc := map[key]*types.SnapshotDailyAggregate{}
	var order []key
	for _, snap := range snaps {
		k := key{user: snap.UserID, day: snap.ObservedAt.UTC().Truncate(24 * time.Hour)}
		if snap.SkillID != nil {
			k.skill = *snap.SkillID
		}
		agg, ok := acc[k]
		if !ok {
			agg = &types.SnapshotDailyAggregate{
				ID:      uuid.New(),
				UserID:  snap.UserID,
				SkillID: snap.SkillID,
				Day:     k.day,
			}
			acc[k] = agg
			order = append(order, k)
		}
		agg.MeanScore = (agg.MeanScore*float64(agg.SnapshotCount) + snap.Score) / float64(agg.SnapshotCount+1)
		agg.SnapshotCount++
		agg.TotalTimeSeconds += snap.TimeSpentSeconds
	}
	out := make([]*types.SnapshotDailyAggregate, 0, len(order))
	for _, k := range order {
		out = append(out, acc[k])
	}
	return out
}

// keyedMutex serializes work per string key without holding a global
// lock across the work itself. Entries are reference counted and
// removed once no holder or waiter remains, so the map stays bounded by
// in-flight work rather than by the user population.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (m *keyedMutex) lock(key string) func() {
	m.mu.Lock()
	if m.locks == nil {
		m.locks = make(map[string]*keyedLock)
	}
	l, ok := m.locks[key]
	if !ok {
		l = &keyedLock{}
		m.locks[key] = l
	}
	l.refs++
	m.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, key)
		}
		m.mu.Unlock()
	}
}
