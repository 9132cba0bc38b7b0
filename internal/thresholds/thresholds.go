package thresholds

import (
	"time"

	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/types"
)

// Candidate is an evaluator verdict: a would-be alert. The caller is
// responsible for deduplication against existing unacknowledged alerts
// before persisting.
type Candidate struct {
	Category types.AlertCategory
	Severity types.AlertSeverity
	Evidence Evidence
}

// Evidence references the snapshot window that triggered the candidate.
type Evidence struct {
	WindowStart time.Time            `json:"window_start"`
	WindowEnd   time.Time            `json:"window_end"`
	SnapshotIDs []uuid.UUID          `json:"snapshot_ids,omitempty"`
	Metrics     map[string]float64   `json:"metrics,omitempty"`
	Anomalies   []map[string]any     `json:"anomalies,omitempty"`
}

type DeclineConfig struct {
	Enabled        bool    `yaml:"enabled"`
	MinSnapshots   int     `yaml:"min_snapshots"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

type EngagementConfig struct {
	Enabled   bool    `yaml:"enabled"`
	MinPerDay float64 `yaml:"min_per_day"`
	WindowDays int    `yaml:"window_days"`
}

type StagnationConfig struct {
	Enabled      bool    `yaml:"enabled"`
	SpanDays     int     `yaml:"span_days"`
	MinAttempts  int     `yaml:"min_attempts"`
	Epsilon      float64 `yaml:"epsilon"`
}

type ConsistencyConfig struct {
	Enabled        bool    `yaml:"enabled"`
	WindowDays     int     `yaml:"window_days"`
	MinSnapshots   int     `yaml:"min_snapshots"`
	MinConsistency float64 `yaml:"min_consistency"`
}

type Config struct {
	Decline     DeclineConfig     `yaml:"decline"`
	Engagement  EngagementConfig  `yaml:"engagement"`
	Stagnation  StagnationConfig  `yaml:"stagnation"`
	Consistency ConsistencyConfig `yaml:"consistency"`
}

func DefaultConfig() Config {
	return Config{
		Decline:     DeclineConfig{Enabled: true, MinSnapshots: 2, ScoreThreshold: 0.60},
		Engagement:  EngagementConfig{Enabled: true, MinPerDay: 1.0, WindowDays: 3},
		Stagnation:  StagnationConfig{Enabled: true, SpanDays: 5, MinAttempts: 2, Epsilon: 0.01},
		Consistency: ConsistencyConfig{Enabled: true, WindowDays: 7, MinSnapshots: 3, MinConsistency: 0.5},
	}
}

// Evaluate runs every enabled evaluator over the window. Snapshots must be
// ordered by ObservedAt ascending; the store guarantees that ordering.
func Evaluate(cfg Config, snaps []*types.PerformanceSnapshot, now time.Time) []Candidate {
	var out []Candidate
	if c := EvaluateDecline(cfg.Decline, snaps); c != nil {
		out = append(out, *c)
	}
	if c := EvaluateEngagement(cfg.Engagement, snaps, now); c != nil {
		out = append(out, *c)
	}
	if c := EvaluateStagnation(cfg.Stagnation, snaps, now); c != nil {
		out = append(out, *c)
	}
	if c := EvaluateConsistency(cfg.Consistency, snaps, now); c != nil {
		out = append(out, *c)
	}
	return out
}

// EvaluateDecline fires when the mean score of the most recent
// cfg.MinSnapshots snapshots falls below cfg.ScoreThreshold. Fewer than
// MinSnapshots snapshots means no evaluation at all.
func EvaluateDecline(cfg DeclineConfig, snaps []*types.PerformanceSnapshot) *Candidate {
	if !cfg.Enabled || cfg.MinSnapshots <= 0 {
		return nil
	}
	if len(snaps) < cfg.MinSnapshots {
		return nil
	}
	recent := snaps[len(snaps)-cfg.MinSnapshots:]
	var sum float64
	ids := make([]uuid.UUID, 0, len(recent))
	for _, s := range recent {
		sum += s.Score
		ids = append(ids, s.ID)
	}
	mean := sum / float64(len(recent))
	if mean >= cfg.ScoreThreshold {
		return nil
	}
	sev := types.SeverityMedium
	switch {
	case mean < cfg.ScoreThreshold-0.25:
		sev = types.SeverityHigh
	case mean >= cfg.ScoreThreshold-0.05:
		sev = types.SeverityLow
	}
	return &Candidate{
		Category: types.AlertPerformanceDecline,
		Severity: sev,
		Evidence: Evidence{
			WindowStart: recent[0].ObservedAt,
			WindowEnd:   recent[len(recent)-1].ObservedAt,
			SnapshotIDs: ids,
			Metrics: map[string]float64{
				"mean_score": mean,
				"threshold":  cfg.ScoreThreshold,
			},
		},
	}
}

// EvaluateEngagement fires when the snapshot rate over the trailing window
// stays below cfg.MinPerDay.
func EvaluateEngagement(cfg EngagementConfig, snaps []*types.PerformanceSnapshot, now time.Time) *Candidate {
	if !cfg.Enabled || cfg.WindowDays <= 0 {
		return nil
	}
	cutoff := now.AddDate(0, 0, -cfg.WindowDays)
	count := 0
	for _, s := range snaps {
		if !s.ObservedAt.Before(cutoff) {
			count++
		}
	}
	rate := float64(count) / float64(cfg.WindowDays)
	if rate >= cfg.MinPerDay {
		return nil
	}
	sev := types.SeverityMedium
	if count == 0 {
		sev = types.SeverityHigh
	}
	return &Candidate{
		Category: types.AlertEngagementDrop,
		Severity: sev,
		Evidence: Evidence{
			WindowStart: cutoff,
			WindowEnd:   now,
			Metrics: map[string]float64{
				"snapshots_per_day": rate,
				"min_per_day":       cfg.MinPerDay,
				"window_days":       float64(cfg.WindowDays),
			},
		},
	}
}

// EvaluateStagnation fires when attempts keep arriving over the span but no
// snapshot beats the learner's prior best by more than Epsilon.
func EvaluateStagnation(cfg StagnationConfig, snaps []*types.PerformanceSnapshot, now time.Time) *Candidate {
	if !cfg.Enabled || cfg.SpanDays <= 0 {
		return nil
	}
	minAttempts := cfg.MinAttempts
	if minAttempts <= 0 {
		minAttempts = 2
	}
	cutoff := now.AddDate(0, 0, -cfg.SpanDays)

	best := 0.0
	attempts := 0
	improved := false
	var ids []uuid.UUID
	for _, s := range snaps {
		inSpan := !s.ObservedAt.Before(cutoff)
		if inSpan {
			attempts++
			ids = append(ids, s.ID)
			if s.Score > best+cfg.Epsilon {
				improved = true
			}
		}
		if s.Score > best {
			best = s.Score
		}
	}
	if attempts < minAttempts || improved {
		return nil
	}
	return &Candidate{
		Category: types.AlertStagnation,
		Severity: types.SeverityMedium,
		Evidence: Evidence{
			WindowStart: cutoff,
			WindowEnd:   now,
			SnapshotIDs: ids,
			Metrics: map[string]float64{
				"attempts_in_span": float64(attempts),
				"best_score":       best,
				"span_days":        float64(cfg.SpanDays),
			},
		},
	}
}

// EvaluateConsistency fires when the consistency score, 1 - stddev/mean
// clamped to [0,1], drops below the configured floor over the trailing
// window. Too few snapshots means no evaluation.
func EvaluateConsistency(cfg ConsistencyConfig, snaps []*types.PerformanceSnapshot, now time.Time) *Candidate {
	if !cfg.Enabled || cfg.WindowDays <= 0 {
		return nil
	}
	minSnaps := cfg.MinSnapshots
	if minSnaps <= 0 {
		minSnaps = 3
	}
	cutoff := now.AddDate(0, 0, -cfg.WindowDays)
	var scores []float64
	var ids []uuid.UUID
	var start, end time.Time
	for _, s := range snaps {
		if s.ObservedAt.Before(cutoff) {
			continue
		}
		scores = append(scores, s.Score)
		ids = append(ids, s.ID)
		if start.IsZero() {
			start = s.ObservedAt
		}
		end = s.ObservedAt
	}
	if len(scores) < minSnaps {
		return nil
	}
	m := mean(scores)
	if m <= 0 {
		return nil
	}
	consistency := clamp01(1 - stddev(scores)/m)
	if consistency >= cfg.MinConsistency {
		return nil
	}
	sev := types.SeverityMedium
	switch {
	case consistency < cfg.MinConsistency/2:
		sev = types.SeverityHigh
	case consistency >= cfg.MinConsistency-0.05:
		sev = types.SeverityLow
	}
	return &Candidate{
		Category: types.AlertLowConsistency,
		Severity: sev,
		Evidence: Evidence{
			WindowStart: start,
			WindowEnd:   end,
			SnapshotIDs: ids,
			Metrics: map[string]float64{
				"consistency":     consistency,
				"min_consistency": cfg.MinConsistency,
				"mean_score":      m,
			},
		},
	}
}
