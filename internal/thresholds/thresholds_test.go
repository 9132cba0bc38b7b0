package thresholds

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/types"
)

var evalNow = time.Date(2025, 6, 10, 9, 0, 0, 0, time.UTC)

func snapshotsAt(scores []float64, spacing time.Duration) []*types.PerformanceSnapshot {
	userID := uuid.New()
	snaps := make([]*types.PerformanceSnapshot, 0, len(scores))
	start := evalNow.Add(-spacing * time.Duration(len(scores)-1))
	for i, score := range scores {
		snaps = append(snaps, &types.PerformanceSnapshot{
			ID:         uuid.New(),
			UserID:     userID,
			Score:      score,
			Source:     types.SnapshotSourceQuiz,
			ObservedAt: start.Add(spacing * time.Duration(i)),
		})
	}
	return snaps
}

func TestDeclineFiresOnExampleScenario(t *testing.T) {
	// Scores 0.9, 0.85, 0.55, 0.50 a day apart; k=2 mean = 0.525 < 0.60.
	snaps := snapshotsAt([]float64{0.9, 0.85, 0.55, 0.50}, 24*time.Hour)
	cfg := DefaultConfig().Decline

	got := EvaluateDecline(cfg, snaps)
	if got == nil {
		t.Fatalf("expected a decline candidate")
	}
	if got.Category != types.AlertPerformanceDecline {
		t.Fatalf("category: %s", got.Category)
	}
	if got.Severity != types.SeverityMedium {
		t.Fatalf("severity: got=%s want=%s", got.Severity, types.SeverityMedium)
	}
	if m := got.Evidence.Metrics["mean_score"]; m < 0.5249 || m > 0.5251 {
		t.Fatalf("mean score: %f", m)
	}
	if len(got.Evidence.SnapshotIDs) != 2 {
		t.Fatalf("evidence should reference the k most recent snapshots, got %d", len(got.Evidence.SnapshotIDs))
	}
}

func TestDeclineInsufficientDataIsNotAnAlert(t *testing.T) {
	snaps := snapshotsAt([]float64{0.1}, 24*time.Hour)
	if got := EvaluateDecline(DefaultConfig().Decline, snaps); got != nil {
		t.Fatalf("one snapshot with k=2 must not evaluate, got %+v", got)
	}
}

func TestDeclineHealthyScoresNoCandidate(t *testing.T) {
	snaps := snapshotsAt([]float64{0.5, 0.9, 0.85}, 24*time.Hour)
	if got := EvaluateDecline(DefaultConfig().Decline, snaps); got != nil {
		t.Fatalf("recent mean 0.875 must not fire, got %+v", got)
	}
}

func TestDeclineDisabled(t *testing.T) {
	cfg := DefaultConfig().Decline
	cfg.Enabled = false
	snaps := snapshotsAt([]float64{0.1, 0.1}, 24*time.Hour)
	if got := EvaluateDecline(cfg, snaps); got != nil {
		t.Fatalf("disabled evaluator fired")
	}
}

func TestEngagementDropFires(t *testing.T) {
	// Two snapshots in a 3-day window: 0.67/day < 1/day.
	snaps := snapshotsAt([]float64{0.8, 0.7}, 30*time.Hour)
	got := EvaluateEngagement(DefaultConfig().Engagement, snaps, evalNow)
	if got == nil {
		t.Fatalf("expected an engagement candidate")
	}
	if got.Category != types.AlertEngagementDrop || got.Severity != types.SeverityMedium {
		t.Fatalf("got %s/%s", got.Category, got.Severity)
	}
}

func TestEngagementZeroActivityIsHighSeverity(t *testing.T) {
	got := EvaluateEngagement(DefaultConfig().Engagement, nil, evalNow)
	if got == nil || got.Severity != types.SeverityHigh {
		t.Fatalf("expected high severity for silent window, got %+v", got)
	}
}

func TestEngagementHealthyRate(t *testing.T) {
	snaps := snapshotsAt([]float64{0.8, 0.7, 0.9, 0.6}, 12*time.Hour)
	if got := EvaluateEngagement(DefaultConfig().Engagement, snaps, evalNow); got != nil {
		t.Fatalf("4 snapshots in 3 days must not fire, got %+v", got)
	}
}

func TestStagnationFiresWithoutImprovement(t *testing.T) {
	// Attempts keep arriving but never beat the 0.9 best set before the span.
	snaps := snapshotsAt([]float64{0.9, 0.6, 0.62, 0.58, 0.61}, 36*time.Hour)
	got := EvaluateStagnation(DefaultConfig().Stagnation, snaps, evalNow)
	if got == nil {
		t.Fatalf("expected a stagnation candidate")
	}
	if got.Category != types.AlertStagnation {
		t.Fatalf("category: %s", got.Category)
	}
}

func TestStagnationImprovementSuppresses(t *testing.T) {
	snaps := snapshotsAt([]float64{0.5, 0.55, 0.6, 0.7, 0.95}, 24*time.Hour)
	if got := EvaluateStagnation(DefaultConfig().Stagnation, snaps, evalNow); got != nil {
		t.Fatalf("improving learner must not fire, got %+v", got)
	}
}

func TestStagnationNeedsAttempts(t *testing.T) {
	snaps := snapshotsAt([]float64{0.5}, time.Hour)
	if got := EvaluateStagnation(DefaultConfig().Stagnation, snaps, evalNow); got != nil {
		t.Fatalf("one attempt is not stagnation, got %+v", got)
	}
}

func TestConsistencyFiresOnErraticScores(t *testing.T) {
	snaps := snapshotsAt([]float64{0.95, 0.1, 0.9, 0.15, 0.85}, 24*time.Hour)
	got := EvaluateConsistency(DefaultConfig().Consistency, snaps, evalNow)
	if got == nil {
		t.Fatalf("expected a consistency candidate")
	}
	if got.Category != types.AlertLowConsistency {
		t.Fatalf("category: %s", got.Category)
	}
	c := got.Evidence.Metrics["consistency"]
	if c < 0 || c >= 0.5 {
		t.Fatalf("consistency score out of expected range: %f", c)
	}
}

func TestConsistencySteadyScoresNoCandidate(t *testing.T) {
	snaps := snapshotsAt([]float64{0.8, 0.82, 0.78, 0.81}, 24*time.Hour)
	if got := EvaluateConsistency(DefaultConfig().Consistency, snaps, evalNow); got != nil {
		t.Fatalf("steady learner must not fire, got %+v", got)
	}
}

func TestConsistencyInsufficientData(t *testing.T) {
	snaps := snapshotsAt([]float64{0.9, 0.1}, 24*time.Hour)
	if got := EvaluateConsistency(DefaultConfig().Consistency, snaps, evalNow); got != nil {
		t.Fatalf("two snapshots must not evaluate, got %+v", got)
	}
}

func TestEvaluateRunsAllEnabledEvaluators(t *testing.T) {
	// Declining, erratic, low-rate history triggers several categories at once.
	snaps := snapshotsAt([]float64{0.9, 0.2}, 40*time.Hour)
	cands := Evaluate(DefaultConfig(), snaps, evalNow)
	seen := map[types.AlertCategory]bool{}
	for _, c := range cands {
		if seen[c.Category] {
			t.Fatalf("duplicate candidate for %s", c.Category)
		}
		seen[c.Category] = true
	}
	if !seen[types.AlertPerformanceDecline] {
		t.Fatalf("expected decline among candidates: %+v", cands)
	}
	if !seen[types.AlertEngagementDrop] {
		t.Fatalf("expected engagement drop among candidates: %+v", cands)
	}
}
