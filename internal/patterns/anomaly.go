package patterns

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/types"
)

// Anomaly flags one snapshot inconsistent with the user's own trailing
// history. Informational only: anomalies ride along as evidence, they do
// not create alerts.
type Anomaly struct {
	SnapshotID uuid.UUID `json:"snapshot_id"`
	ObservedAt time.Time `json:"observed_at"`
	Score      float64   `json:"score"`
	ZScore     float64   `json:"z_score"`
}

const (
	defaultAnomalyWindow    = 10
	defaultAnomalyThreshold = 2.5
)

// DetectAnomalies z-scores each snapshot against the trailing window of
// the user's own earlier snapshots. Snapshots must be ordered by
// ObservedAt ascending.
func DetectAnomalies(snaps []*types.PerformanceSnapshot, window int, threshold float64) []Anomaly {
	if window <= 1 {
		window = defaultAnomalyWindow
	}
	if threshold <= 0 {
		threshold = defaultAnomalyThreshold
	}
	var out []Anomaly
	for i, s := range snaps {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		trailing := snaps[lo:i]
		if len(trailing) < 3 {
			continue
		}
		var sum float64
		for _, t := range trailing {
			sum += t.Score
		}
		m := sum / float64(len(trailing))
		var acc float64
		for _, t := range trailing {
			d := t.Score - m
			acc += d * d
		}
		sd := math.Sqrt(acc / float64(len(trailing)))
		if sd < 1e-9 {
			// Flat history: any sizable jump is anomalous. The z-score is
			// capped so the evidence stays JSON-encodable.
			if math.Abs(s.Score-m) > 0.3 {
				out = append(out, Anomaly{SnapshotID: s.ID, ObservedAt: s.ObservedAt, Score: s.Score, ZScore: math.Copysign(10, s.Score-m)})
			}
			continue
		}
		z := (s.Score - m) / sd
		if math.Abs(z) >= threshold {
			out = append(out, Anomaly{SnapshotID: s.ID, ObservedAt: s.ObservedAt, Score: s.Score, ZScore: z})
		}
	}
	return out
}
