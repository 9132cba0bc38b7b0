package patterns

import (
	"sort"

	"github.com/learnloop/analytics-engine/internal/types"
)

// StyleScores are the four behavioral axes of a learning signature. Each
// axis is normalized to [0,1] independently; they do not sum to 1.
type StyleScores struct {
	AssessmentPreference float64 `json:"assessment_preference"`
	TimingRegularity     float64 `json:"timing_regularity"`
	ResponseSpeed        float64 `json:"response_speed"`
	RevisionFrequency    float64 `json:"revision_frequency"`
}

func (s StyleScores) Vector() []float64 {
	return []float64{s.AssessmentPreference, s.TimingRegularity, s.ResponseSpeed, s.RevisionFrequency}
}

// referenceTimeSpent anchors the response-speed axis: spending this long
// per activity maps to 0.5.
const referenceTimeSpent = 600.0

// ComputeStyleScores derives the style axes from a user's snapshots.
func ComputeStyleScores(snaps []*types.PerformanceSnapshot) StyleScores {
	var s StyleScores
	if len(snaps) == 0 {
		return s
	}

	var quizCount int
	var timeOfDay [4]int
	skillSeen := map[string]int{}
	var revisits int
	times := make([]float64, 0, len(snaps))

	for _, snap := range snaps {
		if snap.Source == types.SnapshotSourceQuiz {
			quizCount++
		}
		timeOfDay[snap.ObservedAt.Hour()/6]++
		times = append(times, float64(snap.TimeSpentSeconds))
		if snap.SkillID != nil {
			key := snap.SkillID.String()
			skillSeen[key]++
			if skillSeen[key] > 1 {
				revisits++
			}
		}
	}

	n := float64(len(snaps))
	s.AssessmentPreference = float64(quizCount) / n

	// Regularity: share of activity in the user's dominant time-of-day
	// quarter, rescaled so a uniform spread maps to 0.
	maxBin := 0
	for _, c := range timeOfDay {
		if c > maxBin {
			maxBin = c
		}
	}
	s.TimingRegularity = clamp01((float64(maxBin)/n - 0.25) / 0.75)

	s.ResponseSpeed = clamp01(1 - median(times)/(median(times)+referenceTimeSpent))

	s.RevisionFrequency = float64(revisits) / n
	return s
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
