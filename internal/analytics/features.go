package analytics

import (
	"math"
	"time"

	"github.com/learnloop/analytics-engine/internal/types"
)

// Point is one observation on the learner's score timeline, expressed as
// days since the first snapshot in the series.
type Point struct {
	DayOffset float64
	Score     float64
}

// Features is the vector extracted from a user's snapshot history. It feeds
// both the tree ensemble and the learning-signature axes.
type Features struct {
	Count          int
	MeanScore      float64
	Variance       float64
	Slope          float64
	Velocity       float64
	MeanTimeSpent  float64
	TimeOfDay      [4]float64
	SpanDays       float64
	First          time.Time
	Last           time.Time
}

// Vector flattens the features for model input. Order is stable; the stump
// ensemble indexes into it.
func (f Features) Vector() []float64 {
	return []float64{
		float64(f.Count),
		f.MeanScore,
		f.Variance,
		f.Slope,
		f.Velocity,
		f.MeanTimeSpent,
		f.TimeOfDay[0], f.TimeOfDay[1], f.TimeOfDay[2], f.TimeOfDay[3],
		f.SpanDays,
	}
}

// Series converts snapshots (ordered by ObservedAt) to timeline points.
func Series(snaps []*types.PerformanceSnapshot) []Point {
	if len(snaps) == 0 {
		return nil
	}
	first := snaps[0].ObservedAt
	pts := make([]Point, 0, len(snaps))
	for _, s := range snaps {
		pts = append(pts, Point{
			DayOffset: s.ObservedAt.Sub(first).Hours() / 24,
			Score:     s.Score,
		})
	}
	return pts
}

// Extract computes the feature vector from ordered snapshots.
func Extract(snaps []*types.PerformanceSnapshot) Features {
	var f Features
	f.Count = len(snaps)
	if f.Count == 0 {
		return f
	}
	f.First = snaps[0].ObservedAt
	f.Last = snaps[len(snaps)-1].ObservedAt
	f.SpanDays = f.Last.Sub(f.First).Hours() / 24

	var scoreSum, timeSum float64
	for _, s := range snaps {
		scoreSum += s.Score
		timeSum += float64(s.TimeSpentSeconds)
		f.TimeOfDay[s.ObservedAt.Hour()/6] += 1
	}
	f.MeanScore = scoreSum / float64(f.Count)
	f.MeanTimeSpent = timeSum / float64(f.Count)
	for i := range f.TimeOfDay {
		f.TimeOfDay[i] /= float64(f.Count)
	}

	var acc float64
	for _, s := range snaps {
		d := s.Score - f.MeanScore
		acc += d * d
	}
	f.Variance = acc / float64(f.Count)

	f.Slope = slope(Series(snaps))

	// Velocity: recent-half mean minus older-half mean.
	if f.Count >= 2 {
		mid := f.Count / 2
		var older, recent float64
		for _, s := range snaps[:mid] {
			older += s.Score
		}
		for _, s := range snaps[mid:] {
			recent += s.Score
		}
		f.Velocity = recent/float64(f.Count-mid) - older/float64(mid)
	}
	return f
}

// slope is the least-squares score slope per day.
func slope(pts []Point) float64 {
	if len(pts) < 2 {
		return 0
	}
	var sx, sy, sxx, sxy float64
	n := float64(len(pts))
	for _, p := range pts {
		sx += p.DayOffset
		sy += p.Score
		sxx += p.DayOffset * p.DayOffset
		sxy += p.DayOffset * p.Score
	}
	den := n*sxx - sx*sx
	if math.Abs(den) < 1e-12 {
		return 0
	}
	return (n*sxy - sx*sy) / den
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
