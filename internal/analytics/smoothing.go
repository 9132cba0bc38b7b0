package analytics

import (
	"github.com/learnloop/analytics-engine/internal/analyticserr"
)

// HoltModel is a double-exponential (level + trend) smoother over the score
// series, forecast one step per remaining horizon day of learner cadence.
type HoltModel struct {
	Alpha float64
	Beta  float64
}

func (m HoltModel) Name() string { return "smoothing" }

func (m HoltModel) Predict(pts []Point, horizonDays int) (float64, error) {
	if len(pts) < 3 {
		return 0, &analyticserr.ModelUnavailableError{Model: m.Name(), Err: &analyticserr.InsufficientDataError{Have: len(pts), Need: 3}}
	}
	alpha := m.Alpha
	if alpha <= 0 || alpha >= 1 {
		alpha = 0.5
	}
	beta := m.Beta
	if beta <= 0 || beta >= 1 {
		beta = 0.3
	}

	level := pts[0].Score
	trend := pts[1].Score - pts[0].Score
	for _, p := range pts[1:] {
		prevLevel := level
		level = alpha*p.Score + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
	}

	// Forecast as many steps ahead as the learner's observed cadence
	// fits into the horizon.
	span := pts[len(pts)-1].DayOffset - pts[0].DayOffset
	perStep := span / float64(len(pts)-1)
	if perStep <= 0 {
		perStep = 1
	}
	steps := float64(horizonDays) / perStep
	if steps < 1 {
		steps = 1
	}
	return clamp01(level + trend*steps), nil
}
