package analytics

import (
	"math"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
)

// TrendModel extrapolates the score trajectory with a least-squares fit
// (degree 1 or 2) and reads the completion probability off the projected
// score at the horizon.
type TrendModel struct {
	Degree int
}

func (m TrendModel) Name() string { return "trend" }

func (m TrendModel) Predict(pts []Point, horizonDays int) (float64, error) {
	if len(pts) < 2 {
		return 0, &analyticserr.ModelUnavailableError{Model: m.Name(), Err: &analyticserr.InsufficientDataError{Have: len(pts), Need: 2}}
	}
	deg := m.Degree
	if deg < 1 || deg > 2 {
		deg = 1
	}
	if deg == 2 && len(pts) < 4 {
		deg = 1
	}
	coeffs, err := polyfit(pts, deg)
	if err != nil {
		return 0, &analyticserr.ModelUnavailableError{Model: m.Name(), Err: err}
	}
	x := pts[len(pts)-1].DayOffset + float64(horizonDays)
	var projected float64
	for i, c := range coeffs {
		projected += c * math.Pow(x, float64(i))
	}
	return clamp01(projected), nil
}

// polyfit solves the normal equations for a small polynomial fit via
// Gaussian elimination. Degree is at most 2 so the system stays tiny.
func polyfit(pts []Point, degree int) ([]float64, error) {
	n := degree + 1
	a := make([][]float64, n)
	b := make([]float64, n)
	for i := range a {
		a[i] = make([]float64, n)
	}
	for _, p := range pts {
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				a[i][j] += math.Pow(p.DayOffset, float64(i+j))
			}
			b[i] += p.Score * math.Pow(p.DayOffset, float64(i))
		}
	}
	for col := 0; col < n; col++ {
		pivot := col
		for r := col + 1; r < n; r++ {
			if math.Abs(a[r][col]) > math.Abs(a[pivot][col]) {
				pivot = r
			}
		}
		if math.Abs(a[pivot][col]) < 1e-12 {
			return nil, &analyticserr.InsufficientDataError{Have: len(pts), Need: n}
		}
		a[col], a[pivot] = a[pivot], a[col]
		b[col], b[pivot] = b[pivot], b[col]
		for r := col + 1; r < n; r++ {
			f := a[r][col] / a[col][col]
			for c := col; c < n; c++ {
				a[r][c] -= f * a[col][c]
			}
			b[r] -= f * b[col]
		}
	}
	coeffs := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= a[i][j] * coeffs[j]
		}
		coeffs[i] = sum / a[i][i]
	}
	return coeffs, nil
}
