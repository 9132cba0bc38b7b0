package analytics

import (
	"math"
)

// SubmodelResult is one submodel's contribution to the ensemble, retained
// in the forecast's model breakdown.
type SubmodelResult struct {
	Name     string  `json:"name"`
	Estimate float64 `json:"estimate"`
	Weight   float64 `json:"weight"`
}

// Weights maps submodel name to its ensemble weight. Always sums to 1
// across the submodels it covers.
type Weights map[string]float64

// InverseErrorWeights derives ensemble weights from validation errors:
// lower historical error, higher weight. Recomputed only when validation
// data refreshes.
func InverseErrorWeights(validationError map[string]float64) Weights {
	const eps = 1e-3
	w := make(Weights, len(validationError))
	var total float64
	for name, errVal := range validationError {
		inv := 1 / (math.Abs(errVal) + eps)
		w[name] = inv
		total += inv
	}
	if total == 0 {
		return UniformWeights(keys(validationError))
	}
	for name := range w {
		w[name] /= total
	}
	return w
}

func UniformWeights(names []string) Weights {
	w := make(Weights, len(names))
	if len(names) == 0 {
		return w
	}
	share := 1 / float64(len(names))
	for _, n := range names {
		w[n] = share
	}
	return w
}

func keys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Combine folds the available submodel estimates into one point estimate.
// Weights are renormalized over the submodels that actually produced an
// estimate, so a failed submodel shifts weight to the survivors.
func Combine(estimates map[string]float64, w Weights) (float64, []SubmodelResult) {
	if len(estimates) == 0 {
		return 0, nil
	}
	var weightTotal float64
	for name := range estimates {
		weightTotal += w[name]
	}
	var point float64
	results := make([]SubmodelResult, 0, len(estimates))
	for name, est := range estimates {
		var share float64
		if weightTotal > 0 {
			share = w[name] / weightTotal
		} else {
			share = 1 / float64(len(estimates))
		}
		point += share * est
		results = append(results, SubmodelResult{Name: name, Estimate: est, Weight: share})
	}
	return clamp01(point), results
}

// ConfidenceInterval widens with submodel disagreement, shrinks with sample
// size, and widens again when submodels dropped out of the ensemble.
// Bounds always satisfy low <= point <= high within [0,1].
func ConfidenceInterval(point float64, estimates map[string]float64, sampleCount, totalModels int) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, est := range estimates {
		lo = math.Min(lo, est)
		hi = math.Max(hi, est)
	}
	spread := 0.0
	if len(estimates) > 1 {
		spread = hi - lo
	}
	if sampleCount < 1 {
		sampleCount = 1
	}
	half := spread/2 + 0.25/math.Sqrt(float64(sampleCount))
	if totalModels > len(estimates) && len(estimates) > 0 {
		half *= float64(totalModels) / float64(len(estimates))
	}
	low := clamp01(point - half)
	high := clamp01(point + half)
	if low > point {
		low = point
	}
	if high < point {
		high = point
	}
	return low, high
}
