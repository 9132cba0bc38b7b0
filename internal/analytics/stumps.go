package analytics

import (
	"math"
	"sort"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
)

// Example is one cross-user training row: a historical feature vector and
// the completion outcome observed afterwards.
type Example struct {
	Features []float64
	Target   float64
}

type stump struct {
	feature   int
	threshold float64
	left      float64
	right     float64
}

// StumpEnsemble is a gradient-boosted decision-stump regressor trained on
// cross-user history. Training happens on the slow validation cadence,
// never per prediction call.
type StumpEnsemble struct {
	base   float64
	rate   float64
	stumps []stump
}

const (
	defaultBoostRounds  = 40
	defaultLearningRate = 0.1
	minTrainExamples    = 8
)

// TrainStumps fits the ensemble by least-squares boosting: each round fits
// the best single-feature split to the current residuals.
func TrainStumps(examples []Example, rounds int, rate float64) (*StumpEnsemble, error) {
	if len(examples) < minTrainExamples {
		return nil, &analyticserr.InsufficientDataError{Have: len(examples), Need: minTrainExamples}
	}
	if rounds <= 0 {
		rounds = defaultBoostRounds
	}
	if rate <= 0 || rate > 1 {
		rate = defaultLearningRate
	}

	var base float64
	for _, ex := range examples {
		base += ex.Target
	}
	base /= float64(len(examples))

	ens := &StumpEnsemble{base: base, rate: rate}
	residuals := make([]float64, len(examples))
	for i, ex := range examples {
		residuals[i] = ex.Target - base
	}

	dims := len(examples[0].Features)
	for round := 0; round < rounds; round++ {
		best, ok := bestStump(examples, residuals, dims)
		if !ok {
			break
		}
		ens.stumps = append(ens.stumps, best)
		for i, ex := range examples {
			residuals[i] -= rate * best.apply(ex.Features)
		}
	}
	return ens, nil
}

func (e *StumpEnsemble) Predict(features []float64) float64 {
	pred := e.base
	for _, s := range e.stumps {
		pred += e.rate * s.apply(features)
	}
	return clamp01(pred)
}

func (s stump) apply(features []float64) float64 {
	if s.feature >= len(features) {
		return 0
	}
	if features[s.feature] <= s.threshold {
		return s.left
	}
	return s.right
}

// bestStump scans every feature and candidate threshold for the split that
// minimizes residual variance.
func bestStump(examples []Example, residuals []float64, dims int) (stump, bool) {
	var best stump
	bestLoss := math.Inf(1)
	found := false

	values := make([]float64, len(examples))
	for feat := 0; feat < dims; feat++ {
		for i, ex := range examples {
			values[i] = ex.Features[feat]
		}
		for _, th := range candidateThresholds(values) {
			var leftSum, rightSum float64
			var leftN, rightN int
			for i, ex := range examples {
				if ex.Features[feat] <= th {
					leftSum += residuals[i]
					leftN++
				} else {
					rightSum += residuals[i]
					rightN++
				}
			}
			if leftN == 0 || rightN == 0 {
				continue
			}
			leftMean := leftSum / float64(leftN)
			rightMean := rightSum / float64(rightN)
			var loss float64
			for i, ex := range examples {
				var fit float64
				if ex.Features[feat] <= th {
					fit = leftMean
				} else {
					fit = rightMean
				}
				d := residuals[i] - fit
				loss += d * d
			}
			if loss < bestLoss {
				bestLoss = loss
				best = stump{feature: feat, threshold: th, left: leftMean, right: rightMean}
				found = true
			}
		}
	}
	return best, found
}

// candidateThresholds returns midpoints between distinct sorted values,
// capped to keep training cheap.
func candidateThresholds(values []float64) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	var out []float64
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			continue
		}
		out = append(out, (sorted[i]+sorted[i-1])/2)
	}
	const maxCandidates = 16
	if len(out) > maxCandidates {
		step := len(out) / maxCandidates
		picked := make([]float64, 0, maxCandidates)
		for i := 0; i < len(out); i += step {
			picked = append(picked, out[i])
		}
		out = picked
	}
	return out
}
