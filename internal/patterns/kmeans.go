package patterns

import (
	"math"
	"math/rand"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
)

// ClusterModel is a trained k-means model over the style-score feature
// space. Assignment is deterministic for a fixed model, so cluster ids
// stay stable between retrainings.
type ClusterModel struct {
	Centroids [][]float64 `json:"centroids"`
}

const kmeansMaxIterations = 100

// TrainClusters fits k-means with deterministic seeding. The seed makes
// retraining reproducible for a fixed input set.
func TrainClusters(points [][]float64, k int, seed int64) (*ClusterModel, error) {
	if k <= 0 {
		k = 4
	}
	if len(points) < k {
		return nil, &analyticserr.InsufficientDataError{Have: len(points), Need: k}
	}
	dims := len(points[0])
	rng := rand.New(rand.NewSource(seed))

	centroids := seedCentroids(points, k, rng)
	assignments := make([]int, len(points))

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, p := range points {
			best := nearest(centroids, p)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}
		counts := make([]int, k)
		sums := make([][]float64, k)
		for c := range sums {
			sums[c] = make([]float64, dims)
		}
		for i, p := range points {
			c := assignments[i]
			counts[c]++
			for d, v := range p {
				sums[c][d] += v
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				// Re-seed an empty cluster from a random point.
				copy(sums[c], points[rng.Intn(len(points))])
				counts[c] = 1
			}
			for d := range sums[c] {
				sums[c][d] /= float64(counts[c])
			}
		}
		centroids = sums
	}
	return &ClusterModel{Centroids: centroids}, nil
}

// Assign returns the id of the nearest centroid.
func (m *ClusterModel) Assign(point []float64) int {
	if m == nil || len(m.Centroids) == 0 {
		return -1
	}
	return nearest(m.Centroids, point)
}

// seedCentroids is k-means++ style: spread the initial centroids out
// proportionally to squared distance.
func seedCentroids(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), points[rng.Intn(len(points))]...))
	for len(centroids) < k {
		dists := make([]float64, len(points))
		var total float64
		for i, p := range points {
			best := math.Inf(1)
			for _, c := range centroids {
				if d := sqDist(p, c); d < best {
					best = d
				}
			}
			dists[i] = best
			total += best
		}
		if total == 0 {
			centroids = append(centroids, append([]float64(nil), points[rng.Intn(len(points))]...))
			continue
		}
		target := rng.Float64() * total
		var acc float64
		pick := len(points) - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				pick = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), points[pick]...))
	}
	return centroids
}

func nearest(centroids [][]float64, p []float64) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centroids {
		if d := sqDist(p, c); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var acc float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		acc += d * d
	}
	return acc
}
