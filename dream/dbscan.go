package dream

import (
	"errors"
	"math"

	"github.com/becomeliminal/affect-memory/memory"
)

// Noise is the label DBSCAN gives points that belong to no cluster.
const Noise = -1

const unvisited = -2

var errNonFinite = errors.New("dream: non-finite distance")

// Distances L2-normalizes vecs and returns their pairwise Euclidean distance
// matrix. Callers must pass usable vectors only; a non-finite entry is
// reported as an error rather than clustered.
func Distances(vecs [][]float32) ([][]float64, error) {
	unit := make([][]float64, len(vecs))
	for i, v := range vecs {
		unit[i] = memory.Normalize(v)
	}

	dist := make([][]float64, len(unit))
	for i := range dist {
		dist[i] = make([]float64, len(unit))
	}
	for i := range unit {
		for j := i + 1; j < len(unit); j++ {
			d := euclidean(unit[i], unit[j])
			if math.IsNaN(d) || math.IsInf(d, 0) {
				return nil, errNonFinite
			}
			dist[i][j], dist[j][i] = d, d
		}
	}
	return dist, nil
}

func euclidean(a, b []float64) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

// DBSCAN clusters points given their precomputed distance matrix. A point
// is a core point when at least minPts points, itself included, lie within
// eps. Clusters are labelled 0, 1, ... in discovery order; the rest are
// Noise.
func DBSCAN(dist [][]float64, eps float64, minPts int) []int {
	n := len(dist)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	neighbours := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if dist[i][j] <= eps {
				out = append(out, j)
			}
		}
		return out
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		seeds := neighbours(i)
		if len(seeds) < minPts {
			labels[i] = Noise
			continue
		}

		labels[i] = cluster
		for k := 0; k < len(seeds); k++ {
			j := seeds[k]
			if labels[j] == Noise {
				labels[j] = cluster // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if more := neighbours(j); len(more) >= minPts {
				seeds = append(seeds, more...)
			}
		}
		cluster++
	}
	return labels
}
