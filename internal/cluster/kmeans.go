// Package cluster reduces point clouds to representative centres and picks
// how many centres to use.
package cluster

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/goldenspiral/internal/geom"
)

// ErrInvalidInput is returned for point sets or k values that cannot be clustered.
var ErrInvalidInput = errors.New("invalid clustering input")

// Result is the outcome of one k-means fit.
type Result struct {
	Centers []geom.Point
	Labels  []int
	Inertia float64
}

// Clusterer partitions points into k clusters. Implementations must be
// deterministic for a fixed input.
type Clusterer interface {
	Fit(points []geom.Point, k int) (*Result, error)
}

// KMeans is a Lloyd k-means with k-means++ seeding. Seeding draws from a PCG
// source created from Seed on every call, so Fit is deterministic.
type KMeans struct {
	MaxIterations int
	Tolerance     float64
	Seed          uint64
	// Runs is the number of independent seedings; the lowest inertia wins.
	Runs int
}

// NewKMeans returns a KMeans with the defaults used throughout the pipeline.
func NewKMeans(seed uint64) *KMeans {
	return &KMeans{
		MaxIterations: 300,
		Tolerance:     1e-4,
		Seed:          seed,
		Runs:          4,
	}
}

// Fit implements Clusterer.
func (km *KMeans) Fit(points []geom.Point, k int) (*Result, error) {
	if k < 1 || k > len(points) {
		return nil, fmt.Errorf("%w: k=%d for %d points", ErrInvalidInput, k, len(points))
	}
	for i, p := range points {
		if !p.IsFinite() {
			return nil, fmt.Errorf("%w: point %d is not finite", ErrInvalidInput, i)
		}
	}

	maxIter := km.MaxIterations
	if maxIter <= 0 {
		maxIter = 300
	}
	runs := km.Runs
	if runs <= 0 {
		runs = 1
	}

	rng := rand.New(rand.NewPCG(km.Seed, km.Seed^0x9e3779b97f4a7c15))

	var best *Result
	for r := 0; r < runs; r++ {
		centers := seedPlusPlus(points, k, rng)
		res := lloyd(points, centers, maxIter, km.Tolerance)
		if best == nil || res.Inertia < best.Inertia {
			best = res
		}
	}
	return best, nil
}

// seedPlusPlus picks k initial centres, each new centre drawn with
// probability proportional to its squared distance from the nearest chosen one.
func seedPlusPlus(points []geom.Point, k int, rng *rand.Rand) []geom.Point {
	centers := make([]geom.Point, 0, k)
	centers = append(centers, points[rng.IntN(len(points))])

	d2 := make([]float64, len(points))
	for i, p := range points {
		d2[i] = p.Dist2(centers[0])
	}

	for len(centers) < k {
		var total float64
		for _, d := range d2 {
			total += d
		}

		next := 0
		if total > 0 {
			target := rng.Float64() * total
			var acc float64
			for i, d := range d2 {
				acc += d
				if acc >= target && d > 0 {
					next = i
					break
				}
				next = i
			}
		} else {
			// All remaining points coincide with a centre.
			next = rng.IntN(len(points))
		}

		c := points[next]
		centers = append(centers, c)
		for i, p := range points {
			if d := p.Dist2(c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centers
}

func lloyd(points []geom.Point, centers []geom.Point, maxIter int, tol float64) *Result {
	k := len(centers)
	labels := make([]int, len(points))
	sums := make([]geom.Point, k)
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		assign(points, centers, labels)

		for j := range sums {
			sums[j] = geom.Point{}
			counts[j] = 0
		}
		for i, p := range points {
			l := labels[i]
			sums[l].X += p.X
			sums[l].Y += p.Y
			counts[l]++
		}

		var shift float64
		for j := 0; j < k; j++ {
			var next geom.Point
			if counts[j] == 0 {
				next = farthestPoint(points, centers, labels)
			} else {
				next = geom.Point{X: sums[j].X / float64(counts[j]), Y: sums[j].Y / float64(counts[j])}
			}
			shift = math.Max(shift, next.Dist2(centers[j]))
			centers[j] = next
		}

		if shift <= tol {
			break
		}
	}

	inertia := assign(points, centers, labels)
	return &Result{Centers: centers, Labels: labels, Inertia: inertia}
}

// assign labels every point with its nearest centre and returns the inertia.
func assign(points []geom.Point, centers []geom.Point, labels []int) float64 {
	var inertia float64
	for i, p := range points {
		best, bestD := 0, math.Inf(1)
		for j, c := range centers {
			if d := p.Dist2(c); d < bestD {
				best, bestD = j, d
			}
		}
		labels[i] = best
		inertia += bestD
	}
	return inertia
}

func farthestPoint(points []geom.Point, centers []geom.Point, labels []int) geom.Point {
	idx, far := 0, -1.0
	for i, p := range points {
		if d := p.Dist2(centers[labels[i]]); d > far {
			idx, far = i, d
		}
	}
	return points[idx]
}

// Centers runs the default k-means on points and returns only the centres.
// k == 1 yields the centroid.
func Centers(points []geom.Point, k int, seed uint64) ([]geom.Point, error) {
	if k == 1 && len(points) > 0 {
		return []geom.Point{geom.Centroid(points)}, nil
	}
	res, err := NewKMeans(seed).Fit(points, k)
	if err != nil {
		return nil, err
	}
	return res.Centers, nil
}
