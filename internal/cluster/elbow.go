package cluster

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/goldenspiral/internal/geom"
)

// DefaultMaxK is the largest cluster count tried when none is configured.
const DefaultMaxK = 10

// InertiaPoint is one sample of the inertia curve.
type InertiaPoint struct {
	K       int     `json:"k"`
	Inertia float64 `json:"inertia"`
}

// Selection is the outcome of an elbow search.
type Selection struct {
	K int `json:"k"`
	// Curve is empty when the clamped range was too short to fit anything.
	Curve []InertiaPoint `json:"curve,omitempty"`
	// Clamped is set when MaxK was reduced to len(points)-1.
	Clamped bool `json:"clamped"`
}

// ElbowSelector picks a cluster count with the point-to-line elbow heuristic.
type ElbowSelector struct {
	Clusterer Clusterer
	MaxK      int
	// MinK raises the selected k to at least this value, capped at the
	// number of points. Zero leaves the elbow choice untouched.
	MinK int
}

// Select runs the clusterer for k = 2..MaxK and returns the k whose inertia
// bulges furthest from the line joining the first and last curve points.
//
// When len(points) <= MaxK the range is clamped to len(points)-1. If that
// leaves fewer than 2 candidates the clamped value is returned directly with
// an empty curve.
func (s *ElbowSelector) Select(points []geom.Point) (*Selection, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points, got %d", ErrInvalidInput, len(points))
	}

	maxK := s.MaxK
	if maxK <= 0 {
		maxK = DefaultMaxK
	}

	sel := &Selection{}
	if len(points) <= maxK {
		maxK = len(points) - 1
		sel.Clamped = true
	}

	if maxK < 2 {
		sel.K = s.applyMinK(maxK, len(points))
		slog.Debug("elbow range degenerate", "points", len(points), "k", sel.K)
		return sel, nil
	}

	clusterer := s.Clusterer
	if clusterer == nil {
		clusterer = NewKMeans(0)
	}

	sel.Curve = make([]InertiaPoint, 0, maxK-1)
	for k := 2; k <= maxK; k++ {
		res, err := clusterer.Fit(points, k)
		if err != nil {
			return nil, fmt.Errorf("failed to cluster with k=%d: %w", k, err)
		}
		sel.Curve = append(sel.Curve, InertiaPoint{K: k, Inertia: res.Inertia})
	}

	elbow := sel.Curve[ElbowIndex(sel.Curve)].K
	sel.K = s.applyMinK(elbow, len(points))

	slog.Debug("elbow selected",
		"points", len(points),
		"max_k", maxK,
		"elbow_k", elbow,
		"k", sel.K,
	)
	return sel, nil
}

func (s *ElbowSelector) applyMinK(k, n int) int {
	if k < s.MinK {
		k = s.MinK
	}
	if k > n {
		k = n
	}
	return k
}

// SelectK picks k with the default deterministic KMeans and no lower bound.
func SelectK(points []geom.Point, maxK int) (int, error) {
	sel, err := (&ElbowSelector{Clusterer: NewKMeans(0), MaxK: maxK}).Select(points)
	if err != nil {
		return 0, err
	}
	return sel.K, nil
}

// ElbowIndex returns the index of the curve point farthest from the line
// through the first and last points. Ties go to the earliest index. A curve
// with fewer than three points, or whose endpoints coincide, yields 0.
func ElbowIndex(curve []InertiaPoint) int {
	if len(curve) < 3 {
		return 0
	}

	first, last := curve[0], curve[len(curve)-1]
	lx := float64(last.K - first.K)
	ly := last.Inertia - first.Inertia
	norm := math.Hypot(lx, ly)
	if norm == 0 {
		return 0
	}

	dist := make([]float64, len(curve))
	for i, c := range curve {
		fx := float64(first.K - c.K)
		fy := first.Inertia - c.Inertia
		dist[i] = math.Abs(lx*fy-ly*fx) / norm
	}
	return floats.MaxIdx(dist)
}
