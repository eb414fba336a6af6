package fit

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/cwbudde/goldenspiral/internal/geom"
)

// GoldenGrowthRate is the growth rate b of the golden spiral, ln(phi)/(pi/2).
const GoldenGrowthRate = 0.30635

// SpiralParams determines the logarithmic spiral r(θ) = A·e^(B·θ) centred at (CX, CY).
type SpiralParams struct {
	CX float64 `json:"cx"`
	CY float64 `json:"cy"`
	A  float64 `json:"a"`
	B  float64 `json:"b"`
}

const paramCount = 4

// Vector encodes the parameters in the order cx, cy, a, b
func (p SpiralParams) Vector() []float64 {
	return []float64{p.CX, p.CY, p.A, p.B}
}

// ParamsFromVector decodes a vector produced by Vector
func ParamsFromVector(v []float64) SpiralParams {
	return SpiralParams{CX: v[0], CY: v[1], A: v[2], B: v[3]}
}

// Radius returns r(θ).
func (p SpiralParams) Radius(theta float64) float64 {
	return p.A * math.Exp(p.B*theta)
}

// At returns the point of the spiral at angle θ.
func (p SpiralParams) At(theta float64) geom.Point {
	r := p.Radius(theta)
	return geom.Point{X: p.CX + r*math.Cos(theta), Y: p.CY + r*math.Sin(theta)}
}

// Sample returns n points at evenly spaced angles over [thetaMin, thetaMax].
func (p SpiralParams) Sample(thetaMin, thetaMax float64, n int) []geom.Point {
	if n <= 0 {
		return nil
	}
	thetas := thetaGrid(thetaMin, thetaMax, n)
	pts := make([]geom.Point, n)
	for i, th := range thetas {
		pts[i] = p.At(th)
	}
	return pts
}

// thetaGrid returns n evenly spaced angles over [thetaMin, thetaMax].
func thetaGrid(thetaMin, thetaMax float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	thetas := make([]float64, n)
	if n == 1 {
		thetas[0] = thetaMin
		return thetas
	}
	return floats.Span(thetas, thetaMin, thetaMax)
}

// EquivalentScale returns the scale A·e^(2πkB) closest to ref on a log scale.
// One full turn multiplies the radius by e^(2πB), so every such scale traces
// the same curve.
func (p SpiralParams) EquivalentScale(ref float64) float64 {
	if p.A <= 0 || ref <= 0 || p.B == 0 {
		return p.A
	}
	turn := 2 * math.Pi * p.B
	k := math.Round(math.Log(ref/p.A) / turn)
	return p.A * math.Exp(k*turn)
}

// SearchRanges bounds the uniform draws of the search, per parameter in Vector order.
type SearchRanges struct {
	Lower [paramCount]float64 `json:"lower"`
	Upper [paramCount]float64 `json:"upper"`
}

// DefaultSearchRanges lets centres sit up to one canvas off either side:
// cx in [-w, 2w], cy in [-h, 2h], a in [10, 400], b in [0.1, 0.5].
func DefaultSearchRanges(bounds geom.ImageBounds) SearchRanges {
	w := float64(bounds.Width)
	h := float64(bounds.Height)
	return SearchRanges{
		Lower: [paramCount]float64{-w, -h, 10, 0.1},
		Upper: [paramCount]float64{2 * w, 2 * h, 400, 0.5},
	}
}

// Validate checks that every range is finite and non-empty.
func (r SearchRanges) Validate() error {
	for i := range r.Lower {
		lo, hi := r.Lower[i], r.Upper[i]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || lo > hi {
			return &RangeError{Index: i, Lower: lo, Upper: hi}
		}
	}
	return nil
}

// clampB keeps the growth rate of an offspring inside its range.
func (r SearchRanges) clampB(v []float64) {
	v[3] = math.Max(r.Lower[3], math.Min(r.Upper[3], v[3]))
}
