package fit

import "math"

// Rating converts a fit into a 0-100 composition score: 60% from how close
// the points lie to the spiral, 40% from how close b is to golden. The
// result is rounded to one decimal.
func Rating(fitDistance, b, golden float64) float64 {
	if math.IsNaN(fitDistance) || math.IsInf(fitDistance, 1) {
		return 0
	}
	fitScore := math.Exp(-0.05 * fitDistance)
	goldenScore := math.Exp(-50 * math.Abs(b-golden))
	return math.Round((0.6*fitScore+0.4*goldenScore)*1000) / 10
}

// RoundB rounds a growth rate to four decimals for reporting.
func RoundB(b float64) float64 {
	return math.Round(b*10000) / 10000
}
