package opt

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// infeasibleCost stands in for +Inf inside mayfly, which compares costs arithmetically.
const infeasibleCost = 1e12

// MayflyAdapter wraps the external Mayfly library to conform to our Optimizer interface.
// The library only takes scalar bounds, so the search runs on the unit cube and
// positions are mapped back onto [lower, upper] per dimension.
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64

	// OnGeneration, if set, is called after every popSize evaluations.
	OnGeneration func(Generation)
	// Initial candidates are scored before the swarm starts and held as the
	// incumbent best. The library has no way to place them in the swarm.
	Initial [][]float64
}

// NewMayfly creates a new Mayfly optimizer adapter
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Run executes the Mayfly optimization using the external library. It returns
// (nil, +Inf) if the library fails or nothing finite was found.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	denorm := func(u []float64) []float64 {
		x := make([]float64, dim)
		for i := range x {
			x[i] = lower[i] + clamp01(u[i])*(upper[i]-lower[i])
		}
		return x
	}

	var (
		evals    int
		gen      int
		genBest  = math.Inf(1)
		bestEver = math.Inf(1)
		best     []float64
	)
	for _, x := range m.Initial {
		if len(x) != dim {
			continue
		}
		if cost := eval(x); cost < bestEver {
			bestEver = cost
			best = append([]float64(nil), x...)
		}
	}

	objective := func(u []float64) float64 {
		x := denorm(u)
		cost := eval(x)
		if cost < bestEver {
			bestEver = cost
			best = x
		}
		if cost < genBest {
			genBest = cost
		}

		evals++
		if m.OnGeneration != nil && m.popSize > 0 && evals%m.popSize == 0 {
			g := Generation{Index: gen, Best: genBest, BestEver: bestEver}
			if best != nil {
				g.Position = append([]float64(nil), best...)
			}
			m.OnGeneration(g)
			gen++
			genBest = math.Inf(1)
		}

		if math.IsInf(cost, 1) || math.IsNaN(cost) {
			return infeasibleCost
		}
		return cost
	}

	// Create config for external Mayfly library
	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = objective
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1

	// Set random seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		slog.Error("mayfly optimization failed", "error", err)
		return nil, math.Inf(1)
	}

	pos := denorm(result.GlobalBest.Position)
	cost := eval(pos)
	if bestEver < cost {
		// The wrapped objective saw something better than the reported best.
		pos, cost = best, bestEver
	}
	if math.IsInf(cost, 1) || math.IsNaN(cost) {
		return nil, math.Inf(1)
	}
	return pos, cost
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
