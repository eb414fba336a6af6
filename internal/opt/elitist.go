package opt

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

// ElitistConfig configures the generational elitist search.
type ElitistConfig struct {
	Generations int
	PopSize     int
	EliteCount  int
	// MutationFraction of PopSize is refilled with fresh uniform draws each generation.
	MutationFraction float64
	// Sigma holds the per-dimension standard deviation for offspring. When its
	// length does not match dim, a tenth of each range is used.
	Sigma []float64
	// Workers > 1 scores each generation concurrently. Results do not depend on it.
	Workers int
	Rand    *rand.Rand
	// OnGeneration, if set, is called after every generation is scored.
	OnGeneration func(Generation)
	// Project, if set, is applied in place to every offspring before scoring.
	Project func([]float64)
	// Initial candidates replace the first random draws of generation 0.
	Initial [][]float64
}

// Validate reports configuration values the search cannot run with.
func (c ElitistConfig) Validate() error {
	var errs []error
	if c.Generations < 1 {
		errs = append(errs, fmt.Errorf("generations must be >= 1, got %d", c.Generations))
	}
	if c.PopSize < 1 {
		errs = append(errs, fmt.Errorf("population size must be >= 1, got %d", c.PopSize))
	}
	if c.EliteCount < 1 || c.EliteCount > c.PopSize {
		errs = append(errs, fmt.Errorf("elite count must be in [1, %d], got %d", c.PopSize, c.EliteCount))
	}
	if c.MutationFraction < 0 || c.MutationFraction > 1 || math.IsNaN(c.MutationFraction) {
		errs = append(errs, fmt.Errorf("mutation fraction must be in [0, 1], got %g", c.MutationFraction))
	}
	return errors.Join(errs...)
}

// Elitist is a single-population search: elites survive verbatim, a fixed
// share of slots is refilled uniformly at random, and the rest are Gaussian
// offspring of the elites, picked cyclically. It runs for a fixed number of
// generations with no early exit.
type Elitist struct {
	cfg ElitistConfig
}

// NewElitist creates an Elitist optimizer. A nil Rand is replaced by a fixed-seed PCG.
func NewElitist(cfg ElitistConfig) *Elitist {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(1, 2))
	}
	return &Elitist{cfg: cfg}
}

// Run implements Optimizer. It returns (nil, +Inf) when no candidate ever
// reached a finite cost.
func (e *Elitist) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	cfg := e.cfg
	popSize := max(cfg.PopSize, 1)
	elites := min(max(cfg.EliteCount, 1), popSize)
	mutants := min(int(cfg.MutationFraction*float64(popSize)), popSize-elites)

	sigma := cfg.Sigma
	if len(sigma) != dim {
		sigma = make([]float64, dim)
		for i := range sigma {
			sigma[i] = 0.1 * (upper[i] - lower[i])
		}
	}

	uniform := make([]distuv.Uniform, dim)
	for i := range uniform {
		uniform[i] = distuv.Uniform{Min: lower[i], Max: upper[i], Src: cfg.Rand}
	}
	randomCandidate := func() []float64 {
		x := make([]float64, dim)
		for i := range x {
			x[i] = uniform[i].Rand()
		}
		return x
	}

	pop := make([][]float64, 0, popSize)
	for _, x := range cfg.Initial {
		if len(pop) == popSize {
			break
		}
		if len(x) == dim {
			pop = append(pop, append([]float64(nil), x...))
		}
	}
	for len(pop) < popSize {
		pop = append(pop, randomCandidate())
	}

	var best []float64
	bestCost := math.Inf(1)
	scores := make([]float64, popSize)
	order := make([]int, popSize)

	for gen := 0; gen < cfg.Generations; gen++ {
		e.score(eval, pop, scores)

		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			return less(scores[order[i]], scores[order[j]])
		})

		if top := scores[order[0]]; less(top, bestCost) {
			bestCost = top
			best = append(best[:0], pop[order[0]]...)
		}

		if cfg.OnGeneration != nil {
			g := Generation{Index: gen, Best: scores[order[0]], BestEver: bestCost}
			if best != nil {
				g.Position = append([]float64(nil), best...)
			}
			cfg.OnGeneration(g)
		}

		if gen == cfg.Generations-1 {
			break
		}

		next := make([][]float64, 0, popSize)
		for i := 0; i < elites; i++ {
			next = append(next, pop[order[i]])
		}
		for i := 0; i < mutants; i++ {
			next = append(next, randomCandidate())
		}
		for i := 0; len(next) < popSize; i++ {
			parent := next[i%elites]
			child := make([]float64, dim)
			for d := range child {
				child[d] = distuv.Normal{Mu: parent[d], Sigma: sigma[d], Src: cfg.Rand}.Rand()
			}
			if cfg.Project != nil {
				cfg.Project(child)
			}
			next = append(next, child)
		}
		pop = next
	}

	if best == nil {
		return nil, math.Inf(1)
	}
	return best, bestCost
}

// score fills scores for every candidate. All randomness stays on the caller's
// goroutine, so concurrent scoring yields the same scores as serial scoring.
func (e *Elitist) score(eval func([]float64) float64, pop [][]float64, scores []float64) {
	if e.cfg.Workers <= 1 {
		for i, x := range pop {
			scores[i] = eval(x)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i, x := range pop {
		g.Go(func() error {
			scores[i] = eval(x)
			return nil
		})
	}
	_ = g.Wait()
}

// less orders finite costs ascending and puts +Inf and NaN last.
func less(a, b float64) bool {
	aBad := math.IsNaN(a) || math.IsInf(a, 1)
	bBad := math.IsNaN(b) || math.IsInf(b, 1)
	if aBad || bBad {
		return !aBad && bBad
	}
	return a < b
}
