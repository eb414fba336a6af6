package fit

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cwbudde/goldenspiral/internal/geom"
	"github.com/cwbudde/goldenspiral/internal/opt"
)

// Search backends accepted by Config.Algorithm.
const (
	AlgorithmElitist = "elitist"
	AlgorithmMayfly  = "mayfly"
)

// Config holds every tunable of a spiral search.
type Config struct {
	Score ScoreConfig `json:"score"`
	// Ranges overrides DefaultSearchRanges for the image bounds.
	Ranges *SearchRanges `json:"ranges,omitempty"`

	Generations      int     `json:"generations"`
	PopulationSize   int     `json:"populationSize"`
	EliteCount       int     `json:"eliteCount"`
	MutationFraction float64 `json:"mutationFraction"`

	// SigmaScale times the image width/height is the offspring spread of cx/cy.
	SigmaScale float64 `json:"sigmaScale"`
	SigmaA     float64 `json:"sigmaA"`
	SigmaB     float64 `json:"sigmaB"`

	Seed uint64 `json:"seed"`
	// Rand, if set, is used instead of a source derived from Seed.
	Rand *rand.Rand `json:"-"`

	Workers   int    `json:"workers"`
	Algorithm string `json:"algorithm"`

	// Initial candidates join generation 0 ahead of the random draws. The
	// mayfly backend cannot take a starting swarm and keeps them as the
	// incumbent best instead.
	Initial []SpiralParams `json:"-"`

	OnGeneration func(opt.Generation) `json:"-"`
}

// DefaultConfig returns the standard search: 100 generations of 300 candidates.
func DefaultConfig() Config {
	return Config{
		Score:            DefaultScoreConfig(),
		Generations:      100,
		PopulationSize:   300,
		EliteCount:       15,
		MutationFraction: 0.25,
		SigmaScale:       0.1,
		SigmaA:           20,
		SigmaB:           0.05,
		Workers:          1,
		Algorithm:        AlgorithmElitist,
	}
}

// Validate checks the configuration. Every error matches ErrInvalidInput.
func (c Config) Validate() error {
	var errs []error

	errs = append(errs, c.elitistConfig().Validate())
	if !(c.SigmaScale >= 0) || !(c.SigmaA >= 0) || !(c.SigmaB >= 0) {
		errs = append(errs, fmt.Errorf("offspring sigmas must be non-negative"))
	}
	if c.Score.Samples < 1 {
		errs = append(errs, fmt.Errorf("samples must be >= 1, got %d", c.Score.Samples))
	}
	if !(c.Score.ThetaMin < c.Score.ThetaMax) {
		errs = append(errs, fmt.Errorf("theta range [%g, %g] is empty", c.Score.ThetaMin, c.Score.ThetaMax))
	}
	if c.Score.MinInBounds < 0 {
		errs = append(errs, fmt.Errorf("min in-bounds samples must be >= 0, got %d", c.Score.MinInBounds))
	}
	if c.Ranges != nil {
		if err := c.Ranges.Validate(); err != nil {
			errs = append(errs, err)
		}
	}

	switch c.Algorithm {
	case "", AlgorithmElitist:
	case AlgorithmMayfly:
		// mayfly v0.1.0 rejects smaller populations
		if c.PopulationSize < 20 {
			errs = append(errs, fmt.Errorf("mayfly needs a population of at least 20, got %d", c.PopulationSize))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown algorithm %q", c.Algorithm))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return nil
}

// Result is the best spiral found by a search.
type Result struct {
	Params        SpiralParams `json:"params"`
	Score         float64      `json:"score"`
	FitDistance   float64      `json:"fitDistance"`
	GoldenPenalty float64      `json:"goldenPenalty"`
	Generations   int          `json:"generations"`
	// History is the best-ever score after each generation.
	History []float64 `json:"history"`
	// Runs counts the searches behind the result; restarts make it exceed 1.
	Runs     int           `json:"runs"`
	Duration time.Duration `json:"duration"`
}

// Optimize searches for the spiral minimising Score over points on the given
// canvas. It fails with ErrNoViableFit when points is empty or no candidate
// ever scores finitely, and with ErrInvalidInput for a bad configuration.
func Optimize(points []geom.Point, bounds geom.ImageBounds, weight float64, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if math.IsNaN(weight) || weight < 0 || math.IsInf(weight, 0) {
		return nil, fmt.Errorf("%w: golden weight must be finite and >= 0, got %g", ErrInvalidInput, weight)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: empty point set", ErrNoViableFit)
	}

	ranges := DefaultSearchRanges(bounds)
	if cfg.Ranges != nil {
		ranges = *cfg.Ranges
	}
	lower := ranges.Lower[:]
	upper := ranges.Upper[:]

	s := newScorer(points, bounds, weight, cfg.Score)
	start := time.Now()

	history := make([]float64, 0, cfg.Generations)
	onGeneration := func(g opt.Generation) {
		history = append(history, g.BestEver)
		if g.Index%10 == 0 {
			slog.Debug("spiral search progress",
				"generation", g.Index,
				"best_score", g.BestEver,
				"generation_best", g.Best,
			)
		}
		if cfg.OnGeneration != nil {
			cfg.OnGeneration(g)
		}
	}

	initial := make([][]float64, 0, len(cfg.Initial))
	for _, p := range cfg.Initial {
		initial = append(initial, p.Vector())
	}

	var optimizer opt.Optimizer
	switch cfg.Algorithm {
	case AlgorithmMayfly:
		m := opt.NewMayfly(cfg.Generations, cfg.PopulationSize, int64(cfg.Seed))
		m.OnGeneration = onGeneration
		m.Initial = initial
		optimizer = m
	default:
		rng := cfg.Rand
		if rng == nil {
			rng = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5851f42d4c957f2d))
		}
		ecfg := cfg.elitistConfig()
		ecfg.Sigma = []float64{
			cfg.SigmaScale * float64(bounds.Width),
			cfg.SigmaScale * float64(bounds.Height),
			cfg.SigmaA,
			cfg.SigmaB,
		}
		ecfg.Workers = cfg.Workers
		ecfg.Rand = rng
		ecfg.OnGeneration = onGeneration
		ecfg.Project = ranges.clampB
		ecfg.Initial = initial
		optimizer = opt.NewElitist(ecfg)
	}

	best, cost := optimizer.Run(s.vector, lower, upper, paramCount)
	if best == nil || math.IsInf(cost, 1) || math.IsNaN(cost) {
		slog.Warn("spiral search found no viable candidate",
			"points", len(points),
			"width", bounds.Width,
			"height", bounds.Height,
		)
		return nil, fmt.Errorf("%w: %d generations without a finite score", ErrNoViableFit, len(history))
	}

	params := ParamsFromVector(best)
	res := &Result{
		Params:        params,
		Score:         cost,
		FitDistance:   s.fitDistance(params),
		GoldenPenalty: GoldenPenalty(params.B, cfg.Score.GoldenGrowthRate),
		Generations:   len(history),
		History:       history,
		Runs:          1,
		Duration:      time.Since(start),
	}

	slog.Info("spiral search complete",
		"algorithm", algorithmName(cfg.Algorithm),
		"generations", res.Generations,
		"best_score", res.Score,
		"fit_distance", res.FitDistance,
		"b", params.B,
		"duration", res.Duration,
	)
	return res, nil
}

// elitistConfig carries the population settings shared with opt.Elitist.
func (c Config) elitistConfig() opt.ElitistConfig {
	return opt.ElitistConfig{
		Generations:      c.Generations,
		PopSize:          c.PopulationSize,
		EliteCount:       c.EliteCount,
		MutationFraction: c.MutationFraction,
	}
}

func algorithmName(a string) string {
	if a == "" {
		return AlgorithmElitist
	}
	return a
}
