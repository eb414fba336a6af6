package fit

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/goldenspiral/internal/geom"
	"github.com/cwbudde/goldenspiral/internal/opt"
)

func smallConfig(seed uint64) Config {
	cfg := DefaultConfig()
	cfg.Generations = 15
	cfg.PopulationSize = 40
	cfg.EliteCount = 4
	cfg.Seed = seed
	return cfg
}

func TestOptimizeEmptyPoints(t *testing.T) {
	res, err := Optimize(nil, canvas, 0, smallConfig(1))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNoViableFit)
}

func TestOptimizeZeroAreaBounds(t *testing.T) {
	res, err := Optimize([]geom.Point{{X: 0, Y: 0}}, geom.ImageBounds{}, 0, smallConfig(1))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrNoViableFit)
}

func TestOptimizeInvalidConfig(t *testing.T) {
	pts := []geom.Point{{X: 10, Y: 10}}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero generations", func(c *Config) { c.Generations = 0 }},
		{"zero population", func(c *Config) { c.PopulationSize = 0 }},
		{"too many elites", func(c *Config) { c.EliteCount = c.PopulationSize + 1 }},
		{"negative mutation", func(c *Config) { c.MutationFraction = -0.1 }},
		{"negative sigma", func(c *Config) { c.SigmaA = -1 }},
		{"no samples", func(c *Config) { c.Score.Samples = 0 }},
		{"empty theta range", func(c *Config) { c.Score.ThetaMax = c.Score.ThetaMin }},
		{"unknown algorithm", func(c *Config) { c.Algorithm = "annealing" }},
		{"small mayfly population", func(c *Config) { c.Algorithm = AlgorithmMayfly; c.PopulationSize = 10; c.EliteCount = 2 }},
		{"inverted range", func(c *Config) {
			r := DefaultSearchRanges(canvas)
			r.Lower[3], r.Upper[3] = 0.5, 0.1
			c.Ranges = &r
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := smallConfig(1)
			tt.mutate(&cfg)
			_, err := Optimize(pts, canvas, 0, cfg)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}

	_, err := Optimize(pts, canvas, -1, smallConfig(1))
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Optimize(pts, canvas, math.NaN(), smallConfig(1))
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestOptimizeHistoryNonIncreasing(t *testing.T) {
	truth := SpiralParams{CX: 300, CY: 300, A: 100, B: GoldenGrowthRate}
	pts := spiralPoints(truth, canvas, -3*math.Pi, 0.9*math.Pi)

	for seed := uint64(0); seed < 50; seed++ {
		cfg := smallConfig(seed)
		var gens []opt.Generation
		cfg.OnGeneration = func(g opt.Generation) { gens = append(gens, g) }

		res, err := Optimize(pts, canvas, 100, cfg)
		require.NoError(t, err, "seed %d", seed)
		require.Len(t, res.History, cfg.Generations)
		require.Len(t, gens, cfg.Generations)

		for i := 1; i < len(res.History); i++ {
			if res.History[i] > res.History[i-1] {
				t.Fatalf("seed %d: best score rose at generation %d: %f -> %f",
					seed, i, res.History[i-1], res.History[i])
			}
		}
		assert.Equal(t, res.History[len(res.History)-1], res.Score)
		assert.InDelta(t, Score(res.Params, pts, canvas, 100, cfg.Score), res.Score, 1e-9)
		assert.InDelta(t, res.FitDistance+100*res.GoldenPenalty, res.Score, 1e-9)
		assert.GreaterOrEqual(t, res.Params.B, 0.1)
		assert.LessOrEqual(t, res.Params.B, 0.5)
	}
}

func TestOptimizeDeterministic(t *testing.T) {
	truth := SpiralParams{CX: 250, CY: 320, A: 80, B: 0.35}
	pts := spiralPoints(truth, canvas, -2*math.Pi, math.Pi)

	serial := smallConfig(77)
	parallel := smallConfig(77)
	parallel.Workers = 4

	a, err := Optimize(pts, canvas, 50, serial)
	require.NoError(t, err)
	b, err := Optimize(pts, canvas, 50, serial)
	require.NoError(t, err)
	c, err := Optimize(pts, canvas, 50, parallel)
	require.NoError(t, err)

	assert.Equal(t, a.Params, b.Params)
	assert.Equal(t, a.History, b.History)
	assert.Equal(t, a.Params, c.Params)
	assert.Equal(t, a.Score, c.Score)
}

// bestOf runs Optimize for each seed and keeps the lowest score. A log spiral
// repeats itself every turn, so a single run can settle on a neighbouring basin.
func bestOf(t *testing.T, pts []geom.Point, weight float64, seeds ...uint64) *Result {
	t.Helper()
	var best *Result
	for _, seed := range seeds {
		cfg := DefaultConfig()
		cfg.Generations = 200
		cfg.Seed = seed
		cfg.Workers = 4
		res, err := Optimize(pts, canvas, weight, cfg)
		require.NoError(t, err)
		if best == nil || res.Score < best.Score {
			best = res
		}
	}
	return best
}

func TestOptimizeRecoversGoldenSpiral(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping long convergence test in short mode")
	}

	truth := SpiralParams{CX: 300, CY: 300, A: 100, B: GoldenGrowthRate}
	pts := spiralPoints(truth, canvas, -3*math.Pi, 0.9*math.Pi)
	require.Greater(t, len(pts), 20)

	res := bestOf(t, pts, 0, 1, 2, 3)

	a := res.Params.EquivalentScale(truth.A)
	assert.InDelta(t, truth.B, res.Params.B, 0.05*truth.B, "b")
	assert.InDelta(t, truth.A, a, 0.05*truth.A, "a (folded from %f)", res.Params.A)
	assert.Less(t, res.FitDistance, 5.0)
}

func TestOptimizePenaltyWeightMonotonic(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping long convergence test in short mode")
	}

	truth := SpiralParams{CX: 300, CY: 300, A: 100, B: 0.45}
	pts := spiralPoints(truth, canvas, -2*math.Pi, 0.7*math.Pi)

	weights := []float64{0, 2000, 1e7}
	dist := make([]float64, len(weights))
	for i, w := range weights {
		res := bestOf(t, pts, w, 1, 2, 3)
		dist[i] = math.Abs(res.Params.B - GoldenGrowthRate)
	}

	assert.Greater(t, dist[0], 0.05, "fit-only search should stay near the generating b")
	assert.Less(t, dist[2], 0.005, "huge weight should force golden b")
	for i := 1; i < len(dist); i++ {
		assert.LessOrEqual(t, dist[i], dist[i-1]+0.005, "weight %g pulled b away from golden", weights[i])
	}
}

func TestOptimizeMayflyBackend(t *testing.T) {
	truth := SpiralParams{CX: 300, CY: 300, A: 100, B: GoldenGrowthRate}
	pts := spiralPoints(truth, canvas, -3*math.Pi, 0.9*math.Pi)

	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmMayfly
	cfg.Generations = 20
	cfg.PopulationSize = 20
	cfg.Seed = 5

	res, err := Optimize(pts, canvas, 100, cfg)
	require.NoError(t, err)
	assert.False(t, math.IsInf(res.Score, 1))
	assert.InDelta(t, Score(res.Params, pts, canvas, 100, cfg.Score), res.Score, 1e-9)
	for i := 1; i < len(res.History); i++ {
		assert.LessOrEqual(t, res.History[i], res.History[i-1])
	}
}

func TestOptimizeRestarts(t *testing.T) {
	truth := SpiralParams{CX: 300, CY: 300, A: 100, B: GoldenGrowthRate}
	pts := spiralPoints(truth, canvas, -3*math.Pi, 0.9*math.Pi)
	cfg := smallConfig(10)

	single, err := Optimize(pts, canvas, 100, cfg)
	require.NoError(t, err)

	res, err := OptimizeRestarts(pts, canvas, 100, cfg, RestartConfig{
		MaxRuns:     4,
		Convergence: DisabledConvergenceConfig(),
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Runs)
	assert.Equal(t, 4*cfg.Generations, res.Generations)
	require.Len(t, res.History, res.Generations)
	assert.LessOrEqual(t, res.Score, single.Score)
	for i := 1; i < len(res.History); i++ {
		assert.LessOrEqual(t, res.History[i], res.History[i-1])
	}
	assert.Equal(t, res.History[len(res.History)-1], res.Score)
}

func TestOptimizeRestartsStopsOnPlateau(t *testing.T) {
	pts := []geom.Point{{X: 100, Y: 100}, {X: 200, Y: 150}, {X: 250, Y: 300}}
	cfg := smallConfig(3)

	// An unreachable threshold makes every restart stale.
	res, err := OptimizeRestarts(pts, canvas, 0, cfg, RestartConfig{
		MaxRuns:     10,
		Convergence: ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Runs)

	_, err = OptimizeRestarts(pts, canvas, 0, cfg, RestartConfig{})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = OptimizeRestarts(nil, canvas, 0, cfg, RestartConfig{MaxRuns: 2})
	assert.ErrorIs(t, err, ErrNoViableFit)
}

func TestConfigValidateSharesPopulationChecks(t *testing.T) {
	cfg := smallConfig(1)
	cfg.EliteCount = cfg.PopulationSize + 1

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Contains(t, err.Error(), cfg.elitistConfig().Validate().Error())
	assert.NoError(t, smallConfig(1).elitistConfig().Validate())
}

func TestOptimizeMayflyKeepsInitial(t *testing.T) {
	truth := SpiralParams{CX: 300, CY: 300, A: 100, B: GoldenGrowthRate}
	pts := spiralPoints(truth, canvas, -3*math.Pi, 0.9*math.Pi)

	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmMayfly
	cfg.Generations = 2
	cfg.PopulationSize = 20
	cfg.Seed = 5
	cfg.Initial = []SpiralParams{truth}

	res, err := Optimize(pts, canvas, 100, cfg)
	require.NoError(t, err)
	assert.LessOrEqual(t, res.Score, Score(truth, pts, canvas, 100, cfg.Score))
}

func TestOptimizeRestartsMayflyNeverRegresses(t *testing.T) {
	truth := SpiralParams{CX: 300, CY: 300, A: 100, B: GoldenGrowthRate}
	pts := spiralPoints(truth, canvas, -3*math.Pi, 0.9*math.Pi)

	cfg := DefaultConfig()
	cfg.Algorithm = AlgorithmMayfly
	cfg.Generations = 5
	cfg.PopulationSize = 20
	cfg.Seed = 8

	first, err := Optimize(pts, canvas, 100, cfg)
	require.NoError(t, err)

	var runs [][]float64
	cfg.OnGeneration = func(g opt.Generation) {
		if g.Index == 0 {
			runs = append(runs, nil)
		}
		runs[len(runs)-1] = append(runs[len(runs)-1], g.BestEver)
	}
	res, err := OptimizeRestarts(pts, canvas, 100, cfg, RestartConfig{
		MaxRuns:     3,
		Convergence: DisabledConvergenceConfig(),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Runs)
	assert.LessOrEqual(t, res.Score, first.Score)

	// Each later run starts from the incumbent, so its first generation is
	// already at least as good as the end of the previous run.
	require.Len(t, runs, 3)
	for run := 1; run < len(runs); run++ {
		prev := runs[run-1]
		assert.LessOrEqual(t, runs[run][0], prev[len(prev)-1], "run %d", run)
	}
}
