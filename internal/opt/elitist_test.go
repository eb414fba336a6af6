package opt

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testElitistConfig(seed uint64) ElitistConfig {
	return ElitistConfig{
		Generations:      60,
		PopSize:          60,
		EliteCount:       6,
		MutationFraction: 0.25,
		Rand:             rand.New(rand.NewPCG(seed, seed+1)),
	}
}

func TestElitistOnSphere(t *testing.T) {
	lower := []float64{-10, -10, -10}
	upper := []float64{10, 10, 10}

	best, cost := NewElitist(testElitistConfig(42)).Run(sphere, lower, upper, 3)

	require.Len(t, best, 3)
	assert.Less(t, cost, 0.5)
	for i, v := range best {
		assert.InDelta(t, 0, v, 1.0, "parameter %d", i)
	}
}

func TestElitistDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	best1, cost1 := NewElitist(testElitistConfig(9)).Run(sphere, lower, upper, 2)
	best2, cost2 := NewElitist(testElitistConfig(9)).Run(sphere, lower, upper, 2)
	assert.Equal(t, cost1, cost2)
	assert.Equal(t, best1, best2)
}

func TestElitistWorkersDoNotChangeResult(t *testing.T) {
	lower := []float64{-5, -5, -5, -5}
	upper := []float64{5, 5, 5, 5}

	serial := testElitistConfig(5)
	parallel := testElitistConfig(5)
	parallel.Workers = 8

	best1, cost1 := NewElitist(serial).Run(sphere, lower, upper, 4)
	best2, cost2 := NewElitist(parallel).Run(sphere, lower, upper, 4)
	assert.Equal(t, cost1, cost2)
	assert.Equal(t, best1, best2)
}

func TestElitistHistoryNonIncreasing(t *testing.T) {
	// Rastrigin: many local minima, so per-generation bests fluctuate.
	rastrigin := func(x []float64) float64 {
		s := 10 * float64(len(x))
		for _, v := range x {
			s += v*v - 10*math.Cos(2*math.Pi*v)
		}
		return s
	}

	for seed := uint64(0); seed < 20; seed++ {
		cfg := testElitistConfig(seed)
		cfg.Generations = 25
		var gens []Generation
		cfg.OnGeneration = func(g Generation) { gens = append(gens, g) }

		_, cost := NewElitist(cfg).Run(rastrigin, []float64{-5, -5}, []float64{5, 5}, 2)

		require.Len(t, gens, 25)
		for i := 1; i < len(gens); i++ {
			assert.LessOrEqual(t, gens[i].BestEver, gens[i-1].BestEver, "seed %d gen %d", seed, i)
			assert.LessOrEqual(t, gens[i].BestEver, gens[i].Best, "seed %d gen %d", seed, i)
		}
		assert.Equal(t, gens[len(gens)-1].BestEver, cost)
	}
}

func TestElitistAllInfinite(t *testing.T) {
	eval := func([]float64) float64 { return math.Inf(1) }
	cfg := testElitistConfig(1)
	cfg.Generations = 3

	best, cost := NewElitist(cfg).Run(eval, []float64{0}, []float64{1}, 1)
	assert.Nil(t, best)
	assert.True(t, math.IsInf(cost, 1))
}

func TestElitistProjectAndInitial(t *testing.T) {
	cfg := testElitistConfig(3)
	cfg.Generations = 5
	cfg.Initial = [][]float64{{0.5, 0.5}}
	cfg.Project = func(x []float64) {
		x[1] = math.Max(0, math.Min(1, x[1]))
	}

	var seen [][]float64
	eval := func(x []float64) float64 {
		seen = append(seen, append([]float64(nil), x...))
		return sphere(x)
	}

	NewElitist(cfg).Run(eval, []float64{-1, 0}, []float64{1, 1}, 2)

	require.NotEmpty(t, seen)
	assert.Equal(t, []float64{0.5, 0.5}, seen[0])
	for _, x := range seen {
		assert.GreaterOrEqual(t, x[1], 0.0)
		assert.LessOrEqual(t, x[1], 1.0)
	}
}

func TestElitistConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ElitistConfig)
		wantErr bool
	}{
		{"valid", func(*ElitistConfig) {}, false},
		{"zero generations", func(c *ElitistConfig) { c.Generations = 0 }, true},
		{"zero population", func(c *ElitistConfig) { c.PopSize = 0 }, true},
		{"elites exceed population", func(c *ElitistConfig) { c.EliteCount = 61 }, true},
		{"no elites", func(c *ElitistConfig) { c.EliteCount = 0 }, true},
		{"mutation above one", func(c *ElitistConfig) { c.MutationFraction = 1.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testElitistConfig(0)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLessOrdersSentinelsLast(t *testing.T) {
	assert.True(t, less(1, 2))
	assert.True(t, less(5, math.Inf(1)))
	assert.True(t, less(5, math.NaN()))
	assert.False(t, less(math.Inf(1), 5))
	assert.False(t, less(math.NaN(), math.Inf(1)))
	assert.False(t, less(math.Inf(1), math.Inf(1)))
}
