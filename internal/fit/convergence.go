package fit

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/cwbudde/goldenspiral/internal/geom"
)

// ConvergenceConfig defines parameters for detecting a plateau across restarts
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool `json:"enabled"`

	// Patience is the number of runs with no improvement before stopping
	Patience int `json:"patience"`

	// Threshold is the minimum relative improvement required to count as progress
	// Example: 0.001 = 0.1% improvement required
	// Relative improvement = (oldScore - newScore) / oldScore
	Threshold float64 `json:"threshold"`
}

// DefaultConvergenceConfig returns sensible defaults for convergence detection
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  2,
		Threshold: 0.001, // 0.1% improvement
	}
}

// DisabledConvergenceConfig returns a config with convergence detection disabled
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker tracks score history and detects when restarts stop paying off
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	bestScore       float64 // Best score ever seen
	lastSignificant float64 // Last score that was a significant improvement
	staleCount      int     // Number of updates without significant improvement
}

// NewConvergenceTracker creates a new convergence tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		history:         []float64{},
		bestScore:       math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a new score and returns true if convergence is detected
func (c *ConvergenceTracker) Update(score float64) bool {
	c.history = append(c.history, score)
	if score < c.bestScore {
		c.bestScore = score
	}

	if !c.config.Enabled {
		return false
	}

	if len(c.history) == 1 {
		c.lastSignificant = score
		return false
	}

	var relativeImprovement float64
	switch {
	case math.IsInf(c.lastSignificant, 1):
		if !math.IsInf(score, 1) {
			relativeImprovement = 1
		}
	case c.lastSignificant > 0:
		relativeImprovement = (c.lastSignificant - score) / c.lastSignificant
	}

	if relativeImprovement >= c.config.Threshold && relativeImprovement > 0 {
		c.lastSignificant = score
		c.staleCount = 0
		slog.Debug("score improvement detected",
			"score", score,
			"relative_improvement", relativeImprovement,
		)
		return false
	}

	c.staleCount++
	slog.Debug("no significant score improvement",
		"score", score,
		"last_significant", c.lastSignificant,
		"relative_improvement", relativeImprovement,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)

	if c.staleCount >= c.config.Patience {
		slog.Info("convergence detected, stopping restarts",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_score", c.bestScore,
		)
		return true
	}
	return false
}

// BestScore returns the best score seen so far
func (c *ConvergenceTracker) BestScore() float64 {
	return c.bestScore
}

// History returns the full score history
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the current number of updates without improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}

// Reset clears the tracker's state
func (c *ConvergenceTracker) Reset() {
	c.history = []float64{}
	c.bestScore = math.Inf(1)
	c.lastSignificant = math.Inf(1)
	c.staleCount = 0
}

// RestartConfig controls OptimizeRestarts.
type RestartConfig struct {
	// MaxRuns caps the number of searches, including the first.
	MaxRuns     int               `json:"maxRuns"`
	Convergence ConvergenceConfig `json:"convergence"`
}

// OptimizeRestarts repeats Optimize with successive seeds, seeding each run
// with the best spiral so far, until MaxRuns is reached or the tracker sees
// a plateau. Individual runs still execute all their generations. History
// concatenates the per-run histories as a running best.
func OptimizeRestarts(points []geom.Point, bounds geom.ImageBounds, weight float64, cfg Config, rc RestartConfig) (*Result, error) {
	if rc.MaxRuns < 1 {
		return nil, fmt.Errorf("%w: max runs must be >= 1, got %d", ErrInvalidInput, rc.MaxRuns)
	}

	tracker := NewConvergenceTracker(rc.Convergence)
	start := time.Now()

	var best *Result
	var history []float64
	generations := 0
	runs := 0

	for run := 0; run < rc.MaxRuns; run++ {
		runCfg := cfg
		runCfg.Seed = cfg.Seed + uint64(run)
		if best != nil {
			runCfg.Initial = append(append([]SpiralParams(nil), cfg.Initial...), best.Params)
		}

		res, err := Optimize(points, bounds, weight, runCfg)
		if err != nil {
			return nil, fmt.Errorf("failed restart %d: %w", run, err)
		}
		runs++
		generations += res.Generations

		offset := math.Inf(1)
		if best != nil {
			offset = best.Score
		}
		for _, h := range res.History {
			history = append(history, math.Min(h, offset))
		}

		if best == nil || res.Score < best.Score {
			best = res
		}

		slog.Info("restart complete", "run", run, "score", res.Score, "best_score", best.Score)
		if tracker.Update(best.Score) {
			break
		}
	}

	out := *best
	out.History = history
	out.Generations = generations
	out.Runs = runs
	out.Duration = time.Since(start)
	return &out, nil
}
