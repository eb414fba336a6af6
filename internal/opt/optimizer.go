package opt

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// Generation reports the state of a search after one generation.
type Generation struct {
	// Index is zero-based.
	Index int
	// Best is the lowest cost in this generation's population.
	Best float64
	// BestEver is the lowest cost seen so far, never increasing.
	BestEver float64
	// Position is a copy of the best-ever parameters, nil while no finite cost was seen.
	Position []float64
}
