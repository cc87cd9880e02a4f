package opt

// Optimizer minimizes a black-box objective over a box-bounded space
type Optimizer interface {
	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: per-dimension bounds
	// dim: dimensionality of the search space
	// Returns: best point and its cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)

	// Name identifies the optimizer in run records
	Name() string
}
