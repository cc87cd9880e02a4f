package opt

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MayflyAdapter runs the external Mayfly algorithm behind the Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
	runs     int64
}

// MinPopSize is the smallest population mayfly accepts; its female
// population defaults to this size and is sized alongside the male one.
const MinPopSize = 20

// NewMayfly creates a new Mayfly optimizer adapter.
// popSize must be at least MinPopSize.
func NewMayfly(maxIters, popSize int, seed int64) *MayflyAdapter {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  popSize,
		seed:     seed,
	}
}

// Name implements Optimizer
func (m *MayflyAdapter) Name() string {
	return "mayfly"
}

// Run executes Mayfly. The library takes scalar bounds, so the widest box
// covering every dimension is used and eval is expected to clip.
//
// Each call on the same adapter uses the next seed in sequence, so repeated
// passes start from different populations while a fresh adapter with the
// same seed replays the same sequence. Not safe for concurrent use.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	lo, hi := scalarBounds(lower, upper)
	seed := m.seed + m.runs
	m.runs++

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = eval
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.NPopF = m.popSize
	config.LowerBound = lo
	config.UpperBound = hi
	config.Rand = rand.New(rand.NewSource(seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		// Fall back to the lower corner so callers always get a scored point
		slog.Warn("Mayfly optimization failed", "error", err, "dim", dim)
		fallback := make([]float64, dim)
		for i := range fallback {
			fallback[i] = lo
		}
		return fallback, eval(fallback)
	}

	return result.GlobalBest.Position, result.GlobalBest.Cost
}

func scalarBounds(lower, upper []float64) (float64, float64) {
	if len(lower) == 0 || len(upper) == 0 {
		return 0, 1
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range lower {
		lo = math.Min(lo, v)
	}
	for _, v := range upper {
		hi = math.Max(hi, v)
	}
	return lo, hi
}
