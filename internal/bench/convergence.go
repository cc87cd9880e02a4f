package bench

import (
	"log/slog"
	"math"
)

// ConvergenceConfig defines when repeated optimizer passes stop paying off
type ConvergenceConfig struct {
	// Enabled controls whether convergence detection is active
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Patience is the number of consecutive passes without significant
	// improvement before the run stops
	Patience int `json:"patience" yaml:"patience"`

	// Threshold is the minimum relative improvement counted as progress.
	// Relative improvement = (lastSignificant - loss) / lastSignificant
	Threshold float64 `json:"threshold" yaml:"threshold"`
}

// DefaultConvergenceConfig returns the defaults used by the CLI
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  3,
		Threshold: 0.001, // 0.1% improvement
	}
}

// DisabledConvergenceConfig never stops a run early
func DisabledConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled: false,
	}
}

// ConvergenceTracker records the best loss after each pass and detects stagnation
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	best            float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		history:         []float64{},
		best:            math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a loss and reports whether the run has converged
func (c *ConvergenceTracker) Update(loss float64) bool {
	if !c.config.Enabled {
		return false
	}

	c.history = append(c.history, loss)
	if loss < c.best {
		c.best = loss
	}

	if len(c.history) == 1 {
		c.lastSignificant = loss
		return false
	}

	// A perfect recovery cannot improve further
	var improvement float64
	if c.lastSignificant > 0 {
		improvement = (c.lastSignificant - loss) / c.lastSignificant
	}

	if c.lastSignificant > 0 && improvement >= c.config.Threshold {
		c.lastSignificant = loss
		c.staleCount = 0
		slog.Debug("Loss improved", "loss", loss, "relative_improvement", improvement)
		return false
	}

	c.staleCount++
	slog.Debug("No significant loss improvement",
		"loss", loss,
		"last_significant", c.lastSignificant,
		"relative_improvement", improvement,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)

	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"patience", c.config.Patience,
			"best_loss", c.best,
		)
		return true
	}
	return false
}

// StaleCount returns the number of passes since the last significant improvement
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}
