package tune

import (
	"log/slog"
	"math"
)

// ConvergenceConfig controls early stopping of the tuning rounds
type ConvergenceConfig struct {
	Enabled bool

	// Patience is the number of rounds without significant improvement before stopping
	Patience int

	// Threshold is the minimum relative improvement (old-new)/old that counts as progress
	Threshold float64
}

// DefaultConvergenceConfig stops after two rounds gaining less than 0.5%
func DefaultConvergenceConfig() ConvergenceConfig {
	return ConvergenceConfig{
		Enabled:   true,
		Patience:  2,
		Threshold: 0.005,
	}
}

// ConvergenceTracker records the best cost per round and detects stagnation
type ConvergenceTracker struct {
	config          ConvergenceConfig
	history         []float64
	bestCost        float64
	lastSignificant float64
	staleCount      int
}

// NewConvergenceTracker creates a tracker with the given config
func NewConvergenceTracker(config ConvergenceConfig) *ConvergenceTracker {
	return &ConvergenceTracker{
		config:          config,
		bestCost:        math.Inf(1),
		lastSignificant: math.Inf(1),
	}
}

// Update records a cost and reports whether tuning should stop
func (c *ConvergenceTracker) Update(cost float64) bool {
	c.history = append(c.history, cost)
	if cost < c.bestCost {
		c.bestCost = cost
	}

	if !c.config.Enabled {
		return false
	}

	if len(c.history) == 1 {
		c.lastSignificant = cost
		return false
	}

	// A perfect score cannot improve further
	var improvement float64
	if c.lastSignificant > 0 {
		improvement = (c.lastSignificant - cost) / c.lastSignificant
	}

	if improvement >= c.config.Threshold && improvement > 0 {
		c.lastSignificant = cost
		c.staleCount = 0
		return false
	}

	c.staleCount++
	slog.Debug("No significant improvement",
		"cost", cost,
		"last_significant", c.lastSignificant,
		"relative_improvement", improvement,
		"stale_count", c.staleCount,
		"patience", c.config.Patience,
	)

	if c.staleCount >= c.config.Patience {
		slog.Info("Convergence detected - stopping early",
			"stale_count", c.staleCount,
			"best_cost", c.bestCost,
		)
		return true
	}
	return false
}

// BestCost returns the lowest cost recorded
func (c *ConvergenceTracker) BestCost() float64 {
	return c.bestCost
}

// History returns a copy of all recorded costs
func (c *ConvergenceTracker) History() []float64 {
	return append([]float64{}, c.history...)
}

// StaleCount returns the number of consecutive rounds without progress
func (c *ConvergenceTracker) StaleCount() int {
	return c.staleCount
}
