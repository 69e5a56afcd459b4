package opt

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/cwbudde/mayfly"
)

// MinPopulation is the smallest population the mayfly library accepts
const MinPopulation = 20

// MayflyAdapter wraps the Mayfly library to conform to the Optimizer interface
type MayflyAdapter struct {
	maxIters int
	popSize  int
	seed     int64
}

// NewMayfly creates a new Mayfly optimizer adapter.
// popSize is raised to MinPopulation when smaller.
func NewMayfly(maxIters, popSize int, seed int64) Optimizer {
	return &MayflyAdapter{
		maxIters: maxIters,
		popSize:  max(popSize, MinPopulation),
		seed:     seed,
	}
}

// Run executes the Mayfly optimization.
// The library takes scalar bounds, so each dimension is mapped onto [0,1]
// and rescaled to its own box before eval sees it.
func (m *MayflyAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	if err := checkBounds(lower, upper, dim); err != nil {
		return nil, 0, err
	}

	scale := func(unit []float64) []float64 {
		x := make([]float64, dim)
		for i := 0; i < dim; i++ {
			u := math.Min(1, math.Max(0, unit[i]))
			x[i] = lower[i] + u*(upper[i]-lower[i])
		}
		return x
	}

	config := mayfly.NewDefaultConfig()
	config.ObjectiveFunc = func(unit []float64) float64 { return eval(scale(unit)) }
	config.ProblemSize = dim
	config.MaxIterations = m.maxIters
	config.NPop = m.popSize
	config.LowerBound = 0
	config.UpperBound = 1

	// Fixed seed for reproducibility
	config.Rand = rand.New(rand.NewSource(m.seed))

	result, err := mayfly.Optimize(config)
	if err != nil {
		return nil, 0, fmt.Errorf("mayfly optimization failed: %w", err)
	}

	return scale(result.GlobalBest.Position), result.GlobalBest.Cost, nil
}
