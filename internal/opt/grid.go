package opt

import "math"

// GridSearch evaluates a regular lattice of points per dimension.
// It is deterministic and cheap for one or two parameters.
type GridSearch struct {
	steps int
}

// NewGrid creates a grid optimizer with the given points per dimension (>= 2)
func NewGrid(steps int) Optimizer {
	return &GridSearch{steps: max(steps, 2)}
}

// Run evaluates every lattice point and returns the cheapest.
// Ties keep the first point visited.
func (g *GridSearch) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error) {
	if err := checkBounds(lower, upper, dim); err != nil {
		return nil, 0, err
	}

	idx := make([]int, dim)
	x := make([]float64, dim)
	best := make([]float64, dim)
	bestCost := math.Inf(1)

	for {
		for i := 0; i < dim; i++ {
			t := float64(idx[i]) / float64(g.steps-1)
			x[i] = lower[i] + t*(upper[i]-lower[i])
		}
		if cost := eval(x); cost < bestCost {
			bestCost = cost
			copy(best, x)
		}

		// Odometer increment
		i := 0
		for ; i < dim; i++ {
			idx[i]++
			if idx[i] < g.steps {
				break
			}
			idx[i] = 0
		}
		if i == dim {
			break
		}
	}

	return best, bestCost, nil
}
