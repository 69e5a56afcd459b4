package opt

import "errors"

// Optimizer defines a bounded minimization algorithm
type Optimizer interface {
	// Run minimizes eval over the box [lower, upper] of the given dimension
	// and returns the best position and its cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64, error)
}

// ErrInvalidBounds is returned when bounds do not describe a non-empty box
var ErrInvalidBounds = errors.New("invalid optimizer bounds")

func checkBounds(lower, upper []float64, dim int) error {
	if dim <= 0 || len(lower) < dim || len(upper) < dim {
		return ErrInvalidBounds
	}
	for i := 0; i < dim; i++ {
		if !(lower[i] <= upper[i]) {
			return ErrInvalidBounds
		}
	}
	return nil
}
