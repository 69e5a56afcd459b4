package opt

import (
	"errors"
	"math"
	"testing"
)

// Sphere function: f(x) = sum((x_i-c)^2), minimum at c
func shiftedSphere(c float64) func([]float64) float64 {
	return func(x []float64) float64 {
		var sum float64
		for _, v := range x {
			sum += (v - c) * (v - c)
		}
		return sum
	}
}

func TestMayflyAdapterOnSphere(t *testing.T) {
	optimizer := NewMayfly(100, 20, 42) // maxIters, popSize, seed

	dim := 3
	lower := []float64{-10, -10, -10}
	upper := []float64{10, 10, 10}

	best, cost, err := optimizer.Run(shiftedSphere(2), lower, upper, dim)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(best))
	}
	if cost > 0.1 {
		t.Errorf("Expected cost near 0, got %f", cost)
	}
	for i, v := range best {
		if math.Abs(v-2) > 1.0 {
			t.Errorf("Parameter %d = %f, expected near 2", i, v)
		}
	}
}

func TestMayflyAdapterRespectsPerDimensionBounds(t *testing.T) {
	optimizer := NewMayfly(30, 20, 7)

	lower := []float64{5, -1}
	upper := []float64{6, 0}

	var outside int
	eval := func(x []float64) float64 {
		if x[0] < 5 || x[0] > 6 || x[1] < -1 || x[1] > 0 {
			outside++
		}
		return x[0] + x[1]
	}

	best, _, err := optimizer.Run(eval, lower, upper, 2)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if outside > 0 {
		t.Errorf("%d evaluations fell outside the bounds", outside)
	}
	if best[0] < 5 || best[0] > 6 || best[1] < -1 || best[1] > 0 {
		t.Errorf("Best %v outside bounds", best)
	}
}

func TestMayflyAdapterDeterministic(t *testing.T) {
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	_, cost1, _ := NewMayfly(50, 20, 123).Run(shiftedSphere(0), lower, upper, 2)
	_, cost2, _ := NewMayfly(50, 20, 123).Run(shiftedSphere(0), lower, upper, 2)

	if cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}

func TestGridSearch(t *testing.T) {
	best, cost, err := NewGrid(11).Run(shiftedSphere(3), []float64{0}, []float64{10}, 1)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if math.Abs(best[0]-3) > 1e-9 || cost > 1e-12 {
		t.Errorf("Expected 3 with cost 0, got %v with cost %v", best[0], cost)
	}

	var calls int
	count := func(x []float64) float64 { calls++; return 0 }
	if _, _, err := NewGrid(4).Run(count, []float64{0, 0}, []float64{1, 1}, 2); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if calls != 16 {
		t.Errorf("Expected 16 evaluations, got %d", calls)
	}
}

func TestInvalidBounds(t *testing.T) {
	tests := []struct {
		name         string
		lower, upper []float64
		dim          int
	}{
		{"zero dim", nil, nil, 0},
		{"short bounds", []float64{0}, []float64{1}, 2},
		{"inverted", []float64{2}, []float64{1}, 1},
		{"nan", []float64{math.NaN()}, []float64{1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, o := range []Optimizer{NewMayfly(10, 20, 1), NewGrid(3)} {
				if _, _, err := o.Run(shiftedSphere(0), tt.lower, tt.upper, tt.dim); !errors.Is(err, ErrInvalidBounds) {
					t.Errorf("%T: expected ErrInvalidBounds, got %v", o, err)
				}
			}
		})
	}
}
