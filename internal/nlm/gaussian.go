package nlm

import "math"

// GaussianTable holds spatial weights over the search window.
// Weights is a flat Size×Size row-major grid; the entry for offset (dx, dy)
// from the window center lives at (dy+Radius)*Size + (dx+Radius).
type GaussianTable struct {
	Radius  int
	Size    int
	Weights []float32
}

// NewGaussianTable evaluates the normal density with mean 0 and standard deviation
// searchRadius at the Euclidean distance of every cell from the window center.
//
// A zero radius has no defined density; its single entry is defined as 1.0.
func NewGaussianTable(searchRadius int) *GaussianTable {
	if searchRadius <= 0 {
		return &GaussianTable{Radius: 0, Size: 1, Weights: []float32{1.0}}
	}

	size := 2*searchRadius + 1
	sigma := float64(searchRadius)
	norm := 1.0 / (sigma * math.Sqrt(2*math.Pi))
	inv2s2 := 1.0 / (2 * sigma * sigma)

	weights := make([]float32, size*size)
	for iy := 0; iy < size; iy++ {
		fy := float64(iy - searchRadius)
		for ix := 0; ix < size; ix++ {
			fx := float64(ix - searchRadius)
			// pdf(sqrt(d2)) only needs d2
			d2 := fx*fx + fy*fy
			weights[iy*size+ix] = float32(norm * math.Exp(-d2*inv2s2))
		}
	}

	return &GaussianTable{Radius: searchRadius, Size: size, Weights: weights}
}

// At returns the weight at table index (ix, iy), both in [0, Size)
func (t *GaussianTable) At(ix, iy int) float32 {
	return t.Weights[iy*t.Size+ix]
}
