package nlm

import (
	"fmt"
	"math"
	"strings"
)

// Params configures one denoise invocation
type Params struct {
	SampleRadius int        // Patch half-size
	SearchRadius int        // Search window half-size
	FilterParam  float64    // Similarity sensitivity, > 0
	Border       BorderMode // Fill policy for the padded border
}

// DefaultParams returns the defaults of the command-line tool
func DefaultParams() Params {
	return Params{
		SampleRadius: 2,
		SearchRadius: 8,
		FilterParam:  20,
		Border:       BorderZero,
	}
}

// Validate reports ErrInvalidParameter for unusable settings
func (p Params) Validate() error {
	if p.SampleRadius < 0 {
		return fmt.Errorf("%w: sample radius %d is negative", ErrInvalidParameter, p.SampleRadius)
	}
	if p.SearchRadius < 0 {
		return fmt.Errorf("%w: search radius %d is negative", ErrInvalidParameter, p.SearchRadius)
	}
	if math.IsNaN(p.FilterParam) || math.IsInf(p.FilterParam, 0) {
		return fmt.Errorf("%w: filter parameter %v is not finite", ErrInvalidParameter, p.FilterParam)
	}
	if p.FilterParam <= 0 {
		return fmt.Errorf("%w: filter parameter must be positive, got %v", ErrInvalidParameter, p.FilterParam)
	}
	if _, err := ParseBorderMode(string(p.Border)); err != nil {
		return err
	}
	// fp2inv must stay finite in float32 for tiny filter values
	if math.IsInf(float64(p.FP2Inv()), 0) {
		return fmt.Errorf("%w: filter parameter %v is too small", ErrInvalidParameter, p.FilterParam)
	}
	return nil
}

// SampleSize is the patch width in pixels
func (p Params) SampleSize() int { return 2*p.SampleRadius + 1 }

// SearchSize is the search window width in pixels
func (p Params) SearchSize() int { return 2*p.SearchRadius + 1 }

// Offset is the padding needed to keep every patch of every candidate in bounds
func (p Params) Offset() int { return p.SampleRadius + p.SearchRadius }

func (p Params) fp2inv() float64 {
	fp := (p.FilterParam / 255.0) * float64(p.SampleSize())
	return 1.0 / (fp * fp)
}

// FP2Inv returns 1/fp² where fp = (FilterParam/255)·SampleSize
func (p Params) FP2Inv() float32 {
	return float32(p.fp2inv())
}

// BorderMode selects how the padded border is filled
type BorderMode string

const (
	BorderZero      BorderMode = "zero"      // Zero fill (default)
	BorderReplicate BorderMode = "replicate" // Repeat the nearest edge pixel
	BorderReflect   BorderMode = "reflect"   // Mirror about the edge, edge pixel included
)

// ParseBorderMode maps user input to a BorderMode. The empty string selects BorderZero.
func ParseBorderMode(name string) (BorderMode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zero", "constant":
		return BorderZero, nil
	case "replicate", "edge", "clamp":
		return BorderReplicate, nil
	case "reflect", "mirror", "symmetric":
		return BorderReflect, nil
	default:
		return "", fmt.Errorf("%w: unknown border mode %q", ErrInvalidParameter, name)
	}
}
