package nlm

import "errors"

var (
	// ErrInvalidInput is returned for zero-area images or dimension arithmetic that would overflow.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidParameter is returned when a radius is negative or the filter parameter is not a positive finite number.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrComputationAnomaly indicates a non-finite normalizer or channel value surfaced during reconstruction.
	// It cannot occur for valid parameters and input values in [0,1].
	ErrComputationAnomaly = errors.New("computation anomaly")
)
