package quantization

import "errors"

// Sentinel error kinds per the engine's typed error taxonomy. Callers
// use errors.Is against these to branch on failure kind rather than
// parsing message text.
var (
	// ErrInvalidShape is returned for a dimension mismatch or a PQ
	// parameter mismatch (e.g. dim not divisible by m).
	ErrInvalidShape = errors.New("quantization: invalid shape")

	// ErrInsufficientTrainingData is returned when a subspace has
	// fewer distinct training points than the requested centroid
	// count k.
	ErrInsufficientTrainingData = errors.New("quantization: insufficient training data")
)
