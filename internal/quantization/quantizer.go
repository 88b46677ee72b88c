package quantization

import "github.com/therealutkarshpriyadarshi/vectordb/pkg/distance"

// Quantizer defines the common interface for all quantization methods.
type Quantizer interface {
	// Train learns quantization parameters from training data.
	Train(vectors [][]float32) error

	// Encode compresses a vector into a compact representation.
	Encode(vector []float32) []byte

	// Decode decompresses a compact representation back to a vector.
	Decode(code []byte) []float32

	// GetCompressionRatio returns the theoretical compression ratio.
	GetCompressionRatio(originalDim int) float32
}

// AsymmetricQuantizer extends Quantizer for asymmetric distance
// computation, the key optimization for fast search with PQ.
type AsymmetricQuantizer interface {
	Quantizer

	// ComputeDistanceTable precomputes a per-subspace distance table
	// for a query vector.
	ComputeDistanceTable(query []float32) interface{}

	// AsymmetricDistance computes the distance between a query and an
	// encoded vector using a precomputed distance table. For
	// non-decomposable metrics (cosine, angular) norms must supply
	// (queryNorm, recordNorm).
	AsymmetricDistance(distTable interface{}, code []byte, norms ...float32) float32
}

// Config holds configuration for quantization training.
type Config struct {
	// NumIterations for Lloyd's k-means refinement, after k-means++
	// initialization.
	NumIterations int

	// Metric is the distance used during k-means training and for
	// ADC and symmetric distances (for every metric). Encoding always
	// assigns the nearest centroid under L2, whatever the metric.
	Metric distance.Metric

	// Verbose enables progress logging during training.
	Verbose bool

	// RandomSeed makes k-means++ initialization reproducible.
	RandomSeed int64
}

// DefaultConfig returns the default quantization configuration.
func DefaultConfig() *Config {
	return &Config{
		NumIterations: 25,
		Metric:        distance.Euclidean,
		Verbose:       false,
		RandomSeed:    42,
	}
}
