package quantization

import (
	"errors"
	"math"
	"testing"

	"github.com/therealutkarshpriyadarshi/vectordb/pkg/distance"
)

func TestTrainInvalidShape(t *testing.T) {
	pq := NewProductQuantizer(5, 4) // 5 does not divide 128
	vectors := generateRandomVectors(100, 128)

	err := pq.Train(vectors)
	if !errors.Is(err, ErrInvalidShape) {
		t.Fatalf("expected ErrInvalidShape, got %v", err)
	}
}

func TestTrainInsufficientData(t *testing.T) {
	pq := NewProductQuantizer(4, 8) // needs 256 distinct points per subspace
	vectors := generateRandomVectors(10, 128)

	err := pq.Train(vectors)
	if !errors.Is(err, ErrInsufficientTrainingData) {
		t.Fatalf("expected ErrInsufficientTrainingData, got %v", err)
	}
}

func TestContentHashStable(t *testing.T) {
	vectors := generateRandomVectors(500, 64)

	pq1 := NewProductQuantizer(4, 6)
	if err := pq1.Train(vectors); err != nil {
		t.Fatalf("train: %v", err)
	}

	pq2 := NewProductQuantizer(4, 6)
	if err := pq2.Train(vectors); err != nil {
		t.Fatalf("train: %v", err)
	}

	if pq1.Hash() != pq2.Hash() {
		t.Fatalf("expected identical hash for identical training runs")
	}
}

func TestSerializeRoundTripPreservesHash(t *testing.T) {
	vectors := generateRandomVectors(500, 64)
	pq := NewProductQuantizer(4, 6)
	if err := pq.Train(vectors); err != nil {
		t.Fatalf("train: %v", err)
	}

	data, err := pq.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	pq2 := NewProductQuantizer(0, 0)
	if err := pq2.Deserialize(data); err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	if pq.Hash() != pq2.Hash() {
		t.Fatalf("hash mismatch after round-trip: %x vs %x", pq.Hash(), pq2.Hash())
	}
}

func TestCosineAsymmetricDistanceNeedsNorms(t *testing.T) {
	vectors := generateRandomVectors(500, 64)
	pq := NewProductQuantizerWithMetric(4, 6, distance.Cosine)
	if err := pq.Train(vectors); err != nil {
		t.Fatalf("train: %v", err)
	}

	query := generateRandomVectors(1, 64)[0]
	record := vectors[0]
	codes := pq.Encode(record)

	table := pq.ComputeDistanceTable(query)

	// Without norms, cosine falls back to the 1.0 sentinel.
	if d := pq.AsymmetricDistance(table, codes); d != 1.0 {
		t.Fatalf("expected sentinel 1.0 distance without norms, got %v", d)
	}

	qNorm := distance.Norm(query)
	rNorm := distance.Norm(record)
	approx := pq.AsymmetricDistance(table, codes, qNorm, rNorm)
	exact := distance.Cosine.Distance(query, record)

	if math.Abs(float64(approx-exact)) > 0.5 {
		t.Fatalf("cosine ADC too far from exact: approx=%v exact=%v", approx, exact)
	}
}
