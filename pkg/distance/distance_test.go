package distance

import (
	"math"
	"testing"
)

func TestMetricLaws(t *testing.T) {
	vectors := [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{3, 4, 0, 0},
		{-1, -2, -3, -4},
	}

	for _, m := range []Metric{Euclidean, Manhattan, Cosine, Angular, Dot} {
		for _, v := range vectors {
			d := m.Distance(v, v)
			if m != Dot && d < -1e-5 {
				t.Errorf("%s: d(u,u) should be >= 0, got %v", m, d)
			}
			if m != Dot && math.Abs(float64(d)) > 1e-4 && m != Cosine && m != Angular {
				t.Errorf("%s: d(u,u) should be ~0, got %v", m, d)
			}
		}

		for i := range vectors {
			for j := range vectors {
				a, b := vectors[i], vectors[j]
				if m.Distance(a, b) != m.Distance(b, a) {
					t.Errorf("%s: distance not symmetric for %v, %v", m, a, b)
				}
			}
		}
	}
}

func TestEuclidean(t *testing.T) {
	a := []float32{0, 0}
	b := []float32{3, 4}
	if d := Euclidean.Distance(a, b); d != 5 {
		t.Fatalf("expected 5, got %v", d)
	}
}

func TestCosineZeroVector(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	if d := Cosine.Distance(a, b); d != 1.0 {
		t.Fatalf("expected 1.0 for zero-vector pair, got %v", d)
	}
}

func TestDotNegated(t *testing.T) {
	a := []float32{1, 1}
	b := []float32{1, 1}
	if d := Dot.Distance(a, b); d != -2 {
		t.Fatalf("expected -2, got %v", d)
	}
}

func TestAngularRange(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	d := Angular.Distance(a, b)
	if d < 0 || d > 1 {
		t.Fatalf("angular distance out of [0,1]: %v", d)
	}
	// orthogonal vectors: arccos(0)/pi = 0.5
	if math.Abs(float64(d)-0.5) > 1e-5 {
		t.Fatalf("expected ~0.5 for orthogonal vectors, got %v", d)
	}
}

func TestBatchMatchesScalar(t *testing.T) {
	q := []float32{1, 2, 3}
	vs := [][]float32{{1, 0, 0}, {0, 1, 0}, {3, 2, 1}}

	for _, m := range []Metric{Euclidean, Manhattan, Cosine, Dot, Angular} {
		batch := m.Batch(q, vs)
		for i, v := range vs {
			scalar := m.Distance(q, v)
			if batch[i] != scalar {
				t.Errorf("%s: batch[%d]=%v != scalar=%v", m, i, batch[i], scalar)
			}
		}
	}
}

func TestParseMetric(t *testing.T) {
	m, ok := ParseMetric("cosine")
	if !ok || m != Cosine {
		t.Fatalf("expected Cosine, got %v, %v", m, ok)
	}
	if _, ok := ParseMetric("bogus"); ok {
		t.Fatalf("expected ParseMetric to fail for unknown metric")
	}
}

func TestDecomposable(t *testing.T) {
	for _, m := range []Metric{Euclidean, Manhattan, Dot} {
		if !m.Decomposable() {
			t.Errorf("%s should be decomposable", m)
		}
	}
	for _, m := range []Metric{Cosine, Angular} {
		if m.Decomposable() {
			t.Errorf("%s should not be decomposable", m)
		}
	}
}
