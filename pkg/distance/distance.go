// Package distance implements the pairwise and batched distance
// functions used by the PQ codec and the HNSW index.
package distance

import "math"

// Metric identifies one of the closed set of supported distance
// functions. It dispatches through a small table rather than a type
// hierarchy, in the same spirit as the fixed DistanceFunc table it
// replaces.
type Metric int

const (
	Euclidean Metric = iota
	Manhattan
	Cosine
	Dot
	Angular
)

// String returns the canonical lower-case name of the metric.
func (m Metric) String() string {
	switch m {
	case Euclidean:
		return "euclidean"
	case Manhattan:
		return "manhattan"
	case Cosine:
		return "cosine"
	case Dot:
		return "dot"
	case Angular:
		return "angular"
	default:
		return "unknown"
	}
}

// ParseMetric maps a metric name to its Metric value.
func ParseMetric(name string) (Metric, bool) {
	switch name {
	case "euclidean":
		return Euclidean, true
	case "manhattan":
		return Manhattan, true
	case "cosine":
		return Cosine, true
	case "dot":
		return Dot, true
	case "angular":
		return Angular, true
	default:
		return 0, false
	}
}

// Decomposable reports whether ADC can sum per-subspace distances
// directly to approximate the whole-vector distance (euclidean²,
// manhattan, dot). cosine and angular require stored vector norms.
func (m Metric) Decomposable() bool {
	switch m {
	case Euclidean, Manhattan, Dot:
		return true
	default:
		return false
	}
}

// Distance computes d(a, b) for the metric. a and b must share length.
func (m Metric) Distance(a, b []float32) float32 {
	switch m {
	case Euclidean:
		return euclidean(a, b)
	case Manhattan:
		return manhattan(a, b)
	case Cosine:
		return cosine(a, b)
	case Dot:
		return dot(a, b)
	case Angular:
		return angular(a, b)
	default:
		return euclidean(a, b)
	}
}

// LowerBound returns a monotone lower bound on Distance, d_lb(a,b) <=
// d(a,b). The trivial bound d_lb = d is used throughout; it is
// exposed as its own method so callers (HNSW beam search) can later
// be upgraded to a cheaper bound without changing call sites.
func (m Metric) LowerBound(a, b []float32) float32 {
	return m.Distance(a, b)
}

// Batch computes d(q, v) for every v in vs. The result is bitwise
// equal to calling Distance(q, vs[i]) for each i: no reordered
// summation is introduced for the sake of batching.
func (m Metric) Batch(q []float32, vs [][]float32) []float32 {
	out := make([]float32, len(vs))
	for i, v := range vs {
		out[i] = m.Distance(q, v)
	}
	return out
}

func euclidean(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		sum += diff * diff
	}
	return float32(math.Sqrt(float64(sum)))
}

func manhattan(a, b []float32) float32 {
	var sum float32
	for i := range a {
		diff := a[i] - b[i]
		if diff < 0 {
			diff = -diff
		}
		sum += diff
	}
	return sum
}

func cosine(a, b []float32) float32 {
	dotP, normA, normB := dotAndNorms(a, b)
	if normA == 0 || normB == 0 {
		return 1.0
	}
	sim := dotP / (float32(math.Sqrt(float64(normA))) * float32(math.Sqrt(float64(normB))))
	return 1.0 - sim
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return -sum
}

func angular(a, b []float32) float32 {
	dotP, normA, normB := dotAndNorms(a, b)
	if normA == 0 || normB == 0 {
		return 1.0
	}
	sim := float64(dotP) / (math.Sqrt(float64(normA)) * math.Sqrt(float64(normB)))
	if sim > 1 {
		sim = 1
	} else if sim < -1 {
		sim = -1
	}
	return float32(math.Acos(sim) / math.Pi)
}

func dotAndNorms(a, b []float32) (dotP, normA, normB float32) {
	for i := range a {
		dotP += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	return
}

// Norm returns the L2 norm of v, used by the PQ codec to store
// per-record norms for cosine/angular ADC.
func Norm(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return float32(math.Sqrt(float64(sum)))
}
