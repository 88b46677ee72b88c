package quantization

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/therealutkarshpriyadarshi/vectordb/pkg/distance"
)

// EuclideanDistanceFloat32 computes the Euclidean distance between two
// float32 vectors. Thin wrapper kept for callers that only need a
// single metric without constructing a distance.Metric value.
func EuclideanDistanceFloat32(a, b []float32) float32 { return distance.Euclidean.Distance(a, b) }

// CosineDistanceFloat32 computes cosine distance (1 - cosine similarity).
func CosineDistanceFloat32(a, b []float32) float32 { return distance.Cosine.Distance(a, b) }

// DotProductFloat32 computes the (unnegated) dot product of two vectors.
func DotProductFloat32(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// NormL2 computes the L2 norm of a vector.
func NormL2(v []float32) float32 { return distance.Norm(v) }

// Normalize normalizes a vector to unit length.
func Normalize(v []float32) []float32 {
	norm := NormL2(v)
	if norm == 0 {
		return v
	}
	result := make([]float32, len(v))
	for i, x := range v {
		result[i] = x / norm
	}
	return result
}

// distinctCount counts the number of distinct points in a set of
// vectors, used to check training has enough variety for k centroids.
func distinctCount(vectors [][]float32) int {
	seen := make(map[string]struct{}, len(vectors))
	buf := make([]byte, 4)
	for _, v := range vectors {
		key := make([]byte, 0, len(v)*4)
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
			key = append(key, buf...)
		}
		seen[string(key)] = struct{}{}
	}
	return len(seen)
}

// KMeansPlusPlus performs k-means clustering with k-means++
// initialization, which gives better starting centroids than uniform
// random selection.
func KMeansPlusPlus(vectors [][]float32, k int, config *Config) ([][]float32, error) {
	if len(vectors) < k {
		return nil, fmt.Errorf("not enough vectors (%d) for %d clusters", len(vectors), k)
	}

	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("empty vectors")
	}

	dim := len(vectors[0])
	centroids := make([][]float32, k)

	r := rand.New(rand.NewSource(config.RandomSeed))

	firstIdx := r.Intn(len(vectors))
	centroids[0] = make([]float32, dim)
	copy(centroids[0], vectors[firstIdx])

	for c := 1; c < k; c++ {
		distances := make([]float32, len(vectors))
		var totalDist float32

		for i, vec := range vectors {
			minDist := float32(math.MaxFloat32)

			for j := 0; j < c; j++ {
				dist := config.Metric.Distance(vec, centroids[j])
				if dist < minDist {
					minDist = dist
				}
			}

			distances[i] = minDist * minDist
			totalDist += distances[i]
		}

		if totalDist > 0 {
			target := r.Float32() * totalDist
			var cumulative float32

			for i, dist := range distances {
				cumulative += dist
				if cumulative >= target {
					centroids[c] = make([]float32, dim)
					copy(centroids[c], vectors[i])
					break
				}
			}
		} else {
			idx := r.Intn(len(vectors))
			centroids[c] = make([]float32, dim)
			copy(centroids[c], vectors[idx])
		}
	}

	for iter := 0; iter < config.NumIterations; iter++ {
		clusters := make([][][]float32, k)

		for _, vec := range vectors {
			minDist := float32(math.MaxFloat32)
			minCluster := 0

			for c, centroid := range centroids {
				dist := config.Metric.Distance(vec, centroid)
				if dist < minDist {
					minDist = dist
					minCluster = c
				}
			}

			clusters[minCluster] = append(clusters[minCluster], vec)
		}

		converged := true
		for c := range centroids {
			if len(clusters[c]) == 0 {
				continue
			}

			newCentroid := make([]float32, dim)
			for _, vec := range clusters[c] {
				for d := 0; d < dim; d++ {
					newCentroid[d] += vec[d]
				}
			}

			for d := 0; d < dim; d++ {
				newCentroid[d] /= float32(len(clusters[c]))
			}

			if distance.Euclidean.Distance(centroids[c], newCentroid) > 1e-6 {
				converged = false
			}

			centroids[c] = newCentroid
		}

		if converged {
			if config.Verbose {
				fmt.Printf("K-means converged at iteration %d\n", iter)
			}
			break
		}
	}

	return centroids, nil
}
