package quantization

import "math"

// ComputeRecall computes recall@k for approximate search results
// against ground truth, used to validate PQ training corpora and
// report the seed-test reconstruction threshold.
func ComputeRecall(groundTruth [][]int, results [][]int, k int) float32 {
	if len(groundTruth) != len(results) {
		return 0
	}

	var totalRecall float32
	for i := range groundTruth {
		gt := groundTruth[i]
		res := results[i]

		if len(gt) == 0 {
			continue
		}

		if len(gt) > k {
			gt = gt[:k]
		}
		if len(res) > k {
			res = res[:k]
		}

		gtSet := make(map[int]bool, len(gt))
		for _, id := range gt {
			gtSet[id] = true
		}

		var matches int
		for _, id := range res {
			if gtSet[id] {
				matches++
			}
		}

		totalRecall += float32(matches) / float32(len(gt))
	}

	return totalRecall / float32(len(groundTruth))
}

// VectorStats holds per-dimension statistics for a training corpus.
type VectorStats struct {
	Mean   []float32
	StdDev []float32
	Min    []float32
	Max    []float32
}

// ComputeVectorStats computes per-dimension statistics for training
// data, used to size PQ training corpora and report reconstruction
// error relative to vector variance.
func ComputeVectorStats(vectors [][]float32) *VectorStats {
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil
	}

	dim := len(vectors[0])
	stats := &VectorStats{
		Mean:   make([]float32, dim),
		StdDev: make([]float32, dim),
		Min:    make([]float32, dim),
		Max:    make([]float32, dim),
	}

	for d := 0; d < dim; d++ {
		stats.Min[d] = float32(math.MaxFloat32)
		stats.Max[d] = float32(-math.MaxFloat32)
	}

	for _, vec := range vectors {
		for d := 0; d < dim; d++ {
			stats.Mean[d] += vec[d]
			if vec[d] < stats.Min[d] {
				stats.Min[d] = vec[d]
			}
			if vec[d] > stats.Max[d] {
				stats.Max[d] = vec[d]
			}
		}
	}

	for d := 0; d < dim; d++ {
		stats.Mean[d] /= float32(len(vectors))
	}

	for _, vec := range vectors {
		for d := 0; d < dim; d++ {
			diff := vec[d] - stats.Mean[d]
			stats.StdDev[d] += diff * diff
		}
	}

	for d := 0; d < dim; d++ {
		stats.StdDev[d] = float32(math.Sqrt(float64(stats.StdDev[d] / float32(len(vectors)))))
	}

	return stats
}

// Variance returns the mean per-dimension variance, used to normalize
// reconstruction error into a relative threshold.
func (s *VectorStats) Variance() float32 {
	if s == nil || len(s.StdDev) == 0 {
		return 0
	}
	var sum float32
	for _, sd := range s.StdDev {
		sum += sd * sd
	}
	return sum / float32(len(s.StdDev))
}
