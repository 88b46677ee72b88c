package hnsw

// ComputeRecall measures the fraction of true nearest neighbors an
// approximate search actually returned, averaged over every query:
// for query i, |groundTruth[i] ∩ results[i]| / k.
func ComputeRecall(groundTruth, results [][]uint32, k int) float32 {
	if len(groundTruth) == 0 || k == 0 {
		return 0
	}

	var total float32
	for i := range groundTruth {
		if i >= len(results) {
			continue
		}

		truth := make(map[uint32]bool, len(groundTruth[i]))
		for _, id := range groundTruth[i] {
			truth[id] = true
		}

		limit := k
		if len(results[i]) < limit {
			limit = len(results[i])
		}

		var hits int
		for j := 0; j < limit; j++ {
			if truth[results[i][j]] {
				hits++
			}
		}
		total += float32(hits) / float32(k)
	}

	return total / float32(len(groundTruth))
}
