package hnsw

import (
	"fmt"
)

// Result is one search hit: the caller's external identifier and its
// distance to the query.
type Result struct {
	ID       []byte
	Distance float32
}

// SearchResult holds the outcome of a k-NN search.
type SearchResult struct {
	Results []Result
	Visited int
}

// Search returns the k approximate nearest neighbors of query. ef
// controls the size of the dynamic candidate list explored at the
// base layer; higher values trade search latency for recall.
func (idx *Index) Search(query []float32, k int, ef int) (*SearchResult, error) {
	if len(query) == 0 {
		return nil, fmt.Errorf("query vector cannot be empty")
	}

	idx.mu.RLock()
	if idx.dimension == 0 {
		idx.mu.RUnlock()
		return nil, fmt.Errorf("index is empty")
	}
	if len(query) != idx.dimension {
		idx.mu.RUnlock()
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d", idx.dimension, len(query))
	}
	if !idx.hasEntryPoint {
		idx.mu.RUnlock()
		return nil, fmt.Errorf("index has no entry point")
	}
	if ef < k {
		ef = k
	}

	entryPoint := idx.entryPoint
	maxLayer := idx.maxLayer
	idx.mu.RUnlock()

	ep := entryPoint
	currentDist := idx.dist(query, idx.node(ep).Vector())
	visited := 1

	for lc := maxLayer; lc > 0; lc-- {
		changed := true
		for changed {
			changed = false
			for _, neighborID := range idx.node(ep).neighborsAt(lc) {
				visited++
				neighborNode := idx.node(neighborID)
				if neighborNode == nil {
					continue
				}
				d := idx.dist(query, neighborNode.Vector())
				if d < currentDist {
					currentDist = d
					ep = neighborID
					changed = true
				}
			}
		}
	}

	candidates := idx.searchLayer(query, ep, ef, 0, noExclude)
	visited += len(candidates)

	results := make([]Result, 0, k)
	for i := 0; i < len(candidates) && i < k; i++ {
		n := idx.node(candidates[i].id)
		if n == nil {
			continue
		}
		results = append(results, Result{ID: n.ExternalID(), Distance: candidates[i].distance})
	}

	return &SearchResult{Results: results, Visited: visited}, nil
}

// KNNSearch is Search with a reasonable default ef (max(k*2, 50)).
func (idx *Index) KNNSearch(query []float32, k int) (*SearchResult, error) {
	ef := k * 2
	if ef < 50 {
		ef = 50
	}
	return idx.Search(query, k, ef)
}

// Delete tombstones externalID: its node becomes a ghost, excluded
// from future search results and neighbor selection, but its edges
// stay in place so the graph around it remains connected.
func (idx *Index) Delete(externalID []byte) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	id, ok := idx.lookupInternal(externalID)
	if !ok {
		return fmt.Errorf("id not found")
	}
	n := idx.node(id)
	if n == nil || n.Deleted() {
		return fmt.Errorf("id not found")
	}

	n.markDeleted()
	delete(idx.externalToInternal, string(externalID))
	idx.size--

	if idx.hasEntryPoint && idx.entryPoint == id {
		idx.reassignEntryPoint()
	}

	return nil
}

// reassignEntryPoint picks the highest-level live node as the new
// entry point. Caller must hold idx.mu.
func (idx *Index) reassignEntryPoint() {
	var newEntry uint32
	maxLevel := -1
	found := false

	for _, n := range idx.nodes {
		if n == nil || n.Deleted() {
			continue
		}
		if n.Level() > maxLevel {
			maxLevel = n.Level()
			newEntry = n.ID()
			found = true
		}
	}

	idx.hasEntryPoint = found
	idx.entryPoint = newEntry
	idx.maxLayer = maxLevel
}

// Update replaces the vector stored under externalID while keeping
// the same external identity: it tombstones the old node and inserts
// a fresh one under the same id, rather than handing the caller a new
// identifier to track.
func (idx *Index) Update(externalID []byte, newVector []float32) error {
	idx.mu.RLock()
	id, exists := idx.lookupInternal(externalID)
	idx.mu.RUnlock()

	if !exists {
		return fmt.Errorf("id not found")
	}

	idx.mu.Lock()
	n := idx.node(id)
	if n == nil || n.Deleted() {
		idx.mu.Unlock()
		return fmt.Errorf("id not found")
	}
	n.markDeleted()
	delete(idx.externalToInternal, string(externalID))
	idx.size--
	if idx.entryPoint == id {
		idx.reassignEntryPoint()
	}
	idx.mu.Unlock()

	_, err := idx.Insert(externalID, newVector)
	return err
}
