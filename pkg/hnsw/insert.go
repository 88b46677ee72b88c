package hnsw

import (
	"container/heap"
	"fmt"
)

// noExclude is passed to searchLayer when no node should be excluded
// from the result set (ordinary query search, as opposed to
// construction-time search where the inserting node must exclude
// itself).
const noExclude = ^uint32(0)

// Insert adds vector under externalID and returns its internal node
// id. Re-inserting a live externalID is an error; Update should be
// used to change a vector while keeping the same external identity.
func (idx *Index) Insert(externalID []byte, vector []float32) (uint32, error) {
	if len(vector) == 0 {
		return 0, fmt.Errorf("cannot insert empty vector")
	}

	idx.mu.Lock()

	if idx.dimension == 0 {
		idx.dimension = len(vector)
	} else if len(vector) != idx.dimension {
		idx.mu.Unlock()
		return 0, fmt.Errorf("vector dimension mismatch: expected %d, got %d", idx.dimension, len(vector))
	}

	if existing, ok := idx.lookupInternal(externalID); ok {
		if n := idx.node(existing); n != nil && !n.Deleted() {
			idx.mu.Unlock()
			return 0, fmt.Errorf("id already present in index")
		}
	}

	level := idx.randomLevel()
	internalID := uint32(len(idx.nodes))
	newNode := newNode(internalID, externalID, vector, level)
	idx.nodes = append(idx.nodes, newNode)
	idx.externalToInternal[string(externalID)] = internalID

	if !idx.hasEntryPoint {
		idx.hasEntryPoint = true
		idx.entryPoint = internalID
		idx.maxLayer = level
		idx.size++
		idx.mu.Unlock()
		return internalID, nil
	}

	entryPoint := idx.entryPoint
	currentMaxLayer := idx.maxLayer
	idx.mu.Unlock()

	ep := entryPoint
	currentDist := idx.dist(vector, idx.node(ep).Vector())

	for lc := currentMaxLayer; lc > level; lc-- {
		changed := true
		for changed {
			changed = false
			for _, neighborID := range idx.node(ep).neighborsAt(lc) {
				neighborNode := idx.node(neighborID)
				if neighborNode == nil {
					continue
				}
				d := idx.dist(vector, neighborNode.Vector())
				if d < currentDist {
					currentDist = d
					ep = neighborID
					changed = true
				}
			}
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for lc := min(level, currentMaxLayer); lc >= 0; lc-- {
		candidates := idx.searchLayer(vector, ep, idx.efConstruction, lc, internalID)

		M := idx.M
		if lc == 0 {
			M = idx.M0
		}

		selected := idx.selectNeighborsHeuristic(vector, candidates, M)
		newNode.setNeighborsAt(lc, selected)

		for _, neighborID := range selected {
			neighborNode := idx.node(neighborID)
			if neighborNode == nil {
				continue
			}
			if !neighborNode.hasNeighborAt(lc, internalID) {
				neighborNode.setNeighborsAt(lc, append(neighborNode.neighborsAt(lc), internalID))
			}
			idx.pruneNeighbors(neighborNode, lc)
		}

		if len(candidates) > 0 {
			ep = candidates[0].id
		}
	}

	if level > idx.maxLayer {
		idx.maxLayer = level
		idx.entryPoint = internalID
	}
	idx.size++

	return internalID, nil
}

// searchLayer performs a greedy beam search for the ef closest live
// nodes to query at layer, starting from entryPoint. Ghost (deleted)
// nodes are still traversed through — their edges keep the graph
// connected — but are never themselves returned as results.
// The node with id exclude is never returned; pass the inserting
// node's own id during construction so a node never becomes its own
// neighbor, or noExclude when nothing is to be excluded.
func (idx *Index) searchLayer(query []float32, entryPoint uint32, ef int, layer int, exclude uint32) []heapItem {
	visited := make(map[uint32]bool)
	candidates := &minHeap{}
	results := &maxHeap{}

	epNode := idx.node(entryPoint)
	dist := idx.dist(query, epNode.Vector())
	heap.Push(candidates, heapItem{id: entryPoint, distance: dist})
	if entryPoint != exclude && !epNode.Deleted() {
		heap.Push(results, heapItem{id: entryPoint, distance: dist})
	}
	visited[entryPoint] = true

	for candidates.Len() > 0 {
		current := heap.Pop(candidates).(heapItem)
		if results.Len() > 0 && current.distance > results.Peek().(heapItem).distance && results.Len() >= ef {
			break
		}

		currentNode := idx.node(current.id)
		if currentNode == nil {
			continue
		}

		for _, neighborID := range currentNode.neighborsAt(layer) {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true

			neighborNode := idx.node(neighborID)
			if neighborNode == nil {
				continue
			}

			neighborDist := idx.dist(query, neighborNode.Vector())
			worst := float32(0)
			if results.Len() > 0 {
				worst = results.Peek().(heapItem).distance
			}

			if results.Len() < ef || neighborDist < worst {
				heap.Push(candidates, heapItem{id: neighborID, distance: neighborDist})
				if neighborID != exclude && !neighborNode.Deleted() {
					heap.Push(results, heapItem{id: neighborID, distance: neighborDist})
					if results.Len() > ef {
						heap.Pop(results)
					}
				}
			}
		}
	}

	resultSlice := make([]heapItem, results.Len())
	for i := len(resultSlice) - 1; i >= 0; i-- {
		resultSlice[i] = heap.Pop(results).(heapItem)
	}
	return resultSlice
}

// selectNeighborsHeuristic implements the diversity-preserving
// neighbor selection from the HNSW paper: candidates are considered
// in ascending distance to v, and a candidate c is accepted only if
// it is closer to v than to every neighbor already accepted — this
// favors spreading connections across directions over piling them up
// on the single closest cluster.
func (idx *Index) selectNeighborsHeuristic(v []float32, candidates []heapItem, M int) []uint32 {
	selected := make([]uint32, 0, M)
	selectedVecs := make([][]float32, 0, M)

	for _, c := range candidates {
		if len(selected) >= M {
			break
		}
		cNode := idx.node(c.id)
		if cNode == nil {
			continue
		}
		cVec := cNode.Vector()

		accept := true
		for _, rVec := range selectedVecs {
			if idx.dist(cVec, v) >= idx.dist(cVec, rVec) {
				accept = false
				break
			}
		}
		if accept {
			selected = append(selected, c.id)
			selectedVecs = append(selectedVecs, cVec)
		}
	}

	// If the heuristic rejected too many candidates to fill M slots,
	// backfill with the remaining closest candidates in order.
	if len(selected) < M {
		have := make(map[uint32]bool, len(selected))
		for _, id := range selected {
			have[id] = true
		}
		for _, c := range candidates {
			if len(selected) >= M {
				break
			}
			if have[c.id] {
				continue
			}
			selected = append(selected, c.id)
		}
	}

	return selected
}

// pruneNeighbors re-applies the heuristic selector to a node whose
// neighbor set may have grown past its layer's connection budget.
func (idx *Index) pruneNeighbors(node *Node, layer int) {
	M := idx.M
	if layer == 0 {
		M = idx.M0
	}

	neighbors := node.neighborsAt(layer)
	if len(neighbors) <= M {
		return
	}

	candidates := make([]heapItem, 0, len(neighbors))
	for _, id := range neighbors {
		n := idx.node(id)
		if n == nil {
			continue
		}
		candidates = append(candidates, heapItem{id: id, distance: idx.dist(node.Vector(), n.Vector())})
	}
	sortHeapItems(candidates)

	selected := idx.selectNeighborsHeuristic(node.Vector(), candidates, M)
	node.setNeighborsAt(layer, selected)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func sortHeapItems(items []heapItem) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && items[j].distance < items[j-1].distance; j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}

// heapItem is one entry in the candidate/result priority queues.
type heapItem struct {
	id       uint32
	distance float32
}

// minHeap is a min-heap of heapItem (smallest distance at the top).
type minHeap []heapItem

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].distance < h[j].distance }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
func (h *minHeap) Peek() interface{} {
	if len(*h) == 0 {
		return heapItem{distance: 1e9}
	}
	return (*h)[0]
}

// maxHeap is a max-heap of heapItem (largest distance at the top).
type maxHeap []heapItem

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].distance > h[j].distance }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(heapItem)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
func (h *maxHeap) Peek() interface{} {
	if len(*h) == 0 {
		return heapItem{distance: 1e9}
	}
	return (*h)[0]
}
