// Package hnsw implements a Hierarchical Navigable Small World graph:
// a multi-layer proximity graph supporting approximate nearest
// neighbor search with logarithmic expected search cost.
package hnsw

import (
	"math"
	"math/rand"
	"sync"

	"github.com/therealutkarshpriyadarshi/vectordb/pkg/distance"
)

// Index is an HNSW graph. Callers address vectors by an external
// identifier of their choosing ([]byte); internally each live vector
// is assigned a dense uint32 node id used throughout the graph's
// neighbor lists, keeping those lists compact even as ids churn.
type Index struct {
	M              int
	M0             int
	efConstruction int
	ml             float64
	metric         distance.Metric

	mu                 sync.RWMutex
	nodes              []*Node
	externalToInternal map[string]uint32

	hasEntryPoint bool
	entryPoint    uint32
	maxLayer      int
	dimension     int

	rnd  *rand.Rand
	size int64
}

// IndexConfig configures a new Index.
type IndexConfig struct {
	// M is the number of bidirectional links created per node at
	// every layer above the base layer (typical: 16-32).
	M int

	// EfConstruction is the size of the dynamic candidate list used
	// while inserting (typical: 200).
	EfConstruction int

	// Metric is the distance function used throughout the graph.
	Metric distance.Metric

	// Seed seeds the level-assignment random source; zero selects the
	// fixed seed 1, so level assignment is deterministic either way.
	Seed int64
}

// DefaultConfig returns recommended defaults: M=16, efConstruction=200,
// Euclidean distance.
func DefaultConfig() IndexConfig {
	return IndexConfig{
		M:              16,
		EfConstruction: 200,
		Metric:         distance.Euclidean,
	}
}

// New creates an empty Index.
func New(config IndexConfig) *Index {
	if config.M == 0 {
		config.M = 16
	}
	if config.EfConstruction == 0 {
		config.EfConstruction = 200
	}

	source := rand.NewSource(config.Seed)
	if config.Seed == 0 {
		source = rand.NewSource(1)
	}

	return &Index{
		M:                  config.M,
		M0:                 config.M * 2,
		efConstruction:     config.EfConstruction,
		ml:                 1.0 / math.Log(float64(config.M)),
		metric:             config.Metric,
		externalToInternal: make(map[string]uint32),
		maxLayer:           -1,
		rnd:                rand.New(source),
	}
}

// randomLevel samples a layer for a new node: floor(-ln(r) * ml),
// giving an exponentially decaying probability of reaching higher
// layers.
func (idx *Index) randomLevel() int {
	r := idx.rnd.Float64()
	for r == 0 {
		r = idx.rnd.Float64()
	}
	return int(math.Floor(-math.Log(r) * idx.ml))
}

// Size returns the number of live (non-deleted) vectors in the index.
func (idx *Index) Size() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.size
}

// Dimension returns the vector dimension, set on the first insert.
func (idx *Index) Dimension() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.dimension
}

// MaxLayer returns the highest populated layer.
func (idx *Index) MaxLayer() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.maxLayer
}

// node returns the node for an internal id, or nil if out of range.
func (idx *Index) node(id uint32) *Node {
	if int(id) >= len(idx.nodes) {
		return nil
	}
	return idx.nodes[id]
}

// lookupInternal returns the live internal id for an external id.
func (idx *Index) lookupInternal(externalID []byte) (uint32, bool) {
	id, ok := idx.externalToInternal[string(externalID)]
	return id, ok
}

// GetVector returns a copy of the vector stored for externalID.
func (idx *Index) GetVector(externalID []byte) ([]float32, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	id, ok := idx.lookupInternal(externalID)
	if !ok {
		return nil, false
	}
	n := idx.node(id)
	if n == nil || n.Deleted() {
		return nil, false
	}
	out := make([]float32, len(n.Vector()))
	copy(out, n.Vector())
	return out, true
}

// IndexStats summarizes the graph's current shape.
type IndexStats struct {
	Size           int64
	Dimension      int
	MaxLayer       int
	M              int
	M0             int
	EfConstruction int
	NodesPerLayer  map[int]int
}

// GetStats returns current index statistics.
func (idx *Index) GetStats() IndexStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	nodesPerLayer := make(map[int]int)
	for _, n := range idx.nodes {
		if n == nil || n.Deleted() {
			continue
		}
		for layer := 0; layer <= n.Level(); layer++ {
			nodesPerLayer[layer]++
		}
	}

	return IndexStats{
		Size:           idx.size,
		Dimension:      idx.dimension,
		MaxLayer:       idx.maxLayer,
		M:              idx.M,
		M0:             idx.M0,
		EfConstruction: idx.efConstruction,
		NodesPerLayer:  nodesPerLayer,
	}
}

func (idx *Index) dist(a, b []float32) float32 {
	return idx.metric.Distance(a, b)
}
