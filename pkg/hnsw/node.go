package hnsw

import (
	"sync/atomic"
)

// Node is one vector in the HNSW graph. Internally nodes are
// addressed by a dense uint32 id (their index into the Index's node
// table); the id an embedder passed in is kept alongside as
// externalID for lookups and search results.
//
// Neighbor lists are stored one atomic.Value per layer holding an
// immutable []uint32 snapshot. A writer installs a new slice with
// setNeighborsAt; readers call neighborsAt and get a consistent snapshot
// without taking a lock, the copy-on-write discipline the single-
// writer/multi-reader model relies on.
type Node struct {
	internalID uint32
	externalID []byte
	vector     []float32
	level      int

	neighbors []atomic.Value

	deleted atomic.Bool
}

// newNode allocates a node with empty neighbor sets for every layer
// from 0 to level inclusive.
func newNode(internalID uint32, externalID []byte, vector []float32, level int) *Node {
	n := &Node{
		internalID: internalID,
		externalID: append([]byte(nil), externalID...),
		vector:     vector,
		level:      level,
		neighbors:  make([]atomic.Value, level+1),
	}
	empty := make([]uint32, 0)
	for i := range n.neighbors {
		n.neighbors[i].Store(empty)
	}
	return n
}

// ID returns the node's internal dense identifier.
func (n *Node) ID() uint32 { return n.internalID }

// ExternalID returns the caller-supplied identifier this node represents.
func (n *Node) ExternalID() []byte { return n.externalID }

// Vector returns the node's stored embedding.
func (n *Node) Vector() []float32 { return n.vector }

// Level returns the highest layer this node participates in.
func (n *Node) Level() int { return n.level }

// Deleted reports whether this node is a tombstoned ghost: still
// present in the graph for link integrity but excluded from search
// results and from future neighbor selection.
func (n *Node) Deleted() bool { return n.deleted.Load() }

// markDeleted tombstones the node in place.
func (n *Node) markDeleted() { n.deleted.Store(true) }

// neighborsAt returns the current neighbor snapshot at layer, or nil
// if layer is out of range for this node.
func (n *Node) neighborsAt(layer int) []uint32 {
	if layer < 0 || layer > n.level {
		return nil
	}
	return n.neighbors[layer].Load().([]uint32)
}

// setNeighborsAt installs a new neighbor snapshot at layer. Callers
// must already hold whatever external write discipline the index
// uses (the index permits one writer at a time); setNeighborsAt
// itself only guarantees readers never observe a torn slice.
func (n *Node) setNeighborsAt(layer int, neighbors []uint32) {
	if layer < 0 || layer > n.level {
		return
	}
	out := make([]uint32, len(neighbors))
	copy(out, neighbors)
	n.neighbors[layer].Store(out)
}

// hasNeighborAt reports whether candidate is already a neighbor of n at layer.
func (n *Node) hasNeighborAt(layer int, candidate uint32) bool {
	for _, id := range n.neighborsAt(layer) {
		if id == candidate {
			return true
		}
	}
	return false
}
