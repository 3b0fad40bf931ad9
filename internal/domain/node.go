package domain

import "math"

// MaxEdgeWeight bounds a single edge weight. It matches the INTEGER weight column and
// keeps any simple-path sum far below the int64 range used for distances.
const MaxEdgeWeight = math.MaxInt32

// A point in the location graph. Immutable once provisioned.
type Node struct {
	ID     int
	AreaID int
}

// Undirected weighted connection between two nodes of the same area.
// NodeA/NodeB are stored in the order they were provisioned; use Key for identity.
type Edge struct {
	NodeA  int
	NodeB  int
	Weight int
}

// Normalized identity of an undirected edge: A is always the smaller node id.
type EdgeKey struct {
	A int
	B int
}

// NewEdgeKey builds the key for the unordered pair (a, b).
func NewEdgeKey(a, b int) EdgeKey {
	if a > b {
		a, b = b, a
	}
	return EdgeKey{A: a, B: b}
}

func (e Edge) Key() EdgeKey { return NewEdgeKey(e.NodeA, e.NodeB) }

// Validate checks the edge-local invariants (distinct endpoints, weight in [0, MaxEdgeWeight]).
// Area membership is checked by the graph store, which knows the node index.
func (e Edge) Validate() error {
	if e.NodeA == e.NodeB {
		return ErrMalformedEdge
	}
	if !ValidWeight(e.Weight) {
		return ErrInvalidWeight
	}
	return nil
}

func ValidWeight(w int) bool { return w >= 0 && w <= MaxEdgeWeight }
