package domain

import "slices"

// Neighbor is one incident edge seen from a node.
type Neighbor struct {
	NodeID int
	Weight int
}

// GraphSnapshot is an immutable point-in-time copy of one area's nodes and edges.
//
// Version identifies the graph state the snapshot was copied from: two snapshots of the
// same area with the same version hold identical data. A snapshot is never mutated after
// NewGraphSnapshot returns, so it is safe to share between goroutines.
type GraphSnapshot struct {
	AreaID  int
	Version uint64

	nodes []Node
	edges []Edge
	adj   map[int][]Neighbor
}

// NewGraphSnapshot copies nodes and edges and builds the adjacency index.
// Nodes are ordered by id and edges by normalized (A, B) key.
func NewGraphSnapshot(areaID int, version uint64, nodes []Node, edges []Edge) *GraphSnapshot {
	s := &GraphSnapshot{
		AreaID:  areaID,
		Version: version,
		nodes:   slices.Clone(nodes),
		edges:   make([]Edge, 0, len(edges)),
		adj:     make(map[int][]Neighbor, len(nodes)),
	}

	slices.SortFunc(s.nodes, func(a, b Node) int { return a.ID - b.ID })
	for _, n := range s.nodes {
		s.adj[n.ID] = nil
	}

	for _, e := range edges {
		k := e.Key()
		s.edges = append(s.edges, Edge{NodeA: k.A, NodeB: k.B, Weight: e.Weight})
		s.adj[k.A] = append(s.adj[k.A], Neighbor{NodeID: k.B, Weight: e.Weight})
		s.adj[k.B] = append(s.adj[k.B], Neighbor{NodeID: k.A, Weight: e.Weight})
	}
	slices.SortFunc(s.edges, compareEdges)

	return s
}

func compareEdges(a, b Edge) int {
	if a.NodeA != b.NodeA {
		return a.NodeA - b.NodeA
	}
	return a.NodeB - b.NodeB
}

func (s *GraphSnapshot) HasNode(id int) bool {
	_, ok := s.adj[id]
	return ok
}

// Neighbors returns the edges incident to id. The slice is shared and must not be modified.
func (s *GraphSnapshot) Neighbors(id int) []Neighbor { return s.adj[id] }

func (s *GraphSnapshot) NodeCount() int { return len(s.nodes) }

// Nodes returns a copy of the snapshot's nodes, ordered by id.
func (s *GraphSnapshot) Nodes() []Node { return slices.Clone(s.nodes) }

// Edges returns a copy of the snapshot's edges, ordered by (NodeA, NodeB).
func (s *GraphSnapshot) Edges() []Edge { return slices.Clone(s.edges) }
