package services

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/platform/keylock"
	"tow-dispatch-service/internal/platform/obs"
	"tow-dispatch-service/internal/ports"

	"github.com/rs/zerolog"
)

// areaGraph is the authoritative state of one area.
// nodes never change after load; weights change only under mu's write lock.
type areaGraph struct {
	id int

	mu      sync.RWMutex
	nodes   []domain.Node
	weights map[domain.EdgeKey]int
	version uint64

	// Last snapshot built for version. Cleared on every weight change.
	snap atomic.Pointer[domain.GraphSnapshot]
}

// GraphStore holds the per-area weighted undirected graphs.
//
// Each area sits behind its own RW lock; the store-level lock only guards the area
// index and is never held during I/O. Weight updates to the same edge are serialized
// end to end (persist, then replace) by a per-edge lock, so the durable and in-memory
// weights converge to the last committed update. Reloads exclude in-flight weight
// updates through reloadMu, so a reload never drops an update that already persisted.
type GraphStore struct {
	repo ports.MapRepository
	log  zerolog.Logger

	mu       sync.RWMutex
	areas    map[int]*areaGraph
	nodeArea map[int]int

	// Held shared by weight updates, exclusively by Load and ReloadArea.
	reloadMu  sync.RWMutex
	edgeLocks keylock.Map[domain.EdgeKey]
	versions  atomic.Uint64
}

func NewGraphStore(repo ports.MapRepository, log zerolog.Logger) *GraphStore {
	return &GraphStore{
		repo:     repo,
		log:      log,
		areas:    map[int]*areaGraph{},
		nodeArea: map[int]int{},
	}
}

// Load replaces the whole graph with the repository's contents.
func (s *GraphStore) Load(ctx context.Context) (err error) {
	defer obs.Time(ctx, "graph.Load")(&err)

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	nodes, err := s.repo.LoadNodes(ctx, nil)
	if err != nil {
		return fmt.Errorf("load graph: load nodes: %w", err)
	}
	edges, err := s.repo.LoadEdges(ctx, nil)
	if err != nil {
		return fmt.Errorf("load graph: load edges: %w", err)
	}

	areas, nodeArea, err := s.build(nodes, edges)
	if err != nil {
		return fmt.Errorf("load graph: %w", err)
	}

	s.mu.Lock()
	s.areas = areas
	s.nodeArea = nodeArea
	s.mu.Unlock()

	s.log.Info().Int("areas", len(areas)).Int("nodes", len(nodes)).Int("edges", len(edges)).Msg("graph loaded")
	return nil
}

// ReloadArea refreshes one area from the repository. An area that no longer has
// nodes is dropped.
func (s *GraphStore) ReloadArea(ctx context.Context, areaID int) (err error) {
	defer obs.Time(ctx, "graph.ReloadArea")(&err)

	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	nodes, err := s.repo.LoadNodes(ctx, &areaID)
	if err != nil {
		return fmt.Errorf("reload area %d: load nodes: %w", areaID, err)
	}
	edges, err := s.repo.LoadEdges(ctx, &areaID)
	if err != nil {
		return fmt.Errorf("reload area %d: load edges: %w", areaID, err)
	}

	for _, n := range nodes {
		if n.AreaID != areaID {
			return fmt.Errorf("reload area %d: node %d belongs to area %d: %w", areaID, n.ID, n.AreaID, domain.ErrInvalidInput)
		}
	}

	areas, nodeArea, err := s.build(nodes, edges)
	if err != nil {
		return fmt.Errorf("reload area %d: %w", areaID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.areas[areaID]; ok {
		for _, n := range old.nodes {
			delete(s.nodeArea, n.ID)
		}
		delete(s.areas, areaID)
	}
	for id, a := range nodeArea {
		s.nodeArea[id] = a
	}
	if ag, ok := areas[areaID]; ok {
		s.areas[areaID] = ag
	}

	return nil
}

// build validates rows and groups them into area graphs.
func (s *GraphStore) build(nodes []domain.Node, edges []domain.Edge) (map[int]*areaGraph, map[int]int, error) {
	areas := make(map[int]*areaGraph)
	nodeArea := make(map[int]int, len(nodes))

	for _, n := range nodes {
		if prev, ok := nodeArea[n.ID]; ok {
			return nil, nil, fmt.Errorf("node %d listed twice (areas %d and %d): %w", n.ID, prev, n.AreaID, domain.ErrInvalidInput)
		}
		nodeArea[n.ID] = n.AreaID

		ag, ok := areas[n.AreaID]
		if !ok {
			ag = &areaGraph{id: n.AreaID, weights: map[domain.EdgeKey]int{}}
			areas[n.AreaID] = ag
		}
		ag.nodes = append(ag.nodes, n)
	}

	for _, e := range edges {
		if err := e.Validate(); err != nil {
			return nil, nil, fmt.Errorf("edge (%d,%d): %w", e.NodeA, e.NodeB, err)
		}
		areaA, okA := nodeArea[e.NodeA]
		areaB, okB := nodeArea[e.NodeB]
		if !okA || !okB {
			return nil, nil, fmt.Errorf("edge (%d,%d) references an unknown node: %w", e.NodeA, e.NodeB, domain.ErrNodeNotFound)
		}
		if areaA != areaB {
			return nil, nil, fmt.Errorf("edge (%d,%d) crosses areas %d and %d: %w", e.NodeA, e.NodeB, areaA, areaB, domain.ErrInvalidInput)
		}

		ag := areas[areaA]
		k := e.Key()
		if prev, dup := ag.weights[k]; dup {
			s.log.Warn().Int("node_a", k.A).Int("node_b", k.B).Int("prev_weight", prev).Int("weight", e.Weight).
				Msg("duplicate edge row, keeping last weight")
		}
		ag.weights[k] = e.Weight
	}

	for _, ag := range areas {
		slices.SortFunc(ag.nodes, func(a, b domain.Node) int { return a.ID - b.ID })
		ag.version = s.versions.Add(1)
	}

	return areas, nodeArea, nil
}

func (s *GraphStore) area(id int) (*areaGraph, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ag, ok := s.areas[id]
	return ag, ok
}

// AreaOf returns the area a node belongs to.
func (s *GraphStore) AreaOf(nodeID int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.nodeArea[nodeID]
	if !ok {
		return 0, fmt.Errorf("node %d: %w", nodeID, domain.ErrNodeNotFound)
	}
	return a, nil
}

// Areas returns the known area ids in ascending order.
func (s *GraphStore) Areas() []int {
	s.mu.RLock()
	ids := make([]int, 0, len(s.areas))
	for id := range s.areas {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// GetSnapshot returns an immutable copy of the area's current nodes and edges.
func (s *GraphStore) GetSnapshot(areaID int) (*domain.GraphSnapshot, error) {
	ag, ok := s.area(areaID)
	if !ok || len(ag.nodes) == 0 {
		return nil, fmt.Errorf("get snapshot: area %d: %w", areaID, domain.ErrAreaNotFound)
	}

	return ag.snapshot(), nil
}

// snapshot returns the cached snapshot for the current version, building it if needed.
func (ag *areaGraph) snapshot() *domain.GraphSnapshot {
	ag.mu.RLock()
	defer ag.mu.RUnlock()

	if snap := ag.snap.Load(); snap != nil && snap.Version == ag.version {
		return snap
	}

	edges := make([]domain.Edge, 0, len(ag.weights))
	for k, w := range ag.weights {
		edges = append(edges, domain.Edge{NodeA: k.A, NodeB: k.B, Weight: w})
	}
	snap := domain.NewGraphSnapshot(ag.id, ag.version, ag.nodes, edges)
	ag.snap.Store(snap)

	return snap
}

// UpdateEdgeWeight replaces the weight of the undirected edge (a, b).
// (a, b) and (b, a) name the same edge. The new weight is persisted first and then
// published in memory; snapshots taken before the call returns are unaffected.
func (s *GraphStore) UpdateEdgeWeight(ctx context.Context, nodeA, nodeB, weight int) error {
	if !domain.ValidWeight(weight) {
		return fmt.Errorf("update edge (%d,%d) weight=%d: %w", nodeA, nodeB, weight, domain.ErrInvalidWeight)
	}
	if nodeA == nodeB {
		return fmt.Errorf("update edge (%d,%d): %w", nodeA, nodeB, domain.ErrMalformedEdge)
	}

	key := domain.NewEdgeKey(nodeA, nodeB)
	unlock := s.edgeLocks.Lock(key)
	defer unlock()

	s.reloadMu.RLock()
	defer s.reloadMu.RUnlock()

	ag, current, err := s.lookupEdge(key)
	if err != nil {
		return fmt.Errorf("update edge (%d,%d): %w", nodeA, nodeB, err)
	}
	if current == weight {
		return nil
	}

	if s.repo != nil {
		if err := s.repo.PersistEdgeWeight(ctx, key.A, key.B, weight); err != nil {
			return fmt.Errorf("update edge (%d,%d): persist: %w", nodeA, nodeB, err)
		}
	}

	ag.mu.Lock()
	defer ag.mu.Unlock()

	ag.weights[key] = weight
	ag.version = s.versions.Add(1)
	ag.snap.Store(nil)

	s.log.Debug().Int("area_id", ag.id).Int("node_a", key.A).Int("node_b", key.B).
		Int("weight", weight).Uint64("version", ag.version).Msg("edge weight updated")

	return nil
}

func (s *GraphStore) lookupEdge(key domain.EdgeKey) (*areaGraph, int, error) {
	s.mu.RLock()
	areaA, okA := s.nodeArea[key.A]
	areaB, okB := s.nodeArea[key.B]
	ag := s.areas[areaA]
	s.mu.RUnlock()

	if !okA || !okB || areaA != areaB || ag == nil {
		return nil, 0, domain.ErrEdgeNotFound
	}

	ag.mu.RLock()
	w, ok := ag.weights[key]
	ag.mu.RUnlock()
	if !ok {
		return nil, 0, domain.ErrEdgeNotFound
	}

	return ag, w, nil
}

// ListNodes returns nodes ordered by id. A nil area lists every area.
func (s *GraphStore) ListNodes(areaID *int) []domain.Node {
	out := []domain.Node{}
	for _, ag := range s.selectAreas(areaID) {
		out = append(out, ag.snapshot().Nodes()...)
	}
	slices.SortFunc(out, func(a, b domain.Node) int { return a.ID - b.ID })
	return out
}

// ListEdges returns edges ordered by (NodeA, NodeB) with NodeA < NodeB.
// A nil area lists every area. Each area's edges come from one snapshot.
func (s *GraphStore) ListEdges(areaID *int) []domain.Edge {
	out := []domain.Edge{}
	for _, ag := range s.selectAreas(areaID) {
		out = append(out, ag.snapshot().Edges()...)
	}
	slices.SortFunc(out, func(a, b domain.Edge) int {
		if a.NodeA != b.NodeA {
			return a.NodeA - b.NodeA
		}
		return a.NodeB - b.NodeB
	})
	return out
}

func (s *GraphStore) selectAreas(areaID *int) []*areaGraph {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if areaID != nil {
		if ag, ok := s.areas[*areaID]; ok {
			return []*areaGraph{ag}
		}
		return nil
	}

	out := make([]*areaGraph, 0, len(s.areas))
	for _, ag := range s.areas {
		out = append(out, ag)
	}
	return out
}
