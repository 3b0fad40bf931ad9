package services

import (
	"context"
	"sync"
	"testing"
	"tow-dispatch-service/internal/adapters/repositories"
	"tow-dispatch-service/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// Triangle from the dispatch walkthrough: 1-2 (4), 2-3 (3), 1-3 (10), plus a
// disconnected node 4 and a second area.
const triangleDoc = `
areas:
  - id: 1
    nodes: [1, 2, 3, 4]
    edges:
      - {a: 1, b: 2, weight: 4}
      - {a: 2, b: 3, weight: 3}
      - {a: 1, b: 3, weight: 10}
  - id: 2
    nodes: [20, 21]
    edges:
      - {a: 20, b: 21, weight: 2}
vehicles:
  - {id: 7, node: 3, status: available}
orders:
  - {id: 1, client_id: 100, node: 1, car_value: 15000}
`

type testEngine struct {
	store    *repositories.MemoryStore
	graph    *GraphStore
	fleet    *VehicleLocator
	resolver *DispatchResolver
	events   *recordingPublisher
}

func newTestEngine(t *testing.T, doc string, opts ...Option) *testEngine {
	t.Helper()
	ctx := context.Background()

	f, err := repositories.ParseFixture([]byte(doc))
	require.NoError(t, err)
	store := repositories.NewMemoryStore()
	require.NoError(t, store.Seed(f))

	log := zerolog.Nop()
	graph := NewGraphStore(store, log)
	require.NoError(t, graph.Load(ctx))
	fleet := NewVehicleLocator(store, graph, log)
	require.NoError(t, fleet.Load(ctx))

	events := &recordingPublisher{}
	opts = append([]Option{WithEvents(events)}, opts...)
	resolver := NewDispatchResolver(graph, NewShortestPathResolver(nil), fleet, store, log, opts...)

	return &testEngine{store: store, graph: graph, fleet: fleet, resolver: resolver, events: events}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.DispatchEvent
	err    error
}

func (p *recordingPublisher) PublishDispatch(_ context.Context, ev domain.DispatchEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) all() []domain.DispatchEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.DispatchEvent(nil), p.events...)
}

func intPtr(v int) *int { return &v }

// edgeWeight returns the weight of edge (a, b) in snap, failing the test when it is absent.
func edgeWeight(t *testing.T, snap *domain.GraphSnapshot, a, b int) int {
	t.Helper()
	k := domain.NewEdgeKey(a, b)
	for _, e := range snap.Edges() {
		if e.NodeA == k.A && e.NodeB == k.B {
			return e.Weight
		}
	}
	t.Fatalf("edge (%d,%d) not in snapshot of area %d", a, b, snap.AreaID)
	return 0
}
