package repositories

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/ports"
)

// In-memory implementation of the map, vehicle and order repository ports.
// Used by the "memory" database driver and by tests.
type MemoryStore struct {
	mu       sync.Mutex
	nodes    map[int]domain.Node
	edges    map[domain.EdgeKey]int
	vehicles map[int]domain.Vehicle
	orders   map[int]domain.Order
	nextID   int
	now      func() time.Time
}

var (
	_ ports.MapRepository     = (*MemoryStore)(nil)
	_ ports.VehicleRepository = (*MemoryStore)(nil)
	_ ports.OrderRepository   = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:    map[int]domain.Node{},
		edges:    map[domain.EdgeKey]int{},
		vehicles: map[int]domain.Vehicle{},
		orders:   map[int]domain.Order{},
		now:      time.Now,
	}
}

// Seed loads a fixture into the store, replacing rows with the same ids.
func (m *MemoryStore) Seed(f *Fixture) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("seed memory store: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, n := range f.NodeRows() {
		m.nodes[n.ID] = n
	}
	for _, e := range f.EdgeRows() {
		m.edges[e.Key()] = e.Weight
	}
	for _, v := range f.VehicleRows() {
		m.vehicles[v.ID] = v
	}
	for _, o := range f.OrderRows(m.now()) {
		m.orders[o.ID] = o
		m.nextID = max(m.nextID, o.ID)
	}
	return nil
}

func (m *MemoryStore) LoadNodes(ctx context.Context, areaID *int) ([]domain.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Node, 0, len(m.nodes))
	for _, n := range m.nodes {
		if areaID != nil && n.AreaID != *areaID {
			continue
		}
		out = append(out, n)
	}
	slices.SortFunc(out, func(a, b domain.Node) int { return a.ID - b.ID })
	return out, nil
}

func (m *MemoryStore) LoadEdges(ctx context.Context, areaID *int) ([]domain.Edge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Edge, 0, len(m.edges))
	for k, w := range m.edges {
		if areaID != nil && m.nodes[k.A].AreaID != *areaID {
			continue
		}
		out = append(out, domain.Edge{NodeA: k.A, NodeB: k.B, Weight: w})
	}
	slices.SortFunc(out, func(a, b domain.Edge) int {
		return cmp.Or(cmp.Compare(a.NodeA, b.NodeA), cmp.Compare(a.NodeB, b.NodeB))
	})
	return out, nil
}

func (m *MemoryStore) PersistEdgeWeight(ctx context.Context, nodeA, nodeB, weight int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := domain.NewEdgeKey(nodeA, nodeB)
	if _, ok := m.edges[k]; !ok {
		return fmt.Errorf("persist edge (%d,%d): %w", nodeA, nodeB, domain.ErrEdgeNotFound)
	}
	m.edges[k] = weight
	return nil
}

func (m *MemoryStore) LoadVehicle(ctx context.Context, id int) (domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vehicles[id]
	if !ok {
		return domain.Vehicle{}, fmt.Errorf("load vehicle %d: %w", id, domain.ErrVehicleNotFound)
	}
	return v, nil
}

func (m *MemoryStore) LoadVehicles(ctx context.Context) ([]domain.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Vehicle, 0, len(m.vehicles))
	for _, v := range m.vehicles {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b domain.Vehicle) int { return a.ID - b.ID })
	return out, nil
}

func (m *MemoryStore) PersistVehicleLocation(ctx context.Context, id, nodeID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vehicles[id]
	if !ok {
		return fmt.Errorf("persist vehicle %d location: %w", id, domain.ErrVehicleNotFound)
	}
	if _, ok := m.nodes[nodeID]; !ok {
		return fmt.Errorf("persist vehicle %d location: node %d: %w", id, nodeID, domain.ErrNodeNotFound)
	}
	v.NodeID = nodeID
	m.vehicles[id] = v
	return nil
}

func (m *MemoryStore) PersistVehicleStatus(ctx context.Context, id int, status domain.VehicleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vehicles[id]
	if !ok {
		return fmt.Errorf("persist vehicle %d status: %w", id, domain.ErrVehicleNotFound)
	}
	v.Status = status
	m.vehicles[id] = v
	return nil
}

func (m *MemoryStore) LoadOrder(ctx context.Context, id int) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("load order %d: %w", id, domain.ErrOrderNotFound)
	}
	return o, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, clientID, nodeID int, carValue float64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[nodeID]; !ok {
		return domain.Order{}, fmt.Errorf("create order: node %d: %w", nodeID, domain.ErrNodeNotFound)
	}

	m.nextID++
	o := domain.Order{
		ID:        m.nextID,
		ClientID:  clientID,
		NodeID:    nodeID,
		Status:    domain.OrderPending,
		CarValue:  carValue,
		OrderTime: m.now().UTC(),
	}
	m.orders[o.ID] = o
	return o, nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, q ports.OrderQuery) ([]domain.Order, error) {
	if _, err := orderSortColumn(q.SortBy); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	m.mu.Lock()
	out := make([]domain.Order, 0, len(m.orders))
	for _, o := range m.orders {
		if q.Status != nil && o.Status != *q.Status {
			continue
		}
		if q.AreaID != nil && m.nodes[o.NodeID].AreaID != *q.AreaID {
			continue
		}
		out = append(out, o)
	}
	m.mu.Unlock()

	slices.SortFunc(out, func(a, b domain.Order) int {
		var c int
		switch q.SortBy {
		case "car_value":
			c = cmp.Compare(a.CarValue, b.CarValue)
		case "status":
			c = cmp.Compare(a.Status, b.Status)
		default:
			c = a.OrderTime.Compare(b.OrderTime)
		}
		if q.SortDesc {
			c = -c
		}
		return cmp.Or(c, cmp.Compare(a.ID, b.ID))
	})

	if q.PageSize <= 0 {
		return out, nil
	}
	page := max(q.Page, 1)
	start := (page - 1) * q.PageSize
	if start >= len(out) {
		return []domain.Order{}, nil
	}
	return out[start:min(start+q.PageSize, len(out))], nil
}

func (m *MemoryStore) CommitDispatch(ctx context.Context, orderID, vehicleID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("commit dispatch: %w", domain.ErrOrderNotFound)
	}
	v, ok := m.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("commit dispatch: %w", domain.ErrVehicleNotFound)
	}
	if o.Status != domain.OrderPending || v.Status != domain.VehicleAvailable {
		return fmt.Errorf("commit dispatch: order %d is %s, vehicle %d is %s: %w",
			orderID, o.Status, vehicleID, v.Status, domain.ErrConcurrentModification)
	}

	o.Status = domain.OrderDispatched
	o.VehicleID = &vehicleID
	v.Status = domain.VehicleDispatched
	m.orders[orderID] = o
	m.vehicles[vehicleID] = v
	return nil
}

func (m *MemoryStore) CommitCompletion(ctx context.Context, orderID, vehicleID int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return fmt.Errorf("commit completion: %w", domain.ErrOrderNotFound)
	}
	v, ok := m.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("commit completion: %w", domain.ErrVehicleNotFound)
	}
	if o.Status != domain.OrderDispatched || o.VehicleID == nil || *o.VehicleID != vehicleID || v.Status != domain.VehicleDispatched {
		return fmt.Errorf("commit completion: order %d is %s, vehicle %d is %s: %w",
			orderID, o.Status, vehicleID, v.Status, domain.ErrConcurrentModification)
	}

	o.Status = domain.OrderCompleted
	o.CompletedAt = &at
	v.Status = domain.VehicleAvailable
	m.orders[orderID] = o
	m.vehicles[vehicleID] = v
	return nil
}
