package services

import (
	"context"
	"fmt"
	"slices"
	"time"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/platform/keylock"
	"tow-dispatch-service/internal/ports"

	"github.com/rs/zerolog"
)

// DispatchResolver picks the nearest available vehicle for an order and drives the
// order and vehicle transitions that follow. It owns no persistent state.
type DispatchResolver struct {
	graph  *GraphStore
	paths  *ShortestPathResolver
	fleet  *VehicleLocator
	orders ports.OrderRepository
	events ports.EventPublisher
	log    zerolog.Logger

	now        func() time.Time
	orderLocks keylock.Map[int]
}

var _ ports.DispatchEngine = (*DispatchResolver)(nil)

// Option customizes a DispatchResolver.
type Option func(*DispatchResolver)

// WithClock overrides the time source used for completion and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *DispatchResolver) { r.now = now }
}

// WithEvents publishes committed dispatches to p.
func WithEvents(p ports.EventPublisher) Option {
	return func(r *DispatchResolver) { r.events = p }
}

func NewDispatchResolver(
	graph *GraphStore,
	paths *ShortestPathResolver,
	fleet *VehicleLocator,
	orders ports.OrderRepository,
	log zerolog.Logger,
	opts ...Option,
) *DispatchResolver {
	r := &DispatchResolver{
		graph:  graph,
		paths:  paths,
		fleet:  fleet,
		orders: orders,
		log:    log,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *DispatchResolver) UpdateEdge(ctx context.Context, nodeA, nodeB, weight int) error {
	return r.graph.UpdateEdgeWeight(ctx, nodeA, nodeB, weight)
}

func (r *DispatchResolver) UpdateVehicleLocation(ctx context.Context, vehicleID, nodeID int) error {
	return r.fleet.UpdateLocation(ctx, vehicleID, nodeID)
}

func (r *DispatchResolver) SetVehicleStatus(ctx context.Context, vehicleID int, status domain.VehicleStatus) error {
	return r.fleet.SetStatus(ctx, vehicleID, status)
}

// ResolveNearestVehicle returns the reachable available vehicle closest to the order's node.
// Ties on distance go to the lowest vehicle id. A nil candidate with a nil error means no
// vehicle is available; the order stays pending.
func (r *DispatchResolver) ResolveNearestVehicle(ctx context.Context, orderID int) (*domain.Candidate, error) {
	cands, err := r.rank(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("resolve nearest vehicle: %w", err)
	}
	if len(cands) == 0 {
		return nil, nil
	}

	best := cands[0]
	return &best, nil
}

// RankCandidates returns every reachable available vehicle for the order, nearest first.
// limit <= 0 returns all of them.
func (r *DispatchResolver) RankCandidates(ctx context.Context, orderID, limit int) ([]domain.Candidate, error) {
	cands, err := r.rank(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("rank candidates: %w", err)
	}
	if limit > 0 && len(cands) > limit {
		cands = cands[:limit]
	}
	return cands, nil
}

func (r *DispatchResolver) rank(ctx context.Context, orderID int) ([]domain.Candidate, error) {
	order, err := r.orders.LoadOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}
	if order.Status != domain.OrderPending {
		return nil, fmt.Errorf("order %d is %s: %w", orderID, order.Status, domain.ErrInvalidOrderState)
	}

	areaID, err := r.graph.AreaOf(order.NodeID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}

	snap, err := r.graph.GetSnapshot(areaID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}

	vehicles := r.fleet.EligibleVehicles(areaID, domain.VehicleAvailable)
	if len(vehicles) == 0 {
		return []domain.Candidate{}, nil
	}

	dist, err := r.paths.From(snap, order.NodeID)
	if err != nil {
		return nil, fmt.Errorf("order %d: %w", orderID, err)
	}

	cands := make([]domain.Candidate, 0, len(vehicles))
	for _, v := range vehicles {
		d, ok := dist.To(v.NodeID)
		if !ok {
			continue
		}
		cands = append(cands, domain.Candidate{Vehicle: v, Distance: d})
	}

	// Tie-breaker keeps the result stable when several vehicles are equally close.
	slices.SortFunc(cands, func(a, b domain.Candidate) int {
		if a.Distance != b.Distance {
			if a.Distance < b.Distance {
				return -1
			}
			return 1
		}
		return a.Vehicle.ID - b.Vehicle.ID
	})

	return cands, nil
}

// Dispatch assigns vehicleID to orderID. The order must still be pending and the vehicle
// still available at the time of the call, otherwise ErrConcurrentModification is returned
// and nothing changes.
func (r *DispatchResolver) Dispatch(ctx context.Context, orderID, vehicleID int) error {
	unlock := r.orderLocks.Lock(orderID)
	defer unlock()

	order, err := r.orders.LoadOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("dispatch order %d: %w", orderID, err)
	}
	if order.Status != domain.OrderPending {
		return fmt.Errorf("dispatch order %d: order is %s: %w", orderID, order.Status, domain.ErrConcurrentModification)
	}

	v, err := r.fleet.Get(ctx, vehicleID)
	if err != nil {
		return fmt.Errorf("dispatch order %d: %w", orderID, err)
	}

	orderArea, err := r.graph.AreaOf(order.NodeID)
	if err != nil {
		return fmt.Errorf("dispatch order %d: %w", orderID, err)
	}
	vehicleArea, err := r.graph.AreaOf(v.NodeID)
	if err != nil {
		return fmt.Errorf("dispatch order %d: vehicle %d: %w", orderID, vehicleID, err)
	}
	if orderArea != vehicleArea {
		return fmt.Errorf("dispatch order %d: vehicle %d is in area %d, order in area %d: %w",
			orderID, vehicleID, vehicleArea, orderArea, domain.ErrInvalidInput)
	}

	err = r.fleet.ClaimForDispatch(ctx, vehicleID, func(ctx context.Context) error {
		return r.orders.CommitDispatch(ctx, orderID, vehicleID)
	})
	if err != nil {
		return fmt.Errorf("dispatch order %d: %w", orderID, err)
	}

	r.log.Info().Int("order_id", orderID).Int("vehicle_id", vehicleID).Int("area_id", orderArea).Msg("order dispatched")
	r.publish(ctx, order, v, orderArea)

	return nil
}

// publish announces a committed dispatch. Failures are logged and otherwise ignored.
func (r *DispatchResolver) publish(ctx context.Context, order domain.Order, v domain.Vehicle, areaID int) {
	if r.events == nil {
		return
	}

	ev := domain.DispatchEvent{
		OrderID:    order.ID,
		VehicleID:  v.ID,
		NodeID:     order.NodeID,
		AreaID:     areaID,
		Distance:   -1,
		Dispatched: r.now().UTC(),
	}
	if snap, err := r.graph.GetSnapshot(areaID); err == nil {
		if dist, err := r.paths.From(snap, order.NodeID); err == nil {
			if d, ok := dist.To(v.NodeID); ok {
				ev.Distance = d
			}
		}
	}

	if err := r.events.PublishDispatch(ctx, ev); err != nil {
		r.log.Warn().Err(err).Int("order_id", order.ID).Int("vehicle_id", v.ID).Msg("publish dispatch event")
	}
}

// CompleteOrder marks a dispatched order completed and frees its vehicle.
func (r *DispatchResolver) CompleteOrder(ctx context.Context, orderID int) error {
	unlock := r.orderLocks.Lock(orderID)
	defer unlock()

	order, err := r.orders.LoadOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("complete order %d: %w", orderID, err)
	}
	if order.Status != domain.OrderDispatched || order.VehicleID == nil {
		return fmt.Errorf("complete order %d: order is %s: %w", orderID, order.Status, domain.ErrInvalidOrderState)
	}

	vehicleID := *order.VehicleID
	at := r.now().UTC()

	err = r.fleet.Release(ctx, vehicleID, func(ctx context.Context) error {
		return r.orders.CommitCompletion(ctx, orderID, vehicleID, at)
	})
	if err != nil {
		return fmt.Errorf("complete order %d: %w", orderID, err)
	}

	r.log.Info().Int("order_id", orderID).Int("vehicle_id", vehicleID).Msg("order completed")
	return nil
}

// CreateOrder registers a pending order at nodeID.
func (r *DispatchResolver) CreateOrder(ctx context.Context, clientID, nodeID int, carValue float64) (domain.Order, error) {
	if carValue < 0 {
		return domain.Order{}, fmt.Errorf("create order: car value %v: %w", carValue, domain.ErrInvalidInput)
	}
	if _, err := r.graph.AreaOf(nodeID); err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	o, err := r.orders.CreateOrder(ctx, clientID, nodeID, carValue)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}
