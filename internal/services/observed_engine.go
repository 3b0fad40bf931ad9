package services

import (
	"context"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/platform/obs"
	"tow-dispatch-service/internal/ports"
)

// observedEngine times and logs every engine operation at the port boundary.
type observedEngine struct {
	next ports.DispatchEngine
}

// WithObservability wraps next so each call records the operation histogram and logs
// through the request's context logger.
func WithObservability(next ports.DispatchEngine) ports.DispatchEngine {
	return &observedEngine{next: next}
}

func (e *observedEngine) UpdateEdge(ctx context.Context, nodeA, nodeB, weight int) (err error) {
	defer obs.Time(ctx, "engine.UpdateEdge")(&err)
	return e.next.UpdateEdge(ctx, nodeA, nodeB, weight)
}

func (e *observedEngine) ResolveNearestVehicle(ctx context.Context, orderID int) (c *domain.Candidate, err error) {
	defer obs.Time(ctx, "engine.ResolveNearestVehicle")(&err)
	return e.next.ResolveNearestVehicle(ctx, orderID)
}

func (e *observedEngine) RankCandidates(ctx context.Context, orderID, limit int) (cs []domain.Candidate, err error) {
	defer obs.Time(ctx, "engine.RankCandidates")(&err)
	return e.next.RankCandidates(ctx, orderID, limit)
}

func (e *observedEngine) Dispatch(ctx context.Context, orderID, vehicleID int) (err error) {
	defer obs.Time(ctx, "engine.Dispatch")(&err)
	return e.next.Dispatch(ctx, orderID, vehicleID)
}

func (e *observedEngine) CompleteOrder(ctx context.Context, orderID int) (err error) {
	defer obs.Time(ctx, "engine.CompleteOrder")(&err)
	return e.next.CompleteOrder(ctx, orderID)
}

func (e *observedEngine) CreateOrder(ctx context.Context, clientID, nodeID int, carValue float64) (o domain.Order, err error) {
	defer obs.Time(ctx, "engine.CreateOrder")(&err)
	return e.next.CreateOrder(ctx, clientID, nodeID, carValue)
}

func (e *observedEngine) UpdateVehicleLocation(ctx context.Context, vehicleID, nodeID int) (err error) {
	defer obs.Time(ctx, "engine.UpdateVehicleLocation")(&err)
	return e.next.UpdateVehicleLocation(ctx, vehicleID, nodeID)
}

func (e *observedEngine) SetVehicleStatus(ctx context.Context, vehicleID int, status domain.VehicleStatus) (err error) {
	defer obs.Time(ctx, "engine.SetVehicleStatus")(&err)
	return e.next.SetVehicleStatus(ctx, vehicleID, status)
}
