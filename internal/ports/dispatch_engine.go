package ports

import (
	"context"
	"tow-dispatch-service/internal/domain"
)

// Port: the operations the dispatch engine exposes to transports.
type DispatchEngine interface {
	UpdateEdge(ctx context.Context, nodeA, nodeB, weight int) error
	// Return (nil, nil) when no eligible vehicle can reach the order.
	ResolveNearestVehicle(ctx context.Context, orderID int) (*domain.Candidate, error)
	RankCandidates(ctx context.Context, orderID, limit int) ([]domain.Candidate, error)
	Dispatch(ctx context.Context, orderID, vehicleID int) error
	CompleteOrder(ctx context.Context, orderID int) error
	CreateOrder(ctx context.Context, clientID, nodeID int, carValue float64) (domain.Order, error)
	UpdateVehicleLocation(ctx context.Context, vehicleID, nodeID int) error
	SetVehicleStatus(ctx context.Context, vehicleID int, status domain.VehicleStatus) error
}

// Read side of the graph store used by administrative listings.
type MapReader interface {
	AreaOf(nodeID int) (int, error)
	ListNodes(areaID *int) []domain.Node
	ListEdges(areaID *int) []domain.Edge
}

// Administrative refresh of one area from the map repository.
type MapAdmin interface {
	ReloadArea(ctx context.Context, areaID int) error
}

// Filters and paging for vehicle listings.
type VehicleFilter struct {
	Status   *domain.VehicleStatus
	AreaID   *int
	Page     int
	PageSize int // <= 0 means no limit
}

// Read side of the vehicle locator.
type VehicleReader interface {
	Get(ctx context.Context, id int) (domain.Vehicle, error)
	List(f VehicleFilter) []domain.Vehicle
}
