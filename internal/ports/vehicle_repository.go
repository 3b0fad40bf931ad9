package ports

import (
	"context"
	"tow-dispatch-service/internal/domain"
)

// Port: backing store for vehicle location and status.
type VehicleRepository interface {
	// Return domain.ErrVehicleNotFound (wrapped) when the vehicle does not exist.
	LoadVehicle(ctx context.Context, id int) (domain.Vehicle, error)
	LoadVehicles(ctx context.Context) ([]domain.Vehicle, error)
	PersistVehicleLocation(ctx context.Context, id, nodeID int) error
	PersistVehicleStatus(ctx context.Context, id int, status domain.VehicleStatus) error
}
