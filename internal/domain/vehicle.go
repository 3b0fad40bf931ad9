package domain

import "fmt"

type VehicleStatus string

const (
	VehicleAvailable  VehicleStatus = "available"
	VehicleDispatched VehicleStatus = "dispatched"
	VehicleOffDuty    VehicleStatus = "off_duty"
)

// ParseVehicleStatus validates a raw status value from storage or a request.
func ParseVehicleStatus(s string) (VehicleStatus, error) {
	switch st := VehicleStatus(s); st {
	case VehicleAvailable, VehicleDispatched, VehicleOffDuty:
		return st, nil
	}
	return "", fmt.Errorf("vehicle status %q: %w", s, ErrInvalidStatus)
}

var vehicleTransitions = map[VehicleStatus][]VehicleStatus{
	VehicleAvailable:  {VehicleDispatched, VehicleOffDuty},
	VehicleOffDuty:    {VehicleAvailable},
	VehicleDispatched: {VehicleAvailable},
}

// CanTransitionTo reports whether a vehicle may move from s to next.
// Staying in the same status is always allowed.
func (s VehicleStatus) CanTransitionTo(next VehicleStatus) bool {
	if s == next {
		return true
	}
	for _, allowed := range vehicleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Tow truck tracked by the vehicle locator.
// The vehicle's area is derived from its current node.
type Vehicle struct {
	ID     int
	NodeID int
	Status VehicleStatus
}

// Candidate is a reachable eligible vehicle and its shortest distance to an order.
type Candidate struct {
	Vehicle  Vehicle
	Distance int64
}
