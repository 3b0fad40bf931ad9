package domain

import (
	"fmt"
	"time"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderDispatched OrderStatus = "dispatched"
	OrderCompleted  OrderStatus = "completed"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderPending, OrderDispatched, OrderCompleted:
		return st, nil
	}
	return "", fmt.Errorf("order status %q: %w", s, ErrInvalidStatus)
}

// Next returns the only status an order may move to from s.
// Completed orders have no successor.
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case OrderPending:
		return OrderDispatched, true
	case OrderDispatched:
		return OrderCompleted, true
	}
	return "", false
}

// Represents a single tow request placed at a node of the road graph.
// VehicleID is set when the order is dispatched; CompletedAt when it is completed.
type Order struct {
	ID          int
	ClientID    int
	NodeID      int
	Status      OrderStatus
	VehicleID   *int
	CarValue    float64
	OrderTime   time.Time
	CompletedAt *time.Time
}

// DispatchEvent is published once a dispatch has been committed.
type DispatchEvent struct {
	OrderID    int
	VehicleID  int
	NodeID     int
	AreaID     int
	Distance   int64
	Dispatched time.Time
}
