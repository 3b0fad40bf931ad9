package ports

import (
	"context"
	"time"
	"tow-dispatch-service/internal/domain"
)

// Filters and paging for order listings.
type OrderQuery struct {
	Page     int
	PageSize int // <= 0 means no limit
	SortBy   string
	SortDesc bool
	Status   *domain.OrderStatus
	AreaID   *int
}

// Port: backing store for order state.
//
// CommitDispatch and CommitCompletion are atomic units: either every row changes or none does.
// Both re-check the expected prior statuses and return domain.ErrConcurrentModification
// (wrapped) when another writer got there first.
type OrderRepository interface {
	// Return domain.ErrOrderNotFound (wrapped) when the order does not exist.
	LoadOrder(ctx context.Context, id int) (domain.Order, error)
	CreateOrder(ctx context.Context, clientID, nodeID int, carValue float64) (domain.Order, error)
	ListOrders(ctx context.Context, q OrderQuery) ([]domain.Order, error)

	// pending order -> dispatched with vehicle assigned; available vehicle -> dispatched.
	CommitDispatch(ctx context.Context, orderID, vehicleID int) error
	// dispatched order -> completed at the given time; vehicle -> available.
	CommitCompletion(ctx context.Context, orderID, vehicleID int, at time.Time) error
}
