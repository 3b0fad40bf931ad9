package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/ports"
)

// PostgreSQL-backed implementation of the OrderRepository port.
type PostgresOrderRepository struct{ DB *sql.DB }

var _ ports.OrderRepository = (*PostgresOrderRepository)(nil)

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{DB: db}
}

const orderColumns = `id, client_id, node_id, status, tow_truck_id, car_value, order_time, completed_time`

// Map a sort key to its column. Only whitelisted columns reach the query text.
func orderSortColumn(sortBy string) (string, error) {
	switch sortBy {
	case "", "order_time":
		return "order_time", nil
	case "car_value":
		return "car_value", nil
	case "status":
		return "status", nil
	}
	return "", fmt.Errorf("sort by %q: %w", sortBy, domain.ErrInvalidInput)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (domain.Order, error) {
	var (
		o         domain.Order
		status    string
		vehicleID sql.NullInt64
		completed sql.NullTime
	)
	if err := s.Scan(&o.ID, &o.ClientID, &o.NodeID, &status, &vehicleID, &o.CarValue, &o.OrderTime, &completed); err != nil {
		return domain.Order{}, err
	}

	st, err := domain.ParseOrderStatus(status)
	if err != nil {
		return domain.Order{}, err
	}
	o.Status = st

	if vehicleID.Valid {
		id := int(vehicleID.Int64)
		o.VehicleID = &id
	}
	if completed.Valid {
		t := completed.Time
		o.CompletedAt = &t
	}
	return o, nil
}

func (r *PostgresOrderRepository) LoadOrder(ctx context.Context, id int) (domain.Order, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1;`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, fmt.Errorf("load order %d: %w", id, domain.ErrOrderNotFound)
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("load order %d: %w", id, err)
	}
	return o, nil
}

func (r *PostgresOrderRepository) CreateOrder(ctx context.Context, clientID, nodeID int, carValue float64) (domain.Order, error) {
	row := r.DB.QueryRowContext(ctx, `
	INSERT INTO orders (client_id, node_id, status, car_value)
	VALUES ($1, $2, 'pending', $3)
	RETURNING `+orderColumns+`;
	`, clientID, nodeID, carValue)

	o, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}

func (r *PostgresOrderRepository) ListOrders(ctx context.Context, q ports.OrderQuery) ([]domain.Order, error) {
	col, err := orderSortColumn(q.SortBy)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}

	var (
		where []string
		args  []any
	)
	if q.Status != nil {
		args = append(args, string(*q.Status))
		where = append(where, fmt.Sprintf("o.status = $%d", len(args)))
	}
	if q.AreaID != nil {
		args = append(args, *q.AreaID)
		where = append(where, fmt.Sprintf("n.area_id = $%d", len(args)))
	}

	var b strings.Builder
	b.WriteString(`SELECT o.id, o.client_id, o.node_id, o.status, o.tow_truck_id, o.car_value, o.order_time, o.completed_time
	FROM orders o JOIN nodes n ON n.id = o.node_id`)
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " ORDER BY o.%s %s, o.id ASC", col, dir)
	if q.PageSize > 0 {
		page := max(q.Page, 1)
		args = append(args, q.PageSize, (page-1)*q.PageSize)
		fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.DB.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: query orders table: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Order, 0, 32)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("list orders: scan row: %w", err)
		}
		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: row iteration: %w", err)
	}

	return out, nil
}

// CommitDispatch flips the order and the truck in one transaction. Each UPDATE is
// guarded by the expected prior status so a concurrent writer makes it touch no row.
func (r *PostgresOrderRepository) CommitDispatch(ctx context.Context, orderID, vehicleID int) error {
	return r.inTx(ctx, "commit dispatch", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = 'dispatched', tow_truck_id = $2
		WHERE id = $1 AND status = 'pending';
		`, orderID, vehicleID)
		if err != nil {
			return fmt.Errorf("update order %d: %w", orderID, err)
		}
		if err := requireRow(res, fmt.Sprintf("order %d not pending", orderID), domain.ErrConcurrentModification); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
		UPDATE tow_trucks SET status = 'dispatched'
		WHERE id = $1 AND status = 'available';
		`, vehicleID)
		if err != nil {
			return fmt.Errorf("update tow truck %d: %w", vehicleID, err)
		}
		return requireRow(res, fmt.Sprintf("tow truck %d not available", vehicleID), domain.ErrConcurrentModification)
	})
}

func (r *PostgresOrderRepository) CommitCompletion(ctx context.Context, orderID, vehicleID int, at time.Time) error {
	return r.inTx(ctx, "commit completion", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = 'completed', completed_time = $3
		WHERE id = $1 AND status = 'dispatched' AND tow_truck_id = $2;
		`, orderID, vehicleID, at)
		if err != nil {
			return fmt.Errorf("update order %d: %w", orderID, err)
		}
		if err := requireRow(res, fmt.Sprintf("order %d not dispatched to %d", orderID, vehicleID), domain.ErrConcurrentModification); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
		UPDATE tow_trucks SET status = 'available'
		WHERE id = $1 AND status = 'dispatched';
		`, vehicleID)
		if err != nil {
			return fmt.Errorf("update tow truck %d: %w", vehicleID, err)
		}
		return requireRow(res, fmt.Sprintf("tow truck %d not dispatched", vehicleID), domain.ErrConcurrentModification)
	})
}

func (r *PostgresOrderRepository) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin tx: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit tx: %w", op, err)
	}
	return nil
}
