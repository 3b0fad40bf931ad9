package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Initialize the PostgreSQL schema.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createNodesQuery := `
	CREATE TABLE IF NOT EXISTS nodes (
		id BIGINT PRIMARY KEY,
		area_id BIGINT NOT NULL
	);
	`

	createEdgesQuery := `
	CREATE TABLE IF NOT EXISTS edges (
		node_a BIGINT NOT NULL REFERENCES nodes(id),
		node_b BIGINT NOT NULL REFERENCES nodes(id),
		weight INTEGER NOT NULL CHECK (weight >= 0),
		PRIMARY KEY (node_a, node_b),
		CHECK (node_a < node_b)
	);
	`

	createTowTrucksQuery := `
	CREATE TABLE IF NOT EXISTS tow_trucks (
		id BIGINT PRIMARY KEY,
		node_id BIGINT NOT NULL REFERENCES nodes(id),
		status TEXT NOT NULL CHECK (status IN ('available', 'dispatched', 'off_duty'))
	);
	`

	createOrdersQuery := `
	CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		client_id BIGINT NOT NULL,
		node_id BIGINT NOT NULL REFERENCES nodes(id),
		status TEXT NOT NULL CHECK (status IN ('pending', 'dispatched', 'completed')),
		tow_truck_id BIGINT REFERENCES tow_trucks(id),
		car_value DOUBLE PRECISION NOT NULL DEFAULT 0,
		order_time TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_time TIMESTAMPTZ
	);
	`

	createIndexQueries := []string{
		`CREATE INDEX IF NOT EXISTS idx_nodes_area ON nodes(area_id);`,
		`CREATE INDEX IF NOT EXISTS idx_edges_node_b ON edges(node_b);`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);`,
	}

	statements := append([]string{
		createNodesQuery,
		createEdgesQuery,
		createTowTrucksQuery,
		createOrdersQuery,
	}, createIndexQueries...)

	for i, stmt := range statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

// Populate the database from a fixture in one transaction. Existing rows with the same
// ids are overwritten.
func SeedFixture(ctx context.Context, db *sql.DB, f *Fixture) error {
	if err := f.Validate(); err != nil {
		return fmt.Errorf("seed fixture: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed fixture: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, n := range f.NodeRows() {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO nodes (id, area_id) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET area_id = EXCLUDED.area_id;
		`, n.ID, n.AreaID)
		if err != nil {
			return fmt.Errorf("seed fixture: insert node %d: %w", n.ID, err)
		}
	}

	for _, e := range f.EdgeRows() {
		k := e.Key()
		_, err := tx.ExecContext(ctx, `
		INSERT INTO edges (node_a, node_b, weight) VALUES ($1, $2, $3)
		ON CONFLICT (node_a, node_b) DO UPDATE SET weight = EXCLUDED.weight;
		`, k.A, k.B, e.Weight)
		if err != nil {
			return fmt.Errorf("seed fixture: insert edge (%d,%d): %w", k.A, k.B, err)
		}
	}

	for _, v := range f.VehicleRows() {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO tow_trucks (id, node_id, status) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET node_id = EXCLUDED.node_id, status = EXCLUDED.status;
		`, v.ID, v.NodeID, string(v.Status))
		if err != nil {
			return fmt.Errorf("seed fixture: insert tow truck %d: %w", v.ID, err)
		}
	}

	for _, o := range f.Orders {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO orders (id, client_id, node_id, status, car_value) VALUES ($1, $2, $3, 'pending', $4)
		ON CONFLICT (id) DO NOTHING;
		`, o.ID, o.ClientID, o.Node, o.CarValue)
		if err != nil {
			return fmt.Errorf("seed fixture: insert order %d: %w", o.ID, err)
		}
	}

	if len(f.Orders) > 0 {
		// Keep BIGSERIAL ahead of explicitly inserted ids.
		_, err := tx.ExecContext(ctx, `SELECT setval(pg_get_serial_sequence('orders', 'id'), (SELECT MAX(id) FROM orders));`)
		if err != nil {
			return fmt.Errorf("seed fixture: advance order sequence: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed fixture: commit tx: %w", err)
	}

	return nil
}
