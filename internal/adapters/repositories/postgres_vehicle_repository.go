package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/ports"
)

// PostgreSQL-backed implementation of the VehicleRepository port (tow_trucks table).
type PostgresVehicleRepository struct{ DB *sql.DB }

var _ ports.VehicleRepository = (*PostgresVehicleRepository)(nil)

func NewPostgresVehicleRepository(db *sql.DB) *PostgresVehicleRepository {
	return &PostgresVehicleRepository{DB: db}
}

func (r *PostgresVehicleRepository) LoadVehicle(ctx context.Context, id int) (domain.Vehicle, error) {
	var (
		v      domain.Vehicle
		status string
	)
	err := r.DB.QueryRowContext(ctx, `SELECT id, node_id, status FROM tow_trucks WHERE id = $1;`, id).
		Scan(&v.ID, &v.NodeID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Vehicle{}, fmt.Errorf("load vehicle %d: %w", id, domain.ErrVehicleNotFound)
	}
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("load vehicle %d: %w", id, err)
	}

	v.Status, err = domain.ParseVehicleStatus(status)
	if err != nil {
		return domain.Vehicle{}, fmt.Errorf("load vehicle %d: %w", id, err)
	}
	return v, nil
}

func (r *PostgresVehicleRepository) LoadVehicles(ctx context.Context) ([]domain.Vehicle, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, node_id, status FROM tow_trucks ORDER BY id;`)
	if err != nil {
		return nil, fmt.Errorf("load vehicles: query tow_trucks table: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Vehicle, 0, 32)
	for rows.Next() {
		var (
			v      domain.Vehicle
			status string
		)
		if err := rows.Scan(&v.ID, &v.NodeID, &status); err != nil {
			return nil, fmt.Errorf("load vehicles: scan row: %w", err)
		}
		if v.Status, err = domain.ParseVehicleStatus(status); err != nil {
			return nil, fmt.Errorf("load vehicles: vehicle %d: %w", v.ID, err)
		}
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load vehicles: row iteration: %w", err)
	}

	return out, nil
}

func (r *PostgresVehicleRepository) PersistVehicleLocation(ctx context.Context, id, nodeID int) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tow_trucks SET node_id = $2 WHERE id = $1;`, id, nodeID)
	if err != nil {
		return fmt.Errorf("persist vehicle %d location: %w", id, err)
	}
	return requireRow(res, fmt.Sprintf("persist vehicle %d location", id), domain.ErrVehicleNotFound)
}

func (r *PostgresVehicleRepository) PersistVehicleStatus(ctx context.Context, id int, status domain.VehicleStatus) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE tow_trucks SET status = $2 WHERE id = $1;`, id, string(status))
	if err != nil {
		return fmt.Errorf("persist vehicle %d status: %w", id, err)
	}
	return requireRow(res, fmt.Sprintf("persist vehicle %d status", id), domain.ErrVehicleNotFound)
}

// requireRow maps "no row touched" to notFound.
func requireRow(res sql.Result, op string, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, notFound)
	}
	return nil
}
