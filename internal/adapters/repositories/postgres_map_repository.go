package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/ports"
)

// PostgreSQL-backed implementation of the MapRepository port.
type PostgresMapRepository struct{ DB *sql.DB }

var _ ports.MapRepository = (*PostgresMapRepository)(nil)

func NewPostgresMapRepository(db *sql.DB) *PostgresMapRepository {
	return &PostgresMapRepository{DB: db}
}

// Return nodes ordered by id, optionally restricted to one area.
func (r *PostgresMapRepository) LoadNodes(ctx context.Context, areaID *int) ([]domain.Node, error) {
	if r.DB == nil {
		return nil, errors.New("postgres map repository: DB is nil")
	}

	query := `
	SELECT id, area_id
	FROM nodes
	WHERE ($1::BIGINT IS NULL OR area_id = $1)
	ORDER BY id;
	`
	rows, err := r.DB.QueryContext(ctx, query, areaID)
	if err != nil {
		return nil, fmt.Errorf("load nodes: query nodes table: %w", err)
	}
	defer rows.Close()

	nodes := make([]domain.Node, 0, 64)
	for rows.Next() {
		var n domain.Node
		if err := rows.Scan(&n.ID, &n.AreaID); err != nil {
			return nil, fmt.Errorf("load nodes: scan row: %w", err)
		}
		nodes = append(nodes, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load nodes: row iteration: %w", err)
	}

	return nodes, nil
}

// Return edges ordered by (node_a, node_b). An area filter keeps edges whose endpoints
// lie in that area.
func (r *PostgresMapRepository) LoadEdges(ctx context.Context, areaID *int) ([]domain.Edge, error) {
	if r.DB == nil {
		return nil, errors.New("postgres map repository: DB is nil")
	}

	query := `
	SELECT e.node_a, e.node_b, e.weight
	FROM edges e
	JOIN nodes n ON n.id = e.node_a
	WHERE ($1::BIGINT IS NULL OR n.area_id = $1)
	ORDER BY e.node_a, e.node_b;
	`
	rows, err := r.DB.QueryContext(ctx, query, areaID)
	if err != nil {
		return nil, fmt.Errorf("load edges: query edges table: %w", err)
	}
	defer rows.Close()

	edges := make([]domain.Edge, 0, 128)
	for rows.Next() {
		var e domain.Edge
		if err := rows.Scan(&e.NodeA, &e.NodeB, &e.Weight); err != nil {
			return nil, fmt.Errorf("load edges: scan row: %w", err)
		}
		edges = append(edges, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load edges: row iteration: %w", err)
	}

	return edges, nil
}

func (r *PostgresMapRepository) PersistEdgeWeight(ctx context.Context, nodeA, nodeB, weight int) error {
	k := domain.NewEdgeKey(nodeA, nodeB)

	res, err := r.DB.ExecContext(ctx, `UPDATE edges SET weight = $3 WHERE node_a = $1 AND node_b = $2;`, k.A, k.B, weight)
	if err != nil {
		return fmt.Errorf("persist edge (%d,%d): %w", k.A, k.B, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("persist edge (%d,%d): rows affected: %w", k.A, k.B, err)
	}
	if n == 0 {
		return fmt.Errorf("persist edge (%d,%d): %w", k.A, k.B, domain.ErrEdgeNotFound)
	}

	return nil
}
