package ports

import (
	"context"
	"tow-dispatch-service/internal/domain"
)

// Port: a boundary for loading and persisting the road graph.
type MapRepository interface {
	// Return nodes ordered by id. A nil area returns every area.
	LoadNodes(ctx context.Context, areaID *int) ([]domain.Node, error)
	// Return edges whose endpoints belong to area, ordered by (node_a, node_b). A nil area returns every edge.
	LoadEdges(ctx context.Context, areaID *int) ([]domain.Edge, error)
	// Durably replace the weight of the undirected edge (a, b).
	PersistEdgeWeight(ctx context.Context, nodeA, nodeB, weight int) error
}
