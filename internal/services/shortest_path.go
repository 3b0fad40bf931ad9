package services

import (
	"fmt"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/ports"

	"github.com/tidwall/btree"
)

type frontierItem struct {
	dist int64
	node int
}

// Order by tentative distance, then node id, so equal-distance nodes settle deterministically.
func frontierLess(a, b frontierItem) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.node < b.node
}

// ShortestDistances computes the shortest distance from source to every node reachable
// within the snapshot. Unreachable nodes are absent from the result; source maps to 0.
func ShortestDistances(snap *domain.GraphSnapshot, source int) (domain.Distances, error) {
	if !snap.HasNode(source) {
		return nil, fmt.Errorf("shortest distances from %d in area %d: %w", source, snap.AreaID, domain.ErrNodeNotInGraph)
	}

	dist := domain.Distances{source: 0}
	settled := make(map[int]struct{}, snap.NodeCount())

	frontier := btree.NewBTreeGOptions(frontierLess, btree.Options{NoLocks: true})
	frontier.Set(frontierItem{dist: 0, node: source})

	for {
		cur, ok := frontier.PopMin()
		if !ok {
			break
		}
		settled[cur.node] = struct{}{}

		for _, nb := range snap.Neighbors(cur.node) {
			if _, done := settled[nb.NodeID]; done {
				continue
			}
			cand := cur.dist + int64(nb.Weight)
			prev, seen := dist[nb.NodeID]
			if seen && prev <= cand {
				continue
			}
			if seen {
				frontier.Delete(frontierItem{dist: prev, node: nb.NodeID})
			}
			dist[nb.NodeID] = cand
			frontier.Set(frontierItem{dist: cand, node: nb.NodeID})
		}
	}

	return dist, nil
}

// ShortestPathResolver memoizes ShortestDistances per (area, version, source).
type ShortestPathResolver struct {
	cache ports.DistanceCache
}

// NewShortestPathResolver returns a resolver. A nil cache disables memoization.
func NewShortestPathResolver(cache ports.DistanceCache) *ShortestPathResolver {
	return &ShortestPathResolver{cache: cache}
}

// From returns distances from source over snap. The returned map is shared and must
// not be modified.
func (r *ShortestPathResolver) From(snap *domain.GraphSnapshot, source int) (domain.Distances, error) {
	if r.cache != nil {
		if d, ok := r.cache.Get(snap.AreaID, snap.Version, source); ok {
			return d, nil
		}
	}

	d, err := ShortestDistances(snap, source)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Put(snap.AreaID, snap.Version, source, d)
	}
	return d, nil
}
