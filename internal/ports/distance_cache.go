package ports

import "tow-dispatch-service/internal/domain"

// Contract for memoizing single-source shortest distances.
// Entries are keyed by graph version, so a cached result is only ever served for
// the exact graph state it was computed from. Cached maps are shared and read-only.
type DistanceCache interface {
	Get(areaID int, version uint64, source int) (domain.Distances, bool)
	Put(areaID int, version uint64, source int, d domain.Distances)
}
