package cache

import (
	"fmt"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/ports"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
)

type distanceKey struct {
	area    int
	version uint64
	source  int
}

// LRUDistanceCache is a bounded in-process cache of single-source distance maps.
// Keys include the graph version, so entries for superseded versions are never served
// and simply age out.
type LRUDistanceCache struct {
	entries  *lru.Cache[distanceKey, domain.Distances]
	requests *prometheus.CounterVec
	size     prometheus.GaugeFunc
}

var _ ports.DistanceCache = (*LRUDistanceCache)(nil)

// NewLRUDistanceCache returns a cache holding at most size distance maps. Hit and miss
// counters and an entry gauge are registered on reg when it is non-nil. The gauge always
// reports the most recently created cache.
func NewLRUDistanceCache(size int, reg prometheus.Registerer) (*LRUDistanceCache, error) {
	entries, err := lru.New[distanceKey, domain.Distances](size)
	if err != nil {
		return nil, fmt.Errorf("distance cache: %w", err)
	}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tow",
		Subsystem: "distance_cache",
		Name:      "requests_total",
		Help:      "Distance cache lookups by result",
	}, []string{"result"})

	sizeOpts := prometheus.GaugeOpts{
		Namespace: "tow",
		Subsystem: "distance_cache",
		Name:      "entries",
		Help:      "Distance maps currently held",
	}
	size := prometheus.NewGaugeFunc(sizeOpts, func() float64 { return float64(entries.Len()) })

	if reg != nil {
		if err := reg.Register(requests); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, fmt.Errorf("distance cache: register metrics: %w", err)
			}
			requests = are.ExistingCollector.(*prometheus.CounterVec)
		}
		if err := reg.Register(size); err != nil {
			are, ok := err.(prometheus.AlreadyRegisteredError)
			if !ok {
				return nil, fmt.Errorf("distance cache: register metrics: %w", err)
			}
			reg.Unregister(are.ExistingCollector)
			if err := reg.Register(size); err != nil {
				return nil, fmt.Errorf("distance cache: register metrics: %w", err)
			}
		}
	}

	return &LRUDistanceCache{entries: entries, requests: requests, size: size}, nil
}

func (c *LRUDistanceCache) Get(areaID int, version uint64, source int) (domain.Distances, bool) {
	d, ok := c.entries.Get(distanceKey{area: areaID, version: version, source: source})
	if ok {
		c.requests.WithLabelValues("hit").Inc()
	} else {
		c.requests.WithLabelValues("miss").Inc()
	}
	return d, ok
}

func (c *LRUDistanceCache) Put(areaID int, version uint64, source int, d domain.Distances) {
	c.entries.Add(distanceKey{area: areaID, version: version, source: source}, d)
}
