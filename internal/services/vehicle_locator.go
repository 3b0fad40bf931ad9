package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/platform/keylock"
	"tow-dispatch-service/internal/platform/obs"
	"tow-dispatch-service/internal/ports"

	"github.com/rs/zerolog"
)

// nodeAreas resolves the area of a node. Implemented by GraphStore.
type nodeAreas interface {
	AreaOf(nodeID int) (int, error)
}

// VehicleLocator tracks where each vehicle is and whether it can take work.
//
// Writes for one vehicle are serialized by a per-vehicle lock held across persist and
// replace. Readers see the vehicle table under a read lock only.
type VehicleLocator struct {
	repo  ports.VehicleRepository
	areas nodeAreas
	log   zerolog.Logger

	mu       sync.RWMutex
	vehicles map[int]domain.Vehicle

	locks keylock.Map[int]
}

func NewVehicleLocator(repo ports.VehicleRepository, areas nodeAreas, log zerolog.Logger) *VehicleLocator {
	return &VehicleLocator{
		repo:     repo,
		areas:    areas,
		log:      log,
		vehicles: map[int]domain.Vehicle{},
	}
}

// Load replaces the in-memory fleet with the repository's contents.
func (l *VehicleLocator) Load(ctx context.Context) (err error) {
	defer obs.Time(ctx, "fleet.Load")(&err)

	vs, err := l.repo.LoadVehicles(ctx)
	if err != nil {
		return fmt.Errorf("load vehicles: %w", err)
	}

	fleet := make(map[int]domain.Vehicle, len(vs))
	for _, v := range vs {
		fleet[v.ID] = v
	}

	l.mu.Lock()
	l.vehicles = fleet
	l.mu.Unlock()

	l.log.Info().Int("vehicles", len(fleet)).Msg("fleet loaded")
	return nil
}

func (l *VehicleLocator) cached(id int) (domain.Vehicle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	v, ok := l.vehicles[id]
	return v, ok
}

func (l *VehicleLocator) store(v domain.Vehicle) {
	l.mu.Lock()
	l.vehicles[v.ID] = v
	l.mu.Unlock()
}

// Get returns the vehicle, loading it from the repository when it is not tracked yet.
func (l *VehicleLocator) Get(ctx context.Context, id int) (domain.Vehicle, error) {
	if v, ok := l.cached(id); ok {
		return v, nil
	}

	v, err := l.repo.LoadVehicle(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Vehicle{}, fmt.Errorf("vehicle %d: %w", id, domain.ErrVehicleNotFound)
		}
		return domain.Vehicle{}, fmt.Errorf("load vehicle %d: %w", id, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	// A concurrent writer may have stored a newer copy meanwhile.
	if cur, ok := l.vehicles[id]; ok {
		return cur, nil
	}
	l.vehicles[id] = v
	return v, nil
}

// EligibleVehicles returns vehicles located in area with the given status, ordered by id.
func (l *VehicleLocator) EligibleVehicles(areaID int, status domain.VehicleStatus) []domain.Vehicle {
	l.mu.RLock()
	out := make([]domain.Vehicle, 0)
	for _, v := range l.vehicles {
		if v.Status != status {
			continue
		}
		a, err := l.areas.AreaOf(v.NodeID)
		if err != nil || a != areaID {
			continue
		}
		out = append(out, v)
	}
	l.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Vehicle) int { return a.ID - b.ID })
	return out
}

// List returns tracked vehicles matching f, ordered by id.
func (l *VehicleLocator) List(f ports.VehicleFilter) []domain.Vehicle {
	l.mu.RLock()
	out := make([]domain.Vehicle, 0, len(l.vehicles))
	for _, v := range l.vehicles {
		if f.Status != nil && v.Status != *f.Status {
			continue
		}
		if f.AreaID != nil {
			a, err := l.areas.AreaOf(v.NodeID)
			if err != nil || a != *f.AreaID {
				continue
			}
		}
		out = append(out, v)
	}
	l.mu.RUnlock()

	slices.SortFunc(out, func(a, b domain.Vehicle) int { return a.ID - b.ID })
	return paginate(out, f.Page, f.PageSize)
}

func paginate[T any](items []T, page, size int) []T {
	if size <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}
	}
	end := min(start+size, len(items))
	return items[start:end]
}

// UpdateLocation moves a vehicle to nodeID. The move can change the vehicle's area.
func (l *VehicleLocator) UpdateLocation(ctx context.Context, id, nodeID int) error {
	if _, err := l.areas.AreaOf(nodeID); err != nil {
		return fmt.Errorf("update location of vehicle %d: %w", id, err)
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	v, err := l.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("update location: %w", err)
	}
	if v.NodeID == nodeID {
		return nil
	}

	if err := l.repo.PersistVehicleLocation(ctx, id, nodeID); err != nil {
		return fmt.Errorf("update location of vehicle %d: persist: %w", id, err)
	}

	v.NodeID = nodeID
	l.store(v)
	return nil
}

// SetStatus changes a vehicle's availability. Entering or leaving dispatched is reserved
// to dispatch and order completion and fails with ErrInvalidStatusTransition here.
func (l *VehicleLocator) SetStatus(ctx context.Context, id int, status domain.VehicleStatus) error {
	if _, err := domain.ParseVehicleStatus(string(status)); err != nil {
		return fmt.Errorf("set status of vehicle %d: %w", id, err)
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	v, err := l.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("set status: %w", err)
	}
	if v.Status == status {
		return nil
	}
	if status == domain.VehicleDispatched || v.Status == domain.VehicleDispatched || !v.Status.CanTransitionTo(status) {
		return fmt.Errorf("set status of vehicle %d %s -> %s: %w", id, v.Status, status, domain.ErrInvalidStatusTransition)
	}

	if err := l.repo.PersistVehicleStatus(ctx, id, status); err != nil {
		return fmt.Errorf("set status of vehicle %d: persist: %w", id, err)
	}

	v.Status = status
	l.store(v)
	return nil
}

// transition moves a vehicle from one status to another while holding its lock.
// commit performs the durable write; the in-memory status changes only if it succeeds.
// A vehicle not in from fails with ErrConcurrentModification.
func (l *VehicleLocator) transition(ctx context.Context, id int, from, to domain.VehicleStatus, commit func(context.Context) error) error {
	unlock := l.locks.Lock(id)
	defer unlock()

	v, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	if v.Status != from {
		return fmt.Errorf("vehicle %d is %s, want %s: %w", id, v.Status, from, domain.ErrConcurrentModification)
	}

	if err := commit(ctx); err != nil {
		return err
	}

	v.Status = to
	l.store(v)
	return nil
}

// ClaimForDispatch marks an available vehicle as dispatched once commit succeeds.
func (l *VehicleLocator) ClaimForDispatch(ctx context.Context, id int, commit func(context.Context) error) error {
	return l.transition(ctx, id, domain.VehicleAvailable, domain.VehicleDispatched, commit)
}

// Release returns a dispatched vehicle to available once commit succeeds.
func (l *VehicleLocator) Release(ctx context.Context, id int, commit func(context.Context) error) error {
	return l.transition(ctx, id, domain.VehicleDispatched, domain.VehicleAvailable, commit)
}
