package services

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
	"tow-dispatch-service/internal/domain"
	"tow-dispatch-service/internal/platform/obs"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveNearestVehicleViaShorterPath(t *testing.T) {
	e := newTestEngine(t, triangleDoc)

	c, err := e.resolver.ResolveNearestVehicle(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 7, c.Vehicle.ID)
	assert.Equal(t, int64(7), c.Distance)
}

func TestResolveNearestVehicleSeesEdgeUpdate(t *testing.T) {
	e := newTestEngine(t, triangleDoc)
	ctx := context.Background()

	require.NoError(t, e.resolver.UpdateEdge(ctx, 1, 3, 5))

	c, err := e.resolver.ResolveNearestVehicle(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 7, c.Vehicle.ID)
	assert.Equal(t, int64(5), c.Distance)
}

func TestResolveNearestVehicleNoneAvailable(t *testing.T) {
	e := newTestEngine(t, triangleDoc)
	ctx := context.Background()

	require.NoError(t, e.resolver.SetVehicleStatus(ctx, 7, domain.VehicleOffDuty))

	c, err := e.resolver.ResolveNearestVehicle(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, c)

	o, err := e.store.LoadOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, o.Status)
}

func TestResolveNearestVehicleSkipsUnreachable(t *testing.T) {
	e := newTestEngine(t, triangleDoc)
	ctx := context.Background()

	// Node 4 has no edges, so a truck there can never reach the order.
	require.NoError(t, e.resolver.UpdateVehicleLocation(ctx, 7, 4))

	c, err := e.resolver.ResolveNearestVehicle(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestResolveNearestVehicleIgnoresOtherAreas(t *testing.T) {
	e := newTestEngine(t, triangleDoc)
	ctx := context.Background()

	require.NoError(t, e.resolver.UpdateVehicleLocation(ctx, 7, 20))

	c, err := e.resolver.ResolveNearestVehicle(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, c)
}

const tieDoc = `
areas:
  - id: 1
    nodes: [1, 2, 3, 4]
    edges:
      - {a: 1, b: 2, weight: 5}
      - {a: 1, b: 3, weight: 5}
      - {a: 1, b: 4, weight: 9}
vehicles:
  - {id: 30, node: 3, status: available}
  - {id: 20, node: 2, status: available}
  - {id: 10, node: 4, status: available}
  - {id: 40, node: 1, status: off_duty}
orders:
  - {id: 1, client_id: 1, node: 1, car_value: 1}
`

func TestResolveNearestVehicleTieBreaksOnLowestID(t *testing.T) {
	e := newTestEngine(t, tieDoc)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		c, err := e.resolver.ResolveNearestVehicle(ctx, 1)
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, 20, c.Vehicle.ID)
		assert.Equal(t, int64(5), c.Distance)
	}
}

// Two maximum-weight hops to vehicle 7, one short edge to vehicle 8.
const heavyDoc = `
areas:
  - id: 1
    nodes: [1, 2, 3, 4]
    edges:
      - {a: 1, b: 2, weight: 2147483647}
      - {a: 2, b: 3, weight: 2147483647}
      - {a: 1, b: 4, weight: 5}
vehicles:
  - {id: 7, node: 3, status: available}
  - {id: 8, node: 4, status: available}
orders:
  - {id: 1, client_id: 100, node: 1, car_value: 15000}
`

func TestResolveNearestVehicleWithMaximumWeights(t *testing.T) {
	e := newTestEngine(t, heavyDoc)
	ctx := context.Background()

	err := e.resolver.UpdateEdge(ctx, 1, 2, math.MaxInt)
	require.ErrorIs(t, err, domain.ErrInvalidWeight)

	c, err := e.resolver.ResolveNearestVehicle(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 8, c.Vehicle.ID)
	assert.Equal(t, int64(5), c.Distance)

	cands, err := e.resolver.RankCandidates(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, cands, 2)
	assert.Equal(t, 7, cands[1].Vehicle.ID)
	assert.Equal(t, int64(2*domain.MaxEdgeWeight), cands[1].Distance)
}

func TestRankCandidates(t *testing.T) {
	e := newTestEngine(t, tieDoc)
	ctx := context.Background()

	all, err := e.resolver.RankCandidates(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int{20, 30, 10}, []int{all[0].Vehicle.ID, all[1].Vehicle.ID, all[2].Vehicle.ID})
	assert.Equal(t, []int64{5, 5, 9}, []int64{all[0].Distance, all[1].Distance, all[2].Distance})

	top, err := e.resolver.RankCandidates(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, all[:2], top)
}

func TestResolveNearestVehicleOrderErrors(t *testing.T) {
	e := newTestEngine(t, triangleDoc)
	ctx := context.Background()

	_, err := e.resolver.ResolveNearestVehicle(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)

	require.NoError(t, e.resolver.Dispatch(ctx, 1, 7))
	_, err = e.resolver.ResolveNearestVehicle(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOrderState)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestDispatchCommitsOrderAndVehicle(t *testing.T) {
	at := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	e := newTestEngine(t, triangleDoc, WithClock(func() time.Time { return at }))
	ctx := context.Background()

	require.NoError(t, e.resolver.Dispatch(ctx, 1, 7))

	o, err := e.store.LoadOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderDispatched, o.Status)
	require.NotNil(t, o.VehicleID)
	assert.Equal(t, 7, *o.VehicleID)

	v, err := e.resolver.fleet.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.VehicleDispatched, v.Status)

	persisted, err := e.store.LoadVehicle(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.VehicleDispatched, persisted.Status)

	assert.Equal(t, []domain.DispatchEvent{{
		OrderID: 1, VehicleID: 7, NodeID: 1, AreaID: 1, Distance: 7, Dispatched: at,
	}}, e.events.all())
}

func TestDispatchRevalidates(t *testing.T) {
	ctx := context.Background()

	t.Run("vehicle no longer available", func(t *testing.T) {
		e := newTestEngine(t, triangleDoc)
		require.NoError(t, e.resolver.SetVehicleStatus(ctx, 7, domain.VehicleOffDuty))

		err := e.resolver.Dispatch(ctx, 1, 7)
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)

		o, err := e.store.LoadOrder(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, domain.OrderPending, o.Status)
		assert.Nil(t, o.VehicleID)
	})

	t.Run("order no longer pending", func(t *testing.T) {
		e := newTestEngine(t, triangleDoc)
		require.NoError(t, e.resolver.Dispatch(ctx, 1, 7))

		err := e.resolver.Dispatch(ctx, 1, 7)
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	})

	t.Run("vehicle in another area", func(t *testing.T) {
		e := newTestEngine(t, triangleDoc)
		require.NoError(t, e.resolver.UpdateVehicleLocation(ctx, 7, 21))

		err := e.resolver.Dispatch(ctx, 1, 7)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("unknown vehicle", func(t *testing.T) {
		e := newTestEngine(t, triangleDoc)
		err := e.resolver.Dispatch(ctx, 1, 99)
		assert.ErrorIs(t, err, domain.ErrVehicleNotFound)
	})
}

func TestDispatchSurvivesPublishFailure(t *testing.T) {
	e := newTestEngine(t, triangleDoc)
	e.events.err = errors.New("broker down")

	require.NoError(t, e.resolver.Dispatch(context.Background(), 1, 7))
	assert.Len(t, e.events.all(), 1)
}

func TestConcurrentDispatchForSameVehicle(t *testing.T) {
	e := newTestEngine(t, triangleDoc)
	ctx := context.Background()

	orderIDs := []int{1}
	for i := 0; i < 7; i++ {
		o, err := e.resolver.CreateOrder(ctx, 200+i, 1+i%3, 100)
		require.NoError(t, err)
		orderIDs = append(orderIDs, o.ID)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(orderIDs))
	start := make(chan struct{})
	for i, id := range orderIDs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs[i] = e.resolver.Dispatch(ctx, id, 7)
		}()
	}
	close(start)
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	}
	assert.Equal(t, 1, won)

	dispatched := 0
	for _, id := range orderIDs {
		o, err := e.store.LoadOrder(ctx, id)
		require.NoError(t, err)
		if o.Status == domain.OrderDispatched {
			dispatched++
		}
	}
	assert.Equal(t, 1, dispatched)
}

func TestConcurrentDispatchForSameOrder(t *testing.T) {
	e := newTestEngine(t, tieDoc)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i, vid := range []int{10, 20, 30} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = e.resolver.Dispatch(ctx, 1, vid)
		}()
	}
	wg.Wait()

	won := 0
	for _, err := range errs {
		if err == nil {
			won++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	}
	assert.Equal(t, 1, won)
	assert.Len(t, e.fleet.EligibleVehicles(1, domain.VehicleAvailable), 2)
}

func TestCompleteOrderReleasesVehicle(t *testing.T) {
	at := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	e := newTestEngine(t, triangleDoc, WithClock(func() time.Time { return at }))
	ctx := context.Background()

	err := e.resolver.CompleteOrder(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOrderState)

	require.NoError(t, e.resolver.Dispatch(ctx, 1, 7))
	require.NoError(t, e.resolver.CompleteOrder(ctx, 1))

	o, err := e.store.LoadOrder(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCompleted, o.Status)
	require.NotNil(t, o.CompletedAt)
	assert.True(t, at.Equal(*o.CompletedAt))

	assert.Equal(t, []int{7}, vehicleIDs(e.fleet.EligibleVehicles(1, domain.VehicleAvailable)))

	err = e.resolver.CompleteOrder(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOrderState)

	_, err = e.resolver.ResolveNearestVehicle(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidOrderState)
}

func TestCreateOrder(t *testing.T) {
	e := newTestEngine(t, triangleDoc)
	ctx := context.Background()

	o, err := e.resolver.CreateOrder(ctx, 55, 2, 8000)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, 2, o.NodeID)
	assert.Greater(t, o.ID, 1)

	c, err := e.resolver.ResolveNearestVehicle(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(3), c.Distance)

	_, err = e.resolver.CreateOrder(ctx, 55, 999, 10)
	assert.ErrorIs(t, err, domain.ErrNodeNotFound)

	_, err = e.resolver.CreateOrder(ctx, 55, 2, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestObservedEngineRecordsOutcomes(t *testing.T) {
	e := newTestEngine(t, triangleDoc)
	ctx := context.Background()
	engine := WithObservability(e.resolver)

	reg := prometheus.NewRegistry()
	require.NoError(t, obs.Register(reg))

	c, err := engine.ResolveNearestVehicle(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 7, c.Vehicle.ID)

	err = engine.UpdateEdge(ctx, 1, 3, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidWeight)

	// One series per (op, outcome) pair seen so far; both calls above add their own.
	assert.GreaterOrEqual(t, testutil.CollectAndCount(reg, "tow_engine_operation_duration_seconds"), 2)
}
