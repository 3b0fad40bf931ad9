package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"tow-dispatch-service/internal/adapters/repositories"
	"tow-dispatch-service/internal/api/dto"
	"tow-dispatch-service/internal/platform/obs"
	"tow-dispatch-service/internal/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureDoc = `
areas:
  - id: 1
    nodes: [1, 2, 3]
    edges:
      - {a: 1, b: 2, weight: 4}
      - {a: 2, b: 3, weight: 3}
      - {a: 1, b: 3, weight: 10}
  - id: 2
    nodes: [20]
vehicles:
  - {id: 7, node: 3, status: available}
  - {id: 8, node: 20, status: off_duty}
orders:
  - {id: 1, client_id: 100, node: 1, car_value: 15000}
`

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	h, _ := newTestServerWithStore(t)
	return h
}

func newTestServerWithStore(t *testing.T) (http.Handler, *repositories.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	f, err := repositories.ParseFixture([]byte(fixtureDoc))
	require.NoError(t, err)
	store := repositories.NewMemoryStore()
	require.NoError(t, store.Seed(f))

	graph := services.NewGraphStore(store, log)
	require.NoError(t, graph.Load(ctx))
	fleet := services.NewVehicleLocator(store, graph, log)
	require.NoError(t, fleet.Load(ctx))
	engine := services.NewDispatchResolver(graph, services.NewShortestPathResolver(nil), fleet, store, log)

	reg := prometheus.NewRegistry()
	require.NoError(t, obs.Register(reg))

	return NewRouter(Deps{
		Engine:  services.WithObservability(engine),
		Map:     graph,
		Admin:   graph,
		Fleet:   fleet,
		Orders:  store,
		Metrics: reg,
		Log:     log,
	}), store
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func do(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func TestHealthAndRequestID(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))

	rec = do(t, h, http.MethodPost, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthNotReady(t *testing.T) {
	h := NewRouter(Deps{Ready: func(context.Context) error { return errors.New("db down") }, Log: zerolog.Nop()})

	rec := do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMapEndpoints(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/map/nodes?area_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	nodes := decode[dto.ListNodesResponse](t, rec)
	assert.Len(t, nodes.Nodes, 3)

	rec = do(t, h, http.MethodPost, "/map/update_edge", map[string]int{"node_a": 3, "node_b": 1, "weight": 5})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/map/edges?area_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	edges := decode[dto.ListEdgesResponse](t, rec)
	assert.Contains(t, edges.Edges, dto.EdgeResponse{NodeA: 1, NodeB: 3, Weight: 5})

	tests := []struct {
		name string
		body any
		want int
	}{
		{name: "negative weight", body: map[string]int{"node_a": 1, "node_b": 3, "weight": -1}, want: http.StatusBadRequest},
		{name: "weight above int32", body: map[string]int{"node_a": 1, "node_b": 3, "weight": 2147483648}, want: http.StatusBadRequest},
		{name: "missing weight", body: map[string]int{"node_a": 1, "node_b": 3}, want: http.StatusBadRequest},
		{name: "unknown edge", body: map[string]int{"node_a": 1, "node_b": 20, "weight": 1}, want: http.StatusNotFound},
		{name: "unknown field", body: `{"node_a":1,"node_b":3,"weight":1,"x":1}`, want: http.StatusBadRequest},
		{name: "two objects", body: `{"node_a":1,"node_b":3,"weight":1}{}`, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/map/update_edge", tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec = do(t, h, http.MethodGet, "/map/nodes?area_id=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapReload(t *testing.T) {
	h, store := newTestServerWithStore(t)

	extra, err := repositories.ParseFixture([]byte(`
areas:
  - id: 2
    nodes: [20, 21]
    edges:
      - {a: 20, b: 21, weight: 6}
`))
	require.NoError(t, err)
	require.NoError(t, store.Seed(extra))

	rec := do(t, h, http.MethodGet, "/map/edges?area_id=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[dto.ListEdgesResponse](t, rec).Edges, "not visible before reload")

	rec = do(t, h, http.MethodPost, "/map/reload", dto.ReloadAreaRequest{AreaID: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, dto.ReloadAreaResponse{AreaID: 2, Nodes: 2, Edges: 1}, decode[dto.ReloadAreaResponse](t, rec))

	rec = do(t, h, http.MethodGet, "/map/edges?area_id=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []dto.EdgeResponse{{NodeA: 20, NodeB: 21, Weight: 6}}, decode[dto.ListEdgesResponse](t, rec).Edges)

	rec = do(t, h, http.MethodPost, "/map/reload", dto.ReloadAreaRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/map/reload", `{"area":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNearestAvailableAndDispatchFlow(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/tow_trucks/nearest_available?order_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	c := decode[dto.CandidateResponse](t, rec)
	assert.Equal(t, dto.CandidateResponse{TowTruckID: 7, NodeID: 3, Distance: 7}, c)

	rec = do(t, h, http.MethodGet, "/tow_trucks/candidates?order_id=1&limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.ListCandidatesResponse](t, rec)
	assert.Len(t, list.Candidates, 1)

	rec = do(t, h, http.MethodPost, "/orders/dispatch", dto.DispatchRequest{OrderID: 1, TowTruckID: 7})
	require.Equal(t, http.StatusOK, rec.Code)
	o := decode[dto.OrderResponse](t, rec)
	assert.Equal(t, "dispatched", o.Status)
	require.NotNil(t, o.TowTruckID)
	assert.Equal(t, 7, *o.TowTruckID)

	rec = do(t, h, http.MethodPost, "/orders/dispatch", dto.DispatchRequest{OrderID: 1, TowTruckID: 7})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/tow_trucks/nearest_available?order_id=1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code, "order no longer pending")

	rec = do(t, h, http.MethodPost, "/orders/complete", dto.CompleteOrderRequest{OrderID: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	o = decode[dto.OrderResponse](t, rec)
	assert.Equal(t, "completed", o.Status)
	assert.NotNil(t, o.CompletedTime)

	rec = do(t, h, http.MethodGet, "/tow_trucks/7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	truck := decode[dto.TowTruckResponse](t, rec)
	assert.Equal(t, "available", truck.Status)
	require.NotNil(t, truck.AreaID)
	assert.Equal(t, 1, *truck.AreaID)
}

func TestNearestAvailableNoTruck(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/tow_trucks/status", dto.SetStatusRequest{TowTruckID: 7, Status: "off_duty"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/tow_trucks/nearest_available?order_id=1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no_tow_truck_available", decode[errorBody](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/tow_trucks/nearest_available", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", decode[errorBody](t, rec).Code)

	rec = do(t, h, http.MethodGet, "/tow_trucks/nearest_available?order_id=99", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, rec).Code)
}

func TestTowTruckEndpoints(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodGet, "/tow_trucks?status=available", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trucks := decode[dto.ListTowTrucksResponse](t, rec)
	require.Len(t, trucks.TowTrucks, 1)
	assert.Equal(t, 7, trucks.TowTrucks[0].ID)

	rec = do(t, h, http.MethodPost, "/tow_trucks/update_location", dto.UpdateLocationRequest{TowTruckID: 8, NodeID: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	truck := decode[dto.TowTruckResponse](t, rec)
	assert.Equal(t, 2, truck.NodeID)

	rec = do(t, h, http.MethodGet, "/tow_trucks?area_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	trucks = decode[dto.ListTowTrucksResponse](t, rec)
	assert.Len(t, trucks.TowTrucks, 2)

	rec = do(t, h, http.MethodPost, "/tow_trucks/update_location", dto.UpdateLocationRequest{TowTruckID: 8, NodeID: 999})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/tow_trucks/status", dto.SetStatusRequest{TowTruckID: 7, Status: "dispatched"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/tow_trucks/status", dto.SetStatusRequest{TowTruckID: 7, Status: "parked"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/tow_trucks/404", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/tow_trucks?status=parked", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderEndpoints(t *testing.T) {
	h := newTestServer(t)

	rec := do(t, h, http.MethodPost, "/orders", dto.CreateOrderRequest{ClientID: 5, NodeID: 2, CarValue: 900})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[dto.OrderResponse](t, rec)
	assert.Equal(t, "pending", created.Status)

	rec = do(t, h, http.MethodGet, "/orders?sort_by=car_value&order=desc", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[dto.ListOrdersResponse](t, rec)
	require.Len(t, list.Orders, 2)
	assert.Equal(t, 15000.0, list.Orders[0].CarValue)

	rec = do(t, h, http.MethodGet, "/orders/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name   string
		method string
		target string
		body   any
		want   int
	}{
		{name: "bad sort", method: http.MethodGet, target: "/orders?sort_by=client_id", want: http.StatusBadRequest},
		{name: "bad direction", method: http.MethodGet, target: "/orders?order=sideways", want: http.StatusBadRequest},
		{name: "bad page size", method: http.MethodGet, target: "/orders?page_size=0", want: http.StatusBadRequest},
		{name: "unknown order", method: http.MethodGet, target: "/orders/999", want: http.StatusNotFound},
		{name: "unknown node", method: http.MethodPost, target: "/orders", body: dto.CreateOrderRequest{ClientID: 5, NodeID: 999}, want: http.StatusNotFound},
		{name: "missing client", method: http.MethodPost, target: "/orders", body: dto.CreateOrderRequest{NodeID: 1}, want: http.StatusBadRequest},
		{name: "complete pending", method: http.MethodPost, target: "/orders/complete", body: dto.CompleteOrderRequest{OrderID: 1}, want: http.StatusConflict},
		{name: "cross-area dispatch", method: http.MethodPost, target: "/orders/dispatch", body: dto.DispatchRequest{OrderID: 1, TowTruckID: 8}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t)

	do(t, h, http.MethodGet, "/tow_trucks/nearest_available?order_id=1", nil)

	rec := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tow_engine_operation_duration_seconds")
}
