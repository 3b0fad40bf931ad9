package api

import (
	"context"
	"net/http"
	"tow-dispatch-service/internal/api/handlers"
	"tow-dispatch-service/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Dependencies of the HTTP layer. Handlers only see ports.
type Deps struct {
	Engine  ports.DispatchEngine
	Map     ports.MapReader
	Admin   ports.MapAdmin
	Fleet   ports.VehicleReader
	Orders  ports.OrderRepository
	Metrics prometheus.Gatherer
	Ready   func(ctx context.Context) error
	Log     zerolog.Logger
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
func NewRouter(d Deps) http.Handler {
	mux := http.NewServeMux()

	mapHandler := &handlers.MapHandler{Engine: d.Engine, Map: d.Map, Admin: d.Admin}
	truckHandler := &handlers.TowTruckHandler{Engine: d.Engine, Fleet: d.Fleet, Map: d.Map}
	orderHandler := &handlers.OrderHandler{Engine: d.Engine, Orders: d.Orders}

	healthHandler := &handlers.HealthHandler{Ready: d.Ready}

	mux.HandleFunc("/health", healthHandler.Health)
	if d.Metrics != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(d.Metrics, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /map/nodes", mapHandler.Nodes)
	mux.HandleFunc("GET /map/edges", mapHandler.Edges)
	mux.HandleFunc("POST /map/update_edge", mapHandler.UpdateEdge)
	if d.Admin != nil {
		mux.HandleFunc("POST /map/reload", mapHandler.Reload)
	}

	mux.HandleFunc("GET /tow_trucks", truckHandler.List)
	mux.HandleFunc("GET /tow_trucks/{id}", truckHandler.Get)
	mux.HandleFunc("GET /tow_trucks/nearest_available", truckHandler.NearestAvailable)
	mux.HandleFunc("GET /tow_trucks/candidates", truckHandler.Candidates)
	mux.HandleFunc("POST /tow_trucks/update_location", truckHandler.UpdateLocation)
	mux.HandleFunc("POST /tow_trucks/status", truckHandler.SetStatus)

	mux.HandleFunc("GET /orders", orderHandler.List)
	mux.HandleFunc("POST /orders", orderHandler.Create)
	mux.HandleFunc("GET /orders/{id}", orderHandler.Get)
	mux.HandleFunc("POST /orders/dispatch", orderHandler.Dispatch)
	mux.HandleFunc("POST /orders/complete", orderHandler.Complete)

	return requestMiddleware(d.Log, mux)
}
