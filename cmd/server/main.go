package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"tow-dispatch-service/internal/adapters/cache"
	"tow-dispatch-service/internal/adapters/events"
	"tow-dispatch-service/internal/adapters/repositories"
	"tow-dispatch-service/internal/api"
	"tow-dispatch-service/internal/config"
	"tow-dispatch-service/internal/platform/db"
	"tow-dispatch-service/internal/platform/logger"
	"tow-dispatch-service/internal/platform/obs"
	"tow-dispatch-service/internal/ports"
	"tow-dispatch-service/internal/services"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:          "tow-dispatch",
	Short:        "Tow truck dispatch service",
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// stores groups the repository ports behind one backend.
type stores struct {
	maps     ports.MapRepository
	vehicles ports.VehicleRepository
	orders   ports.OrderRepository
	ready    func(ctx context.Context) error
	close    func() error
}

// run is the application composition root.
// It wires concrete adapters (PostgreSQL or memory, LRU cache, MQTT) behind ports and serves HTTP.
func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := obs.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	st, err := openStores(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.close(); err != nil {
			log.Error().Err(err).Msg("close store")
		}
	}()

	graph := services.NewGraphStore(st.maps, logger.Component(log, "graph"))
	if err := graph.Load(ctx); err != nil {
		return err
	}
	fleet := services.NewVehicleLocator(st.vehicles, graph, logger.Component(log, "fleet"))
	if err := fleet.Load(ctx); err != nil {
		return err
	}

	var distCache ports.DistanceCache
	if cfg.Cache.DistanceEntries > 0 {
		c, err := cache.NewLRUDistanceCache(cfg.Cache.DistanceEntries, reg)
		if err != nil {
			return fmt.Errorf("distance cache: %w", err)
		}
		distCache = c
	}

	var publisher ports.EventPublisher = events.NopPublisher{}
	var bus *events.MQTTBus
	if cfg.MQTT.Enabled {
		bus, err = events.DialMQTT(cfg.MQTT, logger.Component(log, "mqtt"))
		if err != nil {
			return err
		}
		defer bus.Close()
		publisher = bus
	}

	resolver := services.NewDispatchResolver(
		graph,
		services.NewShortestPathResolver(distCache),
		fleet,
		st.orders,
		logger.Component(log, "dispatch"),
		services.WithEvents(publisher),
	)
	engine := services.WithObservability(resolver)

	if bus != nil {
		if err := bus.SubscribeLocations(ctx, engine); err != nil {
			return err
		}
	}

	router := api.NewRouter(api.Deps{
		Engine:  engine,
		Map:     graph,
		Admin:   graph,
		Fleet:   fleet,
		Orders:  st.orders,
		Metrics: reg,
		Ready:   st.ready,
		Log:     logger.Component(log, "http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("driver", cfg.Database.Driver).Ints("areas", graph.Areas()).Msg("server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*stores, error) {
	switch cfg.Driver {
	case "postgres":
		handle, err := db.Open(ctx, cfg.URL, db.PoolOptions{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		})
		if err != nil {
			return nil, err
		}
		if err := prepareSchema(ctx, handle, cfg.Fixture); err != nil {
			_ = handle.Close()
			return nil, err
		}
		return &stores{
			maps:     repositories.NewPostgresMapRepository(handle),
			vehicles: repositories.NewPostgresVehicleRepository(handle),
			orders:   repositories.NewPostgresOrderRepository(handle),
			ready:    handle.PingContext,
			close:    handle.Close,
		}, nil

	default:
		mem := repositories.NewMemoryStore()
		if cfg.Fixture != "" {
			f, err := repositories.LoadFixture(cfg.Fixture)
			if err != nil {
				return nil, err
			}
			if err := mem.Seed(f); err != nil {
				return nil, err
			}
		} else {
			log.Warn().Msg("memory store started without fixture; map is empty")
		}
		return &stores{
			maps:     mem,
			vehicles: mem,
			orders:   mem,
			close:    func() error { return nil },
		}, nil
	}
}

// Create the schema if needed and, for local runs, seed the configured fixture.
func prepareSchema(ctx context.Context, handle *sql.DB, fixture string) error {
	if err := repositories.InitSchema(ctx, handle); err != nil {
		return fmt.Errorf("prepare schema: %w", err)
	}
	if fixture == "" {
		return nil
	}

	f, err := repositories.LoadFixture(fixture)
	if err != nil {
		return fmt.Errorf("prepare schema: %w", err)
	}
	if err := repositories.SeedFixture(ctx, handle, f); err != nil {
		return fmt.Errorf("prepare schema: %w", err)
	}
	return nil
}
