package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"tow-dispatch-service/internal/adapters/repositories"
	"tow-dispatch-service/internal/config"
	"tow-dispatch-service/internal/platform/db"
	"tow-dispatch-service/internal/platform/logger"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	seedFile string
)

var rootCmd = &cobra.Command{
	Use:          "dbtool",
	Short:        "Manage the tow dispatch PostgreSQL schema",
	SilenceUsage: true,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create tables and indexes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, handle *sql.DB, log zerolog.Logger) error {
			log.Info().Msg("initializing database schema")
			if err := repositories.InitSchema(ctx, handle); err != nil {
				return err
			}
			log.Info().Msg("schema ready")
			return nil
		})
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load areas, tow trucks and orders from a YAML fixture",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := repositories.LoadFixture(seedFile)
		if err != nil {
			return err
		}
		return withDB(cmd.Context(), func(ctx context.Context, handle *sql.DB, log zerolog.Logger) error {
			if err := repositories.InitSchema(ctx, handle); err != nil {
				return err
			}
			log.Info().Str("file", seedFile).Int("areas", len(f.Areas)).Msg("seeding database")
			if err := repositories.SeedFixture(ctx, handle, f); err != nil {
				return err
			}
			log.Info().Int("vehicles", len(f.Vehicles)).Int("orders", len(f.Orders)).Msg("seeding complete")
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "configuration file (yaml or json)")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "fixtures/demo.yaml", "fixture file")
	rootCmd.AddCommand(initCmd, seedCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func withDB(ctx context.Context, fn func(context.Context, *sql.DB, zerolog.Logger) error) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if cfg.Database.Driver != "postgres" {
		return fmt.Errorf("dbtool: database url is required (set TOW_DATABASE__URL or DATABASE_URL)")
	}

	log, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}

	handle, err := db.Open(ctx, cfg.Database.URL, db.PoolOptions{MaxOpenConns: 2})
	if err != nil {
		return err
	}
	defer handle.Close()

	return fn(ctx, handle, logger.Component(log, "dbtool"))
}
