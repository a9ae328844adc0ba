package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/mediecho/internal/config"
	"github.com/jimdaga/mediecho/internal/database"
	"github.com/jimdaga/mediecho/internal/server"
	"github.com/jimdaga/mediecho/internal/streams"
	"github.com/jimdaga/mediecho/internal/worker"
	"github.com/spf13/cobra"
)

func serveCmd(loadConfig func() *config.Config) *cobra.Command {
	var (
		addr           string
		embeddedWorker bool
		skipMigrations bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Examples:
  mediecho serve
  mediecho serve --addr :8080 --embedded-worker`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if addr == "" {
				addr = ":" + cfg.Port
			}
			if !cmd.Flags().Changed("embedded-worker") {
				embeddedWorker = cfg.EmbeddedWorker
			}
			if cfg.IsProduction() {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if !skipMigrations {
				if err := database.RunMigrations(a.db); err != nil {
					return err
				}
			}

			if embeddedWorker {
				stopWorker, err := a.startBackground(cfg)
				if err != nil {
					return err
				}
				defer stopWorker()
			}

			router := server.NewRouter(server.Deps{
				Config:  cfg,
				DB:      a.db,
				Tokens:  a.tokens,
				Briefs:  a.briefs,
				Billing: a.billing,
				Logger:  slog.Default(),
			})
			return server.Serve(ctx, addr, router)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	cmd.Flags().BoolVar(&embeddedWorker, "embedded-worker", false, "run the task worker, scheduler and event consumer in-process (default $EMBEDDED_WORKER)")
	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "do not apply pending migrations on startup")
	return cmd
}

func workerCmd(loadConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the task worker, weekly scheduler and brief event consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.RedisURL == "" {
				return fmt.Errorf("REDIS_URL is required for the worker")
			}

			a, err := newApp(context.Background(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			stopScheduler, err := worker.StartScheduler(cfg)
			if err != nil {
				return err
			}
			defer stopScheduler()

			stopConsumer, err := streams.StartEventConsumer(cfg.RedisURL, a.db)
			if err != nil {
				return err
			}
			defer stopConsumer()

			// Run blocks until SIGINT or SIGTERM
			return worker.Run(cfg, a.db, a.briefs)
		},
	}
}

func migrateCmd(loadConfig func() *config.Config) *cobra.Command {
	var rollback int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long: `Apply pending database migrations, or revert recent ones.

Examples:
  mediecho migrate
  mediecho migrate --rollback 1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Init(loadConfig().DatabaseURL)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if rollback > 0 {
				return database.RollbackMigrations(db, rollback)
			}
			return database.RunMigrations(db)
		},
	}

	cmd.Flags().IntVar(&rollback, "rollback", 0, "revert this many migrations instead of applying")
	return cmd
}

func seedCmd(loadConfig func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the development user and a week of sample logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cfg.IsProduction() {
				return fmt.Errorf("refusing to seed a production database")
			}

			db, err := database.Init(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.RunMigrations(db); err != nil {
				return err
			}
			if err := database.SeedDevData(db, time.Now()); err != nil {
				return err
			}

			fmt.Printf("Seeded %s / %s\n", database.DevUserEmail, database.DevUserPassword)
			return nil
		},
	}
}
