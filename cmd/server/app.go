package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jimdaga/mediecho/internal/auth"
	"github.com/jimdaga/mediecho/internal/billing"
	"github.com/jimdaga/mediecho/internal/briefings"
	"github.com/jimdaga/mediecho/internal/config"
	"github.com/jimdaga/mediecho/internal/crypto"
	"github.com/jimdaga/mediecho/internal/database"
	"github.com/jimdaga/mediecho/internal/plans"
	"github.com/jimdaga/mediecho/internal/storage"
	"github.com/jimdaga/mediecho/internal/streams"
	"github.com/jimdaga/mediecho/internal/worker"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// app holds the long-lived dependencies shared by the commands
type app struct {
	db      *gorm.DB
	rdb     *redis.Client
	tasks   *worker.Client
	tokens  *auth.TokenService
	briefs  *briefings.Service
	billing *billing.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a := &app{db: db}

	artifacts, err := storage.New(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	// Summaries are sealed under a key derived from JWT_SECRET
	encryptor, err := crypto.NewSummaryEncryptor(cfg.JWTSecret)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := briefings.Options{
		DB:        db,
		Artifacts: artifacts,
		Encryptor: encryptor,
		Location:  worker.LoadLocation(cfg.BriefTimezone),
		MinLogs:   cfg.BriefMinLogs,
		Logger:    slog.Default(),
	}

	if cfg.RedisURL != "" {
		redisOpt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		a.rdb = redis.NewClient(redisOpt)

		a.tasks, err = worker.NewClient(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}

		opts.Locker = briefings.NewRedisLocker(a.rdb)
		opts.Enqueuer = a.tasks
		opts.Events = streams.NewPublisherFromClient(a.rdb)
	} else {
		slog.Warn("REDIS_URL not set: brief locks are process-local and async generation is disabled")
	}
	a.briefs = briefings.NewService(opts)

	registry, err := plans.LoadRegistry(cfg.PlansFile, cfg.StripePrices)
	if err != nil {
		a.Close()
		return nil, err
	}
	var gateway billing.Gateway
	if cfg.StripeSecretKey != "" {
		gateway = billing.NewStripeGateway(cfg.StripeSecretKey)
	} else {
		slog.Warn("STRIPE_SECRET_KEY not set: checkout and billing portal are disabled")
	}
	a.billing = billing.NewService(db, gateway, registry, cfg.AppURL, slog.Default())

	a.tokens = auth.NewTokenService(cfg.JWTSecret, cfg.RefreshSecret, cfg.JWTExpiry, cfg.RefreshExpiry)
	return a, nil
}

// startBackground runs the worker, scheduler and event consumer in-process
func (a *app) startBackground(cfg *config.Config) (stop func(), err error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required for the embedded worker")
	}

	stopWorker, err := worker.Start(cfg, a.db, a.briefs)
	if err != nil {
		return nil, err
	}
	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		stopWorker()
		return nil, err
	}
	stopConsumer, err := streams.StartEventConsumer(cfg.RedisURL, a.db)
	if err != nil {
		stopScheduler()
		stopWorker()
		return nil, err
	}

	return func() {
		stopConsumer()
		stopScheduler()
		stopWorker()
	}, nil
}

func (a *app) Close() {
	if a.tasks != nil {
		a.tasks.Close()
	}
	if a.rdb != nil {
		a.rdb.Close()
	}
	if err := database.Close(a.db); err != nil {
		slog.Warn("Failed to close database", "error", err)
	}
}
