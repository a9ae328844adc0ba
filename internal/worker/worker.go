package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/mediecho/internal/billing"
	"github.com/jimdaga/mediecho/internal/briefings"
	"github.com/jimdaga/mediecho/internal/config"
	"github.com/jimdaga/mediecho/internal/models"
	"gorm.io/gorm"
)

const (
	concurrency     = 5
	shutdownTimeout = 30 * time.Second
)

// BriefService is the brief work the worker drives
type BriefService interface {
	Complete(ctx context.Context, briefID uint) error
	Fail(ctx context.Context, briefID uint, message string) error
	GenerateScheduled(ctx context.Context, user *models.User) (*models.WeeklyBrief, error)
}

// Run processes brief tasks until the process receives SIGTERM or SIGINT
func Run(cfg *config.Config, db *gorm.DB, svc BriefService) error {
	srv, err := newServer(cfg)
	if err != nil {
		return err
	}
	return srv.Run(newMux(srv.logger, db, svc))
}

// Start processes brief tasks in the background alongside the HTTP server.
// The returned function drains in-flight tasks before returning.
func Start(cfg *config.Config, db *gorm.DB, svc BriefService) (stop func(), err error) {
	srv, err := newServer(cfg)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(newMux(srv.logger, db, svc)); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return srv.Shutdown, nil
}

type server struct {
	*asynq.Server
	logger *slog.Logger
}

func newServer(cfg *config.Config) (*server, error) {
	conn, err := redisConn(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "worker")
	srv := asynq.NewServer(conn, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{queueDefault: 1},
		ShutdownTimeout: shutdownTimeout,
		ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
		Logger:          newAsynqLogger(logger),
	})

	logger.Info("Worker starting", "concurrency", concurrency)
	return &server{Server: srv, logger: logger}, nil
}

func redisConn(redisURL string) (asynq.RedisConnOpt, error) {
	conn, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return conn, nil
}

func newMux(logger *slog.Logger, db *gorm.DB, svc BriefService) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskGenerateBrief, handleGenerateBrief(logger, svc))
	mux.HandleFunc(TaskWeeklyBriefs, handleWeeklyBriefs(logger, db, svc))
	return mux
}

// handleGenerateBrief completes a brief created by an async generate request
func handleGenerateBrief(logger *slog.Logger, svc BriefService) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload generateBriefPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.BriefID == 0 {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		logger.Info("Processing brief:generate task", "brief_id", payload.BriefID)

		err := svc.Complete(ctx, payload.BriefID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, briefings.ErrNotFound),
			errors.Is(err, briefings.ErrNoData),
			errors.Is(err, briefings.ErrFailed):
			// The brief is in a final state
			return fmt.Errorf("brief %d: %v: %w", payload.BriefID, err, asynq.SkipRetry)
		case finalAttempt(ctx):
			// asynq archives the task after this; the record must not stay generating
			if ferr := svc.Fail(ctx, payload.BriefID, "Brief generation failed after retries"); ferr != nil {
				logger.Error("Failed to mark brief failed", "brief_id", payload.BriefID, "error", ferr)
			}
			return fmt.Errorf("brief %d: %v: %w", payload.BriefID, err, asynq.SkipRetry)
		default:
			return fmt.Errorf("brief %d: %w", payload.BriefID, err)
		}
	}
}

// finalAttempt reports whether the running task will be archived if it fails
var finalAttempt = func(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return false
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	return ok && retried >= maxRetry
}

// handleWeeklyBriefs generates last week's brief for every user with an active paid plan.
// Users that fail are retried with the whole task; finished windows are skipped.
func handleWeeklyBriefs(logger *slog.Logger, db *gorm.DB, svc BriefService) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var users []models.User
		err := db.WithContext(ctx).
			Where("subscription_plan IN ?", billing.PaidPlans).
			Where("subscription_status IN ?", []models.SubscriptionStatus{models.SubscriptionActive, models.SubscriptionTrialing}).
			Order("id").
			Find(&users).Error
		if err != nil {
			return fmt.Errorf("failed to load eligible users: %w", err)
		}

		logger.Info("Processing brief:weekly task", "eligible_users", len(users))

		generated, failed := 0, 0
		for i := range users {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			brief, err := svc.GenerateScheduled(ctx, &users[i])
			if err != nil {
				failed++
				logger.Error("Scheduled brief failed", "user_id", users[i].ID, "error", err)
				continue
			}
			if brief != nil {
				generated++
			}
		}

		logger.Info("Weekly briefs finished",
			"eligible_users", len(users),
			"generated", generated,
			"failed", failed,
		)

		if failed > 0 {
			return fmt.Errorf("%d of %d scheduled briefs failed", failed, len(users))
		}
		return nil
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
			logger.Error(
				"Task archived",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
