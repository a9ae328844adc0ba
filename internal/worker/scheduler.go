package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/mediecho/internal/config"
)

// StartScheduler enqueues the weekly brief run on cfg.BriefSchedule, evaluated in
// cfg.BriefTimezone. Only one scheduler should run per deployment.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	conn, err := redisConn(cfg.RedisURL)
	if err != nil {
		return nil, err
	}

	loc := LoadLocation(cfg.BriefTimezone)
	logger := NewLogger(cfg.LogLevel, cfg.LogFormat).With("service", "scheduler")

	scheduler := asynq.NewScheduler(conn, &asynq.SchedulerOpts{
		Location: loc,
		LogLevel: asynq.InfoLevel,
		Logger:   newAsynqLogger(logger),
		PostEnqueueFunc: func(info *asynq.TaskInfo, err error) {
			if err != nil {
				logger.Warn("Scheduled task not enqueued", "error", err)
				return
			}
			logger.Info("Scheduled task enqueued", "task_type", info.Type, "task_id", info.ID)
		},
	})

	entryID, err := scheduler.Register(cfg.BriefSchedule, newWeeklyBriefsTask())
	if err != nil {
		return nil, fmt.Errorf("failed to register brief schedule %q: %w", cfg.BriefSchedule, err)
	}
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	logger.Info("Scheduler started",
		"schedule", cfg.BriefSchedule,
		"timezone", loc.String(),
		"entry_id", entryID,
	)
	return scheduler.Shutdown, nil
}

// LoadLocation resolves the brief timezone, falling back to UTC
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("Invalid timezone, using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}
