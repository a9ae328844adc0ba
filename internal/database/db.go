package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slowQueryThreshold is the duration above which queries are logged as slow
const slowQueryThreshold = 500 * time.Millisecond

// Init opens the Postgres database at databaseURL. Sessions run in UTC and unique
// violations surface as gorm.ErrDuplicatedKey.
func Init(databaseURL string) (*gorm.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	dsn, err := ensureTimezoneUTC(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         NewGormLogger(slog.Default(), logger.Warn),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// Ping verifies the connection is alive
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection pool. A nil db is a no-op.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}
	return nil
}

// ensureTimezoneUTC adds TimeZone=UTC unless the URL already names a zone
func ensureTimezoneUTC(databaseURL string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", err
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	q := u.Query()
	if q.Get("TimeZone") == "" {
		q.Set("TimeZone", "UTC")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// gormLogger sends GORM's query log through slog
type gormLogger struct {
	logger *slog.Logger
	level  logger.LogLevel
}

// NewGormLogger creates a GORM logger that writes through l at the given level
func NewGormLogger(l *slog.Logger, level logger.LogLevel) logger.Interface {
	return &gormLogger{logger: l, level: level}
}

func (g *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{logger: g.logger, level: level}
}

func (g *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Info {
		g.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Warn {
		g.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
	}
}

func (g *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if g.level >= logger.Error {
		g.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
	}
}

// Trace logs failed and slow queries. Not-found lookups are expected and skipped.
func (g *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && g.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		g.logger.ErrorContext(ctx, "Query failed", "error", err, "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	case elapsed > slowQueryThreshold && g.level >= logger.Warn:
		sql, rows := fc()
		g.logger.WarnContext(ctx, "Slow query", "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	case g.level >= logger.Info:
		sql, rows := fc()
		g.logger.DebugContext(ctx, "Query", "elapsed_ms", elapsed.Milliseconds(), "rows", rows, "sql", sql)
	}
}
