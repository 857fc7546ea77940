package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormLogger routes GORM's logging through slog. SQL statements go out at
// debug level; slow statements and failures at warn.
type GormLogger struct {
	log           *slog.Logger
	slowThreshold time.Duration
}

// NewGormLogger wraps l. A zero slowThreshold disables slow query warnings.
func NewGormLogger(l *slog.Logger, slowThreshold time.Duration) *GormLogger {
	if l == nil {
		l = slog.Default()
	}
	return &GormLogger{log: l, slowThreshold: slowThreshold}
}

// LogMode is a no-op; the level is owned by the slog handler.
func (g *GormLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface {
	return g
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	g.log.DebugContext(ctx, fmt.Sprintf(msg, data...))
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	g.log.WarnContext(ctx, fmt.Sprintf(msg, data...))
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	g.log.ErrorContext(ctx, fmt.Sprintf(msg, data...))
}

func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		g.log.WarnContext(ctx, "query error",
			"sql", sql, "rows_affected", rows, "duration_ms", elapsed.Milliseconds(), "error", err)
	case g.slowThreshold > 0 && elapsed > g.slowThreshold:
		g.log.WarnContext(ctx, "slow query",
			"sql", sql, "rows_affected", rows, "duration_ms", elapsed.Milliseconds(), "threshold", g.slowThreshold)
	default:
		g.log.DebugContext(ctx, "sql query",
			"sql", sql, "rows_affected", rows, "duration_ms", elapsed.Milliseconds())
	}
}
