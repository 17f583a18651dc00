// Package gormlogger routes gorm statement logging into zerolog.
package gormlogger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/middlebury/dynamic-add-users/internal/logger"
)

var slowQueries = promauto.NewCounter(prometheus.CounterOpts{ //nolint:gochecknoglobals
	Name: "gorm_slow_queries_total",
	Help: "Number of SQL statements slower than the configured threshold.",
})

// Logger implements gorm's logger.Interface on top of a zerolog logger.
type Logger struct {
	zl    zerolog.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

// New returns a gorm logger configured from the Log section.
func New(zl zerolog.Logger, cfg logger.Log) *Logger {
	return &Logger{
		zl:    zl.With().Str("component", "gorm").Logger(),
		level: ParseLevel(cfg.SQLLevel),
		slow:  time.Duration(cfg.SlowQueryMillis) * time.Millisecond,
	}
}

// ParseLevel maps silent, error, warn and info to gorm levels. Anything else is warn.
func ParseLevel(s string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// LogMode returns a copy logging at level.
func (l *Logger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level

	return &c
}

// Info logs at info level.
func (l *Logger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		l.zl.Info().Msgf(msg, data...)
	}
}

// Warn logs at warn level.
func (l *Logger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		l.zl.Warn().Msgf(msg, data...)
	}
}

// Error logs at error level.
func (l *Logger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		l.zl.Error().Msgf(msg, data...)
	}
}

// Trace logs one statement. Record not found is not an error here.
func (l *Logger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)

	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.zl.Error().Err(err).Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("sql error")
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		slowQueries.Inc()

		sql, rows := fc()
		l.zl.Warn().Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("slow sql")
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.zl.Debug().Str("sql", sql).Int64("rows", rows).Dur("elapsed", elapsed).Msg("sql")
	}
}
