// internal/storage/sqlite/logger.go
package sqlite

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// zapGorm implements gorm's logger.Interface on top of a sugared zap logger.
type zapGorm struct {
	log   *zap.SugaredLogger
	level logger.LogLevel
}

func newGormLogger(l *zap.Logger, level logger.LogLevel) logger.Interface {
	return zapGorm{log: l.Sugar(), level: level}
}

func (z zapGorm) LogMode(level logger.LogLevel) logger.Interface {
	z.level = level
	return z
}

func (z zapGorm) Info(_ context.Context, format string, args ...interface{}) {
	z.printf(logger.Info, format, args)
}

func (z zapGorm) Warn(_ context.Context, format string, args ...interface{}) {
	z.printf(logger.Warn, format, args)
}

func (z zapGorm) Error(_ context.Context, format string, args ...interface{}) {
	z.printf(logger.Error, format, args)
}

func (z zapGorm) printf(at logger.LogLevel, format string, args []interface{}) {
	if z.level < at {
		return
	}
	switch at {
	case logger.Error:
		z.log.Errorf(format, args...)
	case logger.Warn:
		z.log.Warnf(format, args...)
	default:
		z.log.Infof(format, args...)
	}
}

// Trace logs failed statements, then slow ones; the rest only at Info level.
// gorm.ErrRecordNotFound is not an error here.
func (z zapGorm) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if z.level == logger.Silent {
		return
	}
	took := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := took > slowQuery

	var at logger.LogLevel
	switch {
	case failed:
		at = logger.Error
	case slow:
		at = logger.Warn
	default:
		at = logger.Info
	}
	if z.level < at {
		return
	}

	stmt, rows := fc()
	kv := []interface{}{"elapsed", took, "rows", rows, "sql", stmt}
	switch at {
	case logger.Error:
		z.log.Errorw("Query failed", append(kv, "error", err)...)
	case logger.Warn:
		z.log.Warnw("Slow query", kv...)
	default:
		z.log.Debugw("Query", kv...)
	}
}
