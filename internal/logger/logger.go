// internal/logger/logger.go
package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nregabot/nregabot/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewFileCore writes JSON logs to a size-rotated file.
func NewFileCore(cfg config.LoggingConfig) (zapcore.Core, *lumberjack.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	encoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(rotator), levelFor(cfg.Debug))
	return core, rotator, nil
}

// Bundle is the process-wide logger plus the sinks that must be closed on exit.
type Bundle struct {
	Logger  *zap.Logger
	Buffer  *LogBuffer
	rotator *lumberjack.Logger
	flush   chan struct{}
}

// New builds the application logger. With tui set, console output is replaced by
// an in-memory LogBuffer so nothing is written over the alternate screen.
func New(cfg config.LoggingConfig, tui bool) (*Bundle, error) {
	fileCore, rotator, err := NewFileCore(cfg)
	if err != nil {
		return nil, err
	}

	b := &Bundle{rotator: rotator}
	cores := []zapcore.Core{fileCore}

	if tui {
		size := cfg.BufferSize
		if size <= 0 {
			size = config.DefaultLogBuffer
		}
		spill := strings.TrimSuffix(cfg.File, filepath.Ext(cfg.File)) + ".spill.jsonl"
		buffer, err := NewLogBuffer(size, spill, zap.NewNop())
		if err != nil {
			_ = rotator.Close()
			return nil, err
		}
		b.Buffer = buffer
		b.flush = buffer.StartPeriodicFlush(defaultFlushInterval)
		cores = append(cores, NewBufferCore(buffer, levelFor(cfg.Debug)))
	} else {
		cores = append(cores, NewPrettyCore(cfg.Debug))
	}

	b.Logger = zap.New(zapcore.NewTee(cores...), zap.AddStacktrace(zapcore.ErrorLevel))
	return b, nil
}

// Close syncs and releases every sink.
func (b *Bundle) Close() error {
	var errs []error
	if err := Sync(b.Logger); err != nil {
		errs = append(errs, err)
	}
	if b.Buffer != nil {
		close(b.flush)
		if err := b.Buffer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := b.rotator.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Sync ignores the errors stdout/stderr return on terminals.
func Sync(l *zap.Logger) error {
	err := l.Sync()
	if err != nil && (strings.Contains(err.Error(), "invalid argument") ||
		strings.Contains(err.Error(), "inappropriate ioctl for device")) {
		return nil
	}
	return err
}
