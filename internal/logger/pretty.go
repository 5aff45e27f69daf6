// internal/logger/pretty.go
package logger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Colors for terminal output
const (
	ColorReset  = "\033[0m"
	ColorRed    = "\033[31m"
	ColorGreen  = "\033[32m"
	ColorYellow = "\033[33m"
	ColorBlue   = "\033[34m"
	ColorPurple = "\033[35m"
	ColorCyan   = "\033[36m"
	ColorBold   = "\033[1m"
)

func prettyEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		TimeKey:        "time",
		CallerKey:      "",
		StacktraceKey:  "",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    customLevelEncoder,
		EncodeTime:     customTimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

// customLevelEncoder formats log levels with colors
func customLevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.DebugLevel:
		enc.AppendString(fmt.Sprintf("%s[DEBUG]%s", ColorCyan, ColorReset))
	case zapcore.InfoLevel:
		enc.AppendString(fmt.Sprintf("%s[INFO]%s", ColorGreen, ColorReset))
	case zapcore.WarnLevel:
		enc.AppendString(fmt.Sprintf("%s[WARN]%s", ColorYellow, ColorReset))
	case zapcore.ErrorLevel:
		enc.AppendString(fmt.Sprintf("%s[ERROR]%s", ColorRed, ColorReset))
	case zapcore.FatalLevel:
		enc.AppendString(fmt.Sprintf("%s[FATAL]%s", ColorRed+ColorBold, ColorReset))
	default:
		enc.AppendString(fmt.Sprintf("[%s]", level.CapitalString()))
	}
}

func customTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("15:04:05"))
}

func levelFor(debug bool) zapcore.Level {
	if debug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// NewPrettyCore is the console core used by headless commands.
func NewPrettyCore(debug bool) zapcore.Core {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(prettyEncoderConfig()),
		zapcore.Lock(os.Stdout),
		levelFor(debug),
	)
	return &FieldFilterCore{core: core}
}

// CreatePrettyLogger creates a logger with user-friendly output
func CreatePrettyLogger(debug bool) *zap.Logger {
	return zap.New(NewPrettyCore(debug))
}

// FormatMessage renders well-known runner messages as a single readable line.
// Unknown messages are returned unchanged.
func FormatMessage(msg string, fields []zapcore.Field) string {
	switch msg {
	case "Task started":
		return fmt.Sprintf("%s▶ %s started%s", ColorBlue, extractField(fields, "task"), ColorReset)

	case "Progress":
		return fmt.Sprintf("%s… %s%s", ColorCyan, extractField(fields, "message"), ColorReset)

	case "Item processed":
		item := extractField(fields, "item")
		detail := extractField(fields, "detail")
		switch extractField(fields, "outcome") {
		case "success":
			return fmt.Sprintf("%s✓ %s%s %s", ColorGreen, item, ColorReset, detail)
		case "failed":
			return fmt.Sprintf("%s✗ %s%s %s", ColorRed, item, ColorReset, detail)
		default:
			return fmt.Sprintf("%s- %s%s %s", ColorYellow, item, ColorReset, detail)
		}

	case "Task finished":
		return fmt.Sprintf("%s■ %s %s (%s results, %s)%s", ColorPurple+ColorBold,
			extractField(fields, "task"), extractField(fields, "state"),
			extractField(fields, "results"), extractField(fields, "elapsed"), ColorReset)

	case "Task failed":
		return fmt.Sprintf("%s■ %s failed: %s%s", ColorRed+ColorBold,
			extractField(fields, "task"), extractField(fields, "error"), ColorReset)

	case "Connected to browser":
		return fmt.Sprintf("%s🔌 Connected to browser at %s%s", ColorGreen, extractField(fields, "addr"), ColorReset)
	}

	if err := extractField(fields, "error"); err != "" {
		return msg + ": " + err
	}
	return msg
}

func extractField(fields []zapcore.Field, key string) string {
	for _, field := range fields {
		if field.Key != key {
			continue
		}
		switch field.Type {
		case zapcore.StringType:
			return field.String
		case zapcore.Int64Type, zapcore.Int32Type:
			return fmt.Sprintf("%d", field.Integer)
		case zapcore.DurationType:
			return time.Duration(field.Integer).Round(time.Millisecond).String()
		case zapcore.ErrorType:
			if err, ok := field.Interface.(error); ok {
				return err.Error()
			}
		}
		if field.Interface != nil {
			return fmt.Sprintf("%v", field.Interface)
		}
		return ""
	}
	return ""
}

// FieldFilterCore drops structured fields and prints FormatMessage output
// instead. Fields added through With are kept so the formatter can see them.
type FieldFilterCore struct {
	core   zapcore.Core
	fields []zapcore.Field
}

func (c *FieldFilterCore) Enabled(level zapcore.Level) bool {
	return c.core.Enabled(level)
}

func (c *FieldFilterCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(c.fields)+len(fields))
	merged = append(merged, c.fields...)
	merged = append(merged, fields...)
	return &FieldFilterCore{core: c.core, fields: merged}
}

func (c *FieldFilterCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *FieldFilterCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	all := append(append([]zapcore.Field(nil), c.fields...), fields...)
	clean := entry
	clean.Message = FormatMessage(entry.Message, all)
	if entry.LoggerName != "" && clean.Message == entry.Message {
		clean.Message = strings.ToUpper(entry.LoggerName[:1]) + entry.LoggerName[1:] + ": " + entry.Message
	}
	clean.LoggerName = ""
	return c.core.Write(clean, nil)
}

func (c *FieldFilterCore) Sync() error {
	return c.core.Sync()
}
