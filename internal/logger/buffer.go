package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEntry is one captured log line. Task and RunID are lifted out of the
// structured fields so the logs screen can tag lines by run.
type LogEntry struct {
	Seq       uint64                 `json:"seq"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Logger    string                 `json:"logger,omitempty"`
	Task      string                 `json:"task,omitempty"`
	RunID     string                 `json:"run_id,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// LogBuffer keeps the newest entries in memory. Entries pushed out of the
// ring are appended to a JSON-lines spill file so nothing is lost while the
// TUI owns the terminal.
type LogBuffer struct {
	mu     sync.Mutex
	ring   []LogEntry
	head   int // index of the oldest entry
	size   int
	seq    uint64
	spill  *os.File
	w      *bufio.Writer
	logger *zap.Logger

	spilled uint64
}

// NewLogBuffer creates a buffer holding capacity entries.
func NewLogBuffer(capacity int, spillPath string, logger *zap.Logger) (*LogBuffer, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid buffer size %d", capacity)
	}
	if err := os.MkdirAll(filepath.Dir(spillPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(spillPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open spill file: %w", err)
	}
	return &LogBuffer{
		ring:   make([]LogEntry, capacity),
		spill:  f,
		w:      bufio.NewWriter(f),
		logger: logger,
	}, nil
}

// Add records a plain entry.
func (lb *LogBuffer) Add(level, message string, fields map[string]interface{}) {
	lb.push(LogEntry{Timestamp: time.Now(), Level: level, Message: message, Fields: fields})
}

func (lb *LogBuffer) push(e LogEntry) {
	e.Task, _ = e.Fields["task"].(string)
	e.RunID, _ = e.Fields["run_id"].(string)

	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.seq++
	e.Seq = lb.seq
	if lb.size < len(lb.ring) {
		lb.ring[(lb.head+lb.size)%len(lb.ring)] = e
		lb.size++
		return
	}
	if err := lb.writeSpill(lb.ring[lb.head]); err != nil {
		lb.logger.Error("Failed to spill log entry", zap.Error(err))
	} else {
		lb.spilled++
	}
	lb.ring[lb.head] = e
	lb.head = (lb.head + 1) % len(lb.ring)
}

func (lb *LogBuffer) writeSpill(e LogEntry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal log entry: %w", err)
	}
	data = append(data, '\n')
	if _, err := lb.w.Write(data); err != nil {
		return fmt.Errorf("failed to write to spill file: %w", err)
	}
	return nil
}

// Recent returns up to limit of the newest entries accepted by keep, oldest
// first. limit <= 0 means no limit and a nil keep accepts everything.
func (lb *LogBuffer) Recent(limit int, keep func(LogEntry) bool) []LogEntry {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	var out []LogEntry
	for i := lb.size - 1; i >= 0; i-- {
		e := lb.ring[(lb.head+i)%len(lb.ring)]
		if keep != nil && !keep(e) {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Seq is the sequence number of the newest entry. The logs screen compares it
// between ticks to skip redundant redraws.
func (lb *LogBuffer) Seq() uint64 {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.seq
}

// Flush writes buffered spill data to disk.
func (lb *LogBuffer) Flush() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	if err := lb.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush spill writer: %w", err)
	}
	return lb.spill.Sync()
}

// Close spills the entries still in memory and closes the file.
func (lb *LogBuffer) Close() error {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	for i := 0; i < lb.size; i++ {
		if err := lb.writeSpill(lb.ring[(lb.head+i)%len(lb.ring)]); err != nil {
			lb.logger.Error("Failed to spill entry during close", zap.Error(err))
		}
	}
	lb.size = 0
	if err := lb.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush during close: %w", err)
	}
	return lb.spill.Close()
}

// GetStats returns the number of entries seen and spilled.
func (lb *LogBuffer) GetStats() (total, spilled uint64) {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	return lb.seq, lb.spilled
}

// StartPeriodicFlush flushes every interval until the returned channel is closed.
func (lb *LogBuffer) StartPeriodicFlush(interval time.Duration) chan struct{} {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := lb.Flush(); err != nil {
					lb.logger.Error("Periodic flush failed", zap.Error(err))
				}
			case <-done:
				return
			}
		}
	}()
	return done
}

// BufferCore is a zapcore.Core feeding a LogBuffer.
type BufferCore struct {
	zapcore.LevelEnabler
	buffer *LogBuffer
	fields []zapcore.Field
}

func NewBufferCore(buffer *LogBuffer, level zapcore.LevelEnabler) *BufferCore {
	return &BufferCore{LevelEnabler: level, buffer: buffer}
}

func (c *BufferCore) With(fields []zapcore.Field) zapcore.Core {
	return &BufferCore{
		LevelEnabler: c.LevelEnabler,
		buffer:       c.buffer,
		fields:       append(append([]zapcore.Field(nil), c.fields...), fields...),
	}
}

func (c *BufferCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *BufferCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range c.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}
	e := LogEntry{
		Timestamp: entry.Time,
		Level:     entry.Level.CapitalString(),
		Logger:    entry.LoggerName,
		Message:   entry.Message,
	}
	if len(enc.Fields) > 0 {
		e.Fields = enc.Fields
	}
	c.buffer.push(e)
	return nil
}

func (c *BufferCore) Sync() error {
	return c.buffer.Flush()
}
