package logger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"go.uber.org/zap"
)

const defaultFlushInterval = 2 * time.Second

// ResultHeader is the column layout of result CSV files.
var ResultHeader = []string{"timestamp", "task", "run_id", "item", "outcome", "detail"}

// ResultRow converts a record to a ResultHeader-ordered row.
func ResultRow(rec domain.ResultRecord) []string {
	return []string{
		rec.Timestamp.Format(time.RFC3339),
		string(rec.Key),
		rec.RunID,
		rec.Item,
		string(rec.Outcome),
		rec.Detail,
	}
}

var errWriterClosed = errors.New("csv writer is closed")

// SafeCSVWriter streams result rows of a headless run to a CSV file. Writes
// may come from any goroutine; a flush is scheduled after the first write
// following the previous flush, so an idle writer does no I/O.
type SafeCSVWriter struct {
	mu       sync.Mutex
	file     *os.File
	csv      *csv.Writer
	interval time.Duration
	pending  *time.Timer
	closed   bool
	logger   *zap.Logger

	tally   domain.Tally
	rows    uint64
	flushes uint64
}

// NewSafeCSVWriter opens path for appending. The header is written only
// when the file is new or empty.
func NewSafeCSVWriter(path string, flushInterval time.Duration, logger *zap.Logger) (*SafeCSVWriter, error) {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	w := &SafeCSVWriter{
		file:     f,
		csv:      csv.NewWriter(f),
		interval: flushInterval,
		logger:   logger.With(zap.String("file", path)),
	}
	if st.Size() == 0 {
		err := w.csv.Write(ResultHeader)
		w.csv.Flush()
		if err == nil {
			err = w.csv.Error()
		}
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}
	return w, nil
}

// WriteResult appends one result record.
func (w *SafeCSVWriter) WriteResult(rec domain.ResultRecord) error {
	if err := w.WriteRecord(ResultRow(rec)); err != nil {
		return err
	}
	w.mu.Lock()
	w.tally.Add(rec.Outcome)
	w.mu.Unlock()
	return nil
}

// WriteRecord appends a raw row.
func (w *SafeCSVWriter) WriteRecord(row []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return errWriterClosed
	}
	if err := w.csv.Write(row); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	w.rows++
	if w.pending == nil {
		w.pending = time.AfterFunc(w.interval, w.timedFlush)
	}
	return nil
}

func (w *SafeCSVWriter) timedFlush() {
	if err := w.Flush(); err != nil && !errors.Is(err, errWriterClosed) {
		w.logger.Error("Periodic CSV flush failed", zap.Error(err))
	}
}

// Flush writes buffered rows and syncs the file.
func (w *SafeCSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errWriterClosed
	}
	return w.flushLocked()
}

func (w *SafeCSVWriter) flushLocked() error {
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	w.flushes++
	return nil
}

// Close flushes and closes the file. Further writes fail.
func (w *SafeCSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.flushLocked()
	if err := w.file.Close(); err != nil && flushErr == nil {
		flushErr = fmt.Errorf("failed to close file: %w", err)
	}
	w.logger.Debug("Result CSV closed",
		zap.Uint64("rows", w.rows),
		zap.Int("success", w.tally.Success),
		zap.Int("failed", w.tally.Failed),
		zap.Int("skipped", w.tally.Skipped))
	return flushErr
}

// Path of the underlying file.
func (w *SafeCSVWriter) Path() string {
	return w.file.Name()
}

// GetStats returns the rows written, the flush count and the outcome tally
// of rows written through WriteResult.
func (w *SafeCSVWriter) GetStats() (rows, flushes uint64, tally domain.Tally) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows, w.flushes, w.tally
}
