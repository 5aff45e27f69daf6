package runner

import (
	"context"
	"math"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"go.uber.org/zap"
)

// Reporter is the worker's handle back to the runner. Calls after the run has
// finished are ignored.
type Reporter struct {
	runner *Runner
	task   *task
	key    domain.Key
	runID  string
	ctx    context.Context
	logger *zap.Logger
}

func (rep *Reporter) Key() domain.Key     { return rep.key }
func (rep *Reporter) RunID() string       { return rep.runID }
func (rep *Reporter) Logger() *zap.Logger { return rep.logger }

// Stopped reports whether a stop was requested for this run.
func (rep *Reporter) Stopped() bool {
	return rep.ctx.Err() != nil
}

// Done is closed when the run's cancellation signal is set.
func (rep *Reporter) Done() <-chan struct{} {
	return rep.ctx.Done()
}

// Sleep waits for d unless a stop is requested first. It returns false if the
// sleep was interrupted.
func (rep *Reporter) Sleep(d time.Duration) bool {
	if d <= 0 {
		return !rep.Stopped()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-rep.ctx.Done():
		return false
	}
}

// Progress updates the status line. fraction is clamped to [0,1].
func (rep *Reporter) Progress(message string, fraction float64) {
	if math.IsNaN(fraction) || fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}

	r := rep.runner
	r.mu.Lock()
	if !rep.current() {
		r.mu.Unlock()
		return
	}
	rep.task.progress = fraction
	rep.task.status = message
	r.mu.Unlock()

	rep.logger.Debug("Progress", zap.String("message", message), zap.Float64("fraction", fraction))
	r.emit(domain.ProgressEvent{Header: rep.header(), Message: message, Fraction: fraction})
}

// Result appends one record to the run's result log.
func (rep *Reporter) Result(item string, outcome domain.Outcome, detail string) {
	rec := domain.ResultRecord{
		RunID:     rep.runID,
		Key:       rep.key,
		Item:      item,
		Outcome:   outcome,
		Detail:    detail,
		Timestamp: time.Now(),
	}

	r := rep.runner
	r.mu.Lock()
	if !rep.current() {
		r.mu.Unlock()
		return
	}
	rep.task.results = append(rep.task.results, rec)
	r.mu.Unlock()

	rep.logger.Info("Item processed",
		zap.String("item", item),
		zap.String("outcome", string(outcome)),
		zap.String("detail", detail))
	r.emit(domain.ResultEvent{Header: rep.header(), Record: rec})
}

// current must be called with the runner lock held.
func (rep *Reporter) current() bool {
	return rep.task.running && rep.task.runID == rep.runID
}

func (rep *Reporter) header() domain.Header {
	return domain.Header{Key: rep.key, RunID: rep.runID, Timestamp: time.Now()}
}
