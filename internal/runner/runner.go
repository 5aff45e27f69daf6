// internal/runner/runner.go
package runner

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nregabot/nregabot/internal/domain"
	"go.uber.org/zap"
)

// WorkFunc is the body of one run. Caller arguments are captured by the closure.
// The function must poll rep.Stopped (or ctx) between items and return when set.
type WorkFunc func(ctx context.Context, rep *Reporter) error

// Hooks are invoked from worker goroutines, never while the runner lock is held.
type Hooks struct {
	// OnBusy fires when the first run becomes active, OnIdle when the last one ends.
	OnBusy func()
	OnIdle func()
	// OnFinish receives the terminal event and the run's result log.
	OnFinish func(ev domain.FinishedEvent, results []domain.ResultRecord)
}

type Options struct {
	EventBuffer int
	Hooks       Hooks
}

// Snapshot is a point-in-time copy of a task key's state.
type Snapshot struct {
	Key             domain.Key
	RunID           string
	Running         bool
	CancelRequested bool
	Progress        float64
	Status          string
	LastState       domain.State
	StartedAt       time.Time
	FinishedAt      time.Time
	Tally           domain.Tally
}

// State collapses the snapshot to the lifecycle state machine: a key is either
// Running or Idle between runs.
func (s Snapshot) State() domain.State {
	if s.Running {
		return domain.StateRunning
	}
	return domain.StateIdle
}

type task struct {
	key             domain.Key
	runID           string
	running         bool
	cancelRequested bool
	cancel          context.CancelFunc
	progress        float64
	status          string
	last            domain.State
	results         []domain.ResultRecord
	startedAt       time.Time
	finishedAt      time.Time
	finished        chan struct{}
}

// Runner manages at most one background run per task key.
type Runner struct {
	logger *zap.Logger
	hooks  Hooks
	events chan domain.Event

	base       context.Context
	baseCancel context.CancelFunc

	mu     sync.Mutex
	tasks  map[domain.Key]*task
	active int
	closed bool
	wg     sync.WaitGroup

	hookMu sync.Mutex
	busy   bool
}

func New(logger *zap.Logger, opts Options) *Runner {
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 256
	}
	base, cancel := context.WithCancel(context.Background())
	return &Runner{
		logger:     logger.Named("runner"),
		hooks:      opts.Hooks,
		events:     make(chan domain.Event, opts.EventBuffer),
		base:       base,
		baseCancel: cancel,
		tasks:      make(map[domain.Key]*task),
	}
}

// Events is the single ordered queue drained by the UI loop.
func (r *Runner) Events() <-chan domain.Event {
	return r.events
}

// Start spawns fn for key and returns the new run id. It never blocks on the worker.
func (r *Runner) Start(key domain.Key, fn WorkFunc) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("start %s: nil work function", key)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", domain.ErrShuttingDown
	}
	t, ok := r.tasks[key]
	if !ok {
		t = &task{key: key, last: domain.StateIdle}
		r.tasks[key] = t
	}
	if t.running {
		r.mu.Unlock()
		r.logger.Warn("Start rejected, task already running", zap.String("task", string(key)))
		return "", &domain.AlreadyRunningError{Key: key}
	}

	ctx, cancel := context.WithCancel(r.base)
	runID := uuid.NewString()
	t.runID = runID
	t.running = true
	t.cancelRequested = false
	t.cancel = cancel
	t.progress = 0
	t.status = "Starting..."
	t.results = nil
	t.startedAt = time.Now()
	t.finishedAt = time.Time{}
	t.finished = make(chan struct{})
	r.active++
	r.wg.Add(1)

	rep := &Reporter{
		runner: r,
		task:   t,
		key:    key,
		runID:  runID,
		ctx:    ctx,
		logger: r.logger.With(zap.String("task", string(key)), zap.String("run_id", runID)),
	}
	started := t.startedAt
	r.mu.Unlock()

	r.syncBusy()

	rep.logger.Info("Task started")
	go r.run(ctx, t, rep, fn, started)
	return runID, nil
}

func (r *Runner) run(ctx context.Context, t *task, rep *Reporter, fn WorkFunc, started time.Time) {
	defer r.wg.Done()

	var err error
	defer func() {
		r.finish(t, rep, err, started)
	}()

	r.emit(domain.StartedEvent{Header: rep.header()})
	err = r.invoke(ctx, fn, rep)
}

// invoke contains panics so the cleanup path always runs.
func (r *Runner) invoke(ctx context.Context, fn WorkFunc, rep *Reporter) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			rep.logger.Error("Work function panicked",
				zap.Any("panic", rec),
				zap.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return fn(ctx, rep)
}

func (r *Runner) finish(t *task, rep *Reporter, err error, started time.Time) {
	r.mu.Lock()
	state := domain.StateCompleted
	switch {
	case t.cancelRequested:
		state = domain.StateCancelled
	case err != nil:
		state = domain.StateFailed
	}

	tally := domain.CountOutcomes(t.results)
	var msg string
	switch state {
	case domain.StateCancelled:
		msg = fmt.Sprintf("Cancelled after %d item(s)", tally.Total())
	case domain.StateFailed:
		msg = "Failed: " + err.Error()
	default:
		msg = fmt.Sprintf("Completed: %d success, %d failed, %d skipped",
			tally.Success, tally.Failed, tally.Skipped)
	}

	t.running = false
	t.cancel()
	t.cancel = nil
	t.last = state
	t.status = msg
	t.finishedAt = time.Now()
	if state == domain.StateCompleted {
		t.progress = 1
	}
	results := append([]domain.ResultRecord(nil), t.results...)
	finished := t.finished
	r.active--
	r.mu.Unlock()

	close(finished)
	r.syncBusy()

	ev := domain.FinishedEvent{
		Header:  rep.header(),
		State:   state,
		Message: msg,
		Tally:   tally,
		Elapsed: time.Since(started),
	}
	if state == domain.StateFailed {
		ev.Err = err
		rep.logger.Error("Task failed", zap.Error(err), zap.Duration("elapsed", ev.Elapsed))
	} else {
		rep.logger.Info("Task finished",
			zap.String("state", state.String()),
			zap.Int("results", tally.Total()),
			zap.Duration("elapsed", ev.Elapsed))
	}

	if r.hooks.OnFinish != nil {
		r.hooks.OnFinish(ev, results)
	}
	r.emit(ev)
}

// syncBusy fires OnBusy/OnIdle on transitions of the active count.
func (r *Runner) syncBusy() {
	r.hookMu.Lock()
	defer r.hookMu.Unlock()

	r.mu.Lock()
	busy := r.active > 0
	r.mu.Unlock()

	if busy == r.busy {
		return
	}
	r.busy = busy
	if busy && r.hooks.OnBusy != nil {
		r.hooks.OnBusy()
	}
	if !busy && r.hooks.OnIdle != nil {
		r.hooks.OnIdle()
	}
}

// emit blocks until the event is queued. Events are only dropped once the runner
// is shutting down.
func (r *Runner) emit(ev domain.Event) {
	select {
	case r.events <- ev:
		return
	default:
	}
	select {
	case r.events <- ev:
	case <-r.base.Done():
		r.logger.Debug("Event dropped during shutdown", zap.String("task", string(ev.TaskKey())))
	}
}

// RequestStop sets the cancellation signal of key. Repeated calls are no-ops.
func (r *Runner) RequestStop(key domain.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[key]
	if !ok || !t.running {
		return false
	}
	if !t.cancelRequested {
		t.cancelRequested = true
		t.status = "Stopping..."
		t.cancel()
		r.logger.Info("Stop requested", zap.String("task", string(key)), zap.String("run_id", t.runID))
	}
	return true
}

func (r *Runner) IsRunning(key domain.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[key]
	return ok && t.running
}

func (r *Runner) Snapshot(key domain.Key) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[key]
	if !ok {
		return Snapshot{Key: key, LastState: domain.StateIdle}
	}
	return Snapshot{
		Key:             key,
		RunID:           t.runID,
		Running:         t.running,
		CancelRequested: t.cancelRequested,
		Progress:        t.progress,
		Status:          t.status,
		LastState:       t.last,
		StartedAt:       t.startedAt,
		FinishedAt:      t.finishedAt,
		Tally:           domain.CountOutcomes(t.results),
	}
}

// Results returns a copy of the current (or last) run's result log.
func (r *Runner) Results(key domain.Key) []domain.ResultRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[key]
	if !ok {
		return nil
	}
	return append([]domain.ResultRecord(nil), t.results...)
}

// Running lists the keys with an active run.
func (r *Runner) Running() []domain.Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	var keys []domain.Key
	for k, t := range r.tasks {
		if t.running {
			keys = append(keys, k)
		}
	}
	return keys
}

// Wait blocks until the current run of key has finished or ctx is done.
func (r *Runner) Wait(ctx context.Context, key domain.Key) error {
	r.mu.Lock()
	t, ok := r.tasks[key]
	if !ok || !t.running {
		r.mu.Unlock()
		return nil
	}
	finished := t.finished
	r.mu.Unlock()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown requests a stop of every active run and waits for them until ctx expires.
// New starts are rejected afterwards. The event consumer is expected to be gone,
// so events emitted meanwhile are discarded instead of blocking the workers.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	n := 0
	for _, t := range r.tasks {
		if t.running {
			n++
			if !t.cancelRequested {
				t.cancelRequested = true
				t.status = "Stopping..."
				t.cancel()
			}
		}
	}
	r.mu.Unlock()

	r.logger.Info("Shutting down runner", zap.Int("active", n))

	stopDiscard := r.discard()
	defer stopDiscard()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	defer r.baseCancel()
	select {
	case <-done:
		r.logger.Info("All tasks stopped")
		return nil
	case <-ctx.Done():
		left := r.Running()
		r.logger.Error("Shutdown grace period exceeded", zap.Int("still_running", len(left)))
		return fmt.Errorf("%d task(s) still running: %w", len(left), ctx.Err())
	}
}

// discard empties the event queue until the returned func is called.
func (r *Runner) discard() (stop func()) {
	quit := make(chan struct{})
	count := make(chan int, 1)
	go func() {
		n := 0
		for {
			select {
			case <-r.events:
				n++
			case <-quit:
				count <- n
				return
			}
		}
	}()
	return func() {
		close(quit)
		if n := <-count; n > 0 {
			r.logger.Debug("Discarded events during shutdown", zap.Int("events", n))
		}
	}
}

// Close implements io.Closer with a fixed grace period.
func (r *Runner) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return r.Shutdown(ctx)
}
