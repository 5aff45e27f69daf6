package state

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"go.uber.org/zap"
)

// TaskView is what the UI knows about one task key, rebuilt purely from
// runner events.
type TaskView struct {
	Key      domain.Key
	RunID    string
	State    domain.State
	Message  string
	Fraction float64
	Results  []domain.ResultRecord
	Tally    domain.Tally
	Err      error
	Started  time.Time
	Elapsed  time.Duration
	Updated  time.Time
}

// Running reports whether the view shows an active run.
func (v TaskView) Running() bool {
	return v.State == domain.StateRunning
}

// Board is the UI-side projection of every task's run state. Workers never
// touch it; it changes only through Apply.
type Board struct {
	tasks  map[domain.Key]*TaskView
	mu     sync.RWMutex
	logger *zap.Logger

	// Statistics (accessed atomically)
	applied uint64
	stale   uint64
}

// NewBoard creates an empty board
func NewBoard(logger *zap.Logger) *Board {
	return &Board{
		tasks:  make(map[domain.Key]*TaskView),
		logger: logger,
	}
}

// Apply folds one event into the board. Events of a run other than the one
// currently shown for the key are dropped.
func (b *Board) Apply(ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	v := b.tasks[ev.TaskKey()]
	if v == nil {
		v = &TaskView{Key: ev.TaskKey()}
		b.tasks[ev.TaskKey()] = v
	}

	if _, ok := ev.(domain.StartedEvent); !ok && ev.Run() != v.RunID {
		atomic.AddUint64(&b.stale, 1)
		b.logger.Debug("Dropping event of a stale run",
			zap.String("task", string(ev.TaskKey())),
			zap.String("run_id", ev.Run()))
		return
	}

	switch e := ev.(type) {
	case domain.StartedEvent:
		*v = TaskView{
			Key:     e.Key,
			RunID:   e.RunID,
			State:   domain.StateRunning,
			Message: "Starting",
			Started: e.Timestamp,
		}
	case domain.ProgressEvent:
		v.Message = e.Message
		v.Fraction = e.Fraction
	case domain.ResultEvent:
		v.Results = append(v.Results, e.Record)
		v.Tally.Add(e.Record.Outcome)
	case domain.FinishedEvent:
		v.State = e.State
		v.Message = e.Message
		v.Err = e.Err
		v.Elapsed = e.Elapsed
		if e.State == domain.StateCompleted {
			v.Fraction = 1
		}
	}
	v.Updated = ev.Time()
	atomic.AddUint64(&b.applied, 1)
}

// Get returns a copy of the view of key. Unknown keys are idle.
func (b *Board) Get(key domain.Key) TaskView {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.tasks[key]
	if !ok {
		return TaskView{Key: key}
	}
	out := *v
	out.Results = append([]domain.ResultRecord(nil), v.Results...)
	return out
}

// Reset forgets the last run of key. An active run is kept.
func (b *Board) Reset(key domain.Key) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if v, ok := b.tasks[key]; ok && v.Running() {
		return false
	}
	delete(b.tasks, key)
	return true
}

// Running returns the keys with an active run, sorted.
func (b *Board) Running() []domain.Key {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var keys []domain.Key
	for k, v := range b.tasks {
		if v.Running() {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// GetStats returns board statistics
func (b *Board) GetStats() (tasks, applied, stale uint64) {
	b.mu.RLock()
	tasks = uint64(len(b.tasks))
	b.mu.RUnlock()

	return tasks, atomic.LoadUint64(&b.applied), atomic.LoadUint64(&b.stale)
}
