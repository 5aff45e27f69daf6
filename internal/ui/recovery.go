package ui

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// ProgramFactory builds the model and options of one UI incarnation.
// restarts is 0 for the first start.
type ProgramFactory func(restarts int) (tea.Model, []tea.ProgramOption)

const crashedView = "UI Error: View crashed. Press Ctrl+C to exit."

// errPanicked marks a UI incarnation that ended in a panic.
var errPanicked = errors.New("UI panic")

// RecoveryHandler restarts the UI after a crash. Runs keep going in the
// background while the UI is down; a restarted model picks the event stream
// up where the previous one left it.
type RecoveryHandler struct {
	logger       *zap.Logger
	restartDelay time.Duration
	maxRestarts  int
	factory      ProgramFactory

	mu       sync.Mutex
	program  *tea.Program
	restarts int
	stopped  bool
}

func NewRecoveryHandler(logger *zap.Logger, factory ProgramFactory) *RecoveryHandler {
	return &RecoveryHandler{
		logger:       logger,
		restartDelay: time.Second,
		maxRestarts:  5,
		factory:      factory,
	}
}

// RunWithRecovery runs the UI until it exits normally, is stopped, or has
// crashed more than maxRestarts times.
func (rh *RecoveryHandler) RunWithRecovery() error {
	for {
		crash := rh.runOnce()
		if crash == nil {
			return nil
		}
		n, stopped := rh.recordCrash()
		if stopped {
			return nil
		}
		if n > rh.maxRestarts {
			return fmt.Errorf("UI crashed %d times, giving up: %w", rh.maxRestarts, crash)
		}
		rh.logger.Error("Restarting UI",
			zap.Error(crash),
			zap.Int("attempt", n),
			zap.Int("max_attempts", rh.maxRestarts),
			zap.Duration("delay", rh.restartDelay))
		time.Sleep(rh.restartDelay)
	}
}

// recordCrash counts a crash unless the handler was stopped meanwhile.
func (rh *RecoveryHandler) recordCrash() (restarts int, stopped bool) {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	if rh.stopped {
		return rh.restarts, true
	}
	rh.restarts++
	return rh.restarts, false
}

// runOnce runs a single UI incarnation and turns a panic into an error.
func (rh *RecoveryHandler) runOnce() (crash error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		rh.logger.Error("UI goroutine panicked",
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()))
		crash = fmt.Errorf("%w: %v", errPanicked, r)
	}()

	model, opts := rh.factory(rh.GetRestartCount())
	p := tea.NewProgram(model, opts...)
	if !rh.attach(p) {
		return nil
	}
	defer rh.attach(nil)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("UI error: %w", err)
	}
	return nil
}

// attach records the running program. It refuses a new program after Stop.
func (rh *RecoveryHandler) attach(p *tea.Program) bool {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	if p != nil && rh.stopped {
		return false
	}
	rh.program = p
	return true
}

// Stop quits the running UI and prevents further restarts.
func (rh *RecoveryHandler) Stop() {
	rh.mu.Lock()
	p := rh.program
	rh.stopped = true
	rh.mu.Unlock()

	if p != nil {
		p.Quit()
	}
}

func (rh *RecoveryHandler) GetRestartCount() int {
	rh.mu.Lock()
	defer rh.mu.Unlock()
	return rh.restarts
}

// SafeUIWrapper contains panics of the wrapped model. A panicking Update keeps
// the previous model state; a panicking View renders a fixed error line.
type SafeUIWrapper struct {
	inner  tea.Model
	logger *zap.Logger
}

func NewSafeUIWrapper(model tea.Model, logger *zap.Logger) *SafeUIWrapper {
	return &SafeUIWrapper{inner: model, logger: logger}
}

func (sw *SafeUIWrapper) Init() tea.Cmd {
	var cmd tea.Cmd
	sw.guard("Init", func() { cmd = sw.inner.Init() })
	return cmd
}

// Resumer is implemented by models that keep a command chain alive, such as
// an event listener, which a contained Update panic would otherwise cut.
type Resumer interface {
	Resume() tea.Cmd
}

func (sw *SafeUIWrapper) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	ok := sw.guard("Update", func() {
		next, c := sw.inner.Update(msg)
		if next != nil {
			sw.inner = next
		}
		cmd = c
	})
	if !ok {
		if r, isResumer := sw.inner.(Resumer); isResumer {
			sw.guard("Resume", func() { cmd = r.Resume() })
		}
	}
	return sw, cmd
}

func (sw *SafeUIWrapper) View() string {
	view := crashedView
	sw.guard("View", func() { view = sw.inner.View() })
	return view
}

// Model returns the wrapped model.
func (sw *SafeUIWrapper) Model() tea.Model {
	return sw.inner
}

// guard runs fn and logs a panic instead of propagating it. It reports
// whether fn returned normally.
func (sw *SafeUIWrapper) guard(method string, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			sw.logger.Error("Model panic contained",
				zap.String("method", method),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn()
	return true
}
