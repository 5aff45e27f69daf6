package keepawake

import (
	"errors"
	"os"
	"os/exec"
	"sync"

	"go.uber.org/zap"
)

// Command returns the helper that holds a sleep inhibitor while it runs, or
// nil when the platform has none. Windows is served by the execution state
// of a pinned thread instead of a helper.
func Command(goos string) []string {
	switch goos {
	case "linux":
		return []string{"systemd-inhibit", "--what=idle:sleep", "--who=nregabot",
			"--why=Automation running", "--mode=block", "sleep", "infinity"}
	case "darwin":
		return []string{"caffeinate", "-dims"}
	default:
		return nil
	}
}

// holder keeps the machine awake from a successful start until stop.
type holder interface {
	start() error
	stop()
	String() string
}

// Inhibitor keeps the machine awake between Hold and Release.
type Inhibitor struct {
	mu      sync.Mutex
	enabled bool
	hold    func() holder
	held    holder
	logger  *zap.Logger
}

func New(enabled bool, logger *zap.Logger) *Inhibitor {
	return newInhibitor(enabled, platformHolder(logger.Named("keepawake")), logger)
}

func newInhibitor(enabled bool, hold func() holder, logger *zap.Logger) *Inhibitor {
	return &Inhibitor{
		enabled: enabled && hold != nil,
		hold:    hold,
		logger:  logger.Named("keepawake"),
	}
}

// Active reports whether sleep is currently inhibited.
func (in *Inhibitor) Active() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.held != nil
}

// Hold starts the inhibitor. Calling Hold while active is a no-op.
func (in *Inhibitor) Hold() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.enabled || in.held != nil {
		return
	}

	h := in.hold()
	if err := h.start(); err != nil {
		in.logger.Warn("Cannot prevent system sleep", zap.Stringer("via", h), zap.Error(err))
		return
	}
	in.held = h
	in.logger.Debug("Sleep inhibited", zap.Stringer("via", h))
}

// Release stops the inhibitor and waits for it to let go.
func (in *Inhibitor) Release() {
	in.mu.Lock()
	h := in.held
	in.held = nil
	in.mu.Unlock()
	if h == nil {
		return
	}
	h.stop()
	in.logger.Debug("Sleep allowed")
}

// Close releases any held inhibitor.
func (in *Inhibitor) Close() error {
	in.Release()
	return nil
}

// processHolder runs argv for as long as sleep should be inhibited. It
// returns nil for an empty argv.
func processHolder(argv []string, logger *zap.Logger) func() holder {
	if len(argv) == 0 {
		return nil
	}
	return func() holder { return &process{argv: argv, logger: logger} }
}

type process struct {
	argv   []string
	logger *zap.Logger
	cmd    *exec.Cmd
	done   chan struct{}
}

func (p *process) String() string { return p.argv[0] }

func (p *process) start() error {
	cmd := exec.Command(p.argv[0], p.argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(done)
	}()
	p.cmd, p.done = cmd, done
	return nil
}

func (p *process) stop() {
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to stop sleep inhibitor", zap.Error(err))
	}
	<-p.done
}
