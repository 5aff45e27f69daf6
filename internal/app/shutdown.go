package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultCloseTimeout = 10 * time.Second

// CloseFunc adapts a function to io.Closer.
type CloseFunc func() error

func (f CloseFunc) Close() error { return f() }

// ServiceOption tunes how one service is closed.
type ServiceOption func(*service)

// WithTimeout overrides the handler's default close timeout.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *service) { s.timeout = d }
}

// Concurrently lets the service close at the same time as the services next
// to it in the stack that were registered the same way.
func Concurrently() ServiceOption {
	return func(s *service) { s.concurrent = true }
}

type service struct {
	name       string
	closer     io.Closer
	timeout    time.Duration
	concurrent bool
}

// ShutdownHandler closes registered services in reverse registration order,
// each within its own timeout. A service that hangs is abandoned so the rest
// still get closed.
type ShutdownHandler struct {
	logger   *zap.Logger
	timeout  time.Duration
	mu       sync.Mutex
	services []service
	done     bool
}

func NewShutdownHandler(logger *zap.Logger, timeout time.Duration) *ShutdownHandler {
	if timeout <= 0 {
		timeout = defaultCloseTimeout
	}
	return &ShutdownHandler{logger: logger, timeout: timeout}
}

func (sh *ShutdownHandler) Add(name string, closer io.Closer, opts ...ServiceOption) {
	s := service{name: name, closer: closer, timeout: sh.timeout}
	for _, opt := range opts {
		opt(&s)
	}
	sh.mu.Lock()
	sh.services = append(sh.services, s)
	sh.mu.Unlock()
	sh.logger.Debug("Registered service for shutdown", zap.String("service", name))
}

func (sh *ShutdownHandler) AddFunc(name string, fn func() error, opts ...ServiceOption) {
	sh.Add(name, CloseFunc(fn), opts...)
}

// Shutdown closes every service once; later calls return nil.
func (sh *ShutdownHandler) Shutdown(ctx context.Context) error {
	sh.mu.Lock()
	if sh.done {
		sh.mu.Unlock()
		return nil
	}
	sh.done = true
	services := append([]service(nil), sh.services...)
	sh.mu.Unlock()

	sh.logger.Debug("Starting graceful shutdown", zap.Int("services", len(services)))

	var errs []error
	for _, batch := range batches(services) {
		errs = append(errs, sh.closeBatch(ctx, batch)...)
	}
	if len(errs) > 0 {
		sh.logger.Warn("Shutdown completed with errors", zap.Int("errors", len(errs)))
		return errors.Join(errs...)
	}
	sh.logger.Debug("Graceful shutdown completed")
	return nil
}

// batches walks services last to first, grouping adjacent concurrent ones.
func batches(services []service) [][]service {
	var out [][]service
	for i := len(services) - 1; i >= 0; i-- {
		s := services[i]
		if n := len(out); n > 0 && s.concurrent && out[n-1][0].concurrent {
			out[n-1] = append(out[n-1], s)
			continue
		}
		out = append(out, []service{s})
	}
	return out
}

func (sh *ShutdownHandler) closeBatch(ctx context.Context, batch []service) []error {
	var (
		mu   sync.Mutex
		errs []error
		g    errgroup.Group
	)
	for _, s := range batch {
		g.Go(func() error {
			if err := sh.closeOne(ctx, s); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (sh *ShutdownHandler) closeOne(ctx context.Context, s service) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sh.logger.Debug("Shutting down service", zap.String("service", s.name))
	done := make(chan error, 1)
	go func() { done <- s.closer.Close() }()

	select {
	case err := <-done:
		if err != nil {
			sh.logger.Error("Failed to shutdown service", zap.String("service", s.name), zap.Error(err))
			return fmt.Errorf("%s: %w", s.name, err)
		}
		return nil
	case <-ctx.Done():
		sh.logger.Error("Shutdown timeout for service",
			zap.String("service", s.name),
			zap.Duration("timeout", s.timeout))
		return fmt.Errorf("%s: shutdown timeout", s.name)
	}
}
