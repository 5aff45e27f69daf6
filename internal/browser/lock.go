package browser

import (
	"context"
	"sync"

	"github.com/nregabot/nregabot/internal/domain"
	"go.uber.org/zap"
)

// SessionLock serializes access to the single shared browser session across
// task keys. It is held for the whole run of a task.
type SessionLock struct {
	slot   chan struct{}
	mu     sync.Mutex
	holder domain.Key
	logger *zap.Logger
}

func NewSessionLock(logger *zap.Logger) *SessionLock {
	return &SessionLock{
		slot:   make(chan struct{}, 1),
		logger: logger.Named("session_lock"),
	}
}

// Acquire blocks until the session is free or ctx is done.
func (l *SessionLock) Acquire(ctx context.Context, key domain.Key) error {
	if l.TryAcquire(key) {
		return nil
	}

	if holder, ok := l.Holder(); ok {
		l.logger.Info("Waiting for browser session",
			zap.String("task", string(key)),
			zap.String("held_by", string(holder)))
	}

	select {
	case l.slot <- struct{}{}:
		l.setHolder(key)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes the session only if it is free.
func (l *SessionLock) TryAcquire(key domain.Key) bool {
	select {
	case l.slot <- struct{}{}:
		l.setHolder(key)
		return true
	default:
		return false
	}
}

// Release frees the session. Releasing a lock held by another key is a no-op.
func (l *SessionLock) Release(key domain.Key) {
	l.mu.Lock()
	if l.holder != key {
		l.mu.Unlock()
		l.logger.Warn("Release by non-holder ignored", zap.String("task", string(key)))
		return
	}
	l.holder = ""
	l.mu.Unlock()
	<-l.slot
	l.logger.Debug("Browser session released", zap.String("task", string(key)))
}

// Holder returns the key currently holding the session.
func (l *SessionLock) Holder() (domain.Key, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.holder, l.holder != ""
}

func (l *SessionLock) setHolder(key domain.Key) {
	l.mu.Lock()
	l.holder = key
	l.mu.Unlock()
	l.logger.Debug("Browser session acquired", zap.String("task", string(key)))
}
