package browser

import (
	"context"
	"errors"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
)

type WaitStatus int

const (
	WaitReady WaitStatus = iota
	WaitTimedOut
	WaitError
)

func (s WaitStatus) String() string {
	switch s {
	case WaitReady:
		return "ready"
	case WaitTimedOut:
		return "timed out"
	default:
		return "error"
	}
}

// WaitResult is the outcome of a wait-with-timeout against the page.
type WaitResult struct {
	Status   WaitStatus
	Selector string
	Value    string
	Cause    error
	Elapsed  time.Duration
}

func Ready(selector, value string, elapsed time.Duration) WaitResult {
	return WaitResult{Status: WaitReady, Selector: selector, Value: value, Elapsed: elapsed}
}

func TimedOut(selector string, elapsed time.Duration) WaitResult {
	return WaitResult{Status: WaitTimedOut, Selector: selector, Cause: domain.ErrTimeout, Elapsed: elapsed}
}

func Failed(selector string, err error, elapsed time.Duration) WaitResult {
	return WaitResult{Status: WaitError, Selector: selector, Cause: err, Elapsed: elapsed}
}

// Classify maps an error from a bounded operation to a WaitResult.
func Classify(selector string, err error, elapsed time.Duration) WaitResult {
	switch {
	case err == nil:
		return Ready(selector, "", elapsed)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, domain.ErrTimeout):
		return TimedOut(selector, elapsed)
	default:
		return Failed(selector, err, elapsed)
	}
}

func (w WaitResult) OK() bool { return w.Status == WaitReady }

// AsError converts a non-ready result into an InteractionError for step.
func (w WaitResult) AsError(step string) error {
	if w.Status == WaitReady {
		return nil
	}
	cause := w.Cause
	if cause == nil {
		cause = errors.New(w.Status.String())
	}
	return &domain.InteractionError{Step: step, Selector: w.Selector, Err: cause}
}

// Poll calls check every interval until it reports true, fails, or timeout
// elapses. A cancelled ctx yields WaitError with the context error.
func Poll(ctx context.Context, selector string, timeout, interval time.Duration, check func(context.Context) (bool, string, error)) WaitResult {
	start := time.Now()
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, value, err := check(pctx)
		switch {
		case err != nil && pctx.Err() == nil:
			return Failed(selector, err, time.Since(start))
		case ok:
			return Ready(selector, value, time.Since(start))
		}

		select {
		case <-pctx.Done():
			if ctx.Err() != nil {
				return Failed(selector, ctx.Err(), time.Since(start))
			}
			return TimedOut(selector, time.Since(start))
		case <-ticker.C:
		}
	}
}
