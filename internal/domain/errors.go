package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyRunning = errors.New("task already running")
	ErrShuttingDown   = errors.New("runner is shutting down")
	ErrTimeout        = errors.New("timeout")
	ErrUnknownTask    = errors.New("unknown task")
)

// AlreadyRunningError is returned when a start is requested for an active key.
type AlreadyRunningError struct {
	Key Key
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("task %q is already running", e.Key)
}

func (e *AlreadyRunningError) Is(target error) bool {
	return target == ErrAlreadyRunning
}

// ValidationError lists required run configuration fields that are empty.
type ValidationError struct {
	Task    Key
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("task %q: required fields missing: %s", e.Task, strings.Join(e.Missing, ", "))
}

// InteractionError means a step against the external site could not be completed.
// Fatal errors abort the whole run instead of failing a single item.
type InteractionError struct {
	Step     string
	Selector string
	Fatal    bool
	Err      error
}

func (e *InteractionError) Error() string {
	if e.Selector != "" {
		return fmt.Sprintf("%s %s: %v", e.Step, e.Selector, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *InteractionError) Unwrap() error {
	return e.Err
}

// ConnectionError means the browser session could not be reached at all.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot connect to browser at %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsTimeout covers both ErrTimeout and context deadlines.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}

func IsAlreadyRunning(err error) bool {
	return errors.Is(err, ErrAlreadyRunning)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsConnection(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}

// IsFatal reports whether err must terminate a run rather than a single item.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if IsConnection(err) || errors.Is(err, ErrShuttingDown) {
		return true
	}
	var ie *InteractionError
	if errors.As(err, &ie) {
		return ie.Fatal
	}
	return false
}

// ItemDetail renders err the way it is shown in the result log.
func ItemDetail(err error) string {
	if IsTimeout(err) {
		return "timeout"
	}
	return err.Error()
}
