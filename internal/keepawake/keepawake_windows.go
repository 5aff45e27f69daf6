//go:build windows

package keepawake

import (
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"
)

const (
	esSystemRequired  = 0x00000001
	esDisplayRequired = 0x00000002
	esContinuous      = 0x80000000
)

var setThreadExecutionState = windows.NewLazySystemDLL("kernel32.dll").NewProc("SetThreadExecutionState")

func platformHolder(*zap.Logger) func() holder {
	return func() holder { return &executionState{} }
}

// executionState holds ES_SYSTEM_REQUIRED on a locked OS thread. The flag
// belongs to the thread that set it, so the same thread clears it.
type executionState struct {
	release chan struct{}
	done    chan struct{}
}

func (e *executionState) String() string { return "SetThreadExecutionState" }

func (e *executionState) start() error {
	if err := setThreadExecutionState.Find(); err != nil {
		return err
	}
	e.release = make(chan struct{})
	e.done = make(chan struct{})
	started := make(chan error, 1)

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(e.done)

		prev, _, err := setThreadExecutionState.Call(esContinuous | esSystemRequired | esDisplayRequired)
		if prev == 0 {
			started <- err
			return
		}
		started <- nil
		<-e.release
		_, _, _ = setThreadExecutionState.Call(esContinuous)
	}()
	return <-started
}

func (e *executionState) stop() {
	close(e.release)
	<-e.done
}
