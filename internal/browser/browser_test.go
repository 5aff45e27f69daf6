package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nregabot/nregabot/internal/config"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, WaitReady, Classify("#a", nil, 0).Status)
	assert.Equal(t, WaitTimedOut, Classify("#a", context.DeadlineExceeded, 0).Status)
	assert.Equal(t, WaitError, Classify("#a", errors.New("node detached"), 0).Status)

	err := TimedOut("#btnSave", time.Second).AsError("wait")
	require.Error(t, err)
	assert.True(t, domain.IsTimeout(err))
	assert.Equal(t, "timeout", domain.ItemDetail(err))
	assert.NoError(t, Ready("#a", "", 0).AsError("wait"))
}

func TestPollReady(t *testing.T) {
	var calls int32
	res := Poll(context.Background(), "#status", time.Second, 5*time.Millisecond, func(ctx context.Context) (bool, string, error) {
		n := atomic.AddInt32(&calls, 1)
		return n >= 3, "Saved", nil
	})
	assert.True(t, res.OK())
	assert.Equal(t, "Saved", res.Value)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestPollTimesOut(t *testing.T) {
	res := Poll(context.Background(), "#status", 30*time.Millisecond, 5*time.Millisecond, func(ctx context.Context) (bool, string, error) {
		return false, "", nil
	})
	assert.Equal(t, WaitTimedOut, res.Status)
	assert.ErrorIs(t, res.Cause, domain.ErrTimeout)
}

func TestPollError(t *testing.T) {
	boom := errors.New("boom")
	res := Poll(context.Background(), "#status", time.Second, 5*time.Millisecond, func(ctx context.Context) (bool, string, error) {
		return false, "", boom
	})
	assert.Equal(t, WaitError, res.Status)
	assert.ErrorIs(t, res.AsError("wait_text"), boom)
}

func TestPollCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Poll(ctx, "#status", time.Second, 5*time.Millisecond, func(ctx context.Context) (bool, string, error) {
		return false, "", nil
	})
	assert.Equal(t, WaitError, res.Status)
	assert.ErrorIs(t, res.Cause, context.Canceled)
}

func TestAwaitDialog(t *testing.T) {
	ch := make(chan string, 1)
	ch <- "Muster Roll saved successfully"

	msg, res := awaitDialog(context.Background(), ch, time.Second)
	assert.True(t, res.OK())
	assert.Equal(t, "Muster Roll saved successfully", msg)

	_, res = awaitDialog(context.Background(), ch, 10*time.Millisecond)
	assert.Equal(t, WaitTimedOut, res.Status)
}

func TestPushLatestKeepsNewest(t *testing.T) {
	ch := make(chan string, 2)
	assert.Zero(t, pushLatest(ch, "first"))
	assert.Zero(t, pushLatest(ch, "second"))
	assert.Equal(t, 1, pushLatest(ch, "third"))

	assert.Equal(t, "second", <-ch)
	assert.Equal(t, "third", <-ch)
}

// Dialogs racing with a reader that empties the queue must never block the
// listener goroutines.
func TestPushLatestNeverBlocks(t *testing.T) {
	ch := make(chan string, 1)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				drain(ch)
			}
		}
	}()
	defer close(stop)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 500; j++ {
					pushLatest(ch, "Saved")
				}
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pushLatest blocked")
	}
}

func TestSessionLockSerializesKeys(t *testing.T) {
	l := NewSessionLock(zap.NewNop())
	require.NoError(t, l.Acquire(context.Background(), "msr"))

	holder, ok := l.Holder()
	assert.True(t, ok)
	assert.Equal(t, domain.Key("msr"), holder)
	assert.False(t, l.TryAcquire("gen"))

	acquired := make(chan struct{})
	go func() {
		_ = l.Acquire(context.Background(), "gen")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second key acquired a held session")
	case <-time.After(20 * time.Millisecond):
	}

	l.Release("gen") // not the holder
	l.Release("msr")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
	holder, _ = l.Holder()
	assert.Equal(t, domain.Key("gen"), holder)
	l.Release("gen")
	_, ok = l.Holder()
	assert.False(t, ok)
}

func TestSessionLockAcquireHonoursContext(t *testing.T) {
	l := NewSessionLock(zap.NewNop())
	require.True(t, l.TryAcquire("msr"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Acquire(ctx, "gen"), context.DeadlineExceeded)
}

func TestFindChrome(t *testing.T) {
	notFound := func(string) (string, error) { return "", errors.New("not found") }
	onPath := func(name string) (string, error) {
		if name == "chromium" {
			return "/usr/bin/chromium", nil
		}
		return "", errors.New("not found")
	}
	never := func(string) bool { return false }

	p, err := findChrome("", "linux", onPath, never)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/chromium", p)

	p, err = findChrome("", "darwin", notFound, func(p string) bool { return p == chromeCandidates["darwin"][0] })
	require.NoError(t, err)
	assert.Equal(t, chromeCandidates["darwin"][0], p)

	_, err = findChrome("/opt/missing/chrome", "linux", notFound, never)
	assert.ErrorIs(t, err, ErrChromeNotFound)

	_, err = findChrome("", "plan9", notFound, never)
	assert.ErrorIs(t, err, ErrChromeNotFound)
}

func TestChromeArgs(t *testing.T) {
	args := ChromeArgs(config.BrowserConfig{DebuggerURL: "http://127.0.0.1:9333", ProfileDir: "/tmp/profile"})
	assert.Contains(t, args, "--remote-debugging-port=9333")
	assert.Contains(t, args, "--user-data-dir=/tmp/profile")
	assert.NotContains(t, args, "")

	args = ChromeArgs(config.BrowserConfig{DebuggerURL: "http://127.0.0.1:9333", ProfileDir: "/tmp/profile", StartURL: "https://nrega.nic.in/"})
	assert.Equal(t, "https://nrega.nic.in/", args[len(args)-1])
}

func TestSelectScriptQuoting(t *testing.T) {
	script := selectByTextScript(`#ddl"x`, `Gram "Panchayat"`)
	assert.Contains(t, script, `"#ddl\"x"`)
	assert.Contains(t, script, `"Gram \"Panchayat\""`)

	assert.NoError(t, selectStatusError("ok", "x"))
	assert.EqualError(t, selectStatusError("nooption", "Block A"), `option "Block A" not found`)
	assert.Error(t, selectStatusError("missing", "x"))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "", stringify(nil))
	assert.Equal(t, "abc", stringify("abc"))
	assert.Equal(t, "3", stringify(float64(3)))
	assert.Equal(t, `{"a":true}`, stringify(map[string]interface{}{"a": true}))
}
