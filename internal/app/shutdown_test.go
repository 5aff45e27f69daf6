package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestShutdownClosesInReverseOrder(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), time.Second)

	var mu sync.Mutex
	var order []string
	for _, name := range []string{"storage", "browser", "runner"} {
		name := name
		sh.AddFunc(name, func() error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		})
	}

	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Equal(t, []string{"runner", "browser", "storage"}, order)

	// second call is a no-op
	require.NoError(t, sh.Shutdown(context.Background()))
	assert.Len(t, order, 3)
}

func TestShutdownReportsErrorsAndTimeouts(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), 20*time.Millisecond)
	block := make(chan struct{})
	defer close(block)

	closed := false
	sh.AddFunc("first", func() error { closed = true; return nil })
	sh.AddFunc("slow", func() error { <-block; return nil })
	sh.AddFunc("broken", func() error { return errors.New("boom") })

	err := sh.Shutdown(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "broken: boom")
	assert.ErrorContains(t, err, "slow: shutdown timeout")
	assert.True(t, closed, "services after a timeout must still be closed")
}

func TestConcurrentServicesCloseTogether(t *testing.T) {
	sh := NewShutdownHandler(zap.NewNop(), time.Second)

	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	// both concurrent closers wait for each other; run sequentially they would
	// time out
	var wg sync.WaitGroup
	wg.Add(2)
	barrier := func(name string) func() error {
		return func() error {
			wg.Done()
			wg.Wait()
			record(name)
			return nil
		}
	}
	sh.AddFunc("storage", func() error { record("storage"); return nil })
	sh.AddFunc("browser", barrier("browser"), Concurrently())
	sh.AddFunc("keepawake", barrier("keepawake"), Concurrently())
	sh.AddFunc("runner", func() error { record("runner"); return nil }, WithTimeout(50*time.Millisecond))

	require.NoError(t, sh.Shutdown(context.Background()))
	require.Len(t, order, 4)
	assert.Equal(t, "runner", order[0])
	assert.ElementsMatch(t, []string{"browser", "keepawake"}, order[1:3])
	assert.Equal(t, "storage", order[3])
}

func TestBatches(t *testing.T) {
	svc := func(name string, concurrent bool) service {
		return service{name: name, concurrent: concurrent}
	}
	got := batches([]service{svc("a", false), svc("b", true), svc("c", true), svc("d", false), svc("e", true)})

	var names [][]string
	for _, b := range got {
		var n []string
		for _, s := range b {
			n = append(n, s.name)
		}
		names = append(names, n)
	}
	assert.Equal(t, [][]string{{"e"}, {"d"}, {"c", "b"}, {"a"}}, names)
}
