package logger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestBuffer(t *testing.T, capacity int) (*LogBuffer, string) {
	t.Helper()
	spill := filepath.Join(t.TempDir(), "spill.jsonl")
	buffer, err := NewLogBuffer(capacity, spill, zap.NewNop())
	require.NoError(t, err)
	return buffer, spill
}

func messages(entries []LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func TestLogBufferConcurrentAccess(t *testing.T) {
	buffer, spill := newTestBuffer(t, 100)
	defer buffer.Close()

	done := buffer.StartPeriodicFlush(20 * time.Millisecond)
	defer close(done)

	const writers, perWriter = 10, 100
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				buffer.Add("INFO", fmt.Sprintf("worker %d item %d", id, j), map[string]interface{}{"worker": id})
			}
		}(i)
	}
	go func() {
		for i := 0; i < 20; i++ {
			_ = buffer.Recent(10, nil)
			_ = buffer.Seq()
			time.Sleep(5 * time.Millisecond)
		}
	}()
	wg.Wait()

	require.NoError(t, buffer.Flush())
	total, spilled := buffer.GetStats()
	assert.Equal(t, uint64(writers*perWriter), total)
	assert.Equal(t, uint64(writers*perWriter-100), spilled)
	assert.FileExists(t, spill)
	assert.Len(t, buffer.Recent(0, nil), 100)
}

func TestRecentReturnsNewestInOrder(t *testing.T) {
	buffer, _ := newTestBuffer(t, 5)
	defer buffer.Close()

	for i := 0; i < 12; i++ {
		buffer.Add("INFO", fmt.Sprintf("Log %d", i), nil)
	}

	assert.Equal(t, []string{"Log 7", "Log 8", "Log 9", "Log 10", "Log 11"}, messages(buffer.Recent(0, nil)))
	assert.Equal(t, []string{"Log 10", "Log 11"}, messages(buffer.Recent(2, nil)))
	assert.Equal(t, uint64(12), buffer.Seq())
}

func TestRecentAppliesFilterBeforeLimit(t *testing.T) {
	buffer, _ := newTestBuffer(t, 10)
	defer buffer.Close()

	for i := 0; i < 6; i++ {
		level := "INFO"
		if i%2 == 0 {
			level = "WARN"
		}
		buffer.Add(level, fmt.Sprintf("Log %d", i), nil)
	}
	warnOnly := func(e LogEntry) bool { return e.Level == "WARN" }
	assert.Equal(t, []string{"Log 2", "Log 4"}, messages(buffer.Recent(2, warnOnly)))
}

func TestCloseSpillsRemainingEntries(t *testing.T) {
	buffer, spill := newTestBuffer(t, 3)
	for i := 0; i < 4; i++ {
		buffer.Add("INFO", fmt.Sprintf("Log %d", i), map[string]interface{}{"task": "msr"})
	}
	require.NoError(t, buffer.Close())

	f, err := os.Open(spill)
	require.NoError(t, err)
	defer f.Close()

	var got []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e LogEntry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		assert.Equal(t, "msr", e.Task)
		got = append(got, e.Message)
	}
	assert.Equal(t, []string{"Log 0", "Log 1", "Log 2", "Log 3"}, got)
}

func TestBufferCoreCapturesFields(t *testing.T) {
	buffer, _ := newTestBuffer(t, 16)
	defer buffer.Close()

	log := zap.New(NewBufferCore(buffer, zap.InfoLevel)).
		Named("runner").
		With(zap.String("task", "msr"), zap.String("run_id", "0123456789"))
	log.Debug("hidden")
	log.Info("Item processed", zap.String("item", "MR-1"))

	logs := buffer.Recent(0, nil)
	require.Len(t, logs, 1)
	e := logs[0]
	assert.Equal(t, "runner", e.Logger)
	assert.Equal(t, "INFO", e.Level)
	assert.Equal(t, "msr", e.Task)
	assert.Equal(t, "0123456789", e.RunID)
	assert.Equal(t, "MR-1", e.Fields["item"])
}
