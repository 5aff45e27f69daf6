package logger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSafeCSVWriterConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	w, err := NewSafeCSVWriter(path, 10*time.Millisecond, zaptest.NewLogger(t))
	require.NoError(t, err)

	const writers, perWriter = 5, 40
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perWriter; j++ {
				outcome := domain.OutcomeSuccess
				if j%4 == 0 {
					outcome = domain.OutcomeFailed
				}
				assert.NoError(t, w.WriteResult(domain.ResultRecord{
					RunID:     "run-1",
					Key:       "msr",
					Item:      fmt.Sprintf("MR-%d-%d", id, j),
					Outcome:   outcome,
					Detail:    "Muster roll generated, \"quoted\"",
					Timestamp: time.Now(),
				}))
			}
		}(i)
	}
	wg.Wait()
	require.NoError(t, w.Close())

	rows, _, tally := w.GetStats()
	assert.Equal(t, uint64(writers*perWriter), rows)
	assert.Equal(t, domain.Tally{Success: 150, Failed: 50}, tally)

	got := readCSV(t, path)
	require.Len(t, got, writers*perWriter+1)
	assert.Equal(t, ResultHeader, got[0])
	assert.Equal(t, "Muster roll generated, \"quoted\"", got[1][5])
}

func TestSafeCSVWriterAppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	for i := 0; i < 2; i++ {
		w, err := NewSafeCSVWriter(path, time.Second, zap.NewNop())
		require.NoError(t, err)
		require.NoError(t, w.WriteRecord([]string{"t", "msr", "r", fmt.Sprint(i), "success", ""}))
		require.NoError(t, w.Close())
	}
	assert.Len(t, readCSV(t, path), 3)
}

func TestSafeCSVWriterTimedFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	w, err := NewSafeCSVWriter(path, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.WriteRecord([]string{"t", "msr", "r", "W1", "success", ""}))
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		return err == nil && strings.Count(string(data), "\n") == 2
	}, time.Second, 10*time.Millisecond)

	_, flushes, _ := w.GetStats()
	assert.Equal(t, uint64(1), flushes)
}

func TestSafeCSVWriterRejectsWritesAfterClose(t *testing.T) {
	w, err := NewSafeCSVWriter(filepath.Join(t.TempDir(), "results.csv"), time.Second, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.NoError(t, w.Close())
	assert.ErrorIs(t, w.WriteRecord([]string{"x"}), errWriterClosed)
}
