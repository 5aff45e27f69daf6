package state

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func header(key domain.Key, run string) domain.Header {
	return domain.Header{Key: key, RunID: run, Timestamp: time.Now()}
}

func result(key domain.Key, run, item string, o domain.Outcome) domain.ResultEvent {
	return domain.ResultEvent{
		Header: header(key, run),
		Record: domain.ResultRecord{RunID: run, Key: key, Item: item, Outcome: o},
	}
}

func TestBoardFoldsRunEvents(t *testing.T) {
	b := NewBoard(zap.NewNop())

	b.Apply(domain.StartedEvent{Header: header("msr", "r1")})
	b.Apply(domain.ProgressEvent{Header: header("msr", "r1"), Message: "Processing W1 (1/2)", Fraction: 0.5})
	b.Apply(result("msr", "r1", "W1", domain.OutcomeSuccess))
	b.Apply(result("msr", "r1", "W2", domain.OutcomeFailed))

	v := b.Get("msr")
	assert.True(t, v.Running())
	assert.Equal(t, "Processing W1 (1/2)", v.Message)
	assert.Equal(t, 0.5, v.Fraction)
	require.Len(t, v.Results, 2)
	assert.Equal(t, "W1", v.Results[0].Item)
	assert.Equal(t, domain.Tally{Success: 1, Failed: 1}, v.Tally)
	assert.Equal(t, []domain.Key{"msr"}, b.Running())

	boom := errors.New("boom")
	b.Apply(domain.FinishedEvent{Header: header("msr", "r1"), State: domain.StateFailed, Message: "Failed: boom", Err: boom})
	v = b.Get("msr")
	assert.Equal(t, domain.StateFailed, v.State)
	assert.Equal(t, boom, v.Err)
	assert.Len(t, v.Results, 2, "results stay visible after the run")
	assert.Empty(t, b.Running())
}

func TestBoardRestartClearsResults(t *testing.T) {
	b := NewBoard(zap.NewNop())
	b.Apply(domain.StartedEvent{Header: header("msr", "r1")})
	b.Apply(result("msr", "r1", "W1", domain.OutcomeSuccess))
	b.Apply(domain.FinishedEvent{Header: header("msr", "r1"), State: domain.StateCompleted})

	b.Apply(domain.StartedEvent{Header: header("msr", "r2")})
	v := b.Get("msr")
	assert.Equal(t, "r2", v.RunID)
	assert.Empty(t, v.Results)
}

func TestBoardDropsStaleEvents(t *testing.T) {
	b := NewBoard(zap.NewNop())
	b.Apply(domain.StartedEvent{Header: header("msr", "r2")})
	b.Apply(result("msr", "r1", "old", domain.OutcomeSuccess))

	assert.Empty(t, b.Get("msr").Results)
	_, applied, stale := b.GetStats()
	assert.Equal(t, uint64(1), applied)
	assert.Equal(t, uint64(1), stale)
}

func TestBoardKeysAreIndependent(t *testing.T) {
	b := NewBoard(zap.NewNop())
	b.Apply(domain.StartedEvent{Header: header("msr", "a")})
	b.Apply(domain.StartedEvent{Header: header("wagelist", "b")})
	b.Apply(result("wagelist", "b", "WL1", domain.OutcomeSkipped))

	assert.Empty(t, b.Get("msr").Results)
	assert.Len(t, b.Get("wagelist").Results, 1)
	assert.Equal(t, []domain.Key{"msr", "wagelist"}, b.Running())
	assert.Equal(t, domain.StateIdle, b.Get("jobcard").State)
}

func TestBoardReset(t *testing.T) {
	b := NewBoard(zap.NewNop())
	b.Apply(domain.StartedEvent{Header: header("msr", "r1")})
	assert.False(t, b.Reset("msr"), "an active run cannot be reset")

	b.Apply(domain.FinishedEvent{Header: header("msr", "r1"), State: domain.StateCancelled})
	assert.True(t, b.Reset("msr"))
	assert.Equal(t, domain.StateIdle, b.Get("msr").State)
}

func TestBoardConcurrentReads(t *testing.T) {
	b := NewBoard(zap.NewNop())
	b.Apply(domain.StartedEvent{Header: header("msr", "r1")})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			b.Apply(result("msr", "r1", "W", domain.OutcomeSuccess))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			_ = b.Get("msr")
			_ = b.Running()
		}
	}()
	wg.Wait()

	assert.Len(t, b.Get("msr").Results, 200)
}
