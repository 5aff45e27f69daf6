package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	timeout := &InteractionError{Step: "wait", Selector: "#ddlPanchayat", Err: ErrTimeout}
	deadline := fmt.Errorf("click: %w", context.DeadlineExceeded)
	fatal := &InteractionError{Step: "select", Err: errors.New("no such option"), Fatal: true}
	conn := fmt.Errorf("connect: %w", &ConnectionError{Addr: "127.0.0.1:9222", Err: errors.New("refused")})

	assert.True(t, IsTimeout(timeout))
	assert.True(t, IsTimeout(deadline))
	assert.False(t, IsTimeout(fatal))

	assert.False(t, IsFatal(timeout))
	assert.True(t, IsFatal(fatal))
	assert.True(t, IsFatal(conn))
	assert.True(t, IsConnection(conn))
	assert.False(t, IsFatal(nil))

	assert.Equal(t, "timeout", ItemDetail(timeout))
	assert.Equal(t, "select: no such option", ItemDetail(fatal))
	assert.Equal(t, "wait #ddlPanchayat: timeout", timeout.Error())
}

func TestAlreadyRunningMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("start: %w", &AlreadyRunningError{Key: "msr"})
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Contains(t, err.Error(), `"msr"`)
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Task: "msr", Missing: []string{"panchayat", "from_date"}}
	assert.True(t, IsValidation(err))
	assert.Equal(t, `task "msr": required fields missing: panchayat, from_date`, err.Error())
}

func TestStateAndOutcomeParsing(t *testing.T) {
	for st := StateIdle; st <= StateCancelled; st++ {
		got, err := ParseState(st.String())
		assert.NoError(t, err)
		assert.Equal(t, st, got)
	}
	_, err := ParseState("paused")
	assert.Error(t, err)

	o, err := ParseOutcome(" Failed ")
	assert.NoError(t, err)
	assert.Equal(t, OutcomeFailed, o)
	_, err = ParseOutcome("maybe")
	assert.Error(t, err)

	tally := CountOutcomes([]ResultRecord{{Outcome: OutcomeSuccess}, {Outcome: OutcomeSkipped}, {Outcome: OutcomeSuccess}})
	assert.Equal(t, Tally{Success: 2, Skipped: 1}, tally)
	assert.Equal(t, 3, tally.Total())
}
