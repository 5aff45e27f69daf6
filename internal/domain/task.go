package domain

import (
	"fmt"
	"strings"
	"time"
)

// Key identifies one automatable workflow, e.g. "msr" or "mb_entry".
type Key string

// State is the lifecycle state of a task key.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// ParseState is the inverse of State.String.
func ParseState(s string) (State, error) {
	for st := StateIdle; st <= StateCancelled; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return StateIdle, fmt.Errorf("unknown state %q", s)
}

// Outcome of one processed work item.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// ParseOutcome accepts any casing of the outcome names.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(strings.ToLower(strings.TrimSpace(s))) {
	case OutcomeSuccess:
		return OutcomeSuccess, nil
	case OutcomeFailed:
		return OutcomeFailed, nil
	case OutcomeSkipped:
		return OutcomeSkipped, nil
	}
	return "", fmt.Errorf("unknown outcome %q", s)
}

// ResultRecord is one logged outcome for one input item within a run.
type ResultRecord struct {
	RunID     string    `json:"run_id"`
	Key       Key       `json:"task"`
	Item      string    `json:"item"`
	Outcome   Outcome   `json:"outcome"`
	Detail    string    `json:"detail"`
	Timestamp time.Time `json:"timestamp"`
}

// Tally counts outcomes in a result log.
type Tally struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

func (t *Tally) Add(o Outcome) {
	switch o {
	case OutcomeSuccess:
		t.Success++
	case OutcomeFailed:
		t.Failed++
	case OutcomeSkipped:
		t.Skipped++
	}
}

func (t Tally) Total() int {
	return t.Success + t.Failed + t.Skipped
}

func CountOutcomes(records []ResultRecord) Tally {
	var t Tally
	for _, r := range records {
		t.Add(r.Outcome)
	}
	return t
}
