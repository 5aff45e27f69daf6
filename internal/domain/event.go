package domain

import "time"

// Event is an immutable message emitted by a task worker. Events of one run are
// delivered in the order the worker issued them.
type Event interface {
	TaskKey() Key
	Run() string
	Time() time.Time
}

// Header is embedded by every event.
type Header struct {
	Key       Key       `json:"task"`
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (h Header) TaskKey() Key    { return h.Key }
func (h Header) Run() string     { return h.RunID }
func (h Header) Time() time.Time { return h.Timestamp }

// StartedEvent opens a run. The previous result log of the key is cleared.
type StartedEvent struct {
	Header
}

// ProgressEvent carries a status line and a completion fraction in [0,1].
type ProgressEvent struct {
	Header
	Message  string  `json:"message"`
	Fraction float64 `json:"fraction"`
}

// ResultEvent appends one record to the run's result log.
type ResultEvent struct {
	Header
	Record ResultRecord `json:"record"`
}

// FinishedEvent closes a run. The key is already idle when it is observed.
type FinishedEvent struct {
	Header
	State   State         `json:"state"`
	Message string        `json:"message"`
	Err     error         `json:"-"`
	Tally   Tally         `json:"tally"`
	Elapsed time.Duration `json:"elapsed"`
}

// Fatal reports whether the run ended on an error that should be shown to the
// user as a blocking notification.
func (e FinishedEvent) Fatal() bool {
	return e.State == StateFailed && e.Err != nil
}
