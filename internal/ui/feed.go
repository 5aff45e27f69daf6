package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nregabot/nregabot/internal/domain"
)

// EventFeed hands runner events to the UI one at a time and outlives UI
// restarts. An event taken on behalf of an incarnation that stopped before
// acknowledging it is handed to the next incarnation first, so events are
// neither lost nor reordered.
type EventFeed struct {
	src <-chan domain.Event
	// turn admits one receiver on src at a time
	turn chan struct{}

	mu        sync.Mutex
	done      chan struct{}
	listening bool
	seq       uint64
	inflight  *RunEventMsg
	pending   []RunEventMsg
}

func NewEventFeed(src <-chan domain.Event) *EventFeed {
	return &EventFeed{
		src:  src,
		turn: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Renew starts a new UI incarnation. Listeners of the previous one give up
// without consuming anything, and its unacknowledged event is queued again.
func (f *EventFeed) Renew() {
	f.mu.Lock()
	defer f.mu.Unlock()

	close(f.done)
	f.done = make(chan struct{})
	f.listening = false
	if f.inflight != nil {
		f.pending = append([]RunEventMsg{*f.inflight}, f.pending...)
		f.inflight = nil
	}
}

// Listen returns a command delivering the next event. It returns nil while
// a listener of the current incarnation is still outstanding.
func (f *EventFeed) Listen() tea.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.listening {
		return nil
	}
	f.listening = true
	done := f.done
	return func() tea.Msg { return f.next(done) }
}

// Ack marks the delivery seq as handled.
func (f *EventFeed) Ack(seq uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inflight != nil && f.inflight.Seq == seq {
		f.inflight = nil
	}
}

// Pending returns the number of events waiting for the next incarnation.
func (f *EventFeed) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

func (f *EventFeed) next(done chan struct{}) tea.Msg {
	select {
	case f.turn <- struct{}{}:
	case <-done:
		return nil
	}
	defer func() { <-f.turn }()

	if msg, ok := f.popPending(done); ok {
		return msg
	}

	select {
	case <-done:
		return nil
	case ev, ok := <-f.src:
		if !ok {
			return f.closed(done)
		}
		return f.deliver(done, ev)
	}
}

// popPending hands out the oldest queued event. A stale listener gets a nil
// message and leaves the queue alone.
func (f *EventFeed) popPending(done chan struct{}) (tea.Msg, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if done != f.done {
		return nil, true
	}
	if len(f.pending) == 0 {
		return nil, false
	}
	msg := f.pending[0]
	f.pending = f.pending[1:]
	f.listening = false
	f.inflight = &msg
	return msg, true
}

func (f *EventFeed) deliver(done chan struct{}, ev domain.Event) tea.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	msg := RunEventMsg{Event: ev, Seq: f.seq}
	if done != f.done {
		f.pending = append(f.pending, msg)
		return nil
	}
	f.listening = false
	f.inflight = &msg
	return msg
}

func (f *EventFeed) closed(done chan struct{}) tea.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()

	if done != f.done {
		return nil
	}
	f.listening = false
	return EventsClosedMsg{}
}
