package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func header(run string) domain.Header {
	return domain.Header{Key: "msr", RunID: run, Timestamp: time.Now()}
}

func receive(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	require.NotNil(t, cmd)
	got := make(chan tea.Msg, 1)
	go func() { got <- cmd() }()
	select {
	case msg := <-got:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not return")
		return nil
	}
}

func TestEventFeedPreservesOrder(t *testing.T) {
	ch := make(chan domain.Event, 4)
	ch <- domain.StartedEvent{Header: header("r1")}
	ch <- domain.ProgressEvent{Header: header("r1"), Message: "one"}
	ch <- domain.ProgressEvent{Header: header("r1"), Message: "two"}
	close(ch)

	feed := NewEventFeed(ch)
	var got []string
	for {
		msg := receive(t, feed.Listen())
		if _, ok := msg.(EventsClosedMsg); ok {
			break
		}
		ev, ok := msg.(RunEventMsg)
		require.True(t, ok)
		feed.Ack(ev.Seq)
		switch e := ev.Event.(type) {
		case domain.StartedEvent:
			got = append(got, "started")
		case domain.ProgressEvent:
			got = append(got, e.Message)
		}
	}
	assert.Equal(t, []string{"started", "one", "two"}, got)
}

func TestEventFeedSingleOutstandingListener(t *testing.T) {
	ch := make(chan domain.Event, 1)
	feed := NewEventFeed(ch)

	first := feed.Listen()
	require.NotNil(t, first)
	assert.Nil(t, feed.Listen())

	ch <- domain.StartedEvent{Header: header("r1")}
	_, ok := receive(t, first).(RunEventMsg)
	require.True(t, ok)
	assert.NotNil(t, feed.Listen())
}

func TestEventFeedStaleListenerLeavesEvent(t *testing.T) {
	ch := make(chan domain.Event, 1)
	feed := NewEventFeed(ch)

	stale := feed.Listen()
	got := make(chan tea.Msg, 1)
	go func() { got <- stale() }()
	time.Sleep(20 * time.Millisecond)

	feed.Renew()
	select {
	case msg := <-got:
		assert.Nil(t, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("stale listener kept waiting")
	}

	ch <- domain.FinishedEvent{Header: header("r1"), State: domain.StateCompleted}
	msg, ok := receive(t, feed.Listen()).(RunEventMsg)
	require.True(t, ok)
	assert.IsType(t, domain.FinishedEvent{}, msg.Event)
}

func TestEventFeedRedeliversUnacknowledgedEvent(t *testing.T) {
	ch := make(chan domain.Event, 2)
	ch <- domain.ResultEvent{Header: header("r1"), Record: domain.ResultRecord{Item: "W1"}}
	ch <- domain.FinishedEvent{Header: header("r1"), State: domain.StateCompleted}
	feed := NewEventFeed(ch)

	// taken, but the UI went away before handling it
	lost, ok := receive(t, feed.Listen()).(RunEventMsg)
	require.True(t, ok)

	feed.Renew()
	assert.Equal(t, 1, feed.Pending())

	again, ok := receive(t, feed.Listen()).(RunEventMsg)
	require.True(t, ok)
	assert.Equal(t, lost.Seq, again.Seq)
	assert.IsType(t, domain.ResultEvent{}, again.Event)
	feed.Ack(again.Seq)

	last, ok := receive(t, feed.Listen()).(RunEventMsg)
	require.True(t, ok)
	assert.IsType(t, domain.FinishedEvent{}, last.Event)
	feed.Ack(last.Seq)

	feed.Renew()
	assert.Zero(t, feed.Pending())
}

// sink collects events until a run finishes.
type sink struct {
	feed        *EventFeed
	quitOnStart bool
	got         []domain.Event
}

func (s *sink) Init() tea.Cmd {
	if s.quitOnStart {
		return tea.Batch(s.feed.Listen(), tea.Quit)
	}
	return s.feed.Listen()
}

func (s *sink) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ev, ok := msg.(RunEventMsg)
	if !ok {
		return s, nil
	}
	s.feed.Ack(ev.Seq)
	s.got = append(s.got, ev.Event)
	if _, done := ev.Event.(domain.FinishedEvent); done {
		return s, tea.Quit
	}
	return s, s.feed.Listen()
}

func (s *sink) View() string { return "" }

func TestEventFeedSurvivesProgramRestart(t *testing.T) {
	ch := make(chan domain.Event, 4)
	feed := NewEventFeed(ch)

	// the first program leaves a listener behind when it quits
	feed.Renew()
	_, err := tea.NewProgram(&sink{feed: feed, quitOnStart: true}, headless()...).Run()
	require.NoError(t, err)

	feed.Renew()
	second := &sink{feed: feed}
	go func() {
		time.Sleep(20 * time.Millisecond)
		ch <- domain.ProgressEvent{Header: header("r1"), Message: "1/1"}
		ch <- domain.FinishedEvent{Header: header("r1"), State: domain.StateCompleted}
	}()

	done := make(chan error, 1)
	go func() {
		_, err := tea.NewProgram(second, headless()...).Run()
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("restarted program never saw the run finish")
	}

	require.Len(t, second.got, 2)
	assert.IsType(t, domain.ProgressEvent{}, second.got[0])
	assert.IsType(t, domain.FinishedEvent{}, second.got[1])
}
