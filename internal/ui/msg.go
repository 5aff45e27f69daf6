package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nregabot/nregabot/internal/domain"
)

// Tea message types for UI communication

// RouterMsg requests navigation to another screen. Task selects the task
// the screen is opened for, if any.
type RouterMsg struct {
	To   Route
	Task domain.Key
}

// RunEventMsg wraps one runner event. Seq identifies the delivery for
// EventFeed.Ack.
type RunEventMsg struct {
	Event domain.Event
	Seq   uint64
}

// EventsClosedMsg is delivered once the runner event stream ends.
type EventsClosedMsg struct{}

// ErrorMsg represents error conditions
type ErrorMsg struct {
	Error error
	Title string
}

// SuccessMsg represents success conditions
type SuccessMsg struct {
	Message string
	Title   string
}

// Navigate returns a command requesting a route change.
func Navigate(to Route, task domain.Key) tea.Cmd {
	return func() tea.Msg {
		return RouterMsg{To: to, Task: task}
	}
}

// Route represents different screens in the application
type Route int

const (
	RouteTaskList Route = iota
	RouteTask
	RouteHistory
	RouteLogs
)

// String returns the string representation of the route
func (r Route) String() string {
	switch r {
	case RouteTaskList:
		return "task_list"
	case RouteTask:
		return "task"
	case RouteHistory:
		return "history"
	case RouteLogs:
		return "logs"
	default:
		return "unknown"
	}
}
