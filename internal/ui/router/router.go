package router

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nregabot/nregabot/internal/ui"
)

// Screen is one page of the TUI.
type Screen interface {
	Init() tea.Cmd
	Update(msg tea.Msg) (Screen, tea.Cmd)
	View() string
	SetSize(width, height int)
	Route() ui.Route
	// Title identifies the screen within its route, e.g. the task it shows.
	Title() string
}

// BackConsumer is implemented by screens that use esc themselves, e.g. to
// close a suggestion list, before it means "back".
type BackConsumer interface {
	ConsumeBack() bool
}

// Router is a navigation stack. The bottom screen is never popped.
type Router struct {
	stack         []Screen
	width, height int
}

// New creates a router showing home.
func New(home Screen) *Router {
	return &Router{stack: []Screen{home}}
}

func (r *Router) Init() tea.Cmd {
	return r.Current().Init()
}

// Update handles esc and forwards everything else to the top screen.
func (r *Router) Update(msg tea.Msg) (*Router, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.SetSize(msg.Width, msg.Height)
		return r, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyEsc && len(r.stack) > 1 {
			if bc, ok := r.Current().(BackConsumer); ok && bc.ConsumeBack() {
				return r, nil
			}
			return r, r.Pop()
		}
	}

	top := len(r.stack) - 1
	next, cmd := r.stack[top].Update(msg)
	r.stack[top] = next
	return r, cmd
}

func (r *Router) View() string {
	return r.Current().View()
}

// SetSize resizes the visible screen. Hidden screens are resized when they
// become visible again.
func (r *Router) SetSize(width, height int) {
	r.width, r.height = width, height
	r.Current().SetSize(width, height)
}

// Push shows s on top. When an equivalent screen (same route and title) is
// already on the stack, the stack is unwound to it and s replaces it, so
// moving between a task and its history does not grow the stack forever.
func (r *Router) Push(s Screen) tea.Cmd {
	if i := r.find(s.Route(), s.Title()); i > 0 {
		r.stack = r.stack[:i]
	}
	r.stack = append(r.stack, s)
	s.SetSize(r.width, r.height)
	return s.Init()
}

func (r *Router) find(route ui.Route, title string) int {
	for i, s := range r.stack {
		if s.Route() == route && s.Title() == title {
			return i
		}
	}
	return -1
}

// Pop returns to the previous screen and re-initializes it so it can reload
// data that changed meanwhile.
func (r *Router) Pop() tea.Cmd {
	if len(r.stack) == 1 {
		return nil
	}
	r.stack = r.stack[:len(r.stack)-1]
	return r.reveal()
}

// Clear returns to the home screen.
func (r *Router) Clear() tea.Cmd {
	if len(r.stack) == 1 {
		return nil
	}
	r.stack = r.stack[:1]
	return r.reveal()
}

func (r *Router) reveal() tea.Cmd {
	s := r.Current()
	s.SetSize(r.width, r.height)
	return s.Init()
}

func (r *Router) Current() Screen {
	return r.stack[len(r.stack)-1]
}

func (r *Router) Depth() int {
	return len(r.stack)
}
