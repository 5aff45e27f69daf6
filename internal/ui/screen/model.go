package screen

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/ui"
	"github.com/nregabot/nregabot/internal/ui/component"
	"github.com/nregabot/nregabot/internal/ui/router"
	"github.com/nregabot/nregabot/internal/ui/style"
	"go.uber.org/zap"
)

// modal is a blocking notification that needs acknowledging.
type modal struct {
	title string
	body  string
}

// Model is the root bubbletea model. It is the only reader of the runner
// event stream: every event is folded into the board and then handed to the
// current screen.
type Model struct {
	deps   Deps
	feed   *ui.EventFeed
	router *router.Router
	header *component.StatusHeader
	modal  *modal
	width  int
	height int
}

var _ ui.Resumer = (*Model)(nil)

// NewModel creates the root model starting on the task list. The feed is
// shared with earlier incarnations of the UI.
func NewModel(deps Deps, feed *ui.EventFeed) *Model {
	return &Model{
		deps:   deps,
		feed:   feed,
		router: router.New(NewTaskListScreen(deps)),
		header: component.NewStatusHeader("nregabot"),
	}
}

// Notify shows msg in the header until the next notice.
func (m *Model) Notify(msg string) {
	m.header.SetNotice(msg)
}

// Init initializes the application
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.router.Init(),
		m.feed.Listen(),
	)
}

// Resume restarts event delivery after a contained Update panic.
func (m *Model) Resume() tea.Cmd {
	return m.feed.Listen()
}

// Update handles application-level updates
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.header.SetWidth(msg.Width)
		m.router.SetSize(msg.Width, msg.Height-m.header.GetHeight())
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.modal != nil {
			switch msg.String() {
			case "enter", "esc", " ":
				m.modal = nil
			}
			return m, nil
		}

	case ui.RunEventMsg:
		m.deps.Board.Apply(msg.Event)
		m.feed.Ack(msg.Seq)
		if fin, ok := msg.Event.(domain.FinishedEvent); ok && fin.Fatal() {
			m.modal = fatalModal(fin)
		}
		var cmd tea.Cmd
		m.router, cmd = m.router.Update(msg)
		return m, tea.Batch(cmd, m.feed.Listen())

	case ui.EventsClosedMsg:
		return m, nil

	case ui.RouterMsg:
		return m, m.navigate(msg)

	case ui.ErrorMsg:
		m.deps.Services.GetLogger().Warn(msg.Title, zap.Error(msg.Error))
		m.modal = &modal{title: msg.Title, body: msg.Error.Error()}
		return m, nil

	case ui.SuccessMsg:
		m.header.SetNotice(msg.Message)
	}

	var cmd tea.Cmd
	m.router, cmd = m.router.Update(msg)
	return m, cmd
}

func (m *Model) navigate(msg ui.RouterMsg) tea.Cmd {
	switch msg.To {
	case ui.RouteTaskList:
		return m.router.Clear()
	case ui.RouteTask:
		for _, def := range m.deps.Services.Tasks() {
			if def.Key == msg.Task {
				return m.router.Push(NewTaskScreen(m.deps, def))
			}
		}
		err := fmt.Errorf("%w: %s", domain.ErrUnknownTask, msg.Task)
		return func() tea.Msg { return ui.ErrorMsg{Error: err, Title: "Cannot open task"} }
	case ui.RouteHistory:
		return m.router.Push(NewHistoryScreen(m.deps, msg.Task))
	case ui.RouteLogs:
		return m.router.Push(NewLogsScreen(m.deps))
	}
	return nil
}

func fatalModal(ev domain.FinishedEvent) *modal {
	md := &modal{
		title: fmt.Sprintf("%s stopped with an error", ev.Key),
		body:  ev.Err.Error(),
	}
	if domain.IsConnection(ev.Err) {
		md.body += "\n\nStart Chrome with remote debugging enabled (nregabot launch-chrome), log in to the portal and start the task again."
	}
	return md
}

// View renders the application
func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	m.header.SetRunning(m.deps.Board.Running())
	if cur := m.router.Current(); cur != nil {
		m.header.SetScreen(cur.Title())
	}
	view := lipgloss.JoinVertical(lipgloss.Left, m.header.View(), m.router.View())
	if m.modal == nil {
		return view
	}

	title := style.ErrorStyle.UnsetPadding().Render(m.modal.title)
	body := strings.TrimSpace(m.modal.body)
	hint := style.MutedStyle.UnsetPadding().Render("press enter to dismiss")
	box := style.ModalStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", body, "", hint))
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
