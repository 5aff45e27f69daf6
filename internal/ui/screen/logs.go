package screen

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/nregabot/nregabot/internal/ui"
	"github.com/nregabot/nregabot/internal/ui/component"
	"github.com/nregabot/nregabot/internal/ui/router"
	"github.com/nregabot/nregabot/internal/ui/style"
)

const logsRefreshInterval = 500 * time.Millisecond

type logsTickMsg struct {
	gen int
}

// LogsScreen tails the application log.
type LogsScreen struct {
	deps    Deps
	width   int
	height  int
	viewer  *component.LogViewer
	helpBar *component.HelpBar
	// gen invalidates ticks scheduled by an earlier Init
	gen int
}

// NewLogsScreen creates a new logs screen
func NewLogsScreen(deps Deps) *LogsScreen {
	return &LogsScreen{
		deps:   deps,
		viewer: component.NewLogViewer(deps.Services.LogBuffer()),
		helpBar: component.NewHelpBar().
			SetKeyBindings(deps.Keys.ContextualHelp(ui.RouteLogs)),
	}
}

func (s *LogsScreen) Route() ui.Route { return ui.RouteLogs }
func (s *LogsScreen) Title() string   { return "Logs" }

// Init loads the buffer and starts periodic refresh
func (s *LogsScreen) Init() tea.Cmd {
	s.gen++
	s.viewer.Refresh()
	return s.tick()
}

func (s *LogsScreen) tick() tea.Cmd {
	gen := s.gen
	return tea.Tick(logsRefreshInterval, func(time.Time) tea.Msg {
		return logsTickMsg{gen: gen}
	})
}

// Update handles screen updates
func (s *LogsScreen) Update(msg tea.Msg) (router.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case logsTickMsg:
		if msg.gen != s.gen {
			return s, nil
		}
		s.viewer.Refresh()
		return s, s.tick()

	case tea.KeyMsg:
		keys := s.deps.Keys
		switch {
		case key.Matches(msg, keys.Quit):
			return s, tea.Quit
		case key.Matches(msg, keys.FilterInfo):
			s.viewer.ToggleLogLevel("info")
			return s, nil
		case key.Matches(msg, keys.FilterWarn):
			s.viewer.ToggleLogLevel("warn")
			return s, nil
		case key.Matches(msg, keys.FilterError):
			s.viewer.ToggleLogLevel("error")
			return s, nil
		case key.Matches(msg, keys.FilterDebug):
			s.viewer.ToggleLogLevel("debug")
			return s, nil
		}
		return s, s.viewer.Update(msg)

	case tea.MouseMsg:
		return s, s.viewer.Update(msg)
	}
	return s, nil
}

// View renders the logs screen
func (s *LogsScreen) View() string {
	var b strings.Builder
	b.WriteString(style.TitleStyle.Render("Logs"))
	b.WriteString("\n")
	b.WriteString(s.viewer.View())
	b.WriteString("\n")
	status := s.viewer.GetFilterStatus()
	if buf := s.deps.Services.LogBuffer(); buf != nil {
		total, spilled := buf.GetStats()
		status += fmt.Sprintf(" | %d logged, %d spilled to disk", total, spilled)
	}
	b.WriteString(style.MutedStyle.Render(status))
	b.WriteString("\n")
	b.WriteString(s.helpBar.SetWidth(s.width).View())
	return b.String()
}

// SetSize sets the screen dimensions
func (s *LogsScreen) SetSize(width, height int) {
	s.width = width
	s.height = height
	s.viewer.SetSize(width, height-8)
}
