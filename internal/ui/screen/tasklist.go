package screen

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/ui"
	"github.com/nregabot/nregabot/internal/ui/component"
	"github.com/nregabot/nregabot/internal/ui/router"
	"github.com/nregabot/nregabot/internal/ui/style"
	"github.com/nregabot/nregabot/internal/workflow"
)

// TaskListScreen is the home screen: every task with its live state.
type TaskListScreen struct {
	deps   Deps
	width  int
	height int

	helpBar *component.HelpBar
	table   *component.Table
	tasks   []*workflow.Definition
	notice  string
}

// NewTaskListScreen creates a new task list screen
func NewTaskListScreen(deps Deps) *TaskListScreen {
	s := &TaskListScreen{deps: deps}

	s.table = component.NewTable().
		AddColumn("Task", 12, lipgloss.Left).
		AddColumn("Title", 28, lipgloss.Left).
		AddColumn("State", 10, lipgloss.Center).
		AddColumn("Progress", 8, lipgloss.Right).
		AddColumn("Results", 20, lipgloss.Left).
		AddColumn("Status", 0, lipgloss.Left).
		SetZebra(true)

	s.helpBar = component.NewHelpBar().
		SetKeyBindings(deps.Keys.ContextualHelp(ui.RouteTaskList)).
		SetFullHelp(deps.Keys.FullHelp())

	return s
}

func (s *TaskListScreen) Route() ui.Route { return ui.RouteTaskList }
func (s *TaskListScreen) Title() string   { return "Tasks" }

// Init reloads the task list
func (s *TaskListScreen) Init() tea.Cmd {
	s.tasks = s.deps.Services.Tasks()
	s.updateTableDisplay()
	return nil
}

// Update handles screen updates
func (s *TaskListScreen) Update(msg tea.Msg) (router.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		keys := s.deps.Keys
		switch {
		case key.Matches(msg, keys.Quit):
			return s, tea.Quit
		case key.Matches(msg, keys.Help):
			s.helpBar.Toggle()
		case key.Matches(msg, keys.Up):
			s.table.MoveUp()
		case key.Matches(msg, keys.Down):
			s.table.MoveDown()
		case key.Matches(msg, keys.Enter):
			if t := s.selected(); t != nil {
				return s, ui.Navigate(ui.RouteTask, t.Key)
			}
		case key.Matches(msg, keys.History):
			if t := s.selected(); t != nil {
				return s, ui.Navigate(ui.RouteHistory, t.Key)
			}
		case key.Matches(msg, keys.Logs):
			return s, ui.Navigate(ui.RouteLogs, "")
		case key.Matches(msg, keys.Stop):
			if t := s.selected(); t != nil {
				if s.deps.Services.RequestStop(t.Key) {
					s.notice = fmt.Sprintf("Stop requested for %s, the current item will finish first", t.Key)
				} else {
					s.notice = fmt.Sprintf("%s is not running", t.Key)
				}
			}
		}

	case ui.RunEventMsg:
		s.updateTableDisplay()
	}
	return s, nil
}

func (s *TaskListScreen) selected() *workflow.Definition {
	i := s.table.GetSelectedRow()
	if i < 0 || i >= len(s.tasks) {
		return nil
	}
	return s.tasks[i]
}

func (s *TaskListScreen) updateTableDisplay() {
	rows := make([][]string, len(s.tasks))
	for i, t := range s.tasks {
		v := s.deps.Board.Get(t.Key)
		progress := "-"
		if v.State != domain.StateIdle {
			progress = fmt.Sprintf("%.0f%%", v.Fraction*100)
		}
		results := ""
		if v.Tally.Total() > 0 {
			results = formatTally(v.Tally)
		}
		title := t.Title
		if title == "" {
			title = string(t.Key)
		}
		rows[i] = []string{string(t.Key), title, v.State.String(), progress, results, v.Message}
	}
	s.table.SetRows(rows)
	for i, t := range s.tasks {
		s.table.SetRowColor(i, style.StateColor(s.deps.Board.Get(t.Key).State))
	}
}

// View renders the task list screen
func (s *TaskListScreen) View() string {
	var content strings.Builder
	content.WriteString(style.TitleStyle.Render("Automation tasks"))
	content.WriteString("\n")

	if len(s.tasks) == 0 {
		content.WriteString(style.MutedStyle.Render("No workflows loaded. Add YAML definitions to the workflows directory."))
	} else {
		content.WriteString(s.table.View())
	}
	content.WriteString("\n")

	if s.notice != "" {
		content.WriteString(style.InfoStyle.Render(s.notice))
		content.WriteString("\n")
	}
	content.WriteString(s.helpBar.SetWidth(s.width).View())
	return content.String()
}

// SetSize sets the screen dimensions
func (s *TaskListScreen) SetSize(width, height int) {
	s.width = width
	s.height = height
	s.table.SetSize(width-2, height-8)
}
