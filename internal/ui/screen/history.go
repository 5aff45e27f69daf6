package screen

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/export"
	"github.com/nregabot/nregabot/internal/storage/models"
	"github.com/nregabot/nregabot/internal/ui"
	"github.com/nregabot/nregabot/internal/ui/component"
	"github.com/nregabot/nregabot/internal/ui/router"
	"github.com/nregabot/nregabot/internal/ui/style"
)

const historyLimit = 100

type runsLoadedMsg struct {
	task domain.Key
	runs []*models.RunRecord
	err  error
}

type runResultsMsg struct {
	run     *models.RunRecord
	results []domain.ResultRecord
	err     error
}

// HistoryScreen lists past runs of one task, or of every task when opened
// without one, and shows the stored results of a selected run.
type HistoryScreen struct {
	deps   Deps
	task   domain.Key
	width  int
	height int

	runs      []*models.RunRecord
	runsTable *component.Table
	helpBar   *component.HelpBar

	// detail view of one run
	detail       *models.RunRecord
	detailRows   []domain.ResultRecord
	resultsTable *component.Table

	err    error
	notice string
}

// NewHistoryScreen creates a history screen for task ("" for all tasks).
func NewHistoryScreen(deps Deps, task domain.Key) *HistoryScreen {
	s := &HistoryScreen{deps: deps, task: task}

	s.runsTable = component.NewTable().
		AddColumn("Started", 19, lipgloss.Left).
		AddColumn("Task", 10, lipgloss.Left).
		AddColumn("Run", 8, lipgloss.Left).
		AddColumn("State", 10, lipgloss.Center).
		AddColumn("Results", 20, lipgloss.Left).
		AddColumn("Elapsed", 8, lipgloss.Right).
		AddColumn("Error", 0, lipgloss.Left)

	s.resultsTable = component.NewTable().
		AddColumn("Item", 22, lipgloss.Left).
		AddColumn("Outcome", 9, lipgloss.Center).
		AddColumn("Detail", 0, lipgloss.Left).
		AddColumn("Time", 8, lipgloss.Left)

	s.helpBar = component.NewHelpBar().
		SetKeyBindings(deps.Keys.ContextualHelp(ui.RouteHistory))
	return s
}

func (s *HistoryScreen) Route() ui.Route { return ui.RouteHistory }

func (s *HistoryScreen) Title() string {
	if s.task == "" {
		return "History"
	}
	return "History: " + string(s.task)
}

// Init loads the run list
func (s *HistoryScreen) Init() tea.Cmd {
	return s.loadRuns()
}

func (s *HistoryScreen) loadRuns() tea.Cmd {
	svc, task := s.deps.Services, s.task
	return func() tea.Msg {
		runs, err := svc.ListRuns(svc.GetContext(), task, historyLimit)
		return runsLoadedMsg{task: task, runs: runs, err: err}
	}
}

func (s *HistoryScreen) loadResults(run *models.RunRecord) tea.Cmd {
	svc := s.deps.Services
	return func() tea.Msg {
		results, err := svc.RunResults(svc.GetContext(), run.RunID)
		return runResultsMsg{run: run, results: results, err: err}
	}
}

// ConsumeBack leaves the detail view before leaving the screen.
func (s *HistoryScreen) ConsumeBack() bool {
	if s.detail != nil {
		s.detail, s.detailRows = nil, nil
		s.notice = ""
		return true
	}
	return false
}

// Update handles screen updates
func (s *HistoryScreen) Update(msg tea.Msg) (router.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		keys := s.deps.Keys
		table := s.runsTable
		if s.detail != nil {
			table = s.resultsTable
		}
		switch {
		case key.Matches(msg, keys.Quit):
			return s, tea.Quit
		case key.Matches(msg, keys.Up):
			table.MoveUp()
		case key.Matches(msg, keys.Down):
			table.MoveDown()
		case key.Matches(msg, keys.Refresh):
			return s, s.loadRuns()
		case key.Matches(msg, keys.Enter):
			if run := s.selected(); run != nil && s.detail == nil {
				return s, s.loadResults(run)
			}
		case key.Matches(msg, keys.Export):
			return s, s.export()
		}

	case runsLoadedMsg:
		if msg.task != s.task {
			return s, nil
		}
		s.err = msg.err
		s.runs = msg.runs
		s.updateRuns()

	case runResultsMsg:
		s.err = msg.err
		if msg.err == nil {
			s.detail, s.detailRows = msg.run, msg.results
			s.updateResults()
		}

	case ui.RunEventMsg:
		// runs are persisted before their finished event is delivered
		if _, ok := msg.Event.(domain.FinishedEvent); ok && (s.task == "" || msg.Event.TaskKey() == s.task) {
			return s, s.loadRuns()
		}

	case ui.SuccessMsg:
		s.notice = msg.Message
	}
	return s, nil
}

func (s *HistoryScreen) selected() *models.RunRecord {
	i := s.runsTable.GetSelectedRow()
	if i < 0 || i >= len(s.runs) {
		return nil
	}
	return s.runs[i]
}

func (s *HistoryScreen) export() tea.Cmd {
	run := s.selected()
	if s.detail != nil {
		run = s.detail
	}
	if run == nil {
		return nil
	}
	svc := s.deps.Services
	return func() tea.Msg {
		results, err := svc.RunResults(svc.GetContext(), run.RunID)
		if err == nil {
			var path string
			path, err = svc.ExportResults(domain.Key(run.TaskKey), run.RunID, results, export.FormatCSV, export.FilterAll)
			if err == nil {
				return ui.SuccessMsg{Message: "Exported to " + path, Title: "Export"}
			}
		}
		return ui.ErrorMsg{Error: err, Title: "Export failed"}
	}
}

func (s *HistoryScreen) updateRuns() {
	s.runsTable.Clear()
	for _, r := range s.runs {
		st, _ := domain.ParseState(r.State)
		s.runsTable.AddRow([]string{
			r.StartedAt.Format("2006-01-02 15:04:05"),
			r.TaskKey,
			shortID(r.RunID),
			r.State,
			formatTally(r.Tally()),
			formatElapsed(r.Elapsed()),
			r.Error,
		}, style.StateColor(st))
	}
}

func (s *HistoryScreen) updateResults() {
	s.resultsTable.Clear()
	for _, r := range s.detailRows {
		s.resultsTable.AddRow([]string{
			r.Item,
			strings.ToUpper(string(r.Outcome)),
			r.Detail,
			r.Timestamp.Format("15:04:05"),
		}, style.OutcomeColor(r.Outcome))
	}
}

// View renders the history screen
func (s *HistoryScreen) View() string {
	var b strings.Builder
	b.WriteString(style.TitleStyle.Render(s.Title()))
	b.WriteString("\n")

	switch {
	case s.detail != nil:
		d := s.detail
		b.WriteString(style.InfoStyle.Render(fmt.Sprintf("Run %s of %s, %s, %s",
			shortID(d.RunID), d.TaskKey, d.State, formatTally(d.Tally()))))
		b.WriteString("\n")
		if len(s.detailRows) == 0 {
			b.WriteString(style.MutedStyle.Render("This run produced no results."))
		} else {
			b.WriteString(s.resultsTable.View())
		}
	case len(s.runs) == 0:
		b.WriteString(style.MutedStyle.Render("No runs recorded yet."))
	default:
		b.WriteString(s.runsTable.View())
	}
	b.WriteString("\n")

	if s.err != nil {
		b.WriteString(style.ErrorStyle.Render("✗ " + s.err.Error()))
		b.WriteString("\n")
	}
	if s.notice != "" {
		b.WriteString(style.InfoStyle.Render(s.notice))
		b.WriteString("\n")
	}
	b.WriteString(s.helpBar.SetWidth(s.width).View())
	return b.String()
}

// SetSize sets the screen dimensions
func (s *HistoryScreen) SetSize(width, height int) {
	s.width = width
	s.height = height
	s.runsTable.SetSize(width-2, height-8)
	s.resultsTable.SetSize(width-2, height-9)
}
