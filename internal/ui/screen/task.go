package screen

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/export"
	"github.com/nregabot/nregabot/internal/runconfig"
	"github.com/nregabot/nregabot/internal/ui"
	"github.com/nregabot/nregabot/internal/ui/component"
	"github.com/nregabot/nregabot/internal/ui/router"
	"github.com/nregabot/nregabot/internal/ui/state"
	"github.com/nregabot/nregabot/internal/ui/style"
	"github.com/nregabot/nregabot/internal/workflow"
	"go.uber.org/zap"
)

// suggestionsMsg carries the autocomplete history of one field.
type suggestionsMsg struct {
	task   domain.Key
	field  string
	values []string
}

// startedMsg reports the outcome of a start request.
type startedMsg struct {
	task  domain.Key
	runID string
	err   error
}

// TaskScreen configures, starts and watches one task.
type TaskScreen struct {
	deps   Deps
	def    *workflow.Definition
	config *runconfig.RunConfiguration
	width  int
	height int

	form     *component.Form
	table    *component.Table
	helpBar  *component.HelpBar
	progress progress.Model
	spinner  spinner.Model

	filter  export.Filter
	format  export.ExportFormat
	warning string
	notice  string

	// rows of shownRun already in the table
	shown    int
	shownRun string
}

// NewTaskScreen loads the saved configuration of def.
func NewTaskScreen(deps Deps, def *workflow.Definition) *TaskScreen {
	svc := deps.Services
	rc, err := svc.RunConfig(svc.GetContext(), def.Key)
	if err != nil {
		svc.GetLogger().Warn("Failed to load run configuration", zap.String("task", string(def.Key)), zap.Error(err))
		rc = runconfig.New(def)
	}

	s := &TaskScreen{
		deps:     deps,
		def:      def,
		config:   rc,
		form:     component.NewForm(def.Fields),
		progress: progress.New(progress.WithDefaultGradient()),
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		filter:   export.FilterAll,
		format:   export.FormatCSV,
		shown:    -1,
	}
	s.form.SetValues(rc.Values())

	s.table = component.NewTable().
		AddColumn("#", 4, lipgloss.Right).
		AddColumn("Item", 22, lipgloss.Left).
		AddColumn("Outcome", 9, lipgloss.Center).
		AddColumn("Detail", 0, lipgloss.Left).
		AddColumn("Time", 8, lipgloss.Left).
		SetSelectable(false).
		SetFollow(true)

	s.helpBar = component.NewHelpBar().
		SetKeyBindings(deps.Keys.ContextualHelp(ui.RouteTask)).
		SetFullHelp(deps.Keys.FullHelp())

	s.sync()
	return s
}

func (s *TaskScreen) Route() ui.Route { return ui.RouteTask }
func (s *TaskScreen) Title() string   { return s.def.Title }

// Init starts the spinner and loads autocomplete values.
func (s *TaskScreen) Init() tea.Cmd {
	s.sync()
	return tea.Batch(s.form.Init(), s.spinner.Tick, s.loadSuggestions())
}

func (s *TaskScreen) loadSuggestions() tea.Cmd {
	var cmds []tea.Cmd
	svc := s.deps.Services
	for _, f := range s.def.Fields {
		if !f.History {
			continue
		}
		key, name := s.def.Key, f.Name
		cmds = append(cmds, func() tea.Msg {
			return suggestionsMsg{task: key, field: name, values: svc.Suggestions(svc.GetContext(), key, name)}
		})
	}
	return tea.Batch(cmds...)
}

// ConsumeBack closes the suggestion list before esc leaves the screen.
func (s *TaskScreen) ConsumeBack() bool {
	if s.form.HasSuggestions() {
		s.form, _ = s.form.Update(tea.KeyMsg{Type: tea.KeyEsc})
		return true
	}
	return false
}

// Update handles screen updates
func (s *TaskScreen) Update(msg tea.Msg) (router.Screen, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		keys := s.deps.Keys
		switch {
		case key.Matches(msg, keys.StartTask):
			return s, s.start()
		case key.Matches(msg, keys.StopTask):
			s.stop()
			return s, nil
		case key.Matches(msg, keys.ResetTask):
			s.reset()
			return s, nil
		case key.Matches(msg, keys.ExportTask):
			return s, s.export()
		case key.Matches(msg, keys.Filter):
			s.filter = s.filter.Next()
			s.shown = -1
			s.sync()
			return s, nil
		case key.Matches(msg, keys.Format):
			if s.format == export.FormatCSV {
				s.format = export.FormatJSON
			} else {
				s.format = export.FormatCSV
			}
			return s, nil
		case key.Matches(msg, keys.Help):
			s.helpBar.Toggle()
			return s, nil
		}
		var cmd tea.Cmd
		s.form, cmd = s.form.Update(msg)
		return s, cmd

	case ui.RunEventMsg:
		if msg.Event.TaskKey() == s.def.Key {
			if _, ok := msg.Event.(domain.FinishedEvent); ok {
				s.notice = ""
			}
			s.sync()
		}
		return s, nil

	case startedMsg:
		if msg.task != s.def.Key {
			return s, nil
		}
		return s, s.started(msg)

	case suggestionsMsg:
		if msg.task == s.def.Key {
			s.form.SetHistory(msg.field, msg.values)
		}
		return s, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		s.spinner, cmd = s.spinner.Update(msg)
		return s, cmd

	case ui.SuccessMsg:
		s.notice = msg.Message
		return s, nil
	}

	var cmd tea.Cmd
	s.form, cmd = s.form.Update(msg)
	return s, cmd
}

// start copies the form into the configuration and starts the run from a
// command, since starting persists the configuration. Validation and
// "already running" problems stay on this screen as a warning line.
func (s *TaskScreen) start() tea.Cmd {
	s.warning, s.notice = "", ""
	s.config.Apply(s.form.Values())
	if err := s.config.Validate(); err != nil {
		s.warning = err.Error()
		return nil
	}
	s.notice = "Starting..."

	svc := s.deps.Services
	rc := s.config.Clone()
	return func() tea.Msg {
		runID, err := svc.Start(svc.GetContext(), rc)
		return startedMsg{task: rc.Task, runID: runID, err: err}
	}
}

func (s *TaskScreen) started(msg startedMsg) tea.Cmd {
	s.warning, s.notice = "", ""
	err := msg.err
	switch {
	case err == nil:
		s.notice = fmt.Sprintf("Started run %s", shortID(msg.runID))
		return s.loadSuggestions()
	case domain.IsAlreadyRunning(err), domain.IsValidation(err):
		s.warning = err.Error()
		return nil
	default:
		return func() tea.Msg { return ui.ErrorMsg{Error: err, Title: "Cannot start " + string(msg.task)} }
	}
}

func (s *TaskScreen) stop() {
	s.warning = ""
	if s.deps.Services.RequestStop(s.def.Key) {
		s.notice = "Stop requested, the current item will finish first"
		return
	}
	s.warning = "Task is not running"
}

func (s *TaskScreen) reset() {
	s.warning, s.notice = "", ""
	if !s.deps.Board.Reset(s.def.Key) {
		s.warning = "Stop the task before resetting the form"
		return
	}
	s.config = runconfig.New(s.def)
	s.form.SetValues(s.config.Values())
	s.shown = -1
	s.sync()
	s.notice = "Form has been reset"
}

func (s *TaskScreen) export() tea.Cmd {
	s.warning = ""
	v := s.deps.Board.Get(s.def.Key)
	if v.Running() {
		s.warning = "Wait for the run to finish before exporting"
		return nil
	}
	if len(v.Results) == 0 {
		s.warning = "There are no results to export"
		return nil
	}
	svc := s.deps.Services
	key, runID, records, format, filter := s.def.Key, v.RunID, v.Results, s.format, s.filter
	return func() tea.Msg {
		path, err := svc.ExportResults(key, runID, records, format, filter)
		if err != nil {
			return ui.ErrorMsg{Error: err, Title: "Export failed"}
		}
		return ui.SuccessMsg{Message: "Exported to " + path, Title: "Export"}
	}
}

// sync refreshes the results table and the form state from the board.
// Rows are appended incrementally while the filter is unchanged.
func (s *TaskScreen) sync() {
	v := s.deps.Board.Get(s.def.Key)
	s.form.SetDisabled(v.Running())

	if s.shown < 0 || s.shownRun != v.RunID || s.shown > len(v.Results) {
		s.table.Clear()
		s.shown = 0
		s.shownRun = v.RunID
	}
	for i := s.shown; i < len(v.Results); i++ {
		r := v.Results[i]
		if !s.filter.Match(r.Outcome) {
			continue
		}
		s.table.AddRow([]string{
			fmt.Sprint(i + 1),
			r.Item,
			strings.ToUpper(string(r.Outcome)),
			r.Detail,
			r.Timestamp.Format("15:04:05"),
		}, style.OutcomeColor(r.Outcome))
	}
	s.shown = len(v.Results)
}

// View renders the task screen
func (s *TaskScreen) View() string {
	v := s.deps.Board.Get(s.def.Key)

	var b strings.Builder
	b.WriteString(style.TitleStyle.Render(s.def.Title))
	b.WriteString("\n")
	if s.def.Description != "" {
		b.WriteString(style.MutedStyle.Render(s.def.Description))
		b.WriteString("\n")
	}
	b.WriteString(style.MutedStyle.Render(s.def.URL))
	b.WriteString("\n\n")

	left := lipgloss.NewStyle().Width(s.formWidth()).Render(s.form.View())
	right := s.viewRun(v)
	if s.width >= 100 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, left, "  ", right))
	} else {
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left, left, right))
	}
	b.WriteString("\n")

	if s.warning != "" {
		b.WriteString(style.WarningStyle.Render("⚠ " + s.warning))
		b.WriteString("\n")
	}
	if s.notice != "" {
		b.WriteString(style.InfoStyle.Render(s.notice))
		b.WriteString("\n")
	}
	b.WriteString(s.helpBar.SetWidth(s.width).View())
	return b.String()
}

func (s *TaskScreen) viewRun(v state.TaskView) string {
	stateStyle := lipgloss.NewStyle().Foreground(style.StateColor(v.State)).Bold(true)

	status := v.Message
	if status == "" {
		status = "Ready"
	}
	line := stateStyle.Render(strings.ToUpper(v.State.String())) + "  " + status
	if v.Running() {
		line = s.spinner.View() + " " + line
	}

	elapsed := v.Elapsed
	if v.Running() {
		elapsed = time.Since(v.Started)
	}
	meta := fmt.Sprintf("%s   elapsed %s   filter %s   format %s",
		formatTally(v.Tally), formatElapsed(elapsed), s.filter, s.format)

	return lipgloss.JoinVertical(lipgloss.Left,
		line,
		s.progress.ViewAs(v.Fraction),
		style.MutedStyle.Render(meta),
		s.table.View(),
	)
}

func (s *TaskScreen) formWidth() int {
	if s.width >= 100 {
		return s.width * 2 / 5
	}
	return s.width
}

// SetSize sets the screen dimensions
func (s *TaskScreen) SetSize(width, height int) {
	s.width = width
	s.height = height
	s.form.SetSize(s.formWidth(), height)

	runWidth := width - s.formWidth() - 2
	tableHeight := height - 14
	if width < 100 {
		runWidth = width
		tableHeight = height / 2
	}
	s.progress.Width = max(runWidth-4, 10)
	s.table.SetSize(runWidth, max(tableHeight, 6))
}
