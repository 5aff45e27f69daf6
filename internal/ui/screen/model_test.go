package screen

import (
	"context"
	"errors"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/export"
	"github.com/nregabot/nregabot/internal/logger"
	"github.com/nregabot/nregabot/internal/runconfig"
	"github.com/nregabot/nregabot/internal/storage/models"
	"github.com/nregabot/nregabot/internal/ui"
	"github.com/nregabot/nregabot/internal/ui/state"
	"github.com/nregabot/nregabot/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const demoFlow = `
key: msr
title: Muster Roll Save
url: https://example.test/msr
item_field: work_keys
fields:
  - name: panchayat
    label: Panchayat
    required: true
    history: true
  - name: work_keys
    label: Work keys
    required: true
    multiline: true
items:
  - action: click
    selector: "#go"
`

type fakeServices struct {
	def      *workflow.Definition
	running  map[domain.Key]bool
	started  []map[string]string
	stopped  []domain.Key
	exported []domain.ResultRecord
	history  []string
	// gate, when set, holds Start until closed
	gate     chan struct{}
	startErr error
}

func newFakeServices(t *testing.T) *fakeServices {
	t.Helper()
	def, err := workflow.Parse([]byte(demoFlow))
	require.NoError(t, err)
	return &fakeServices{def: def, running: map[domain.Key]bool{}, history: []string{"Rampur", "Rajnagar"}}
}

func (f *fakeServices) Tasks() []*workflow.Definition { return []*workflow.Definition{f.def} }

func (f *fakeServices) RunConfig(_ context.Context, key domain.Key) (*runconfig.RunConfiguration, error) {
	if key != f.def.Key {
		return nil, domain.ErrUnknownTask
	}
	return runconfig.New(f.def), nil
}

func (f *fakeServices) Start(_ context.Context, rc *runconfig.RunConfiguration) (string, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.startErr != nil {
		return "", f.startErr
	}
	if err := rc.Validate(); err != nil {
		return "", err
	}
	if f.running[rc.Task] {
		return "", &domain.AlreadyRunningError{Key: rc.Task}
	}
	f.running[rc.Task] = true
	f.started = append(f.started, rc.Values())
	return "0123456789abcdef", nil
}

func (f *fakeServices) RequestStop(key domain.Key) bool {
	f.stopped = append(f.stopped, key)
	return f.running[key]
}

func (f *fakeServices) Suggestions(context.Context, domain.Key, string) []string { return f.history }

func (f *fakeServices) ListRuns(context.Context, domain.Key, int) ([]*models.RunRecord, error) {
	return nil, nil
}

func (f *fakeServices) RunResults(context.Context, string) ([]domain.ResultRecord, error) {
	return nil, nil
}

func (f *fakeServices) ExportResults(_ domain.Key, _ string, records []domain.ResultRecord, _ export.ExportFormat, filter export.Filter) (string, error) {
	f.exported = filter.Apply(records)
	return "/tmp/out.csv", nil
}

func (f *fakeServices) LogBuffer() *logger.LogBuffer { return nil }
func (f *fakeServices) GetLogger() *zap.Logger        { return zap.NewNop() }
func (f *fakeServices) GetContext() context.Context   { return context.Background() }

func newTestModel(t *testing.T) (*Model, *fakeServices, chan domain.Event) {
	t.Helper()
	svc := newFakeServices(t)
	deps := Deps{Services: svc, Board: state.NewBoard(zap.NewNop()), Keys: ui.DefaultKeyMap()}
	events := make(chan domain.Event, 16)
	m := NewModel(deps, ui.NewEventFeed(events))
	m.Init()
	m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return m, svc, events
}

func hdr(run string) domain.Header {
	return domain.Header{Key: "msr", RunID: run, Timestamp: time.Now()}
}

func feed(m *Model, evs ...domain.Event) {
	for _, ev := range evs {
		m.Update(ui.RunEventMsg{Event: ev})
	}
}

// press sends a key and runs the start command it returns, if any.
func press(m *Model, k tea.KeyType) {
	_, cmd := m.Update(tea.KeyMsg{Type: k})
	if cmd == nil {
		return
	}
	if sm, ok := cmd().(startedMsg); ok {
		m.Update(sm)
	}
}

func resultEv(run, item string, o domain.Outcome) domain.ResultEvent {
	return domain.ResultEvent{Header: hdr(run), Record: domain.ResultRecord{RunID: run, Key: "msr", Item: item, Outcome: o}}
}

func openTask(t *testing.T, m *Model) *TaskScreen {
	t.Helper()
	m.Update(ui.RouterMsg{To: ui.RouteTask, Task: "msr"})
	ts, ok := m.router.Current().(*TaskScreen)
	require.True(t, ok)
	return ts
}

func TestModelFoldsEventsIntoBoard(t *testing.T) {
	m, _, _ := newTestModel(t)

	feed(m,
		domain.StartedEvent{Header: hdr("r1")},
		domain.ProgressEvent{Header: hdr("r1"), Message: "Processing W1 (1/1)", Fraction: 0.5},
		resultEv("r1", "W1", domain.OutcomeSuccess),
	)
	v := m.deps.Board.Get("msr")
	assert.True(t, v.Running())
	assert.Len(t, v.Results, 1)
	assert.Contains(t, m.View(), "running: msr")
}

func TestFatalFinishShowsModal(t *testing.T) {
	m, _, _ := newTestModel(t)
	err := &domain.ConnectionError{Addr: "http://127.0.0.1:9222", Err: errors.New("connection refused")}

	feed(m,
		domain.StartedEvent{Header: hdr("r1")},
		domain.FinishedEvent{Header: hdr("r1"), State: domain.StateFailed, Err: err},
	)
	require.NotNil(t, m.modal)
	assert.Contains(t, m.View(), "Start Chrome")

	// keys other than dismiss are swallowed while the modal is open
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("h")})
	assert.Equal(t, 1, m.router.Depth())

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, m.modal)
}

func TestCancelledRunHasNoModal(t *testing.T) {
	m, _, _ := newTestModel(t)
	feed(m,
		domain.StartedEvent{Header: hdr("r1")},
		domain.FinishedEvent{Header: hdr("r1"), State: domain.StateCancelled, Message: "Stopped by user"},
	)
	assert.Nil(t, m.modal)
	assert.Equal(t, domain.StateCancelled, m.deps.Board.Get("msr").State)
}

func TestNavigationAndBack(t *testing.T) {
	m, _, _ := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	_, cmd := m.Update(ui.RouterMsg{To: ui.RouteTask, Task: "msr"})
	assert.NotNil(t, cmd)
	assert.Equal(t, 2, m.router.Depth())
	assert.Equal(t, ui.RouteTask, m.router.Current().Route())

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, 1, m.router.Depth())

	m.Update(ui.RouterMsg{To: ui.RouteTask, Task: "nope"})
	assert.Equal(t, 1, m.router.Depth())
}

func TestStartWithMissingFieldsShowsWarning(t *testing.T) {
	m, svc, _ := newTestModel(t)
	ts := openTask(t, m)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	assert.Nil(t, cmd)
	assert.Empty(t, svc.started)
	assert.Contains(t, ts.warning, "Panchayat")
	assert.Contains(t, ts.warning, "Work keys")
}

func TestStartAndAlreadyRunning(t *testing.T) {
	m, svc, _ := newTestModel(t)
	ts := openTask(t, m)
	ts.form.SetValues(map[string]string{"panchayat": "Rampur", "work_keys": "W1\nW2"})

	press(m, tea.KeyCtrlR)
	require.Len(t, svc.started, 1)
	assert.Equal(t, "W1\nW2", svc.started[0]["work_keys"])
	assert.Equal(t, "Started run 01234567", ts.notice)
	assert.Empty(t, ts.warning)

	press(m, tea.KeyCtrlR)
	assert.Len(t, svc.started, 1)
	assert.Contains(t, ts.warning, "already running")
}

func TestStartDoesNotBlockUpdate(t *testing.T) {
	m, svc, _ := newTestModel(t)
	ts := openTask(t, m)
	ts.form.SetValues(map[string]string{"panchayat": "Rampur", "work_keys": "W1"})
	svc.gate = make(chan struct{})

	returned := make(chan tea.Cmd, 1)
	go func() {
		_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
		returned <- cmd
	}()
	var cmd tea.Cmd
	select {
	case cmd = <-returned:
	case <-time.After(time.Second):
		close(svc.gate)
		t.Fatal("Update waited for Start")
	}
	require.NotNil(t, cmd)
	assert.Empty(t, svc.started)
	assert.Equal(t, "Starting...", ts.notice)

	// edits after the key press do not leak into the run being started
	ts.form.SetValues(map[string]string{"panchayat": "Other"})
	ts.config.Apply(ts.form.Values())

	close(svc.gate)
	m.Update(cmd())
	require.Len(t, svc.started, 1)
	assert.Equal(t, "Rampur", svc.started[0]["panchayat"])
	assert.Equal(t, "Started run 01234567", ts.notice)
}

func TestStartFailureOpensModal(t *testing.T) {
	m, svc, _ := newTestModel(t)
	ts := openTask(t, m)
	ts.form.SetValues(map[string]string{"panchayat": "Rampur", "work_keys": "W1"})
	svc.startErr = errors.New("database is locked")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	_, cmd = m.Update(cmd())
	require.NotNil(t, cmd)
	m.Update(cmd())

	require.NotNil(t, m.modal)
	assert.Equal(t, "Cannot start msr", m.modal.title)
	assert.Contains(t, m.modal.body, "database is locked")
	assert.Empty(t, ts.notice)
}

func TestFormIsLockedWhileRunning(t *testing.T) {
	m, _, _ := newTestModel(t)
	ts := openTask(t, m)
	ts.form.SetValues(map[string]string{"panchayat": "Ram"})

	feed(m, domain.StartedEvent{Header: hdr("r1")})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Equal(t, "Ram", ts.form.Values()["panchayat"])

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Contains(t, ts.warning, "Stop the task")

	feed(m, domain.FinishedEvent{Header: hdr("r1"), State: domain.StateCompleted})
	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	assert.Equal(t, "Ramx", ts.form.Values()["panchayat"])
}

func TestFilterAndExport(t *testing.T) {
	m, svc, _ := newTestModel(t)
	ts := openTask(t, m)

	feed(m,
		domain.StartedEvent{Header: hdr("r1")},
		resultEv("r1", "W1", domain.OutcomeSuccess),
		resultEv("r1", "W2", domain.OutcomeFailed),
		resultEv("r1", "W3", domain.OutcomeSkipped),
	)
	assert.Equal(t, 3, ts.table.GetRowCount())

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlE})
	assert.Contains(t, ts.warning, "Wait for the run")

	feed(m, domain.FinishedEvent{Header: hdr("r1"), State: domain.StateCompleted})

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlF}) // success
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlF}) // failed
	assert.Equal(t, export.FilterFailed, ts.filter)
	assert.Equal(t, 1, ts.table.GetRowCount())

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlE})
	require.NotNil(t, cmd)
	msg := cmd()
	require.IsType(t, ui.SuccessMsg{}, msg)
	require.Len(t, svc.exported, 1)
	assert.Equal(t, "W2", svc.exported[0].Item)
}

func TestResetClearsResultsAndForm(t *testing.T) {
	m, _, _ := newTestModel(t)
	ts := openTask(t, m)
	ts.form.SetValues(map[string]string{"panchayat": "Rampur", "work_keys": "W1"})

	feed(m,
		domain.StartedEvent{Header: hdr("r1")},
		resultEv("r1", "W1", domain.OutcomeSuccess),
		domain.FinishedEvent{Header: hdr("r1"), State: domain.StateCompleted},
	)
	m.Update(tea.KeyMsg{Type: tea.KeyCtrlN})

	assert.Equal(t, "Form has been reset", ts.notice)
	assert.Equal(t, 0, ts.table.GetRowCount())
	assert.Equal(t, "", ts.form.Values()["panchayat"])
	assert.Equal(t, domain.StateIdle, m.deps.Board.Get("msr").State)
}

func TestSuggestionsFromHistory(t *testing.T) {
	m, _, _ := newTestModel(t)
	ts := openTask(t, m)
	m.Update(suggestionsMsg{task: "msr", field: "panchayat", values: []string{"Rampur", "Rajnagar", "Barhet"}})

	for _, r := range "ra" {
		m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	require.True(t, ts.form.HasSuggestions())

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Equal(t, "Rampur", ts.form.Values()["panchayat"])
	assert.False(t, ts.form.HasSuggestions())
}

func TestStopFromTaskList(t *testing.T) {
	m, svc, _ := newTestModel(t)
	svc.running["msr"] = true

	m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	assert.Equal(t, []domain.Key{"msr"}, svc.stopped)
}
