package app

import (
	"context"
	"fmt"
	"time"

	"github.com/nregabot/nregabot/internal/browser"
	"github.com/nregabot/nregabot/internal/config"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/export"
	"github.com/nregabot/nregabot/internal/keepawake"
	"github.com/nregabot/nregabot/internal/logger"
	"github.com/nregabot/nregabot/internal/runconfig"
	"github.com/nregabot/nregabot/internal/runner"
	"github.com/nregabot/nregabot/internal/storage"
	"github.com/nregabot/nregabot/internal/storage/models"
	"github.com/nregabot/nregabot/internal/storage/sqlite"
	"github.com/nregabot/nregabot/internal/workflow"
	"go.uber.org/zap"
)

const (
	persistTimeout = 5 * time.Second
	closeTimeout   = 5 * time.Second
)

// Options selects how the application is presented.
type Options struct {
	// TUI routes console logs into the in-memory buffer.
	TUI bool
	// Debug overrides the configured log level.
	Debug bool
}

// App is the wired object graph shared by the TUI and the CLI commands.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Logs      *logger.Bundle
	Storage   storage.Storage
	Browser   *browser.Manager
	Lock      *browser.SessionLock
	Registry  *workflow.Registry
	Executor  *workflow.Executor
	Runner    *runner.Runner
	Exporter  *export.ResultExporter
	KeepAwake *keepawake.Inhibitor

	ctx      context.Context
	shutdown *ShutdownHandler
	onFinish []func(domain.FinishedEvent, []domain.ResultRecord)
}

// New builds the application from cfg. On error everything opened so far is
// closed again.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if opts.Debug {
		cfg.Logging.Debug = true
	}
	logs, err := logger.New(cfg.Logging, opts.TUI)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &App{
		ctx:    ctx,
		Config: cfg,
		Logger: logs.Logger,
		Logs:   logs,
	}
	a.shutdown = NewShutdownHandler(logs.Logger.Named("shutdown"), closeTimeout)
	a.shutdown.Add("logger", logs)

	if err := a.build(ctx); err != nil {
		a.Logger.Error("Startup failed", zap.Error(err))
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config
	log := a.Logger

	st, err := sqlite.NewStorage(cfg.Storage.Path, log.Named("storage"))
	if err != nil {
		return err
	}
	a.Storage = st
	a.shutdown.Add("storage", st)

	reg, err := workflow.LoadDir(ctx, cfg.Workflows.Dir, log.Named("workflow"))
	if err != nil {
		return err
	}
	a.Registry = reg

	a.Browser = browser.NewManager(cfg.Browser, log)
	a.shutdown.Add("browser", a.Browser, Concurrently())
	a.Lock = browser.NewSessionLock(log.Named("browser"))
	a.Executor = workflow.NewExecutor(a.Browser, a.Lock, workflow.ExecutorOptions{
		WaitTimeout:   cfg.Browser.WaitTimeout,
		DialogTimeout: cfg.Browser.DialogTimeout,
		MinDelay:      cfg.Workflows.MinDelay,
		MaxDelay:      cfg.Workflows.MaxDelay,
	}, log)

	a.KeepAwake = keepawake.New(cfg.KeepAwake, log)
	a.shutdown.Add("keepawake", a.KeepAwake, Concurrently())

	a.Exporter = export.NewResultExporter(log.Named("export"))

	a.Runner = runner.New(log, runner.Options{
		EventBuffer: cfg.Runner.EventBuffer,
		Hooks: runner.Hooks{
			OnBusy:   a.KeepAwake.Hold,
			OnIdle:   a.KeepAwake.Release,
			OnFinish: a.finished,
		},
	})
	a.shutdown.AddFunc("runner", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Runner.ShutdownGrace)
		defer cancel()
		return a.Runner.Shutdown(ctx)
	}, WithTimeout(cfg.Runner.ShutdownGrace+time.Second))
	return nil
}

// OnFinish registers fn to be called after a finished run was persisted.
// It must be called before any run starts.
func (a *App) OnFinish(fn func(domain.FinishedEvent, []domain.ResultRecord)) {
	a.onFinish = append(a.onFinish, fn)
}

// finished persists the run history of a terminated run.
func (a *App) finished(ev domain.FinishedEvent, results []domain.ResultRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := a.Storage.SaveRun(ctx, models.RunFromEvent(ev), results); err != nil {
		a.Logger.Error("Failed to save run history",
			zap.String("task", string(ev.Key)),
			zap.String("run_id", ev.RunID),
			zap.Error(err))
	}
	for _, fn := range a.onFinish {
		fn(ev, results)
	}
}

// Definition looks up a task.
func (a *App) Definition(key domain.Key) (*workflow.Definition, error) {
	return a.Registry.Get(key)
}

// RunConfig returns the saved configuration of key merged over its defaults.
func (a *App) RunConfig(ctx context.Context, key domain.Key) (*runconfig.RunConfiguration, error) {
	def, err := a.Registry.Get(key)
	if err != nil {
		return nil, err
	}
	return runconfig.Load(ctx, a.Storage, def, a.Logger), nil
}

// Start validates rc, remembers it and starts the task. Validation errors are
// returned before any worker exists.
func (a *App) Start(ctx context.Context, rc *runconfig.RunConfiguration) (string, error) {
	def, err := a.Registry.Get(rc.Task)
	if err != nil {
		return "", err
	}
	if err := rc.Validate(); err != nil {
		return "", err
	}
	if a.Runner.IsRunning(rc.Task) {
		return "", &domain.AlreadyRunningError{Key: rc.Task}
	}
	runconfig.Save(ctx, a.Storage, a.Storage, rc, a.Logger)
	return a.Runner.Start(rc.Task, a.Executor.WorkFunc(def, rc.Values()))
}

// Tasks lists the loaded task definitions sorted by key.
func (a *App) Tasks() []*workflow.Definition {
	return a.Registry.List()
}

// RequestStop asks the run of key to stop. It reports whether a run was active.
func (a *App) RequestStop(key domain.Key) bool {
	return a.Runner.RequestStop(key)
}

// ListRuns returns the most recent runs of key, or of every task when key is empty.
func (a *App) ListRuns(ctx context.Context, key domain.Key, limit int) ([]*models.RunRecord, error) {
	return a.Storage.ListRuns(ctx, key, limit)
}

// RunResults returns the stored result log of a run.
func (a *App) RunResults(ctx context.Context, runID string) ([]domain.ResultRecord, error) {
	return a.Storage.RunResults(ctx, runID)
}

// LogBuffer is the in-memory log sink, nil unless the TUI is enabled.
func (a *App) LogBuffer() *logger.LogBuffer {
	return a.Logs.Buffer
}

func (a *App) GetLogger() *zap.Logger {
	return a.Logger
}

func (a *App) GetContext() context.Context {
	return a.ctx
}

// Suggestions returns remembered values of a field. Errors only get logged.
func (a *App) Suggestions(ctx context.Context, key domain.Key, field string) []string {
	vals, err := a.Storage.History(ctx, key, field)
	if err != nil {
		a.Logger.Warn("Failed to load field history",
			zap.String("task", string(key)),
			zap.String("field", field),
			zap.Error(err))
		return nil
	}
	return vals
}

// ExportRun writes the stored results of a run (by id or id prefix).
func (a *App) ExportRun(ctx context.Context, runID string, format export.ExportFormat, filter export.Filter) (string, error) {
	run, err := a.Storage.FindRun(ctx, runID)
	if err != nil {
		return "", err
	}
	results, err := a.Storage.RunResults(ctx, run.RunID)
	if err != nil {
		return "", err
	}
	return a.ExportResults(domain.Key(run.TaskKey), run.RunID, results, format, filter)
}

// ExportResults writes records to the configured export directory.
func (a *App) ExportResults(key domain.Key, runID string, records []domain.ResultRecord, format export.ExportFormat, filter export.Filter) (string, error) {
	return a.Exporter.ExportResults(records, export.ExportOptions{
		Format:    format,
		Filter:    filter,
		Task:      key,
		RunID:     runID,
		OutputDir: a.Config.Export.Dir,
	})
}

// Close stops active runs within the grace period, then releases every
// service in reverse order.
func (a *App) Close() error {
	return a.shutdown.Shutdown(context.Background())
}
