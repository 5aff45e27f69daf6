package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nregabot/nregabot/internal/app"
	"github.com/nregabot/nregabot/internal/ui"
	"github.com/nregabot/nregabot/internal/ui/screen"
	"github.com/nregabot/nregabot/internal/ui/state"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var _ ui.Services = (*app.App)(nil)

func runTUI(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Error("Shutdown finished with errors", zap.Error(err))
		}
	}()

	a.Logger.Info("Starting nregabot TUI", zap.Int("tasks", a.Registry.Len()))

	// the board outlives UI restarts so a new model sees the runs in flight
	deps := screen.Deps{
		Services: a,
		Board:    state.NewBoard(a.Logger.Named("board")),
		Keys:     ui.DefaultKeyMap(),
	}
	feed := ui.NewEventFeed(a.Runner.Events())

	rh := ui.NewRecoveryHandler(a.Logger.Named("ui"), func(restarts int) (tea.Model, []tea.ProgramOption) {
		feed.Renew()
		m := screen.NewModel(deps, feed)
		if restarts > 0 {
			m.Notify(fmt.Sprintf("The interface was restarted after an error (%d)", restarts))
		}
		return ui.NewSafeUIWrapper(m, a.Logger.Named("ui")), []tea.ProgramOption{
			tea.WithAltScreen(),
			tea.WithMouseCellMotion(),
		}
	})

	go func() {
		<-ctx.Done()
		rh.Stop()
	}()

	if err := rh.RunWithRecovery(); err != nil {
		a.Logger.Error("TUI application failed", zap.Error(err))
		return err
	}
	tasks, applied, stale := deps.Board.GetStats()
	a.Logger.Info("Shutting down TUI application",
		zap.Strings("running", keyStrings(a.Runner.Running())),
		zap.Uint64("tasks_seen", tasks),
		zap.Uint64("events_applied", applied),
		zap.Uint64("events_stale", stale))
	return nil
}
