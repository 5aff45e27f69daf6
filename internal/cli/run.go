package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nregabot/nregabot/internal/app"
	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/logger"
	"github.com/nregabot/nregabot/internal/runconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes of a headless run.
const (
	exitFailed    = 1
	exitCancelled = 130
)

var (
	runSets      []string
	runItemsFile string
	runOut       string
)

func init() {
	runCmd.Flags().StringArrayVar(&runSets, "set", nil, "Set a field value (field=value), repeatable")
	runCmd.Flags().StringVar(&runItemsFile, "items-file", "", "Read work items from a file, one per line")
	runCmd.Flags().StringVar(&runOut, "out", "", "Append result rows to this CSV file")
}

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task without the terminal UI",
	Long: `Run a task headless. Field values start from the last saved configuration
and are overridden by --set and --items-file. Ctrl-C requests a stop; the item in
progress finishes first.`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

func runTask(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// the app outlives ctx so a stop request can still be delivered and drained
	a, err := openApp(context.WithoutCancel(ctx), false)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Error("Shutdown finished with errors", zap.Error(err))
		}
	}()

	key := domain.Key(args[0])
	rc, err := a.RunConfig(ctx, key)
	if err != nil {
		return err
	}
	if err := applyOverrides(rc, runSets, runItemsFile); err != nil {
		return err
	}

	var out *logger.SafeCSVWriter
	if runOut != "" {
		out, err = logger.NewSafeCSVWriter(runOut, 0, a.Logger.Named("csv"))
		if err != nil {
			return err
		}
		defer func() {
			rows, _, tally := out.GetStats()
			if err := out.Close(); err != nil {
				a.Logger.Error("Failed to close result file", zap.Error(err))
				return
			}
			a.Logger.Info("Results written",
				zap.String("path", out.Path()),
				zap.Uint64("rows", rows),
				zap.Int("failed", tally.Failed))
		}()
	}

	runID, err := a.Start(ctx, rc)
	if err != nil {
		return err
	}
	a.Logger.Info("Run started",
		zap.String("task", string(key)),
		zap.String("run_id", runID),
		zap.Int("items", len(rc.Items())))

	fin := follow(ctx, a, key, runID, out)
	return finishError(fin)
}

// follow drains runner events until the run finishes. Cancelling ctx asks
// the run to stop once.
func follow(ctx context.Context, a *app.App, key domain.Key, runID string, out *logger.SafeCSVWriter) domain.FinishedEvent {
	log := a.Logger.With(zap.String("task", string(key)), zap.String("run_id", runID))
	events := a.Runner.Events()
	interrupt := ctx.Done()

	for {
		select {
		case <-interrupt:
			interrupt = nil
			if a.RequestStop(key) {
				log.Warn("Stop requested, the current item will finish first")
			}

		case ev, ok := <-events:
			if !ok {
				return domain.FinishedEvent{State: domain.StateFailed, Err: domain.ErrShuttingDown}
			}
			if ev.Run() != runID {
				continue
			}
			switch ev := ev.(type) {
			case domain.ProgressEvent:
				log.Info(ev.Message, zap.Float64("fraction", ev.Fraction))
			case domain.ResultEvent:
				logResult(log, ev.Record)
				if out != nil {
					if err := out.WriteResult(ev.Record); err != nil {
						log.Error("Failed to write result row", zap.Error(err))
					}
				}
			case domain.FinishedEvent:
				log.Info("Run finished",
					zap.Stringer("state", ev.State),
					zap.String("message", ev.Message),
					zap.Int("success", ev.Tally.Success),
					zap.Int("failed", ev.Tally.Failed),
					zap.Int("skipped", ev.Tally.Skipped),
					zap.Duration("elapsed", ev.Elapsed))
				return ev
			}
		}
	}
}

func logResult(log *zap.Logger, rec domain.ResultRecord) {
	fields := []zap.Field{zap.String("item", rec.Item), zap.String("detail", rec.Detail)}
	switch rec.Outcome {
	case domain.OutcomeFailed:
		log.Warn("Item failed", fields...)
	case domain.OutcomeSkipped:
		log.Info("Item skipped", fields...)
	default:
		log.Info("Item done", fields...)
	}
}

func finishError(ev domain.FinishedEvent) error {
	switch ev.State {
	case domain.StateCompleted:
		return nil
	case domain.StateCancelled:
		return &ExitError{Code: exitCancelled, Err: errors.New("run cancelled")}
	default:
		err := ev.Err
		if err == nil {
			err = errors.New(ev.Message)
		}
		return &ExitError{Code: exitFailed, Err: fmt.Errorf("run failed: %w", err)}
	}
}

// applyOverrides sets field=value pairs and, when itemsFile is given,
// replaces the item field with its contents.
func applyOverrides(rc *runconfig.RunConfiguration, sets []string, itemsFile string) error {
	for _, kv := range sets {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("invalid --set %q, expected field=value", kv)
		}
		if err := rc.Set(strings.TrimSpace(name), value); err != nil {
			return err
		}
	}
	if itemsFile == "" {
		return nil
	}
	items, err := readItems(itemsFile)
	if err != nil {
		return err
	}
	return rc.Set(rc.ItemField(), strings.Join(items, "\n"))
}

func readItems(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open items file: %w", err)
	}
	defer f.Close()

	var items []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			items = append(items, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read items file: %w", err)
	}
	return items, nil
}

func keyStrings(keys []domain.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
