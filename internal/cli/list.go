package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/nregabot/nregabot/internal/domain"
	"github.com/nregabot/nregabot/internal/logger"
	"github.com/nregabot/nregabot/internal/storage/models"
	"github.com/nregabot/nregabot/internal/workflow"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the available tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasks,
}

var historyCmd = &cobra.Command{
	Use:   "history [task]",
	Short: "Show recent runs",
	Long:  `Show recent runs of one task, or of every task when none is given.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func runTasks(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Debug = true
	}
	logs, err := logger.New(cfg.Logging, false)
	if err != nil {
		return err
	}
	defer logs.Close()

	reg, err := workflow.LoadDir(cmd.Context(), cfg.Workflows.Dir, logs.Logger.Named("workflow"))
	if err != nil {
		return err
	}
	return printTasks(os.Stdout, reg.List())
}

func printTasks(out io.Writer, defs []*workflow.Definition) error {
	if len(defs) == 0 {
		fmt.Fprintln(out, "No tasks found.")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTITLE\tFIELDS\tSOURCE")
	for _, d := range defs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Key, d.Title, fieldNames(d.Fields), d.Source)
	}
	return w.Flush()
}

func fieldNames(fields []workflow.FieldSpec) string {
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		n := f.Name
		if f.Required {
			n += "*"
		}
		names = append(names, n)
	}
	return strings.Join(names, ", ")
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Warn("Shutdown finished with errors", zap.Error(err))
		}
	}()

	var key domain.Key
	if len(args) == 1 {
		key = domain.Key(args[0])
		if _, err := a.Definition(key); err != nil {
			return err
		}
	}
	runs, err := a.ListRuns(cmd.Context(), key, historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tTASK\tSTATE\tSTARTED\tELAPSED\tOK\tFAILED\tSKIPPED\tERROR")
	for _, r := range runs {
		fmt.Fprintln(w, historyRow(r, time.Now()))
	}
	return w.Flush()
}

func historyRow(r *models.RunRecord, now time.Time) string {
	id := r.RunID
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s",
		id,
		r.TaskKey,
		r.State,
		formatAge(r.StartedAt, now),
		r.Elapsed().Round(time.Second),
		r.SuccessCount,
		r.FailedCount,
		r.SkippedCount,
		r.Error,
	)
}

// formatAge returns a human-readable relative time string.
func formatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours())/24)
	}
}
