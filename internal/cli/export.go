package cli

import (
	"fmt"

	"github.com/nregabot/nregabot/internal/browser"
	"github.com/nregabot/nregabot/internal/export"
	"github.com/nregabot/nregabot/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	exportFormat string
	exportFilter string
)

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "csv", "Output format: csv or json")
	exportCmd.Flags().StringVar(&exportFilter, "filter", "all", "Rows to export: all, success, failed or skipped")
}

var exportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export the results of a past run",
	Long:  `Export the stored results of a run. A unique prefix of the run id is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

var launchChromeCmd = &cobra.Command{
	Use:   "launch-chrome",
	Short: "Start Chrome with remote debugging enabled",
	Long: `Start Chrome on the configured debugging port with a dedicated profile,
then wait until it accepts connections. Log in to the portal in that window
before starting a task.`,
	Args: cobra.NoArgs,
	RunE: runLaunchChrome,
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	filter, err := export.ParseFilter(exportFilter)
	if err != nil {
		return err
	}

	a, err := openApp(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.Logger.Warn("Shutdown finished with errors", zap.Error(err))
		}
	}()

	path, err := a.ExportRun(cmd.Context(), args[0], format, filter)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	fmt.Println(path)
	return nil
}

func runLaunchChrome(cmd *cobra.Command, _ []string) error {
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

	pid, err := browser.LaunchChrome(cmd.Context(), cfg.Browser, logs.Logger.Named("browser"))
	if err != nil {
		return err
	}
	fmt.Printf("Chrome is running (pid %d) on %s. Log in to the portal, then start a task.\n", pid, cfg.Browser.DebuggerURL)
	return nil
}
