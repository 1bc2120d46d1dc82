package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/conductor/internal/config"
	"github.com/Iron-Ham/conductor/internal/logging"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View hub logs",
	Long: `View, filter and export the hub's JSON log file.

Examples:
  # Show the last 50 entries
  conductor logs

  # Everything a single task logged, as CSV
  conductor logs --task 3f2a... -n 0 --format csv

  # Warnings and errors from the last hour
  conductor logs --level warn --since 1h

  # Export the scheduler's entries to a file
  conductor logs --component scheduler --format json -o scheduler.json`,
	RunE: runLogs,
}

var (
	logsFile      string
	logsTail      int
	logsLevel     string
	logsSince     string
	logsComponent string
	logsTask      string
	logsWorker    string
	logsExecution string
	logsGrep      string
	logsFormat    string
	logsOutput    string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsFile, "file", "", "log file (default: logging.file from config)")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Filter by component")
	logsCmd.Flags().StringVar(&logsTask, "task", "", "Filter by task ID")
	logsCmd.Flags().StringVar(&logsWorker, "worker", "", "Filter by worker ID")
	logsCmd.Flags().StringVar(&logsExecution, "execution", "", "Filter by workflow execution ID")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter to messages containing this text")
	logsCmd.Flags().StringVar(&logsFormat, "format", "", "Export format: json, text, csv (default: colored text)")
	logsCmd.Flags().StringVarP(&logsOutput, "output", "o", "", "Write to this file instead of stdout")
}

var levelStyles = map[string]lipgloss.Style{
	logging.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF")),
	logging.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
	logging.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	logging.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")),
}

func runLogs(cmd *cobra.Command, args []string) error {
	path := logsFile
	if path == "" {
		path = viper.GetString("logging.file")
	}
	if path == "" {
		lc := config.LoggingConfig{}
		path = lc.ResolveLogFile()
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Fprintf(cmd.OutOrStdout(), "No logs found at %s\n", path)
		return nil
	}

	filter, err := buildLogFilter(time.Now())
	if err != nil {
		return err
	}

	entries, err := logging.AggregateLogs(path)
	if err != nil {
		return fmt.Errorf("failed to read logs: %w", err)
	}
	entries = logging.FilterLogs(entries, filter)
	if logsTail > 0 && len(entries) > logsTail {
		entries = entries[len(entries)-logsTail:]
	}

	if logsOutput != "" {
		format := logsFormat
		if format == "" {
			format = "json"
		}
		if err := logging.ExportLogFile(entries, logsOutput, format); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", len(entries), logsOutput)
		return nil
	}

	out := cmd.OutOrStdout()
	if logsFormat != "" {
		return logging.ExportLogEntries(out, entries, logsFormat)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "No matching log entries found.")
		return nil
	}
	printLogEntries(out, entries)
	return nil
}

func buildLogFilter(now time.Time) (logging.LogFilter, error) {
	filter := logging.LogFilter{
		Component:       logsComponent,
		TaskID:          logsTask,
		WorkerID:        logsWorker,
		ExecutionID:     logsExecution,
		MessageContains: logsGrep,
	}
	if logsLevel != "" {
		filter.Level = logging.ParseLevel(logsLevel)
	}
	if logsSince != "" {
		d, err := time.ParseDuration(logsSince)
		if err != nil {
			return filter, fmt.Errorf("invalid duration format: %w", err)
		}
		filter.StartTime = now.Add(-d)
	}
	return filter, nil
}

func printLogEntries(w io.Writer, entries []logging.LogEntry) {
	for _, e := range entries {
		line := logging.FormatText(e)
		if style, ok := levelStyles[e.Level]; ok {
			line = style.Render(line)
		}
		fmt.Fprintln(w, line)
	}
}
