package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/conductor/internal/api"
	"github.com/Iron-Ham/conductor/internal/tui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running hub",
	Long: `Fetch a status snapshot from a running 'conductor serve' and print it.

Examples:
  conductor status
  conductor status --addr 10.0.0.5:8420 --json`,
	RunE: runStatus,
}

var (
	statusAddr  string
	statusJSON  bool
	statusWidth int
)

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "hub address (default: api.addr from config)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the raw JSON snapshot")
	statusCmd.Flags().IntVar(&statusWidth, "width", 120, "maximum line width")
}

// hubAddr resolves the hub address from a flag value or the config.
func hubAddr(flag string) string {
	if flag != "" {
		return flag
	}
	return viper.GetString("api.addr")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := api.NewClient(hubAddr(statusAddr), nil)
	status, err := client.Status(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to fetch status: %w", err)
	}

	out := cmd.OutOrStdout()
	if statusJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	fmt.Fprintln(out, tui.RenderStatus(status, statusWidth))
	return nil
}
