package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/conductor/internal/api"
	"github.com/Iron-Ham/conductor/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open a live dashboard of a running hub",
	RunE:  runWatch,
}

var (
	watchAddr     string
	watchInterval time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "hub address (default: api.addr from config)")
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 2*time.Second, "refresh interval")
}

func runWatch(cmd *cobra.Command, args []string) error {
	client := api.NewClient(hubAddr(watchAddr), nil)
	return tui.Run(cmd.Context(), client.Status, watchInterval)
}
