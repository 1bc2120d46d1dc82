package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/conductor/internal/api"
	"github.com/Iron-Ham/conductor/internal/config"
	"github.com/Iron-Ham/conductor/internal/coordination"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestration hub and its HTTP API",
	Long: `Run the orchestration hub: start the configured workers, the
scheduler, rule engine, threshold monitor and message bus, and serve the
HTTP API until interrupted.

Examples:
  # Serve with the default config
  conductor serve

  # Override the listen address
  conductor serve --addr :9000`,
	RunE: runServe,
}

var (
	serveAddr         string
	serveShutdownWait time.Duration
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: api.addr from config)")
	serveCmd.Flags().DurationVar(&serveShutdownWait, "shutdown-timeout", 30*time.Second, "how long to wait for in-flight work on shutdown")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	addr := cfg.API.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()
	watchLogLevel(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub, err := coordination.NewHub(ctx, cfg, coordination.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to build hub: %w", err)
	}
	if err := hub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start hub: %w", err)
	}

	server := api.NewServer(hub, api.WithLogger(logger))
	fmt.Fprintf(cmd.OutOrStdout(), "conductor listening on %s (%d workers)\n", addr, len(hub.Workers()))
	serveErr := server.Serve(ctx, addr)

	// The serve context is already canceled here; give workers a fresh budget.
	stopCtx, cancel := context.WithTimeout(context.Background(), serveShutdownWait)
	defer cancel()
	if err := hub.Stop(stopCtx); err != nil {
		logger.Error("hub stop failed", "error", err.Error())
		if serveErr == nil {
			serveErr = err
		}
	}
	logger.Info("conductor stopped")
	return serveErr
}
