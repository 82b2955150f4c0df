package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telcoflow/console/internal/api"
	"github.com/telcoflow/console/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Probe the management gateway once and report its state",
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("tfconsole health: %w", err)
	}
	logger := setupLogger(cfg.LogLevel)

	gateway, err := api.NewGateway(cfg.API, buildVersion, cfg.TokenSource(), logger)
	if err != nil {
		return fmt.Errorf("tfconsole health: %w", err)
	}
	monitor := health.NewMonitor(gateway, logger)
	gateway.SetHealthSink(monitor)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	_ = monitor.Start(ctx)

	st := monitor.State()
	switch st.Phase {
	case health.PhaseHealthy:
		fmt.Fprintln(cmd.OutOrStdout(), "healthy")
		return nil
	case health.PhaseRateLimited:
		fmt.Fprintf(cmd.OutOrStdout(), "rate_limited (retry after %s)\n", st.RetryAfter)
	default:
		fmt.Fprintln(cmd.OutOrStdout(), string(st.Phase))
	}
	return fmt.Errorf("tfconsole health: platform is %s", st.Phase)
}
