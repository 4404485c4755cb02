package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/ridgeback/internal/config"
	"github.com/cuemby/ridgeback/internal/lifecycle"
	"github.com/cuemby/ridgeback/internal/metrics"
	"github.com/cuemby/ridgeback/internal/rlog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var validatorCmd = &cobra.Command{
	Use:   "validator",
	Short: "Run the validator node lifecycle",
	Long: `Run the node through its three-stage lifecycle: initializer, joiner,
and validator, exiting cleanly once the validator stage reports a
requested shutdown.`,
	RunE: runValidator,
}

func init() {
	validatorCmd.Flags().String("config", "", "Path to the YAML configuration file (required)")
	validatorCmd.Flags().String("metrics-addr", "", "Address to serve Prometheus metrics on (empty disables)")
	validatorCmd.Flags().Int64("seed", 0, "Seed for the reactor's deterministic rng")
	_ = validatorCmd.MarkFlagRequired("config")
}

func runValidator(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	seed, _ := cmd.Flags().GetInt64("seed")

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := rlog.WithComponent("main")

	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		if err := metrics.Register(reg); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error().Err(err).Msg("metrics server exited")
			}
		}()
		logger.Info().Str("addr", metricsAddr).Msg("serving metrics")
	}

	driver, err := lifecycle.NewDriver(cfg, cfg.DataDir, seed)
	if err != nil {
		return fmt.Errorf("failed to start lifecycle: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info().Msg("received shutdown signal")
		driver.RequestShutdown()
	}()

	logger.Info().Str("network", cfg.NetworkName).Msg("starting validator lifecycle")

	succeeded, err := driver.Run(ctx)
	if err != nil {
		return fmt.Errorf("lifecycle run failed: %w", err)
	}
	if !succeeded {
		return fmt.Errorf("lifecycle stopped unsuccessfully")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
