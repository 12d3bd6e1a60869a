// Command ardeck-plugin is a sample Ardeck plugin. The studio launches it
// with the port of its plugin WebSocket server:
//
//	ardeck-plugin 3000
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	sdk "github.com/project-ardeck/ardeck-plugin-sdk"
	"github.com/project-ardeck/ardeck-plugin-sdk/config"
	"github.com/project-ardeck/ardeck-plugin-sdk/logging"
	"github.com/project-ardeck/ardeck-plugin-sdk/manifest"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "ardeck-plugin <port>",
		Short: "Sample Ardeck plugin",
		Long: `Connects to the Ardeck studio on 127.0.0.1:<port>, registers itself
from manifest.json and answers the "hello" and "ping" actions.

Settings are read from ardeck-plugin.yaml and ARDECK_* environment variables.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       sdk.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := parsePort(args[0])
			if err != nil {
				return err
			}
			return run(cmd.Context(), port, metricsAddr)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics_addr)")
	return cmd
}

func parsePort(s string) (uint16, error) {
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil || port == 0 {
		return 0, fmt.Errorf("invalid port %q: must be a number between 1 and 65535", s)
	}
	return uint16(port), nil
}

func run(ctx context.Context, port uint16, metricsAddr string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}

	logger, logFile, err := logging.Setup(logging.Options{
		Dir:      cfg.LogDir,
		Level:    cfg.LogLevel,
		MaxFiles: cfg.LogMaxFiles,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer logFile.Close()
	slog.SetDefault(logger)

	var loader manifest.Loader = manifest.FileLoader{Path: cfg.ManifestPath}
	m, err := loader.Load()
	if err != nil {
		logger.Error("failed to load manifest", "path", cfg.ManifestPath, "error", err)
		return err
	}
	logger.Info("starting plugin", "name", m.Name, "id", m.ID, "version", m.Version, "sdk_version", sdk.Version)

	opts := []sdk.Option{
		sdk.WithLogger(logger),
		sdk.WithConnectTimeout(cfg.ConnectTimeout),
	}

	var reg *prometheus.Registry
	if cfg.MetricsAddr != "" {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		opts = append(opts, sdk.WithMetrics(sdk.NewMetrics(reg)))
	}

	plugin := sdk.New(*m, opts...)
	registerSampleActions(plugin, logger)

	if reg != nil {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMetricsRouter(reg, plugin.State),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("serving metrics", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Session errors are logged; only startup failures exit non-zero.
	if err := plugin.Start(ctx, sdk.Endpoint(port)); err != nil {
		logger.Error("studio session ended with error", "error", err)
		return nil
	}
	logger.Info("plugin stopped")
	return nil
}
