// Command agentd runs the agent orchestration server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"agentd/internal/api"
	"agentd/internal/config"
	"agentd/internal/eventbus"
	"agentd/internal/logging"
	"agentd/internal/messagebus"
	"agentd/internal/metrics"
	"agentd/internal/orchestrator"
	"agentd/internal/telemetry"
)

const version = "1.0.0"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     "agentd",
		Short:   "Provider-agnostic agent orchestration server",
		Version: version,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the agentd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("starting agentd", "version", version, "provider", cfg.Provider.Type)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bus := eventbus.NewBus()
	defer bus.Close()

	service := orchestrator.NewService(bus, logger)
	if err := service.Initialize(ctx, cfg.Provider.Type, cfg.Provider.Config); err != nil {
		return fmt.Errorf("provider startup: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = service.Shutdown(shutdownCtx)
	}()

	m := metrics.NewMetrics()
	metricsDone := make(chan struct{})
	defer close(metricsDone)
	go m.Observe(bus, service.ProviderType, metricsDone)

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTelemetry(ctx, "agentd", version, cfg.Telemetry.Endpoint, logger)
		if err != nil {
			logger.Warn("telemetry init failed, continuing without tracing", "error", err)
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdown(flushCtx)
			}()
		}
	}

	if cfg.NATS.URL != "" {
		bridge, err := messagebus.NewBridge(messagebus.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, logger)
		if err != nil {
			logger.Warn("nats bridge unavailable, continuing without it", "error", err)
		} else {
			go bridge.Run(bus)
			defer bridge.Close()
		}
	}

	server := api.NewServer(service, bus, m, logger, version)
	defer server.Shutdown()

	var handler http.Handler = server.SetupRoutes()
	if cfg.Telemetry.Enabled {
		handler = otelhttp.NewHandler(handler, "agentd.http")
	}

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	if cfg.HotReload.Enabled && configPath != "" {
		watcher := config.NewWatcher(configPath, logger, func(next *config.Config) {
			reinitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := service.Initialize(reinitCtx, next.Provider.Type, next.Provider.Config); err != nil {
				logger.Error("provider reload failed", "error", err)
			}
		})
		go func() {
			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("config watcher stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadConfigFromFile(configPath)
	}
	return config.Load()
}
