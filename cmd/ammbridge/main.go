// Package main runs the AMM TCP bridge.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rainerleuschke/tcp-bridge/bridge"
	"github.com/rainerleuschke/tcp-bridge/bus"
	"github.com/rainerleuschke/tcp-bridge/config"
	"github.com/rainerleuschke/tcp-bridge/errors"
	"github.com/rainerleuschke/tcp-bridge/metric"
	"github.com/rainerleuschke/tcp-bridge/natsclient"
	"github.com/rainerleuschke/tcp-bridge/pkg/retry"
	"github.com/rainerleuschke/tcp-bridge/server"
)

const appName = "ammbridge"

// Build information, set via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "PANIC: %v\n%s\n", r, debug.Stack())
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cli, err := parseFlags(args)
	if err != nil {
		return err
	}
	if cli.ShowVersion {
		fmt.Printf("%s version %s (built %s)\n", appName, Version, BuildTime)
		return nil
	}
	if cli.ShowHelp {
		return nil
	}
	if err := validateFlags(cli); err != nil {
		return err
	}

	logger := setupLogger(cli.LogLevel, cli.LogFormat)
	slog.SetDefault(logger)

	cfg, err := loadConfig(cli)
	if err != nil {
		return err
	}
	if cli.Validate {
		logger.Info("Configuration is valid", "config", cfg.String())
		return nil
	}

	logger.Info("Starting AMM TCP bridge",
		"manikin_id", cfg.Bridge.ManikinID,
		"tcp_address", cfg.Server.TCPAddress,
		"websocket_address", cfg.Server.WebSocketAddress,
		"nats_urls", cfg.NATS.URLs)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runBridge(ctx, cfg, cli.ShutdownTimeout, logger)
}

// loadConfig layers the config file over the defaults and environment, then
// applies flag overrides before validating.
func loadConfig(cli *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	loader.EnableValidation(false)
	if cli.ConfigPath != "" {
		loader.AddLayer(cli.ConfigPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cli.ManikinID != "" {
		cfg.Bridge.ManikinID = cli.ManikinID
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBridge(ctx context.Context, cfg *config.Config, shutdownTimeout time.Duration, logger *slog.Logger) error {
	metricsRegistry := metric.NewMetricsRegistry()
	core := metricsRegistry.CoreMetrics()

	natsClient, err := connectToNATS(ctx, cfg.NATS, core, logger)
	if err != nil {
		return err
	}

	capabilities, err := readDocument(cfg.Bridge.CapabilitiesFile)
	if err != nil {
		closeNATS(natsClient, shutdownTimeout, logger)
		return err
	}
	configuration, err := readDocument(cfg.Bridge.ConfigurationFile)
	if err != nil {
		closeNATS(natsClient, shutdownTimeout, logger)
		return err
	}

	simBus, err := bus.New(bus.Deps{
		Transport:       natsClient,
		SubjectPrefix:   cfg.NATS.SubjectPrefix,
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
	})
	if err != nil {
		closeNATS(natsClient, shutdownTimeout, logger)
		return err
	}

	srv, err := server.New(server.Deps{
		Config: server.Config{
			TCPAddress:       cfg.Server.TCPAddress,
			WebSocketAddress: cfg.Server.WebSocketAddress,
			WebSocketPath:    cfg.Server.WebSocketPath,
			WriteTimeout:     cfg.Server.WriteTimeout,
			MaxLineBytes:     cfg.Server.MaxLineBytes,
		},
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
	})
	if err != nil {
		closeNATS(natsClient, shutdownTimeout, logger)
		return err
	}

	br, err := bridge.New(bridge.Deps{
		Config: bridge.Config{
			ManikinID:           cfg.Bridge.ManikinID,
			ModuleName:          cfg.Bridge.ModuleName,
			Capabilities:        capabilities,
			Configuration:       configuration,
			EventRecordCapacity: cfg.Bridge.EventRecordCapacity,
		},
		Publisher:       simBus,
		Sender:          srv,
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
	})
	if err != nil {
		closeNATS(natsClient, shutdownTimeout, logger)
		return err
	}

	if err := simBus.Subscribe(ctx, br); err != nil {
		closeNATS(natsClient, shutdownTimeout, logger)
		return err
	}
	if err := srv.Start(ctx, br); err != nil {
		closeNATS(natsClient, shutdownTimeout, logger)
		return err
	}
	if err := br.Announce(ctx); err != nil {
		if !errors.IsTransient(err) {
			_ = shutdown(srv, nil, natsClient, shutdownTimeout, logger)
			return err
		}
		logger.Warn("Failed to announce bridge module", "error", err)
	}

	var metricsServer *metric.Server
	var metricsErr <-chan error
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, metricsRegistry, healthCheck(natsClient, core))
		metricsErr, err = metricsServer.Start()
		if err != nil {
			logger.Warn("Metrics server failed to start", "error", err)
			metricsServer = nil
		}
	}

	logger.Info("AMM TCP bridge running",
		"module_id", br.ModuleID(),
		"tcp_address", srv.TCPAddr(),
		"websocket_address", srv.WebSocketAddr())

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-metricsErr:
		if err != nil {
			logger.Error("Metrics server stopped", "error", err)
		}
	}

	return shutdown(srv, metricsServer, natsClient, shutdownTimeout, logger)
}

func connectToNATS(
	ctx context.Context, cfg config.NATSConfig, core *metric.Metrics, logger *slog.Logger,
) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(natsclient.SlogLogger{L: logger.With("component", "nats")}),
		natsclient.WithNoEcho(),
		natsclient.WithCircuitBreaker(int32(cfg.CircuitBreakerThreshold), cfg.CircuitBreakerMaxBackoff),
		natsclient.WithHandlerTimeout(cfg.HandlerTimeout),
		natsclient.WithDisconnectCallback(func(err error) {
			core.RecordNATSStatus(false)
			logger.Warn("NATS disconnected", "error", err)
		}),
		natsclient.WithReconnectCallback(func() {
			core.RecordNATSStatus(true)
			core.RecordNATSReconnect()
			logger.Info("NATS reconnected")
		}),
	}
	if cfg.MaxReconnects != 0 {
		opts = append(opts, natsclient.WithMaxReconnects(cfg.MaxReconnects))
	}
	if cfg.ReconnectWait > 0 {
		opts = append(opts, natsclient.WithReconnectWait(cfg.ReconnectWait))
	}
	if cfg.Name != "" {
		opts = append(opts, natsclient.WithName(cfg.Name))
	}
	if cfg.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}

	client, err := natsclient.NewClient(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, errors.WrapFatal(err, "main", "connectToNATS", "create client")
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	policy := retry.Startup()
	policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		logger.Warn("NATS connect failed, retrying", "attempt", attempt, "delay", delay, "error", err)
	}
	if err := retry.Do(connectCtx, policy, client.Connect); err != nil {
		return nil, errors.WrapTransient(err, "main", "connectToNATS", "connect")
	}
	if err := client.WaitForConnection(connectCtx); err != nil {
		return nil, errors.WrapTransient(err, "main", "connectToNATS", "wait for connection")
	}
	core.RecordNATSStatus(true)
	return client, nil
}

func healthCheck(client *natsclient.Client, core *metric.Metrics) metric.HealthFunc {
	return func() error {
		status := client.Status()
		core.RecordCircuitBreaker(status == natsclient.StatusCircuitOpen)
		if !client.IsHealthy() {
			return fmt.Errorf("nats %s", status)
		}
		return nil
	}
}

func readDocument(path string) ([]byte, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "main", "readDocument", "read "+path)
	}
	return data, nil
}

func shutdown(
	srv *server.Server, metricsServer *metric.Server, natsClient *natsclient.Client,
	timeout time.Duration, logger *slog.Logger,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var firstErr error
	if err := srv.Stop(ctx); err != nil {
		logger.Error("Client server shutdown failed", "error", err)
		firstErr = err
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(ctx); err != nil {
			logger.Error("Metrics server shutdown failed", "error", err)
		}
	}
	if err := natsClient.Close(ctx); err != nil {
		logger.Error("NATS close failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	logger.Info("AMM TCP bridge stopped")
	return firstErr
}

func closeNATS(client *natsclient.Client, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Close(ctx); err != nil {
		logger.Warn("NATS close failed", "error", err)
	}
}
