// Package main implements the entry point for the Telebridge application.
// Telebridge maintains a persistent MQTT session to a telemetry simulator,
// buffers classified samples in bounded rolling windows, and exposes the
// live state over an HTTP and websocket gateway.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/telebridge/bridge"
	"github.com/c360/telebridge/config"
	"github.com/c360/telebridge/gateway"
	"github.com/c360/telebridge/metric"
	"github.com/c360/telebridge/mqttclient"
	"github.com/c360/telebridge/pkg/retry"
	"github.com/c360/telebridge/router"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "telebridge"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.NewLoader().Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// CLI flags outrank config file and env
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	slog.Info("Starting Telebridge",
		"version", Version,
		"build_time", BuildTime,
		"broker_url", cfg.Broker.URL)

	metricsRegistry := metric.NewMetricsRegistry()

	b := bridge.New(bridge.Options{
		Logger:         logger,
		Metrics:        metricsRegistry.CoreMetrics(),
		WindowCapacity: cfg.Bridge.WindowCapacity,
		ConnectRetry: retry.Config{
			MaxAttempts:  cfg.Bridge.ConnectAttempts,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		},
	})

	client, err := mqttclient.NewClient(cfg.Broker.URL,
		mqttclient.WithClientIDPrefix(cfg.Broker.ClientIDPrefix),
		mqttclient.WithCredentials(cfg.Broker.Username, cfg.Broker.Password),
		mqttclient.WithQoS(byte(cfg.Broker.QoS)),
		mqttclient.WithReconnectWait(cfg.Broker.ReconnectWait.Std()),
		mqttclient.WithConnectTimeout(cfg.Broker.ConnectTimeout.Std()),
		mqttclient.WithKeepAlive(cfg.Broker.KeepAlive.Std()),
		mqttclient.WithSubscriptions(router.SubscriptionPatterns()...),
		mqttclient.WithMessageHandler(b.HandleMessage),
		mqttclient.WithLogger(mqttclient.NewSlogLogger(logger.With("component", "mqtt-client"))),
		mqttclient.WithMetrics(metricsRegistry.CoreMetrics()),
	)
	if err != nil {
		return fmt.Errorf("create MQTT client: %w", err)
	}
	b.SetBroker(client)

	if err := b.Initialize(); err != nil {
		return fmt.Errorf("initialize bridge: %w", err)
	}

	var gw *gateway.Server
	if cfg.Gateway.Enabled {
		gw, err = gateway.NewServer(gateway.Options{
			Addr:           cfg.Gateway.Addr,
			Bridge:         b,
			Logger:         logger,
			MetricsHandler: metricsRegistry.Handler(),
		})
		if err != nil {
			return fmt.Errorf("create gateway: %w", err)
		}
		if err := gw.Initialize(); err != nil {
			return fmt.Errorf("initialize gateway: %w", err)
		}
	}

	return runWithSignalHandling(b, gw, cliCfg.ShutdownTimeout)
}

// runWithSignalHandling starts the components and blocks until a shutdown
// signal arrives, then stops them in reverse order.
func runWithSignalHandling(b *bridge.Bridge, gw *gateway.Server, shutdownTimeout time.Duration) error {
	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := b.Start(signalCtx); err != nil {
		return fmt.Errorf("start bridge: %w", err)
	}

	if gw != nil {
		if err := gw.Start(signalCtx); err != nil {
			stopErr := b.Stop(shutdownTimeout)
			if stopErr != nil {
				slog.Error("Bridge stop failed during rollback", "error", stopErr)
			}
			return fmt.Errorf("start gateway: %w", err)
		}
	}

	slog.Info("Telebridge started")
	<-signalCtx.Done()
	slog.Info("Shutdown signal received")

	var firstErr error
	if gw != nil {
		if err := gw.Stop(shutdownTimeout); err != nil {
			slog.Error("Gateway stop failed", "error", err)
			firstErr = err
		}
	}
	if err := b.Stop(shutdownTimeout); err != nil {
		slog.Error("Bridge stop failed", "error", err)
		if firstErr == nil {
			firstErr = err
		}
	}

	slog.Info("Telebridge stopped")
	return firstErr
}
