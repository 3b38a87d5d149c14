// Command vconsole is the operator console for a virtual IoT device or a
// virtual DMS.
//
// It connects to the simulator backend over WebSocket, mirrors the state the
// backend pushes and sends the operator's commands. Commands issued while
// the connection is down are queued and delivered once it opens again.
//
// Usage:
//
//	vconsole [flags]
//
// Flags:
//
//	-config string           Configuration file path (YAML)
//	-endpoint string         Backend WebSocket URL (default "ws://localhost:7002/ws")
//	-role string             Console role: device, dms (default "device")
//	-interactive             Run the interactive console (default true)
//	-protocol-log string     Write a protocol trace to this .vlog file
//	-state-dir string        Directory for persisted preferences
//	-log-level string        Log level: debug, info, warn, error (default "info")
//	-queue-capacity int      Maximum queued commands while disconnected
//	-queue-overflow string   Full queue policy: reject-newest, drop-oldest
//	-reconnect string        Reconnect policy: manual, backoff (default "manual")
//	-discover                Find the backend with mDNS
//
// Every key can also be set in the config file or through VCONSOLE_*
// environment variables (VCONSOLE_LOG_LEVEL=debug). A .env file in the
// working directory is loaded first.
//
// Examples:
//
//	# Device console against a local simulator
//	vconsole -role device
//
//	# DMS console found on the local network, tracing to a file
//	vconsole -role dms -discover -protocol-log dms.vlog
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lamassuiot/lamassu-simulation-tools/cmd/vconsole/interactive"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/console"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/discovery"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/msglog"
	"github.com/lamassuiot/lamassu-simulation-tools/pkg/persistence"
)

func main() {
	config, err := loadConfig(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}

	out := &switchWriter{w: os.Stdout}
	logger := initLogger(config.Log.Level, out)

	if err := run(config, logger, out); err != nil {
		logger.Error("vconsole failed", "error", err)
		os.Exit(1)
	}
}

func run(config Config, logger *slog.Logger, out *switchWriter) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	role, err := config.ConsoleRole()
	if err != nil {
		return err
	}

	var store *persistence.Store
	if config.StateDir != "" {
		store = persistence.NewStoreInDir(config.StateDir)
	}

	if config.Discover.Enabled {
		endpoint, err := discoverEndpoint(ctx, config, logger)
		switch {
		case err == nil:
			config.Endpoint = endpoint
		case store != nil:
			// The console falls back to the endpoint it last connected to.
			logger.Warn("discovery failed, using last known endpoint", "error", err)
			config.Endpoint = ""
		default:
			return err
		}
	}

	connCfg := config.ConnectionConfig()

	if config.ProtocolLog != "" {
		fileLogger, err := msglog.NewFileLogger(config.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fileLogger.Close()
		connCfg.ProtocolLogger = msglog.NewMultiLogger(fileLogger, msglog.NewSlogAdapter(logger))
		logger.Info("protocol logging enabled", "path", config.ProtocolLog)
	}

	var shell *interactive.Shell
	c, err := console.New(console.Config{
		Role:              role,
		Connection:        connCfg,
		CountdownInterval: config.Countdown.Interval,
		Preferences:       store,
		Logger:            logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Warn("closing console", "error", err)
		}
	}()

	if config.Interactive {
		shell, err = interactive.New(c)
		if err != nil {
			return err
		}
		// Redirect log output through readline to avoid interfering with input
		out.Set(shell.Stdout())
	}

	logger.Info("starting console", "role", role, "endpoint", c.Connection().Endpoint())
	if err := c.Start(ctx); err != nil {
		logger.Warn("backend not reachable, commands will be queued", "error", err)
	}

	if shell != nil {
		go shell.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return nil
}

func discoverEndpoint(ctx context.Context, config Config, logger *slog.Logger) (string, error) {
	browser := discovery.NewBrowser(discovery.BrowserConfig{
		Service:   config.Discover.Service,
		Timeout:   config.Discover.Timeout,
		Interface: config.Discover.Interface,
		Logger:    logger.With("component", "discovery"),
	})
	logger.Info("browsing for backend", "service", config.Discover.Service, "role", config.DiscoveryRole())
	svc, err := browser.Find(ctx, config.DiscoveryRole())
	if err != nil {
		return "", err
	}
	logger.Info("backend discovered", "instance", svc.InstanceName, "url", svc.URL())
	return svc.URL(), nil
}
