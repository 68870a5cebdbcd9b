// btgateway relays Bluetooth device discovery and GATT access to an
// upstream server over a reconnecting WebSocket connection.
//
// For the module/operation breakdown, see SPEC_FULL.md at the repository
// root.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/sirupsen/logrus"

	"github.com/outpost-iot/btgateway/internal/connector"
	"github.com/outpost-iot/btgateway/internal/hci"
	"github.com/outpost-iot/btgateway/internal/hci/driver"
	"github.com/outpost-iot/btgateway/internal/infrastructure/config"
	"github.com/outpost-iot/btgateway/internal/infrastructure/logging"
	"github.com/outpost-iot/btgateway/internal/model"
)

// Version information, set at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application's startup/shutdown sequence, separated from main
// for testability. Construction and teardown mirror each other: each
// dependency's defer undoes its own setup, in reverse construction order.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting btgateway", "version", version, "commit", commit, "build_date", date)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, "main")
	log.Info("logger initialised", "level", cfg.Logging.Level, "format", cfg.Logging.Format)

	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connecting to system bus: %w", err)
	}
	defer func() {
		log.Info("closing system bus connection")
		if closeErr := bus.Close(); closeErr != nil {
			log.Error("error closing system bus connection", "error", closeErr)
		}
	}()

	manager := newAdapterManager(bus, log)
	defer func() {
		log.Info("closing adapter sessions")
		manager.Close()
	}()

	conn := connector.New(cfg.Connector, log)
	conn.Start()
	defer func() {
		log.Info("stopping connector")
		conn.Stop()
	}()

	if err := registerConfiguredAdapters(manager, cfg, log); err != nil {
		return fmt.Errorf("bringing up adapters: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// getConfigPath returns the configuration file path, honoring the
// BTGW_CONFIG environment variable override.
func getConfigPath() string {
	if path := os.Getenv("BTGW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// newAdapterManager wires an hci.AdapterManager with a
// driver.LoggingClassicDriver as the Classic HCI detector.
func newAdapterManager(bus *dbus.Conn, log *logging.Logger) *hci.AdapterManager {
	classicLog := logrus.New()
	detector := driver.NewLoggingClassicDriver(func(model.MAC) (bool, error) {
		// No Classic HCI vendor driver is wired in this build; detection
		// always reports absent until one is plugged in via ClassicDetectFunc.
		return false, nil
	}, classicLog)

	return hci.NewAdapterManager(bus, detector, log)
}

// registerConfiguredAdapters brings up every adapter named in cfg.Adapters
// with its own configured timing, logging and continuing past any single
// adapter's failure so one misconfigured radio does not block the rest.
func registerConfiguredAdapters(manager *hci.AdapterManager, cfg *config.Config, log *logging.Logger) error {
	if len(cfg.Adapters) == 0 {
		log.Warn("no adapters configured")
		return nil
	}

	var lastErr error
	for name, adapterCfg := range cfg.Adapters {
		timing := hci.AdapterTiming{
			LEMaxAgeRSSI:                          adapterCfg.LEMaxAgeRSSI,
			LEMaxUnavailabilityTime:               adapterCfg.LEMaxUnavailabilityTime,
			ClassicArtificialAvailabilityTimeout:  adapterCfg.ClassicArtificialAvailabilityTimeout,
		}
		session, err := manager.Lookup(name, timing)
		if err != nil {
			log.Error("adapter lookup failed", "adapter", name, "error", err)
			lastErr = err
			continue
		}
		if err := session.Up(); err != nil {
			log.Error("adapter power-on failed", "adapter", name, "error", err)
			lastErr = err
			continue
		}
		log.Info("adapter ready", "adapter", name)
	}
	return lastErr
}
