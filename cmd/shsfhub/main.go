// SHSF Hub - BLE to MQTT command bridge for the layout controller.
//
// The hub owns the single BLE link to the HM-10 serial module, relays text
// commands from the desktop window and from MQTT publishers onto it, and
// routes each response back to whoever sent the command.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/shsf-rail/shsf-hub/internal/api"
	"github.com/shsf-rail/shsf-hub/internal/ble"
	"github.com/shsf-rail/shsf-hub/internal/bridge"
	"github.com/shsf-rail/shsf-hub/internal/events"
	"github.com/shsf-rail/shsf-hub/internal/infrastructure/config"
	"github.com/shsf-rail/shsf-hub/internal/infrastructure/database"
	"github.com/shsf-rail/shsf-hub/internal/infrastructure/influxdb"
	"github.com/shsf-rail/shsf-hub/internal/infrastructure/logging"
	"github.com/shsf-rail/shsf-hub/internal/infrastructure/mqtt"
	"github.com/shsf-rail/shsf-hub/internal/infrastructure/systemd"
	"github.com/shsf-rail/shsf-hub/internal/journal"
	"github.com/shsf-rail/shsf-hub/internal/power"
	"github.com/shsf-rail/shsf-hub/internal/relay"
	"github.com/shsf-rail/shsf-hub/internal/shell"
	"github.com/shsf-rail/shsf-hub/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// shellEventBuffer is the window's event subscription depth.
	shellEventBuffer = 256

	powerOffTimeout = 10 * time.Second

	startupCheckTimeout = 5 * time.Second
)

func main() {
	// Cancel on Ctrl+C and SIGTERM; both take the same teardown path as EXIT SYSTEM.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run wires the hub together and blocks until shutdown. It must be called
// on the main goroutine when the shell is enabled.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting SHSF hub",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "namespace", cfg.Hub.Namespace)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	qos := byte(cfg.MQTT.QoS)

	mqttClient, err := mqtt.Connect(cfg.MQTT, mqtt.Topics{Namespace: cfg.Hub.Namespace})
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log)
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	topics := mqttClient.Topics()
	checks := map[string]api.HealthChecker{"mqtt": mqttClient}

	bus := events.NewBus()
	defer bus.Close()

	db, exchangeJournal, err := openJournal(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		checks["database"] = db
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
	}

	influxClient, err := connectInflux(cfg, log)
	if err != nil {
		return err
	}
	var (
		exchangeMetrics relay.Metrics
		signalMetrics   bridge.SignalMetrics
	)
	if influxClient != nil {
		exchangeMetrics, signalMetrics = influxClient, influxClient
		checks["influxdb"] = influxClient
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
	}

	transport := ble.New(ble.Options{
		RegistryFile:        cfg.BLE.RegistryFile,
		Node:                cfg.BLE.Node,
		CharacteristicIndex: cfg.BLE.CharacteristicIndex,
		ConnectTimeout:      cfg.ConnectTimeout(),
		Events:              bus,
		Logger:              log,
	})
	defer func() {
		if closeErr := transport.Close(); closeErr != nil {
			log.Error("error closing BLE transport", "error", closeErr)
		}
	}()

	relayOpts := relay.Options{
		Transport:     transport,
		Publisher:     bridge.NewResponder(mqttClient, topics, qos),
		Events:        bus,
		Metrics:       exchangeMetrics,
		Logger:        log,
		LocalSender:   cfg.Hub.LocalSender,
		QueueSize:     cfg.Relay.QueueSize,
		PollInterval:  cfg.PollInterval(),
		AckWindow:     cfg.AckWindow(),
		SubmitTimeout: cfg.SubmitTimeout(),
	}
	if exchangeJournal != nil {
		relayOpts.Journal = exchangeJournal
	}
	rly, err := relay.New(relayOpts)
	if err != nil {
		return fmt.Errorf("creating relay: %w", err)
	}
	transport.SetOnResponse(rly.HandleResponse)

	mqttBridge, err := bridge.New(bridge.Options{
		MQTT:              mqttClient,
		Topics:            topics,
		Relay:             rly,
		QoS:               qos,
		Device:            cfg.Hub.Device,
		RateLimit:         cfg.Relay.RateLimit,
		RateBurst:         cfg.Relay.RateBurst,
		LocalSender:       cfg.Hub.LocalSender,
		WarnQuality:       cfg.Telemetry.WarnQuality,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		SubmitTimeout:     cfg.SubmitTimeout(),
		Events:            bus,
		Metrics:           signalMetrics,
		Logger:            log,
	})
	if err != nil {
		return fmt.Errorf("creating MQTT bridge: %w", err)
	}
	if err := mqttBridge.Start(ctx); err != nil {
		return fmt.Errorf("starting MQTT bridge: %w", err)
	}
	defer func() {
		log.Info("stopping MQTT bridge")
		mqttBridge.Stop()
	}()

	startupChecks := make(map[string]api.HealthChecker, len(checks)+1)
	for name, c := range checks {
		startupChecks[name] = c
	}

	if cfg.API.Enabled {
		deps := api.Deps{
			Config:      cfg.API,
			Logger:      log,
			Relay:       rly,
			Events:      bus,
			Link:        transport,
			MQTT:        mqttClient,
			Checks:      checks,
			LocalSender: cfg.Hub.LocalSender,
			Version:     version,
		}
		if exchangeJournal != nil {
			deps.Journal = exchangeJournal
		}
		srv, apiErr := api.New(deps)
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if apiErr = srv.Start(ctx); apiErr != nil {
			return fmt.Errorf("starting API server: %w", apiErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		startupChecks["api"] = srv
	} else {
		log.Info("HTTP API disabled")
	}

	if err := healthCheck(ctx, startupChecks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// shutdown is the single teardown trigger for signals, EXIT SYSTEM,
	// host power-off and worker failure.
	var shutdownOnce sync.Once
	shutdown := func(reason string) {
		shutdownOnce.Do(func() {
			log.Info("shutting down", "reason", reason)
			systemd.Stopping() //nolint:errcheck // No-op outside systemd
			rly.Stop()
			cancel()
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runLink(gctx, transport, rly, log)
	})
	g.Go(func() error {
		systemd.Watchdog(gctx, func() bool {
			return mqttClient.HealthCheck(gctx) == nil && !rly.Stopped()
		})
		return nil
	})

	systemd.Ready() //nolint:errcheck // No-op outside systemd
	log.Info("initialisation complete",
		"shell", cfg.Shell.Enabled,
		"api", cfg.API.Enabled,
		"journal", exchangeJournal != nil,
	)

	if cfg.Shell.Enabled {
		runShell(gctx, cfg, rly, bus, log, mqttBridge, shutdown)
		shutdown("window closed")
	} else {
		<-gctx.Done()
		shutdown("signal received")
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("worker failed: %w", err)
	}

	log.Info("SHSF hub stopped")
	return nil
}

// linkConnector opens the BLE link. *ble.Transport satisfies it.
type linkConnector interface {
	Connect(ctx context.Context) error
}

// queueRunner drains queued commands onto the link. *relay.Relay satisfies it.
type queueRunner interface {
	Run(ctx context.Context) error
}

// runLink connects the BLE link and only then starts draining the command
// queue, so commands submitted during the scan wait for the link instead of
// failing. A failed connect is terminal for BLE only: the queue is left
// undrained and the window and MQTT keep running.
func runLink(ctx context.Context, link linkConnector, queue queueRunner, log *logging.Logger) error {
	if err := link.Connect(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error("BLE worker stopped", "error", err)
			systemd.Status("BLE connection failed") //nolint:errcheck // No-op outside systemd
		}
		return nil
	}
	return queue.Run(ctx)
}

// hostController powers the host down. *power.Controller satisfies it.
type hostController interface {
	PowerOff(ctx context.Context) error
}

// hostPowerOff stops command intake, asks the host to power down and tears
// the hub down. Intake is already closed by the time PowerOff runs, so a
// failed request still ends in shutdown.
func hostPowerOff(ctrl hostController, stopIntake func(), shutdown func(reason string), log *logging.Logger) {
	stopIntake()

	ctx, cancel := context.WithTimeout(context.Background(), powerOffTimeout)
	defer cancel()
	if err := ctrl.PowerOff(ctx); err != nil {
		log.Error("host shutdown failed", "error", err)
		shutdown("host power-off failed")
		return
	}
	shutdown("host power-off")
}

// healthCheck verifies every dependency once startup completes and returns
// the first failure by name.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	ctx, cancel := context.WithTimeout(ctx, startupCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := checks[name].HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// runShell shows the status window and blocks until it closes.
func runShell(ctx context.Context, cfg *config.Config, rly *relay.Relay, bus *events.Bus, log *logging.Logger, mqttBridge *bridge.Bridge, shutdown func(reason string)) {
	feed, unsubscribe := bus.Subscribe(shellEventBuffer)
	defer unsubscribe()

	buttons := make([]shell.Button, 0, len(cfg.Shell.Buttons))
	for _, b := range cfg.Shell.Buttons {
		buttons = append(buttons, shell.Button{Label: b.Label, Command: b.Command})
	}

	opts := shell.Options{
		Title:   cfg.Shell.Title,
		Width:   float32(cfg.Shell.Width),
		Height:  float32(cfg.Shell.Height),
		LogSize: cfg.Shell.LogSize,
		Buttons: buttons,
		Submit: func(ctx context.Context, command string) error {
			_, err := rly.Submit(ctx, command, cfg.Hub.LocalSender)
			return err
		},
		Events: feed,
		OnExit: func() { shutdown("exit requested") },
		Logger: log,
	}

	if cfg.Power.Enabled {
		ctrl, err := power.New(cfg.Power.Method, log)
		if err != nil {
			log.Warn("host shutdown unavailable", "error", err)
		} else {
			opts.OnPowerOff = func() {
				hostPowerOff(ctrl, func() {
					mqttBridge.Stop()
					rly.Stop()
				}, shutdown, log)
			}
		}
	}

	shell.New(opts).Run(ctx)
}

// openJournal opens the exchange journal when enabled. Both results are nil
// when it is disabled; the caller owns closing the database.
func openJournal(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, *journal.SQLiteRepository, error) {
	if !cfg.Database.Enabled {
		log.Info("exchange journal disabled")
		return nil, nil, nil
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("exchange journal ready", "path", db.Path())

	return db, journal.NewSQLiteRepository(db.DB), nil
}

// connectInflux connects to InfluxDB when enabled; nil otherwise.
func connectInflux(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	if !cfg.InfluxDB.Enabled {
		log.Info("InfluxDB disabled")
		return nil, nil
	}

	client, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

func getConfigPath() string {
	if path := os.Getenv("SHSF_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
