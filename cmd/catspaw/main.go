// Catspaw - home theater receiver controller
//
// This is the main entry point for the catspaw daemon. It drives a
// networked AV receiver over its line protocol (or the HTTP variant),
// switches the TV through HDMI-CEC, follows host suspend/resume, and
// exposes all of it over MQTT, a REST API and a WebSocket feed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Dlizzz/catspaw/migrations"

	"github.com/Dlizzz/catspaw/internal/api"
	"github.com/Dlizzz/catspaw/internal/avr"
	"github.com/Dlizzz/catspaw/internal/bridge"
	"github.com/Dlizzz/catspaw/internal/cec"
	"github.com/Dlizzz/catspaw/internal/display"
	"github.com/Dlizzz/catspaw/internal/history"
	"github.com/Dlizzz/catspaw/internal/infrastructure/config"
	"github.com/Dlizzz/catspaw/internal/infrastructure/database"
	"github.com/Dlizzz/catspaw/internal/infrastructure/influxdb"
	"github.com/Dlizzz/catspaw/internal/infrastructure/logging"
	"github.com/Dlizzz/catspaw/internal/infrastructure/mqtt"
	"github.com/Dlizzz/catspaw/internal/metrics"
	"github.com/Dlizzz/catspaw/internal/netwatch"
	"github.com/Dlizzz/catspaw/internal/power"
	"github.com/Dlizzz/catspaw/internal/process"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting catspaw",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // best effort on exit
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Database and command history
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx, migrations.Source()); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	historyRepo := history.NewSQLiteRepository(db.DB)
	recorders := avr.Recorders{history.NewRecorder(historyRepo, log)}
	checks := map[string]api.HealthChecker{"database": db}

	// InfluxDB (optional)
	var metricsRecorder *metrics.Recorder
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		metricsRecorder = metrics.NewRecorder(influxClient)
		recorders = append(recorders, metricsRecorder)
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Network availability
	gate := netwatch.NewGate(netwatch.InterfacesUp())
	watcher := netwatch.NewWatcher(gate, netwatch.WatcherOptions{Logger: log})
	if startErr := watcher.Start(ctx); startErr != nil {
		return fmt.Errorf("starting network watcher: %w", startErr)
	}
	defer watcher.Stop()
	log.Info("network watcher started", "available", gate.Available())

	// Receiver
	transport, err := avr.NewTransport(cfg.AVR, gate, log)
	if err != nil {
		return fmt.Errorf("creating receiver transport: %w", err)
	}
	controller := avr.NewController(transport, avr.ControllerOptions{
		CommandTimeout: cfg.AVR.CommandTimeout,
		Recorder:       recorders,
		Logger:         log,
	})
	defer func() {
		log.Info("closing receiver controller")
		_ = controller.Close()
	}()
	log.Info("receiver controller ready",
		"host", cfg.AVR.Host,
		"port", cfg.AVR.Port,
		"transport", cfg.AVR.Transport,
	)

	// TV over HDMI-CEC (optional). tv stays a nil interface when disabled.
	var tv power.TV
	if cfg.CEC.Enabled {
		cecTV, stopCEC, cecErr := startCEC(ctx, cfg.CEC, log)
		if cecErr != nil {
			return fmt.Errorf("starting CEC: %w", cecErr)
		}
		defer stopCEC()
		tv = cecTV
	} else {
		log.Info("CEC disabled")
	}

	powerManager := power.NewManager(tv, controller, power.Options{
		SuspendCommand: cfg.Power.SuspendCommand,
		SuspendDelay:   cfg.Power.SuspendDelay,
		Runner:         process.Run,
		Logger:         log,
	})
	defer powerManager.Wait()

	// MQTT bridge (optional)
	var mqttBridge *bridge.Bridge
	if cfg.MQTT.Enabled {
		mqttClient, mqttErr := mqtt.Connect(cfg.MQTT)
		if mqttErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", mqttErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		opts := bridge.Options{
			MQTT:       mqttClient,
			Controller: controller,
			Logger:     log,
		}
		if cfg.Power.HandleEvents {
			opts.Power = powerManager
		}
		mqttBridge, err = bridge.New(opts)
		if err != nil {
			return fmt.Errorf("creating MQTT bridge: %w", err)
		}
		if startErr := mqttBridge.Start(); startErr != nil {
			return fmt.Errorf("starting MQTT bridge: %w", startErr)
		}
		defer func() {
			log.Info("stopping MQTT bridge")
			mqttBridge.Stop()
		}()
		log.Info("MQTT bridge started")
	} else {
		log.Info("MQTT disabled")
	}

	// API server
	deps := api.Deps{
		Config:     cfg.API,
		WS:         cfg.WebSocket,
		Security:   cfg.Security,
		Logger:     log,
		Controller: controller,
		History:    historyRepo,
		Checks:     checks,
		Version:    version,
	}
	if cfg.Power.HandleEvents {
		deps.Power = powerManager
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Volume popup and event fan-out
	popup := display.NewPopup(cfg.Display.PopupHideAfter, server.Hub().PublishPopup)
	defer popup.Stop()
	controller.Subscribe(popup.Observe)
	controller.Subscribe(server.Hub().Observe)
	if mqttBridge != nil {
		popup.AddSink(mqttBridge.PublishPopup)
		controller.Subscribe(mqttBridge.Observe)
	}
	if metricsRecorder != nil {
		controller.Subscribe(metricsRecorder.Observe)
	}

	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error stopping API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "addr", server.Addr())

	// Seed the state; an unreachable receiver is reported, not fatal.
	refreshDone := make(chan struct{})
	defer func() { <-refreshDone }()
	go func() {
		defer close(refreshDone)
		out := controller.Refresh(avr.WithSource(ctx, "startup"))
		if !out.OK {
			log.Warn("initial receiver refresh failed", "kind", out.Kind.String(), "message", out.Message)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, popup, bridge, MQTT,
	// power, CEC, controller, watcher, InfluxDB, database.

	log.Info("catspaw stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CATSPAW_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("CATSPAW_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
// startCEC launches the CEC adapter client and returns a TV driving it.
//
// Parameters:
//   - ctx: Context for the supervised process
//   - cfg: CEC configuration
//   - log: Logger instance
//
// Returns:
//   - *cec.TV: TV handle writing to the process
//   - func(): Stops the TV and then the process
//   - error: If the process fails to start
func startCEC(ctx context.Context, cfg config.CECConfig, log *logging.Logger) (*cec.TV, func(), error) {
	pcfg := process.DefaultConfig("cec-client", cfg.Binary, cfg.Args)
	pcfg.Stdin = true
	pcfg.RestartOnFailure = cfg.RestartOnFailure
	if cfg.RestartDelay > 0 {
		pcfg.RestartDelay = cfg.RestartDelay
	}
	pcfg.MaxRestartAttempts = cfg.MaxRestartAttempts
	pcfg.OnOutput = func(stream, line string) {
		log.Debug("cec-client output", "stream", stream, "line", line)
	}

	manager := process.NewManager(pcfg)
	manager.SetLogger(log)
	if err := manager.Start(ctx); err != nil {
		return nil, nil, err
	}
	log.Info("cec-client started", "binary", cfg.Binary, "pid", manager.PID())

	tv := cec.NewTV(manager, cec.Options{
		LogicalAddress: cfg.LogicalAddress,
		SettleWindow:   cfg.CommandSettleWindow,
		Logger:         log,
	})

	stop := func() {
		log.Info("stopping cec-client")
		_ = tv.Close()
		if err := manager.Stop(); err != nil {
			log.Error("error stopping cec-client", "error", err)
		}
	}
	return tv, stop, nil
}
