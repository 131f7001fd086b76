package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/nerrad567/printwatch/migrations"

	"github.com/nerrad567/printwatch/internal/api"
	"github.com/nerrad567/printwatch/internal/audit"
	"github.com/nerrad567/printwatch/internal/bot"
	"github.com/nerrad567/printwatch/internal/chat"
	"github.com/nerrad567/printwatch/internal/conversation"
	"github.com/nerrad567/printwatch/internal/history"
	"github.com/nerrad567/printwatch/internal/infrastructure/config"
	"github.com/nerrad567/printwatch/internal/infrastructure/database"
	"github.com/nerrad567/printwatch/internal/infrastructure/influxdb"
	"github.com/nerrad567/printwatch/internal/infrastructure/logging"
	"github.com/nerrad567/printwatch/internal/infrastructure/mqtt"
	"github.com/nerrad567/printwatch/internal/printer"
	"github.com/nerrad567/printwatch/internal/telegram"
	"github.com/nerrad567/printwatch/internal/watcher"
)

const (
	sessionSweepInterval = time.Minute
	historyPruneInterval = 24 * time.Hour
	hoursPerDay          = 24
)

// run is the serve command, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error { //nolint:gocognit,gocyclo // linear startup sequence
	log := logging.Default()
	log.Info("starting PrintWatch",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	registry, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	log.Info("access registry loaded", "levels", registry.Levels(), "notified", len(registry.NotifyRoster()))

	// Printer
	locator, err := newLocator(cfg, log)
	if err != nil {
		return err
	}
	if addr, resolveErr := locator.Resolve(ctx); resolveErr != nil {
		log.Warn("printer not found at startup, will retry on first request", "error", resolveErr)
	} else {
		log.Info("printer located", "ip", addr.IP, "source", addr.Source)
	}

	device, err := printer.NewClient(locator, printer.ClientConfig{
		ID:         cfg.Printer.ID,
		Key:        cfg.Printer.Key,
		CameraPort: cfg.Printer.CameraPort,
		Timeout:    cfg.RequestTimeout(),
	})
	if err != nil {
		return fmt.Errorf("creating printer client: %w", err)
	}
	device.SetLogger(log.Component("printer"))
	if verifyErr := device.VerifyAuth(ctx); verifyErr != nil {
		log.Warn("printer credentials not verified", "error", verifyErr)
	}

	// Database
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", db.Path())

	auditRepo := audit.NewSQLiteRepository(db.DB)
	auditor := audit.NewRecorder(auditRepo)
	auditor.SetLogger(log.Component("audit"))
	historyRepo := history.NewSQLiteRepository(db.DB)

	// Chat transport
	transport, err := telegram.New(telegram.Config{Token: cfg.Bot.Token, PollTimeout: cfg.Bot.PollTimeout})
	if err != nil {
		return fmt.Errorf("connecting chat transport: %w", err)
	}
	transport.SetLogger(log.Component("telegram"))

	// Watcher and observers
	w, err := watcher.New(watcher.Config{
		Interval:    cfg.PollInterval(),
		PollTimeout: pollTimeout(cfg.RequestTimeout(), locator.ScanBudget()),
		Poller:      device,
		Roster:      registry,
		Transport:   transport,
		Observers:   []watcher.Observer{history.NewObserver(historyRepo)},
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	w.SetLogger(log.Component("watcher"))

	if cfg.MQTT.Enabled {
		mqttClient, connectErr := mqtt.Connect(cfg.MQTT, mqtt.WithVersion(version))
		if connectErr != nil {
			return fmt.Errorf("connecting to MQTT: %w", connectErr)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		w.AddObserver(mqtt.NewStatePublisher(mqttClient, mqttClient.Topics(), mqttClient.QoS()))
		log.Info("MQTT state publishing enabled",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"topic", mqttClient.Topics().PrinterState(),
		)
	}

	if cfg.InfluxDB.Enabled {
		influxClient, connectErr := influxdb.Connect(cfg.InfluxDB, influxdb.WithTag("printer", printerTag(cfg.Printer)))
		if connectErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connectErr)
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
		w.AddObserver(influxdb.NewTelemetry(influxClient, device))
		log.Info("InfluxDB telemetry enabled", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Conversation engine and main menu
	engine, err := conversation.New(conversation.Config{
		Device:         device,
		Authorizer:     registry,
		Transport:      transport,
		Auditor:        auditor,
		Level:          cfg.Bot.ControlLevel,
		SessionTTL:     cfg.SessionTTL(),
		UploadDir:      cfg.Bot.UploadDir,
		MaxUploadBytes: cfg.Bot.MaxUploadBytes,
	})
	if err != nil {
		return fmt.Errorf("creating conversation engine: %w", err)
	}
	engine.SetLogger(log.Component("conversation"))
	go engine.RunSweeper(ctx, sessionSweepInterval)

	b, err := bot.New(bot.Config{
		Device:       device,
		Authorizer:   registry,
		Transport:    transport,
		Conversation: engine,
		MonitorLevel: cfg.Bot.MonitorLevel,
		ControlLevel: cfg.Bot.ControlLevel,
		CameraSource: cfg.Printer.CameraSource,
	})
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}
	b.SetLogger(log.Component("bot"))

	dispatcher := bot.NewDispatcher(b)
	dispatcher.SetLogger(log.Component("dispatcher"))
	defer dispatcher.Close()

	// HTTP API
	if cfg.API.Enabled {
		server, newErr := api.New(api.Deps{
			Config:       cfg.API,
			WS:           cfg.WebSocket,
			Security:     cfg.Security,
			Logger:       log.Component("api"),
			Authorizer:   registry,
			MonitorLevel: cfg.Bot.MonitorLevel,
			ControlLevel: cfg.Bot.ControlLevel,
			State:        w,
			History:      historyRepo,
			Audit:        auditRepo,
			Version:      version,
		})
		if newErr != nil {
			return fmt.Errorf("creating API server: %w", newErr)
		}
		w.AddObserver(server.Feed())
		if startErr := server.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := server.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	if cfg.Database.HistoryRetention > 0 {
		retention := time.Duration(cfg.Database.HistoryRetention) * hoursPerDay * time.Hour
		go pruneHistory(ctx, historyRepo, retention, log)
	}

	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: database: %w", err)
	}

	w.Start(ctx)
	defer w.Stop()

	log.Info("initialisation complete, receiving chat updates")
	if err := transport.Run(ctx, chat.HandlerFunc(dispatcher.Dispatch)); err != nil {
		return fmt.Errorf("receiving chat updates: %w", err)
	}

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// newLocator builds the printer locator from the printer section.
func newLocator(cfg *config.Config, log *logging.Logger) (*printer.Locator, error) {
	probeTimeout := time.Duration(cfg.Printer.ProbeTimeout) * time.Millisecond
	locator, err := printer.NewLocator(printer.LocatorConfig{
		StaticIP: cfg.Printer.StaticIP,
		IP:       cfg.Printer.IP,
		MAC:      cfg.Printer.MAC,
		Subnet:   cfg.Printer.Subnet,
		Table:    printer.NewProcTable(cfg.Printer.ARPTable),
		Prober:   printer.NewICMPProber(probeTimeout),

		ProbeTimeout: probeTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating printer locator: %w", err)
	}
	locator.SetLogger(log.Component("locator"))
	return locator, nil
}

// pollTimeout bounds one watcher poll. A poll that finds the printer gone
// makes two requests around a subnet scan, so it gets room for all three.
func pollTimeout(request, scan time.Duration) time.Duration {
	return 2*request + scan
}

// printerTag identifies the printer on telemetry points: its MAC when it is
// located dynamically, its IP otherwise.
func printerTag(p config.PrinterConfig) string {
	if p.StaticIP {
		return p.IP
	}
	return strings.ToLower(p.MAC)
}

// pruneHistory deletes state history older than retention once at startup
// and then daily until ctx is cancelled.
func pruneHistory(ctx context.Context, repo history.Repository, retention time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		n, err := repo.Prune(ctx, retention)
		if err != nil {
			log.Warn("pruning state history failed", "error", err)
		} else if n > 0 {
			log.Info("pruned state history", "deleted", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
