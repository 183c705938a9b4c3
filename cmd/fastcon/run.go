package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	_ "github.com/nerrad567/gray-logic-fastcon/migrations"

	"github.com/nerrad567/gray-logic-fastcon/internal/api"
	"github.com/nerrad567/gray-logic-fastcon/internal/bridges/fastcon"
	"github.com/nerrad567/gray-logic-fastcon/internal/discovery"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-fastcon/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-fastcon/internal/lights"
	"github.com/nerrad567/gray-logic-fastcon/internal/mesh"
	"github.com/nerrad567/gray-logic-fastcon/internal/transport/hci"
	"github.com/nerrad567/gray-logic-fastcon/internal/transport/mqttadv"
)

// run starts every component, blocks until ctx is cancelled, then shuts
// down in reverse order through the deferred closes.
func run(ctx context.Context, configPath string) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Fastcon",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)
	defer log.Close() //nolint:errcheck // Best-effort flush of the log file on exit
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
		"output", cfg.Logging.Output,
	)

	key, err := cfg.Fastcon.Key()
	if err != nil {
		return fmt.Errorf("parsing mesh key: %w", err)
	}

	// Open database
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
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	lightRepo := lights.NewSQLiteRepository(db.DB)
	journal := lights.NewSQLiteJournal(db.DB)

	// The will must be registered before connecting, so it is built from
	// the topic and message the health reporter uses.
	lwt, err := json.Marshal(fastcon.NewLWTMessage(fastcon.ProtocolName))
	if err != nil {
		return fmt.Errorf("building MQTT will: %w", err)
	}
	mqttClient, err := mqtt.Connect(cfg.MQTT,
		mqtt.WithWill(mqtt.Topics{}.BridgeHealth(fastcon.ProtocolName), lwt),
		mqtt.WithLogger(log),
	)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
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

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	var metrics fastcon.MetricsWriter
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Site.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
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
		metrics = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	transport, err := openTransport(cfg.Fastcon, mqttClient, log)
	if err != nil {
		return fmt.Errorf("opening %s transport: %w", cfg.Fastcon.Transport, err)
	}
	defer func() {
		log.Info("closing transport", "kind", cfg.Fastcon.Transport)
		if closeErr := transport.Close(); closeErr != nil {
			log.Error("error closing transport", "error", closeErr)
		}
	}()

	controller, err := mesh.New(mesh.Config{
		Key:          key[:],
		IntervalMin:  uint16(cfg.Fastcon.AdvIntervalMin),
		IntervalMax:  uint16(cfg.Fastcon.AdvIntervalMax),
		Duration:     cfg.Fastcon.GetAdvDuration(),
		Gap:          cfg.Fastcon.GetAdvGap(),
		MaxQueueSize: cfg.Fastcon.MaxQueueSize,
	}, transport)
	if err != nil {
		return fmt.Errorf("creating mesh controller: %w", err)
	}
	controller.SetLogger(log)

	hub := api.NewHub(cfg.WebSocket, log)

	bridge, err := fastcon.NewBridge(fastcon.BridgeOptions{
		Controller:     controller,
		MQTTClient:     mqttClient,
		Lights:         lightRepo,
		Journal:        journal,
		Metrics:        metrics,
		Events:         hub,
		Logger:         log,
		Version:        version,
		TransportKind:  cfg.Fastcon.Transport,
		PollInterval:   cfg.Fastcon.GetPollInterval(),
		HealthInterval: cfg.Fastcon.GetHealthInterval(),
		EventBuffer:    cfg.Fastcon.EventBuffer,
	})
	if err != nil {
		return fmt.Errorf("creating fastcon bridge: %w", err)
	}
	if startErr := bridge.Start(ctx); startErr != nil {
		return fmt.Errorf("starting fastcon bridge: %w", startErr)
	}
	defer func() {
		log.Info("stopping fastcon bridge")
		bridge.Stop()
	}()
	log.Info("fastcon bridge started",
		"transport", cfg.Fastcon.Transport,
		"queue_size", cfg.Fastcon.MaxQueueSize,
	)

	apiServer, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		Mesh:     bridge,
		Lights:   lightRepo,
		Journal:  journal,
		Hub:      hub,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := apiServer.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if cfg.Discovery.Enabled {
		announcer := discovery.NewAnnouncer(cfg.Discovery, log)
		if announceErr := announcer.Announce(discovery.Info{
			Port:      cfg.API.Port,
			Version:   version,
			TLS:       cfg.API.TLS.Enabled,
			Transport: cfg.Fastcon.Transport,
		}); announceErr != nil {
			// The API is still reachable by address
			log.Warn("mdns announcement failed", "error", announceErr)
		} else {
			defer announcer.Stop()
		}
	}

	if err := healthCheck(ctx, db, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	return nil
}

// meshTransport is a mesh.Transport that owns a resource.
type meshTransport interface {
	mesh.Transport
	io.Closer
}

// openTransport selects the radio named by cfg.Transport.
func openTransport(cfg config.FastconConfig, mqttClient *mqtt.Client, log *logging.Logger) (meshTransport, error) {
	switch cfg.Transport {
	case config.TransportHCI:
		adv, err := hci.Open(cfg.HCIDevice)
		if err != nil {
			return nil, err
		}
		adv.SetLogger(log)
		return adv, nil
	case config.TransportMQTT:
		adv, err := mqttadv.New(mqttClient, cfg.AdvertiserProxy)
		if err != nil {
			return nil, err
		}
		return nopCloser{adv}, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// nopCloser adapts a transport with nothing to release.
type nopCloser struct {
	mesh.Transport
}

func (nopCloser) Close() error { return nil }

// healthCheck verifies all infrastructure connections are healthy.
// influxClient may be nil when InfluxDB is disabled.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}
	return nil
}
