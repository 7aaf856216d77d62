// Gray Logic Edge - device connectivity agent
//
// This is the main entry point for the Gray Logic edge agent. The agent
// acquires a network, fetches broker credentials from the local
// configuration store, keeps one MQTT session alive and relays messages
// between the broker and the device application.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"

	_ "github.com/nerrad567/gray-logic-edge/migrations"

	"github.com/nerrad567/gray-logic-edge/internal/api"
	"github.com/nerrad567/gray-logic-edge/internal/application"
	"github.com/nerrad567/gray-logic-edge/internal/audit"
	"github.com/nerrad567/gray-logic-edge/internal/auth"
	"github.com/nerrad567/gray-logic-edge/internal/channel"
	"github.com/nerrad567/gray-logic-edge/internal/configbridge"
	"github.com/nerrad567/gray-logic-edge/internal/configstore"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-edge/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-edge/internal/network"
	"github.com/nerrad567/gray-logic-edge/internal/transport"
	"github.com/nerrad567/gray-logic-edge/internal/work"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "hash-token" {
		if err := hashToken(os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on a clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // staged start-up, one step per component
	log := logging.Default()
	log.Info("starting Gray Logic Edge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	bootID := uuid.NewString()
	if cfg.Device.ID == "" {
		cfg.Device.ID = uuid.NewString()
		log.Warn("device.id not configured, using a random id", "device_id", cfg.Device.ID)
	}
	log = log.With("device_id", cfg.Device.ID)
	log.Info("boot session started", "boot_id", bootID)

	// Database
	db, err := database.Open(database.Config{
		Path:        cfg.Store.Database.Path,
		WALMode:     cfg.Store.Database.WALMode,
		BusyTimeout: cfg.Store.Database.BusyTimeout,
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
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database ready", "path", cfg.Store.Database.Path)

	// Configuration store
	store, err := openStore(ctx, cfg, db, log)
	if err != nil {
		return err
	}
	defer store.Close()

	// Network reachability
	monitor, err := network.New(network.Config{
		ProbeAddress: cfg.Network.ProbeAddress,
		PollInterval: cfg.GetNetworkPollInterval(),
		DialTimeout:  cfg.GetDialTimeout(),
	}, log.Component("network"))
	if err != nil {
		return fmt.Errorf("creating network monitor: %w", err)
	}
	if startErr := monitor.Start(ctx); startErr != nil {
		return fmt.Errorf("starting network monitor: %w", startErr)
	}
	defer monitor.Stop()

	// Observers: Prometheus, session log, event stream
	collector := metrics.New()
	unsubscribe := monitor.Subscribe(func(status transport.NetworkStatus) {
		collector.SetNetworkUp(status == transport.NetworkConnected)
	})
	defer unsubscribe()

	sessions := audit.NewSQLiteRepository(db.DB)
	recorder := audit.NewRecorder(sessions, bootID, log.Component("audit"))
	hub := api.NewHub(cfg.API.WebSocket, log.Component("events"))

	// Transport
	queue := work.NewQueue(cfg.Orchestrator.QueueSize)
	demux := work.NewDemux(queue, log.Component("demux"))
	provider, err := channel.New(channel.Config{
		FetchTimeout: cfg.GetStoreTimeout(),
		Session: mqtt.SessionConfig{
			ConnectTimeout: cfg.GetConnectTimeout(),
			RequestTimeout: cfg.GetRequestTimeout(),
			InFlightLimit:  cfg.Broker.InFlightLimit,
			Logger:         log.Component("mqtt"),
		},
	}, channel.Deps{
		Monitor:  monitor,
		Store:    store,
		Notifier: demux.Notify,
		Logger:   log.Component("channel"),
	})
	if err != nil {
		return fmt.Errorf("creating channel provider: %w", err)
	}
	defer provider.Close()

	bridge, err := configbridge.New(configbridge.Settings{
		DeviceID:      cfg.Device.ID,
		Auth:          configbridge.AuthMethod(cfg.Broker.Auth),
		Encoding:      configbridge.Encoding(cfg.Broker.Encoding),
		TLS:           cfg.Broker.TLS,
		CredentialTTL: cfg.GetCredentialTTL(),
		JWTAudience:   cfg.Broker.JWTAudience,
	})
	if err != nil {
		return fmt.Errorf("creating credential bridge: %w", err)
	}

	// Telemetry
	checks := map[string]api.HealthChecker{"database": db}
	appDeps := application.Deps{Logger: log.Component("application")}
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB, cfg.Device.ID)
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
		appDeps.Telemetry = influxClient
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Application and orchestrator
	app, err := application.New(application.Config{
		Kind:            cfg.Application.Kind,
		PublishInterval: cfg.GetPublishInterval(),
		QueueSize:       cfg.Application.QueueSize,
	}, appDeps)
	if err != nil {
		return fmt.Errorf("creating application: %w", err)
	}

	orch, err := work.New(orchestratorConfig(cfg), work.Deps{
		Provider:    provider,
		Queue:       queue,
		Credentials: bridge,
		Consumer:    app,
		Metrics:     metrics.Fanout(collector, recorder, hub),
		Logger:      log.Component("orchestrator"),
	})
	if err != nil {
		return fmt.Errorf("creating orchestrator: %w", err)
	}

	// Status API
	if cfg.API.Enabled {
		var tokens api.TokenVerifier
		if cfg.API.TokenHash != "" {
			v, verr := auth.NewVerifier(cfg.API.TokenHash)
			if verr != nil {
				return fmt.Errorf("api.token_hash: %w", verr)
			}
			tokens = v
		}
		srv, apiErr := api.New(api.Deps{
			Config:       cfg.API,
			Logger:       log.Component("api"),
			Orchestrator: orch,
			Application:  app,
			Sessions:     sessions,
			Metrics:      collector.Handler(),
			Checks:       checks,
			Events:       hub,
			Tokens:       tokens,
			BootID:       bootID,
			Version:      version,
		})
		if apiErr != nil {
			return fmt.Errorf("creating API server: %w", apiErr)
		}
		if startErr := srv.Start(ctx); startErr != nil {
			return fmt.Errorf("starting API server: %w", startErr)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	// The session log outlives the orchestrator so the final transitions
	// are written.
	recorderCtx, stopRecorder := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		recorder.Run(recorderCtx)
	}()
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if appErr := app.Run(ctx, orch); appErr != nil {
			log.Error("application stopped", "error", appErr)
		}
	}()

	log.Info("initialisation complete",
		"application", cfg.Application.Kind,
		"store", cfg.Store.Backend,
		"command_topic", cfg.CommandTopic(),
		"telemetry_topic", cfg.TelemetryTopic(),
	)

	runErr := orch.Run(ctx)
	stopRecorder()
	wg.Wait()

	if runErr != nil {
		log.Warn("orchestrator shutdown incomplete", "error", runErr)
	}
	log.Info("Gray Logic Edge stopped")
	return nil
}

// openStore opens the configured backend and applies the seed file, if any.
func openStore(ctx context.Context, cfg *config.Config, db *database.DB, log *logging.Logger) (configstore.Store, error) {
	var (
		store  configstore.Store
		writer configstore.Writer
	)
	switch cfg.Store.Backend {
	case "redis":
		rs, err := configstore.NewRedisStore(ctx, configstore.RedisOptions{
			Address:  cfg.Store.Redis.Address,
			Username: cfg.Store.Redis.Username,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
			Timeout:  cfg.GetStoreTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis store: %w", err)
		}
		store, writer = rs, rs
	default:
		ss := configstore.NewSQLiteStore(db)
		store, writer = ss, ss
	}
	log.Info("configuration store ready", "backend", cfg.Store.Backend)

	if cfg.Store.SeedFile != "" {
		n, err := configstore.SeedFromFile(ctx, writer, cfg.Store.SeedFile)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("seeding configuration store: %w", err)
		}
		log.Info("configuration store seeded", "path", cfg.Store.SeedFile, "items", n)
	}
	return store, nil
}

// hashToken reads an operator token from the first line of r and writes its
// hash for api.token_hash to w.
func hashToken(r io.Reader, w io.Writer) error {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("reading token: %w", err)
	}
	hash, err := auth.HashToken(strings.TrimSpace(line))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, hash)
	return err
}

func orchestratorConfig(cfg *config.Config) work.Config {
	o := cfg.Orchestrator
	return work.Config{
		CommandTopic:       cfg.CommandTopic(),
		TelemetryTopic:     cfg.TelemetryTopic(),
		QoS:                byte(cfg.Broker.QoS), // #nosec G115 -- validated 0..2
		KeepAlive:          cfg.GetKeepAlive(),
		CleanStart:         cfg.Broker.CleanStart,
		SendBufferSize:     o.SendBufferSize,
		ReceiveBufferSize:  o.ReceiveBufferSize,
		RequestTimeout:     cfg.GetRequestTimeout(),
		RefetchOnReconnect: o.RefetchOnReconnect,
		Reconnect: work.ReconnectConfig{
			InitialDelay: cfg.GetInitialDelay(),
			MaxDelay:     cfg.GetMaxDelay(),
			Multiplier:   o.Reconnect.Multiplier,
			Jitter:       o.Reconnect.Jitter,
			MaxAttempts:  o.Reconnect.MaxAttempts,
		},
		PollInterval:    cfg.GetPollInterval(),
		ShutdownTimeout: cfg.GetShutdownTimeout(),
		OutboxSize:      o.OutboxSize,
	}
}
