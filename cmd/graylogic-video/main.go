// Gray Logic Video - Axis camera video output
//
// This is the main entry point for the Gray Logic Video service. It
// captures the MJPEG stream of one Axis network camera and makes it
// available to the rest of a Gray Logic installation:
//   - on the MQTT bus as encoded records, schema and status
//   - over HTTP as snapshots, a live re-stream and a WebSocket feed
//   - as stream session history (SQLite), telemetry (InfluxDB) and
//     Prometheus metrics
//
// Usage:
//
//	graylogic-video                       run the service
//	graylogic-video token [flags]         mint an API token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-video/internal/api"
	"github.com/nerrad567/gray-logic-video/internal/auth"
	"github.com/nerrad567/gray-logic-video/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-video/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-video/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-video/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-video/internal/infrastructure/metrics"
	"github.com/nerrad567/gray-logic-video/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-video/internal/relay"
	"github.com/nerrad567/gray-logic-video/internal/session"
	"github.com/nerrad567/gray-logic-video/internal/telemetry"
	"github.com/nerrad567/gray-logic-video/internal/video"
	"github.com/nerrad567/gray-logic-video/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// initTimeout bounds the image size query made by Output.Init.
const initTimeout = 15 * time.Second

// stopTimeout bounds Output.Stop during shutdown.
const stopTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := runToken(os.Args[2:], os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		return
	}

	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error { //nolint:gocognit,gocyclo // Linear start-up sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Video",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := config.PathFromEnv()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version).With("camera_id", cfg.Camera.ID)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
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

	if migrateErr := db.Migrate(ctx, migrations.FS); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Connect to MQTT broker (only needed by the relay)
	var mqttClient *mqtt.Client
	if cfg.Relay.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, mqtt.Topics{}.VideoStatus(cfg.Camera.ID))
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
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
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT relay disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
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
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	output := video.NewOutput(outputConfig(cfg))
	output.SetLogger(log.With("component", "video"))

	registry := metrics.NewRegistry()
	if regErr := registry.RegisterVideo(cfg.Camera.ID, output); regErr != nil {
		return fmt.Errorf("registering metrics: %w", regErr)
	}

	initCtx, cancelInit := context.WithTimeout(ctx, initTimeout)
	err = output.Init(initCtx, cfg.Camera.Address)
	cancelInit()
	if err != nil {
		return fmt.Errorf("initialising video output: %w", err)
	}
	width, height := output.Schema().FrameSize()
	log.Info("video output initialised",
		"address", output.Address(),
		"width", width,
		"height", height,
	)

	// Observers: session history, then telemetry
	recorder := session.NewRecorder(session.NewSQLiteRepository(db.DB), cfg.Camera.ID)
	recorder.SetLogger(log.With("component", "session"))
	output.AddObserver(recorder)

	var collector *telemetry.Collector
	if influxClient != nil {
		collector = telemetry.NewCollector(cfg.Camera.ID, output, influxClient, cfg.GetSampleInterval())
		output.AddObserver(collector)
	}

	g, gctx := errgroup.WithContext(ctx)

	var rel *relay.Relay
	if mqttClient != nil {
		rel = relay.New(relay.Config{
			CameraID:       cfg.Camera.ID,
			FrameInterval:  cfg.Relay.FrameInterval,
			StatusInterval: cfg.GetStatusInterval(),
		}, mqttClient, output)
		rel.SetLogger(log.With("component", "relay"))
		if startErr := rel.Start(ctx); startErr != nil {
			return fmt.Errorf("starting relay: %w", startErr)
		}
		defer func() {
			log.Info("stopping relay")
			rel.Stop()
		}()
		g.Go(func() error { return rel.Run(gctx) })
	}
	if collector != nil {
		g.Go(func() error { return collector.Run(gctx) })
	}

	deps := api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Security: cfg.Security,
		Logger:   log,
		CameraID: cfg.Camera.ID,
		Output:   output,
		Sessions: session.NewSQLiteRepository(db.DB),
		Database: db,
		Metrics:  registry.Handler(),
		Version:  version,
	}
	if mqttClient != nil {
		deps.MQTT = mqttClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	output.AddObserver(server.Observer())
	if startErr := server.Start(gctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if startErr := output.Start(ctx); startErr != nil {
		return fmt.Errorf("starting video output: %w", startErr)
	}
	defer func() {
		log.Info("stopping video output")
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if stopErr := output.Stop(stopCtx); stopErr != nil {
			log.Error("error stopping video output", "error", stopErr)
		}
	}()

	log.Info("initialisation complete, waiting for shutdown signal",
		"api", server.Addr(),
		"streaming", output.Streaming(),
	)

	// Wait for shutdown signal or a failed background loop
	<-gctx.Done()
	log.Info("shutdown signal received, cleaning up")
	if waitErr := g.Wait(); waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return fmt.Errorf("background loop: %w", waitErr)
	}

	// Deferred calls run in reverse order:
	// output, API, relay, InfluxDB, MQTT, database.
	log.Info("Gray Logic Video stopped")
	return nil
}

// outputConfig maps the camera section onto the video output settings.
func outputConfig(cfg *config.Config) video.Config {
	endpoints := video.DefaultEndpoints()
	if cfg.Camera.Endpoints.Scheme != "" {
		endpoints.Scheme = cfg.Camera.Endpoints.Scheme
	}
	if cfg.Camera.Endpoints.ImageSize != "" {
		endpoints.ImageSizePath = cfg.Camera.Endpoints.ImageSize
	}
	if cfg.Camera.Endpoints.Video != "" {
		endpoints.VideoPath = cfg.Camera.Endpoints.Video
	}

	return video.Config{
		Name:           cfg.Camera.OutputName,
		Endpoints:      endpoints,
		ConnectTimeout: cfg.GetConnectTimeout(),
		BackoffDelay:   cfg.GetBackoffDelay(),
		IdleTimeout:    cfg.GetIdleStreamTimeout(),
		MaxFrameSize:   cfg.Camera.MaxFrameSize,
		SamplingPeriod: cfg.GetSamplingPeriod(),
		StartPaused:    cfg.Camera.StartPaused,
	}
}

// runToken mints an API bearer token signed with the configured secret.
func runToken(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("sub", "graylogic-ui", "token subject")
	control := fs.Bool("control", false, "grant "+auth.ScopeControl+" in addition to "+auth.ScopeRead)
	ttl := fs.Duration("ttl", auth.DefaultTTL, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(config.PathFromEnv())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	scopes := []string{auth.ScopeRead}
	if *control {
		scopes = append(scopes, auth.ScopeControl)
	}
	token, err := auth.GenerateToken(*subject, cfg.Security.JWT.Secret, cfg.Security.JWT.Issuer, *ttl, scopes...)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	_, err = fmt.Fprintln(stdout, token)
	return err
}
