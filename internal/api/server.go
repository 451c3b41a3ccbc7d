package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-video/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-video/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-video/internal/session"
	"github.com/nerrad567/gray-logic-video/internal/video"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// VideoOutput is the part of the video output the API serves.
// *video.Output satisfies it.
type VideoOutput interface {
	Schema() video.OutputSchema
	Encoding() video.EncodingDescriptor
	AverageSamplingPeriod() float64
	Stats() video.Stats
	State() video.State
	Streaming() bool
	SetStreaming(enabled bool)
	Latest() (video.Record, bool)
	Subscribe(handler video.Handler) video.Subscription
	Unsubscribe(sub video.Subscription) error
	HealthCheck(ctx context.Context) error
}

// HealthChecker is a component with an active health check.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// MQTTStatus is the MQTT client as seen by the API. *mqtt.Client satisfies it.
type MQTTStatus interface {
	HealthChecker
	IsConnected() bool
}

// DatabaseStatus is the database as seen by the API. *database.DB satisfies it.
type DatabaseStatus interface {
	HealthChecker
	Stats() sql.DBStats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	CameraID string
	Output   VideoOutput

	// Optional. Routes that need a missing dependency answer 503.
	Sessions session.Repository
	Database DatabaseStatus
	MQTT     MQTTStatus
	Metrics  http.Handler

	Version string
}

// Server is the HTTP API server for Gray Logic Video.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	secCfg    config.SecurityConfig
	logger    *logging.Logger
	cameraID  string
	output    VideoOutput
	sessions  session.Repository
	db        DatabaseStatus
	mqtt      MQTTStatus
	metrics   http.Handler
	version   string
	startTime time.Time

	hub      *Hub
	router   http.Handler
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Output == nil {
		return nil, errors.New("video output is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger.With("component", "api"),
		cameraID:  deps.CameraID,
		output:    deps.Output,
		sessions:  deps.Sessions,
		db:        deps.Database,
		mqtt:      deps.MQTT,
		metrics:   deps.Metrics,
		version:   deps.Version,
		startTime: time.Now(),
	}
	s.hub = NewHub(s.wsCfg, s.logger, s.output)
	s.router = s.buildRouter()
	return s, nil
}

// Observer returns the hub as a video observer so state and session events
// reach WebSocket clients. Register it with the output before Start.
func (s *Server) Observer() video.Observer {
	return s.hub
}

// Handler returns the routed handler with all middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener, attaches the WebSocket hub to the output and
// serves in a background goroutine. A bind failure is returned directly.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	s.hub.Start()
	go func() {
		<-srvCtx.Done()
		s.hub.Stop()
	}()

	s.server = &http.Server{
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
		// Request contexts end with the server so live streams return on Close.
		BaseContext: func(net.Listener) context.Context { return srvCtx },
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections. Live streams end when
// the hub stops and the server context is cancelled.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
