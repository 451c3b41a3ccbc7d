package video

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// DefaultSamplingPeriod is the nominal MJPEG frame interval (30 fps).
const DefaultSamplingPeriod = time.Second / 30

// Config holds video output settings.
type Config struct {
	// Name is the root record name. Default: "videoOutput".
	Name string

	// Endpoints are the camera HTTP paths.
	Endpoints Endpoints

	// ConnectTimeout bounds dialing and response headers.
	ConnectTimeout time.Duration

	// BackoffDelay is the wait before each reconnect. Default: 1s.
	BackoffDelay time.Duration

	// IdleTimeout ends a session that stops delivering frames. Default: 10s.
	IdleTimeout time.Duration

	// MaxFrameSize bounds a single frame. Default: 8 MiB.
	MaxFrameSize int64

	// SamplingPeriod is the advertised frame interval. Default: 1/30 s.
	SamplingPeriod time.Duration

	// StartPaused leaves streaming disabled after Start.
	StartPaused bool

	// HTTPClient overrides the clients used for the size query and the
	// stream. Leave nil in production.
	HTTPClient *http.Client
}

// Stats combines supervisor and publisher counters.
type Stats struct {
	Name       string          `json:"name"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Supervisor SupervisorStats `json:"supervisor"`
	Publisher  PublisherStats  `json:"publisher"`
}

// Output is the camera video output: the lifecycle the owning driver
// drives (Init, Start, Stop) plus the query and subscription interface
// consumers use.
type Output struct {
	cfg       Config
	logger    Logger
	builder   *SchemaBuilder
	connector Connector
	publisher *RecordPublisher

	// initMu serialises Init; mu guards the fields below.
	initMu     sync.Mutex
	mu         sync.RWMutex
	address    string
	supervisor *ReconnectSupervisor
	observers  []Observer
	streaming  bool
}

// NewOutput creates an output. Call Init before Start.
func NewOutput(cfg Config) *Output {
	if cfg.Name == "" {
		cfg.Name = DefaultOutputName
	}
	if cfg.SamplingPeriod <= 0 {
		cfg.SamplingPeriod = DefaultSamplingPeriod
	}
	cfg.Endpoints = cfg.Endpoints.withDefaults()

	return &Output{
		cfg:       cfg,
		logger:    noopLogger{},
		builder:   NewSchemaBuilder(cfg.HTTPClient, cfg.Endpoints, cfg.Name),
		connector: NewStreamConnector(cfg.HTTPClient, cfg.Endpoints, cfg.ConnectTimeout),
		publisher: NewRecordPublisher(OutputSchema{}, EncodingDescriptor{}),
		streaming: !cfg.StartPaused,
	}
}

// SetLogger sets the logger for the output and its components.
// Call before Init.
func (o *Output) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	o.logger = logger
	o.publisher.SetLogger(logger)
}

// AddObserver registers a lifecycle observer. Observers added after Init
// join the current supervisor and see events from then on.
func (o *Output) AddObserver(obs Observer) {
	o.mu.Lock()
	o.observers = append(o.observers, obs)
	sup := o.supervisor
	o.mu.Unlock()

	if sup != nil {
		sup.AddObserver(obs)
	}
}

// Name returns the output name.
func (o *Output) Name() string {
	return o.cfg.Name
}

// Address returns the device address given to Init.
func (o *Output) Address() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.address
}

// Init queries the device at address and builds the schema.
//
// The image size CGI is queried once; the reported width and height fix the
// frame dimensions for the lifetime of the output and are not re-read on
// reconnect. The query runs without holding the output's lock, so State,
// Stats and HealthCheck keep answering while a slow camera responds.
//
// Parameters:
//   - ctx: Bounds the image size query
//   - address: Camera host, optionally with scheme and port
//
// Returns:
//   - error: ErrAlreadyStarted while the capture loop runs, or a
//     *ConfigurationError when the device does not report a valid image
//     size. The output stays unstartable after a failed Init.
func (o *Output) Init(ctx context.Context, address string) error {
	o.initMu.Lock()
	defer o.initMu.Unlock()

	if o.running() {
		return ErrAlreadyStarted
	}

	schema, encoding, err := o.builder.Build(ctx, address)
	if err != nil {
		o.logger.Error("video output init failed", "address", address, "error", err)
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.supervisor != nil && o.supervisor.running() {
		return ErrAlreadyStarted
	}

	o.publisher.describe(schema, encoding)
	o.address = address

	sup := NewReconnectSupervisor(SupervisorConfig{
		Address:      address,
		BackoffDelay: o.cfg.BackoffDelay,
		IdleTimeout:  o.cfg.IdleTimeout,
		MaxFrameSize: o.cfg.MaxFrameSize,
		StartPaused:  !o.streaming,
	}, o.connector, o.publisher)
	sup.SetLogger(o.logger)
	for _, obs := range o.observers {
		sup.AddObserver(obs)
	}
	o.supervisor = sup

	width, height := schema.FrameSize()
	o.logger.Info("video output initialised",
		"address", address,
		"width", width,
		"height", height,
	)
	return nil
}

// running reports whether a capture loop is active.
func (o *Output) running() bool {
	o.mu.RLock()
	sup := o.supervisor
	o.mu.RUnlock()
	return sup != nil && sup.running()
}

// Start begins the reconnect loop. It fails with a *ConfigurationError if
// Init has not succeeded.
func (o *Output) Start(ctx context.Context) error {
	o.mu.RLock()
	sup := o.supervisor
	o.mu.RUnlock()

	if sup == nil {
		return &ConfigurationError{Address: o.Address(), Err: ErrSchemaNotBuilt}
	}
	return sup.Start(ctx)
}

// Stop requests shutdown and waits, bounded by ctx, for the capture loop to
// exit.
func (o *Output) Stop(ctx context.Context) error {
	o.mu.RLock()
	sup := o.supervisor
	o.mu.RUnlock()

	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// SetStreaming enables or disables streaming without stopping the output.
func (o *Output) SetStreaming(enabled bool) {
	o.mu.Lock()
	o.streaming = enabled
	sup := o.supervisor
	o.mu.Unlock()

	if sup != nil {
		sup.SetEnabled(enabled)
	}
	o.logger.Info("video streaming toggled", "enabled", enabled)
}

// Streaming reports whether streaming is enabled.
func (o *Output) Streaming() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.streaming
}

// State returns the supervisor state, Idle before Init.
func (o *Output) State() State {
	o.mu.RLock()
	sup := o.supervisor
	o.mu.RUnlock()

	if sup == nil {
		return StateIdle
	}
	return sup.State()
}

// Schema returns the output schema. It is zero before Init.
func (o *Output) Schema() OutputSchema {
	return o.publisher.Schema()
}

// Encoding returns the encoding descriptor. It is zero before Init.
func (o *Output) Encoding() EncodingDescriptor {
	return o.publisher.Encoding()
}

// Latest returns a copy of the most recent record.
func (o *Output) Latest() (Record, bool) {
	return o.publisher.Latest()
}

// View gives fn read access to the live record without copying.
func (o *Output) View(fn func(rec *Record)) bool {
	return o.publisher.View(fn)
}

// LatestTime returns the capture time of the latest record.
func (o *Output) LatestTime() time.Time {
	return o.publisher.LatestTime()
}

// AverageSamplingPeriod returns the nominal frame interval in seconds.
// It is the configured value, not a measurement.
func (o *Output) AverageSamplingPeriod() float64 {
	return o.cfg.SamplingPeriod.Seconds()
}

// Subscribe registers a record handler.
func (o *Output) Subscribe(handler Handler) Subscription {
	return o.publisher.Subscribe(handler)
}

// Unsubscribe removes a record handler.
func (o *Output) Unsubscribe(sub Subscription) error {
	return o.publisher.Unsubscribe(sub)
}

// Stats returns combined counters.
func (o *Output) Stats() Stats {
	o.mu.RLock()
	sup := o.supervisor
	address := o.address
	streaming := o.streaming
	o.mu.RUnlock()

	width, height := o.publisher.Schema().FrameSize()
	stats := Stats{
		Name:      o.cfg.Name,
		Width:     width,
		Height:    height,
		Publisher: o.publisher.Stats(),
	}
	if sup != nil {
		stats.Supervisor = sup.Stats()
	} else {
		stats.Supervisor = SupervisorStats{State: StateIdle, Address: address, Enabled: streaming}
	}
	return stats
}

// HealthCheck reports an error unless the output is streaming or has been
// deliberately paused.
func (o *Output) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("video health check: %w", ctx.Err())
	default:
	}

	state := o.State()
	switch {
	case state == StateStreaming:
		return nil
	case state == StateIdle && !o.Streaming() && o.Address() != "":
		return nil
	default:
		return fmt.Errorf("%w: state %s", ErrNotStreaming, state)
	}
}
