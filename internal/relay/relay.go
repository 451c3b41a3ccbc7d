package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-video/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-video/internal/video"
)

// Defaults.
const (
	DefaultStatusInterval = 30 * time.Second

	// retainedQoS is used for schema and status.
	retainedQoS = 1

	// frameQoS is used for frames. A lost frame is superseded by the next.
	frameQoS = 0
)

// Publisher is the MQTT side of the relay. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	IsConnected() bool
}

// Source is the video side of the relay. *video.Output satisfies it.
type Source interface {
	Subscribe(handler video.Handler) video.Subscription
	Unsubscribe(sub video.Subscription) error
	Schema() video.OutputSchema
	Encoding() video.EncodingDescriptor
	AverageSamplingPeriod() float64
	Stats() video.Stats
	State() video.State
	Streaming() bool
	SetStreaming(enabled bool)
	HealthCheck(ctx context.Context) error
}

// Logger is the logging interface used by the relay.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config holds relay settings.
type Config struct {
	CameraID string

	// FrameInterval publishes every Nth frame. Zero or one publishes all.
	FrameInterval int

	// StatusInterval is how often status is republished.
	// Default: DefaultStatusInterval.
	StatusInterval time.Duration
}

// Relay publishes one video output to MQTT.
type Relay struct {
	cfg    Config
	pub    Publisher
	source Source
	logger Logger

	frameTopic   string
	schemaTopic  string
	statusTopic  string
	controlTopic string

	// pending holds at most one encoded frame awaiting publish.
	pending chan []byte
	seen    atomic.Uint64
	sub     video.Subscription

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once

	published, skipped, dropped, oversize atomic.Uint64
	publishErrs, controlMsgs, controlErrs atomic.Uint64
}

// New creates a relay. Call Start, then Run.
func New(cfg Config, pub Publisher, source Source) *Relay {
	if cfg.FrameInterval < 1 {
		cfg.FrameInterval = 1
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}

	topics := mqtt.Topics{}
	return &Relay{
		cfg:          cfg,
		pub:          pub,
		source:       source,
		logger:       noopLogger{},
		frameTopic:   topics.VideoFrame(cfg.CameraID),
		schemaTopic:  topics.VideoSchema(cfg.CameraID),
		statusTopic:  topics.VideoStatus(cfg.CameraID),
		controlTopic: topics.VideoControl(cfg.CameraID),
		pending:      make(chan []byte, 1),
	}
}

// SetLogger sets the logger.
func (r *Relay) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Start subscribes to the control topic and the output, then publishes the
// schema and an online status.
func (r *Relay) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return ErrAlreadyStarted
	}

	if err := r.pub.Subscribe(r.controlTopic, retainedQoS, r.handleControl); err != nil {
		return fmt.Errorf("subscribing to %s: %w", r.controlTopic, err)
	}
	r.sub = r.source.Subscribe(r.handleRecord)
	r.started = true

	if err := r.PublishSchema(); err != nil {
		r.logger.Warn("publishing video schema failed", "topic", r.schemaTopic, "error", err)
	}
	r.publishStatus(StatusOnline)

	r.logger.Info("video relay started",
		"camera_id", r.cfg.CameraID,
		"frame_interval", r.cfg.FrameInterval,
	)
	return nil
}

// Run publishes pending frames and periodic status until ctx is done.
// It always returns nil.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload := <-r.pending:
			r.publishFrame(payload)
		case <-ticker.C:
			r.publishStatus(StatusOnline)
		}
	}
}

// Stop unsubscribes and publishes an offline status. Safe to call more
// than once.
func (r *Relay) Stop() {
	r.mu.Lock()
	started := r.started
	r.mu.Unlock()
	if !started {
		return
	}

	r.stopOnce.Do(func() {
		r.source.Unsubscribe(r.sub) //nolint:errcheck // Handle is ours
		if err := r.pub.Unsubscribe(r.controlTopic); err != nil {
			r.logger.Debug("unsubscribing from control topic failed", "error", err)
		}
		r.publishStatus(StatusOffline)
		r.logger.Info("video relay stopped", "camera_id", r.cfg.CameraID)
	})
}

// PublishSchema publishes the retained schema message.
func (r *Relay) PublishSchema() error {
	payload, err := json.Marshal(SchemaMessage{
		Schema:                r.source.Schema(),
		Encoding:              r.source.Encoding(),
		AverageSamplingPeriod: r.source.AverageSamplingPeriod(),
	})
	if err != nil {
		return fmt.Errorf("marshalling schema: %w", err)
	}
	return r.pub.Publish(r.schemaTopic, payload, retainedQoS, true)
}

// Stats returns relay counters.
func (r *Relay) Stats() Stats {
	return Stats{
		FramesPublished: r.published.Load(),
		FramesSkipped:   r.skipped.Load(),
		FramesDropped:   r.dropped.Load(),
		FramesOversize:  r.oversize.Load(),
		PublishErrors:   r.publishErrs.Load(),
		ControlMessages: r.controlMsgs.Load(),
		ControlErrors:   r.controlErrs.Load(),
	}
}

// handleRecord runs on the capture goroutine. rec is only valid during the
// call, so it is encoded into a fresh buffer before being queued.
func (r *Relay) handleRecord(rec *video.Record) {
	n := r.seen.Add(1)
	if (n-1)%uint64(r.cfg.FrameInterval) != 0 { //nolint:gosec // FrameInterval >= 1
		r.skipped.Add(1)
		return
	}

	size := video.EncodedSize(rec)
	if size > mqtt.MaxPayloadSize {
		r.oversize.Add(1)
		r.logger.Debug("video frame too large for MQTT, dropped", "bytes", size)
		return
	}

	payload, err := video.EncodeRecord(make([]byte, 0, size), r.source.Encoding(), rec)
	if err != nil {
		r.publishErrs.Add(1)
		r.logger.Debug("encoding video record failed", "error", err)
		return
	}
	r.enqueue(payload)
}

// enqueue replaces any frame still waiting in the mailbox.
func (r *Relay) enqueue(payload []byte) {
	for {
		select {
		case r.pending <- payload:
			return
		default:
		}
		select {
		case <-r.pending:
			r.dropped.Add(1)
		default:
		}
	}
}

func (r *Relay) publishFrame(payload []byte) {
	if err := r.pub.Publish(r.frameTopic, payload, frameQoS, false); err != nil {
		r.publishErrs.Add(1)
		r.logger.Debug("publishing video frame failed", "topic", r.frameTopic, "error", err)
		return
	}
	r.published.Add(1)
}

func (r *Relay) publishStatus(status string) {
	msg := StatusMessage{
		Status:    status,
		State:     r.source.State(),
		Streaming: r.source.Streaming(),
		Healthy:   true,
		Stats:     r.source.Stats(),
		Relay:     r.Stats(),
		Timestamp: time.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := r.source.HealthCheck(ctx); err != nil {
		msg.Healthy = false
		msg.Error = err.Error()
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		r.publishErrs.Add(1)
		r.logger.Debug("marshalling video status failed", "error", err)
		return
	}
	if err := r.pub.Publish(r.statusTopic, payload, retainedQoS, true); err != nil {
		r.publishErrs.Add(1)
		r.logger.Debug("publishing video status failed", "topic", r.statusTopic, "error", err)
	}
}

// handleControl applies {"streaming": bool}.
func (r *Relay) handleControl(_ string, payload []byte) error {
	r.controlMsgs.Add(1)

	var msg ControlMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Streaming == nil {
		r.controlErrs.Add(1)
		if err == nil {
			err = errors.New("missing streaming field")
		}
		return fmt.Errorf("%w: %w", ErrInvalidControl, err)
	}

	r.logger.Info("video streaming control received",
		"camera_id", r.cfg.CameraID,
		"streaming", *msg.Streaming,
	)
	r.source.SetStreaming(*msg.Streaming)
	r.publishStatus(StatusOnline)
	return nil
}
