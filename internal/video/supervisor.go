package video

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Supervisor defaults.
const (
	DefaultBackoffDelay = time.Second
	DefaultIdleTimeout  = 10 * time.Second
)

var errIdleTimeout = errors.New("no frame received within idle timeout")

// State is the supervisor's position in its connect/stream cycle.
type State int32

// Supervisor states.
const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateBackoff
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for st := StateIdle; st <= StateStopped; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Observer receives supervisor lifecycle events. Calls are made from the
// supervisor goroutine, in order, and must not block for long.
type Observer interface {
	StateChanged(from, to State)
	SessionStarted(info SessionInfo)
	SessionEnded(info SessionInfo, err error)
}

// SupervisorConfig holds supervisor settings.
type SupervisorConfig struct {
	// Address is the camera address passed to the connector.
	Address string

	// BackoffDelay is the fixed wait before reconnecting. Default: 1s.
	BackoffDelay time.Duration

	// IdleTimeout ends a session when no frame arrives in time.
	// Default: 10s. Negative disables the watchdog.
	IdleTimeout time.Duration

	// MaxFrameSize bounds a single frame. Default: DefaultMaxFrameSize.
	MaxFrameSize int64

	// StartPaused leaves streaming disabled until SetEnabled(true).
	StartPaused bool
}

// SupervisorStats holds supervisor counters.
type SupervisorStats struct {
	State              State     `json:"state"`
	Enabled            bool      `json:"enabled"`
	Address            string    `json:"address"`
	SessionID          string    `json:"session_id,omitempty"`
	Attempts           uint64    `json:"attempts"`
	Connects           uint64    `json:"connects"`
	ConnectionFailures uint64    `json:"connection_failures"`
	StreamFailures     uint64    `json:"stream_failures"`
	Frames             uint64    `json:"frames"`
	Bytes              uint64    `json:"bytes"`
	LastFrame          time.Time `json:"last_frame"`
	LastError          string    `json:"last_error,omitempty"`
}

// ReconnectSupervisor owns the connect → decode → publish cycle and
// restarts it after every recoverable failure.
//
// One goroutine runs the cycle. Stop cancels the context threaded into the
// connection, so a blocked connect, read or backoff wait returns promptly.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
type ReconnectSupervisor struct {
	cfg       SupervisorConfig
	connector Connector
	publisher *RecordPublisher
	logger    Logger

	observers []Observer
	obsMu     sync.RWMutex

	// stateMu serialises transitions so observers see them in order.
	state   atomic.Int32
	stateMu sync.Mutex

	enabled atomic.Bool
	wake    chan struct{}

	mu            sync.Mutex
	started       bool
	stopped       bool
	cancel        context.CancelFunc
	done          chan struct{}
	sessionCancel context.CancelFunc
	sessionID     string
	lastErr       string

	attempts       atomic.Uint64
	connects       atomic.Uint64
	connFailures   atomic.Uint64
	streamFailures atomic.Uint64
	frames         atomic.Uint64
	bytes          atomic.Uint64
	lastFrame      atomic.Int64
}

// NewReconnectSupervisor creates a supervisor in the Idle state.
func NewReconnectSupervisor(cfg SupervisorConfig, connector Connector, publisher *RecordPublisher) *ReconnectSupervisor {
	if cfg.BackoffDelay <= 0 {
		cfg.BackoffDelay = DefaultBackoffDelay
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = DefaultMaxFrameSize
	}

	s := &ReconnectSupervisor{
		cfg:       cfg,
		connector: connector,
		publisher: publisher,
		logger:    noopLogger{},
		wake:      make(chan struct{}, 1),
	}
	s.enabled.Store(!cfg.StartPaused)
	return s
}

// SetLogger sets the logger. Call before Start.
func (s *ReconnectSupervisor) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// AddObserver registers an observer for lifecycle events.
func (s *ReconnectSupervisor) AddObserver(o Observer) {
	s.obsMu.Lock()
	s.observers = append(s.observers, o)
	s.obsMu.Unlock()
}

// Start launches the supervisor goroutine.
//
// It fails with a *ConfigurationError if no schema has been built, and with
// ErrAlreadyStarted or ErrStopped when appropriate. Cancelling ctx has the
// same effect as Stop.
func (s *ReconnectSupervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	if s.publisher == nil || !s.publisher.described() || s.connector == nil {
		return &ConfigurationError{Address: s.cfg.Address, Err: ErrSchemaNotBuilt}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started = true

	go s.run(runCtx, s.done)
	return nil
}

// Stop requests shutdown and waits for the supervisor goroutine to finish
// or for ctx to expire. No record is published after Stop returns nil.
// Stop on a supervisor that was never started moves it straight to Stopped.
func (s *ReconnectSupervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		s.transition(StateStopped)
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("video: waiting for supervisor: %w", ctx.Err())
	}
}

// running reports whether Start succeeded and Stop has not been called.
func (s *ReconnectSupervisor) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.stopped
}

// Done returns a channel closed when the supervisor goroutine exits. It is
// nil before Start.
func (s *ReconnectSupervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// SetEnabled turns streaming on or off. Disabling ends the current session
// and parks the supervisor in Idle until it is enabled again.
func (s *ReconnectSupervisor) SetEnabled(enabled bool) {
	if s.enabled.Swap(enabled) == enabled {
		return
	}

	if enabled {
		select {
		case s.wake <- struct{}{}:
		default:
		}
		return
	}

	s.mu.Lock()
	if s.sessionCancel != nil {
		s.sessionCancel()
	}
	s.mu.Unlock()
}

// Enabled reports whether streaming is enabled.
func (s *ReconnectSupervisor) Enabled() bool {
	return s.enabled.Load()
}

// State returns the current state.
func (s *ReconnectSupervisor) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the supervisor counters.
func (s *ReconnectSupervisor) Stats() SupervisorStats {
	s.mu.Lock()
	sessionID, lastErr := s.sessionID, s.lastErr
	s.mu.Unlock()

	stats := SupervisorStats{
		State:              s.State(),
		Enabled:            s.Enabled(),
		Address:            s.cfg.Address,
		SessionID:          sessionID,
		Attempts:           s.attempts.Load(),
		Connects:           s.connects.Load(),
		ConnectionFailures: s.connFailures.Load(),
		StreamFailures:     s.streamFailures.Load(),
		Frames:             s.frames.Load(),
		Bytes:              s.bytes.Load(),
		LastError:          lastErr,
	}
	if ns := s.lastFrame.Load(); ns != 0 {
		stats.LastFrame = time.Unix(0, ns)
	}
	return stats
}

// run is the supervisor loop.
func (s *ReconnectSupervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer s.transition(StateStopped)

	s.logger.Info("video supervisor started", "address", s.cfg.Address)
	defer s.logger.Info("video supervisor stopped", "address", s.cfg.Address)

	for {
		if ctx.Err() != nil {
			return
		}

		if !s.enabled.Load() {
			s.transition(StateIdle)
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}

		s.transition(StateConnecting)
		s.runSession(ctx)
		if ctx.Err() != nil {
			return
		}
		if !s.enabled.Load() {
			continue
		}

		s.transition(StateBackoff)
		if !s.wait(ctx, s.cfg.BackoffDelay) {
			return
		}
	}
}

// wait sleeps for d and reports false if ctx was cancelled first.
func (s *ReconnectSupervisor) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// runSession performs one connect attempt, streams until it ends and
// reports the outcome.
func (s *ReconnectSupervisor) runSession(ctx context.Context) {
	attempt := s.attempts.Add(1)

	sessCtx, cancel := context.WithCancel(ctx)
	sess := newStreamSession(s.cfg.Address, attempt, cancel)
	s.beginSession(sess.ID.String(), cancel)

	s.logger.Debug("video stream connecting", "address", s.cfg.Address, "attempt", attempt)
	err := s.stream(sessCtx, sess)

	sess.Close() //nolint:errcheck // Best-effort close of a dead stream
	s.endSession()

	info := sess.Info()
	info.EndedAt = time.Now()
	s.finishSession(info, err)
}

// stream connects and publishes frames until the session fails or its
// context is cancelled. It returns nil when the session was ended by stop
// or disable.
func (s *ReconnectSupervisor) stream(ctx context.Context, sess *StreamSession) error {
	conn, err := s.connector.Connect(ctx, sess.Address)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		s.connFailures.Add(1)
		return err
	}
	sess.conn = conn

	decoder, err := NewFrameDecoder(conn.ContentType, conn.Body, s.cfg.MaxFrameSize)
	if err != nil {
		s.streamFailures.Add(1)
		return err
	}
	sess.decoder = decoder

	watchdog := newIdleWatchdog(s.cfg.IdleTimeout, sess.cancel)
	defer watchdog.stop()

	frame, err := decoder.Next()
	if err == nil {
		s.connects.Add(1)
		sess.alive = true
		sess.streamed = true
		s.transition(StateStreaming)
		s.notify(func(o Observer) { o.SessionStarted(sess.Info()) })
		s.logger.Info("video stream connected",
			"address", sess.Address,
			"attempt", sess.Attempt,
			"session_id", sess.ID.String(),
			"content_type", conn.ContentType,
		)

		for ctx.Err() == nil {
			s.publish(sess, frame)
			watchdog.reset()

			if frame, err = decoder.Next(); err != nil {
				break
			}
		}
	}

	return s.streamFailure(ctx, decoder, watchdog, err)
}

// streamFailure classifies the end of a session. Watchdog cancellation is
// reported as an idle timeout; any other cancellation is not a failure.
func (s *ReconnectSupervisor) streamFailure(ctx context.Context, d *FrameDecoder, w *idleWatchdog, err error) error {
	switch {
	case w.fired():
		err = &StreamError{Frames: d.Frames(), Err: fmt.Errorf("%w after %s", errIdleTimeout, s.cfg.IdleTimeout)}
	case ctx.Err() != nil:
		return nil
	case err == nil:
		return nil
	}
	s.streamFailures.Add(1)
	return err
}

func (s *ReconnectSupervisor) publish(sess *StreamSession, frame Frame) {
	sess.frames++
	sess.bytes += uint64(len(frame))
	s.frames.Add(1)
	s.bytes.Add(uint64(len(frame)))
	s.lastFrame.Store(time.Now().UnixNano())

	s.publisher.Publish(frame)
}

func (s *ReconnectSupervisor) beginSession(id string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.sessionID = id
	s.sessionCancel = cancel
	s.mu.Unlock()

	// A disable that raced with session setup must still end it.
	if !s.enabled.Load() {
		cancel()
	}
}

func (s *ReconnectSupervisor) endSession() {
	s.mu.Lock()
	s.sessionID = ""
	s.sessionCancel = nil
	s.mu.Unlock()
}

// finishSession logs the outcome and notifies observers.
func (s *ReconnectSupervisor) finishSession(info SessionInfo, err error) {
	if err != nil {
		s.mu.Lock()
		s.lastErr = err.Error()
		s.mu.Unlock()

		var connErr *ConnectionError
		if errors.As(err, &connErr) {
			s.logger.Warn("video stream connection failed, retrying",
				"address", info.Address,
				"attempt", info.Attempt,
				"backoff", s.cfg.BackoffDelay,
				"error", err,
			)
		} else {
			s.logger.Warn("video stream lost, reconnecting",
				"address", info.Address,
				"attempt", info.Attempt,
				"session_id", info.ID.String(),
				"frames", info.Frames,
				"backoff", s.cfg.BackoffDelay,
				"error", err,
			)
		}
	} else if info.Streamed {
		s.logger.Info("video stream closed",
			"address", info.Address,
			"session_id", info.ID.String(),
			"frames", info.Frames,
		)
	}

	s.notify(func(o Observer) { o.SessionEnded(info, err) })
}

// transition moves to a new state and notifies observers. Stopped is
// terminal.
func (s *ReconnectSupervisor) transition(to State) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	from := State(s.state.Load())
	if from == to || from == StateStopped {
		return
	}
	s.state.Store(int32(to))

	s.logger.Debug("video supervisor state changed", "from", from.String(), "to", to.String())
	s.notify(func(o Observer) { o.StateChanged(from, to) })
}

// notify calls fn for every observer, containing panics.
func (s *ReconnectSupervisor) notify(fn func(o Observer)) {
	s.obsMu.RLock()
	observers := s.observers
	s.obsMu.RUnlock()

	for _, o := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("video observer panic recovered", "panic", r)
				}
			}()
			fn(o)
		}()
	}
}

// idleWatchdog cancels a session when no frame arrives within its timeout.
type idleWatchdog struct {
	timeout time.Duration
	timer   *time.Timer
	hit     atomic.Bool
}

func newIdleWatchdog(timeout time.Duration, cancel context.CancelFunc) *idleWatchdog {
	w := &idleWatchdog{timeout: timeout}
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() {
			w.hit.Store(true)
			cancel()
		})
	}
	return w
}

func (w *idleWatchdog) reset() {
	if w == nil || w.timer == nil || w.hit.Load() {
		return
	}
	w.timer.Reset(w.timeout)
}

func (w *idleWatchdog) stop() {
	if w != nil && w.timer != nil {
		w.timer.Stop()
	}
}

func (w *idleWatchdog) fired() bool {
	return w != nil && w.hit.Load()
}
