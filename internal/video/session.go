package video

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SessionInfo describes one connect attempt as reported to observers.
type SessionInfo struct {
	ID        uuid.UUID
	Address   string
	Attempt   uint64
	StartedAt time.Time
	EndedAt   time.Time
	Frames    uint64
	Bytes     uint64

	// Streamed is true once the session decoded its first frame.
	Streamed bool
}

// StreamSession is one attempt of the connect/decode cycle. It is created
// and owned by the supervisor goroutine and discarded on any error or stop.
type StreamSession struct {
	ID        uuid.UUID
	Address   string
	Attempt   uint64
	StartedAt time.Time

	conn     *StreamConn
	decoder  *FrameDecoder
	cancel   context.CancelFunc
	alive    bool
	streamed bool
	frames   uint64
	bytes    uint64
}

func newStreamSession(address string, attempt uint64, cancel context.CancelFunc) *StreamSession {
	return &StreamSession{
		ID:        uuid.New(),
		Address:   address,
		Attempt:   attempt,
		StartedAt: time.Now(),
		cancel:    cancel,
	}
}

// Alive reports whether the session is streaming.
func (s *StreamSession) Alive() bool {
	return s.alive
}

// Info returns the session description for observers.
func (s *StreamSession) Info() SessionInfo {
	return SessionInfo{
		ID:        s.ID,
		Address:   s.Address,
		Attempt:   s.Attempt,
		StartedAt: s.StartedAt,
		Frames:    s.frames,
		Bytes:     s.bytes,
		Streamed:  s.streamed,
	}
}

// Close marks the session dead, cancels its context and closes the
// connection. It is safe to call more than once.
func (s *StreamSession) Close() error {
	s.alive = false
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	return conn.Close()
}
