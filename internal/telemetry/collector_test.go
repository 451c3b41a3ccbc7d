package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-video/internal/video"
)

type point struct {
	cameraID string
	outcome  string
	fields   map[string]any
	at       time.Time
}

// fakeWriter records every point.
type fakeWriter struct {
	mu       sync.Mutex
	samples  []point
	sessions []point
}

func (w *fakeWriter) WriteStreamSample(cameraID string, fields map[string]any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = append(w.samples, point{cameraID: cameraID, fields: fields})
}

func (w *fakeWriter) WriteSessionEnd(cameraID, outcome string, fields map[string]any, endedAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sessions = append(w.sessions, point{cameraID: cameraID, outcome: outcome, fields: fields, at: endedAt})
}

func (w *fakeWriter) sampleCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.samples)
}

// fakeSource returns whatever stats it holds.
type fakeSource struct {
	mu    sync.Mutex
	stats video.Stats
}

func (s *fakeSource) Stats() video.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *fakeSource) set(sup video.SupervisorStats) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Supervisor = sup
}

func TestCollector_Sample(t *testing.T) {
	src := &fakeSource{}
	w := &fakeWriter{}
	c := NewCollector("porch", src, w, time.Second)

	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	src.set(video.SupervisorStats{State: video.StateStreaming, Frames: 300, Bytes: 3_600_000, Connects: 1})
	c.Sample()

	now = now.Add(10 * time.Second)
	src.set(video.SupervisorStats{
		State:              video.StateStreaming,
		Frames:             600,
		Bytes:              7_200_000,
		Connects:           3,
		ConnectionFailures: 1,
		StreamFailures:     2,
	})
	c.Sample()

	if len(w.samples) != 2 {
		t.Fatalf("samples = %d, want 2", len(w.samples))
	}
	if fps := w.samples[0].fields["fps"]; fps != 0.0 {
		t.Errorf("first sample fps = %v, want 0", fps)
	}

	got := w.samples[1]
	tests := []struct {
		field string
		want  any
	}{
		{"frames", int64(600)},
		{"bytes", int64(7_200_000)},
		{"fps", 30.0},
		{"reconnects", int64(2)},
		{"failures", int64(3)},
		{"state", "streaming"},
	}
	for _, tt := range tests {
		if got.fields[tt.field] != tt.want {
			t.Errorf("field %s = %v (%T), want %v", tt.field, got.fields[tt.field], got.fields[tt.field], tt.want)
		}
	}
	if got.cameraID != "porch" {
		t.Errorf("cameraID = %q, want porch", got.cameraID)
	}
}

func TestCollector_SessionEnded(t *testing.T) {
	w := &fakeWriter{}
	c := NewCollector("porch", &fakeSource{}, w, 0)

	started := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	info := video.SessionInfo{
		ID:        uuid.New(),
		Attempt:   4,
		StartedAt: started,
		EndedAt:   started.Add(90 * time.Second),
		Frames:    2700,
		Streamed:  true,
	}
	c.SessionEnded(info, &video.StreamError{Frames: 2700, Err: errors.New("EOF")})

	// Cancelled before connecting: no point.
	c.SessionEnded(video.SessionInfo{ID: uuid.New()}, nil)

	if len(w.sessions) != 1 {
		t.Fatalf("session points = %d, want 1", len(w.sessions))
	}
	p := w.sessions[0]
	if p.outcome != "stream_error" {
		t.Errorf("outcome = %q, want stream_error", p.outcome)
	}
	if !p.at.Equal(info.EndedAt) {
		t.Errorf("timestamp = %v, want session end", p.at)
	}
	if p.fields["duration_s"] != 90.0 || p.fields["frames"] != int64(2700) {
		t.Errorf("fields = %v, want 90s and 2700 frames", p.fields)
	}
}

func TestCollector_Run(t *testing.T) {
	w := &fakeWriter{}
	c := NewCollector("porch", &fakeSource{}, w, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for w.sampleCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if w.sampleCount() < 2 {
		t.Errorf("samples = %d, want at least 2", w.sampleCount())
	}
}

func TestNewCollector_DefaultInterval(t *testing.T) {
	c := NewCollector("porch", &fakeSource{}, &fakeWriter{}, -1)
	if c.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", c.interval, DefaultInterval)
	}
}

var _ video.Observer = (*Collector)(nil)
