package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-video/internal/session"
	"github.com/nerrad567/gray-logic-video/internal/video"
)

// DefaultInterval is the sampling interval when none is configured.
const DefaultInterval = 10 * time.Second

// Writer accepts telemetry points. *influxdb.Client satisfies it.
type Writer interface {
	WriteStreamSample(cameraID string, fields map[string]any)
	WriteSessionEnd(cameraID, outcome string, fields map[string]any, endedAt time.Time)
}

// StatsSource provides the counters to sample. *video.Output satisfies it.
type StatsSource interface {
	Stats() video.Stats
}

// Collector samples a video output into a Writer.
type Collector struct {
	cameraID string
	source   StatsSource
	writer   Writer
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	lastFrames uint64
	lastAt     time.Time
}

// NewCollector creates a collector. A non-positive interval uses
// DefaultInterval.
func NewCollector(cameraID string, source StatsSource, writer Writer, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Collector{
		cameraID: cameraID,
		source:   source,
		writer:   writer,
		interval: interval,
		now:      time.Now,
	}
}

// Run samples until ctx is done. It always returns nil so it can run in
// an errgroup next to loops that do fail.
func (c *Collector) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Sample()
		}
	}
}

// Sample writes one video_stream point. fps is the frame rate since the
// previous sample, zero on the first.
func (c *Collector) Sample() {
	stats := c.source.Stats()
	sup := stats.Supervisor
	now := c.now()

	c.mu.Lock()
	var fps float64
	if !c.lastAt.IsZero() && sup.Frames >= c.lastFrames {
		if elapsed := now.Sub(c.lastAt).Seconds(); elapsed > 0 {
			fps = float64(sup.Frames-c.lastFrames) / elapsed
		}
	}
	c.lastFrames, c.lastAt = sup.Frames, now
	c.mu.Unlock()

	var reconnects uint64
	if sup.Connects > 1 {
		reconnects = sup.Connects - 1
	}

	c.writer.WriteStreamSample(c.cameraID, map[string]any{
		"frames":     toInt(sup.Frames),
		"bytes":      toInt(sup.Bytes),
		"fps":        fps,
		"reconnects": toInt(reconnects),
		"failures":   toInt(sup.ConnectionFailures + sup.StreamFailures),
		"state":      sup.State.String(),
	})
}

// StateChanged implements video.Observer.
func (c *Collector) StateChanged(video.State, video.State) {}

// SessionStarted implements video.Observer.
func (c *Collector) SessionStarted(video.SessionInfo) {}

// SessionEnded writes a video_session point. Attempts cancelled before
// they connected are skipped.
func (c *Collector) SessionEnded(info video.SessionInfo, err error) {
	if !info.Streamed && err == nil {
		return
	}

	fields := map[string]any{
		"session_id": info.ID.String(),
		"attempt":    toInt(info.Attempt),
		"frames":     toInt(info.Frames),
		"bytes":      toInt(info.Bytes),
		"duration_s": info.EndedAt.Sub(info.StartedAt).Seconds(),
	}
	c.writer.WriteSessionEnd(c.cameraID, string(session.OutcomeOf(err)), fields, info.EndedAt)
}

// toInt keeps counters as signed integer fields.
func toInt(v uint64) int64 {
	return int64(v) //nolint:gosec // Counters never reach 2^63
}
