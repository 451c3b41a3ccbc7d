package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-video/internal/video"
)

// Metric naming.
const (
	Namespace      = "graylogic"
	SubsystemVideo = "video"
)

// StatsSource provides the counters behind the video metrics.
// *video.Output satisfies it.
type StatsSource interface {
	Stats() video.Stats
}

// Registry wraps a Prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	mu      sync.Mutex
	cameras map[string]bool
}

// NewRegistry creates a registry with the Go and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{reg: reg, cameras: make(map[string]bool)}
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.reg
}

// Register adds collectors, reporting the first failure.
func (r *Registry) Register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := r.reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				return fmt.Errorf("%w: %w", ErrAlreadyRegistered, err)
			}
			return fmt.Errorf("registering collector: %w", err)
		}
	}
	return nil
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// RegisterVideo registers the stream metrics of one camera, labelled with
// camera_id.
func (r *Registry) RegisterVideo(cameraID string, src StatsSource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cameras[cameraID] {
		return fmt.Errorf("%w: camera %s", ErrAlreadyRegistered, cameraID)
	}

	labels := prometheus.Labels{"camera_id": cameraID}
	counter := func(name, help string, read func(video.Stats) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   Namespace,
			Subsystem:   SubsystemVideo,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(read(src.Stats())) })
	}
	gauge := func(name, help string, read func(video.Stats) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   Namespace,
			Subsystem:   SubsystemVideo,
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return read(src.Stats()) })
	}

	err := r.Register(
		counter("frames_total", "Frames decoded from the camera stream.",
			func(s video.Stats) uint64 { return s.Supervisor.Frames }),
		counter("bytes_total", "JPEG bytes decoded from the camera stream.",
			func(s video.Stats) uint64 { return s.Supervisor.Bytes }),
		counter("connect_attempts_total", "Stream connect attempts.",
			func(s video.Stats) uint64 { return s.Supervisor.Attempts }),
		counter("connection_failures_total", "Attempts that failed to open the stream.",
			func(s video.Stats) uint64 { return s.Supervisor.ConnectionFailures }),
		counter("stream_failures_total", "Streams that ended with an error.",
			func(s video.Stats) uint64 { return s.Supervisor.StreamFailures }),
		counter("subscriber_panics_total", "Record handlers that panicked.",
			func(s video.Stats) uint64 { return s.Publisher.SubscriberPanics }),
		gauge("state", "Supervisor state: 0 idle, 1 connecting, 2 streaming, 3 backoff, 4 stopped.",
			func(s video.Stats) float64 { return float64(s.Supervisor.State) }),
		gauge("subscribers", "Registered record handlers.",
			func(s video.Stats) float64 { return float64(s.Publisher.Subscribers) }),
		gauge("last_frame_timestamp_seconds", "Unix time of the last decoded frame, 0 before the first.",
			func(s video.Stats) float64 {
				if s.Supervisor.LastFrame.IsZero() {
					return 0
				}
				return float64(s.Supervisor.LastFrame.UnixNano()) / 1e9
			}),
	)
	if err != nil {
		return err
	}
	r.cameras[cameraID] = true
	return nil
}
