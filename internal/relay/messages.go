package relay

import (
	"time"

	"github.com/nerrad567/gray-logic-video/internal/video"
)

// Presence values of StatusMessage.Status.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// SchemaMessage is the retained payload of the schema topic.
type SchemaMessage struct {
	Schema                video.OutputSchema       `json:"schema"`
	Encoding              video.EncodingDescriptor `json:"encoding"`
	AverageSamplingPeriod float64                  `json:"average_sampling_period"`
}

// StatusMessage is the retained payload of the status topic.
type StatusMessage struct {
	Status    string      `json:"status"`
	State     video.State `json:"state"`
	Streaming bool        `json:"streaming"`
	Healthy   bool        `json:"healthy"`
	Error     string      `json:"error,omitempty"`
	Stats     video.Stats `json:"stats"`
	Relay     Stats       `json:"relay"`
	Timestamp time.Time   `json:"timestamp"`
}

// ControlMessage is the payload accepted on the control topic.
type ControlMessage struct {
	Streaming *bool `json:"streaming"`
}

// Stats are relay counters.
type Stats struct {
	FramesPublished uint64 `json:"frames_published"`
	FramesSkipped   uint64 `json:"frames_skipped"`
	FramesDropped   uint64 `json:"frames_dropped"`
	FramesOversize  uint64 `json:"frames_oversize"`
	PublishErrors   uint64 `json:"publish_errors"`
	ControlMessages uint64 `json:"control_messages"`
	ControlErrors   uint64 `json:"control_errors"`
}
