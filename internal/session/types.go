package session

import (
	"errors"
	"time"

	"github.com/nerrad567/gray-logic-video/internal/video"
)

// Outcome is how a session ended.
type Outcome string

// Session outcomes.
const (
	OutcomeRunning         Outcome = "running"
	OutcomeStopped         Outcome = "stopped"
	OutcomeConnectionError Outcome = "connection_error"
	OutcomeStreamError     Outcome = "stream_error"
)

// OutcomeOf classifies the error a session ended with. A nil error means
// the session was ended by stop or disable.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeStopped
	case errors.Is(err, video.ErrConnection):
		return OutcomeConnectionError
	default:
		return OutcomeStreamError
	}
}

// Session is one persisted stream session.
type Session struct {
	ID        string     `json:"id"`
	CameraID  string     `json:"camera_id"`
	Address   string     `json:"address"`
	Attempt   uint64     `json:"attempt"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Frames    uint64     `json:"frames"`
	Bytes     uint64     `json:"bytes"`
	Outcome   Outcome    `json:"outcome"`
	Error     string     `json:"error,omitempty"`
}

// FromInfo builds a running session row from supervisor session info.
func FromInfo(cameraID string, info video.SessionInfo) *Session {
	return &Session{
		ID:        info.ID.String(),
		CameraID:  cameraID,
		Address:   info.Address,
		Attempt:   info.Attempt,
		StartedAt: info.StartedAt.UTC(),
		Frames:    info.Frames,
		Bytes:     info.Bytes,
		Outcome:   OutcomeRunning,
	}
}
