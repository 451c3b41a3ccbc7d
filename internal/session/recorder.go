package session

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-video/internal/video"
)

// writeTimeout bounds each database write made from the capture goroutine.
const writeTimeout = 2 * time.Second

// Recorder persists supervisor sessions. It is a video.Observer and is
// called from the capture goroutine, so each write is bounded by a short
// timeout and failures are only logged.
type Recorder struct {
	repo     Repository
	cameraID string
	logger   video.Logger
}

// NewRecorder creates a recorder for one camera.
func NewRecorder(repo Repository, cameraID string) *Recorder {
	return &Recorder{repo: repo, cameraID: cameraID, logger: noopLogger{}}
}

// SetLogger sets the logger for write failures.
func (r *Recorder) SetLogger(logger video.Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// StateChanged implements video.Observer.
func (r *Recorder) StateChanged(video.State, video.State) {}

// SessionStarted inserts a running row.
func (r *Recorder) SessionStarted(info video.SessionInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.Create(ctx, FromInfo(r.cameraID, info)); err != nil {
		r.logger.Error("recording stream session start failed",
			"session_id", info.ID.String(), "error", err)
	}
}

// SessionEnded finishes the row of a streamed session. An attempt that
// failed before streaming is inserted finished; one cancelled before it
// connected leaves no row.
func (r *Recorder) SessionEnded(info video.SessionInfo, err error) {
	if !info.Streamed && err == nil {
		return
	}

	outcome := OutcomeOf(err)
	var errMsg string
	if err != nil {
		errMsg = err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if !info.Streamed {
		s := FromInfo(r.cameraID, info)
		ended := info.EndedAt.UTC()
		s.EndedAt = &ended
		s.Outcome = outcome
		s.Error = errMsg
		if werr := r.repo.Create(ctx, s); werr != nil {
			r.logger.Error("recording failed stream attempt failed",
				"session_id", s.ID, "error", werr)
		}
		return
	}

	if werr := r.repo.Finish(ctx, info.ID.String(), info.EndedAt, info.Frames, info.Bytes, outcome, errMsg); werr != nil {
		r.logger.Error("recording stream session end failed",
			"session_id", info.ID.String(), "error", werr)
	}
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
