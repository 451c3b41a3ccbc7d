package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-video/internal/video"
)

// mjpegBoundary separates parts of the re-served MJPEG stream.
const mjpegBoundary = "graylogicframe"

// mjpegDelimiter opens each part of the re-served stream.
const mjpegDelimiter = "--" + mjpegBoundary + "\r\n"

// statusCheckTimeout bounds the output health probe behind /video/status.
const statusCheckTimeout = time.Second

// VideoStatus is the body of GET /api/v1/video/status.
type VideoStatus struct {
	CameraID       string      `json:"camera_id"`
	State          video.State `json:"state"`
	Streaming      bool        `json:"streaming"`
	Healthy        bool        `json:"healthy"`
	Error          string      `json:"error,omitempty"`
	SamplingPeriod float64     `json:"sampling_period_s"`
	Stats          video.Stats `json:"stats"`
}

// streamingRequest is the body of PUT /api/v1/video/streaming.
type streamingRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleSchema(w http.ResponseWriter, _ *http.Request) {
	schema := s.output.Schema()
	if schema.IsZero() {
		writeUnavailable(w, "output schema not built")
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

func (s *Server) handleEncoding(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.output.Encoding())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), statusCheckTimeout)
	defer cancel()

	status := VideoStatus{
		CameraID:       s.cameraID,
		State:          s.output.State(),
		Streaming:      s.output.Streaming(),
		Healthy:        true,
		SamplingPeriod: s.output.AverageSamplingPeriod(),
		Stats:          s.output.Stats(),
	}
	if err := s.output.HealthCheck(ctx); err != nil {
		status.Healthy = false
		status.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleLatest serves the most recent frame as a JPEG image.
func (s *Server) handleLatest(w http.ResponseWriter, _ *http.Request) {
	rec, ok := s.output.Latest()
	if !ok {
		writeNotFound(w, "no frame captured yet")
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Frame)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Timestamp", formatTimestamp(rec.Timestamp))
	w.WriteHeader(http.StatusOK)
	w.Write(rec.Frame) //nolint:errcheck // Best-effort write; client may be gone
}

// handleLatestRecord serves the most recent record in its binary encoding.
func (s *Server) handleLatestRecord(w http.ResponseWriter, _ *http.Request) {
	rec, ok := s.output.Latest()
	if !ok {
		writeNotFound(w, "no frame captured yet")
		return
	}
	data, err := video.EncodeRecord(nil, s.output.Encoding(), &rec)
	if err != nil {
		s.logger.Error("encoding latest record", "error", err)
		writeInternalError(w, "encoding record failed")
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Timestamp", formatTimestamp(rec.Timestamp))
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck // Best-effort write; client may be gone
}

// handleMJPEGStream re-serves captured frames as multipart/x-mixed-replace.
// Each viewer gets the newest frame available when it is ready to write,
// so a slow viewer skips frames instead of delaying capture.
func (s *Server) handleMJPEGStream(w http.ResponseWriter, r *http.Request) {
	frames := make(chan []byte, 1)
	sub := s.output.Subscribe(func(rec *video.Record) {
		frame := append([]byte(nil), rec.Frame...)
		select {
		case frames <- frame:
			return
		default:
		}
		// Replace the pending frame with the newer one.
		select {
		case <-frames:
		default:
		}
		select {
		case frames <- frame:
		default:
		}
	})
	defer func() {
		if err := s.output.Unsubscribe(sub); err != nil {
			s.logger.Debug("mjpeg unsubscribe", "error", err)
		}
	}()

	// The stream outlives the server write timeout.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("mjpeg write deadline not cleared", "error", err)
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mjpegBoundary)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := io.WriteString(w, mjpegDelimiter); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		return
	}

	// Show the current picture straight away.
	if rec, ok := s.output.Latest(); ok {
		if err := writeMJPEGPart(w, rc, rec.Frame); err != nil {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case frame := <-frames:
			if err := writeMJPEGPart(w, rc, frame); err != nil {
				s.logger.Debug("mjpeg viewer gone", "error", err)
				return
			}
		}
	}
}

// writeMJPEGPart writes one frame followed by the delimiter of the next
// part, so a viewer can finish the frame without waiting for the next one.
func writeMJPEGPart(w io.Writer, rc *http.ResponseController, frame []byte) error {
	if _, err := fmt.Fprintf(w, "Content-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame)); err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	if _, err := io.WriteString(w, "\r\n"+mjpegDelimiter); err != nil {
		return err
	}
	return rc.Flush()
}

// handleSetStreaming enables or disables capture.
func (s *Server) handleSetStreaming(w http.ResponseWriter, r *http.Request) {
	var req streamingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large")
			return
		}
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, `"enabled" is required`)
		return
	}

	s.output.SetStreaming(*req.Enabled)
	s.logger.Info("streaming toggled via API",
		"enabled", *req.Enabled,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	writeJSON(w, http.StatusOK, map[string]any{
		"streaming": s.output.Streaming(),
		"state":     s.output.State(),
	})
}

// formatTimestamp renders record seconds with microsecond precision.
func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 6, 64)
}
