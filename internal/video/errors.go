package video

import (
	"errors"
	"fmt"
)

// Domain errors for the video package.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConfiguration is matched by every ConfigurationError.
	ErrConfiguration = errors.New("video: configuration error")

	// ErrConnection is matched by every ConnectionError.
	ErrConnection = errors.New("video: connection error")

	// ErrStream is matched by every StreamError.
	ErrStream = errors.New("video: stream error")

	// ErrSchemaNotBuilt is returned when the output is started before Init.
	ErrSchemaNotBuilt = errors.New("video: schema not built")

	// ErrAlreadyStarted is returned by Start or Init on a running output.
	ErrAlreadyStarted = errors.New("video: already started")

	// ErrStopped is returned when starting a supervisor that has been stopped.
	ErrStopped = errors.New("video: stopped")

	// ErrUnknownSubscription is returned by Unsubscribe for a handle that is
	// not registered.
	ErrUnknownSubscription = errors.New("video: unknown subscription")

	// ErrUnsupportedEncoding is returned by the record codec for encodings it
	// cannot write or read.
	ErrUnsupportedEncoding = errors.New("video: unsupported encoding")

	// ErrNotStreaming is returned by HealthCheck when no stream is active.
	ErrNotStreaming = errors.New("video: not streaming")
)

// ConfigurationError reports that the output schema could not be built.
// It is fatal: the output must not be started.
type ConfigurationError struct {
	Address string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("video: configuration error for %s: %v", e.Address, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ConnectionError reports that the video stream could not be opened.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("video: connecting to %s: %v", e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is matches ErrConnection.
func (e *ConnectionError) Is(target error) bool { return target == ErrConnection }

// StreamError reports that an open stream ended or produced malformed
// framing. Clean EOF and corrupt boundaries are not distinguished.
type StreamError struct {
	// Frames is the number of frames decoded before the failure.
	Frames uint64
	Err    error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("video: stream failed after %d frames: %v", e.Frames, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Is matches ErrStream.
func (e *StreamError) Is(target error) bool { return target == ErrStream }
