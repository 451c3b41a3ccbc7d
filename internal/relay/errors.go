package relay

import "errors"

var (
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("relay: already started")

	// ErrInvalidControl is returned for a control message that is not
	// {"streaming": bool}.
	ErrInvalidControl = errors.New("relay: invalid control message")
)
