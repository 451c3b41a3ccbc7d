package session

import "errors"

var (
	// ErrNotFound is returned when a session id has no row.
	ErrNotFound = errors.New("session: not found")

	// ErrInvalidSession is returned for a session without id or camera.
	ErrInvalidSession = errors.New("session: invalid session")
)
