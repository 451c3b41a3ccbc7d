package metrics

import "errors"

// ErrAlreadyRegistered is returned when a camera's metrics are registered twice.
var ErrAlreadyRegistered = errors.New("metrics: already registered")
