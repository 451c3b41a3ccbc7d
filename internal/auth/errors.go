package auth

import "errors"

var (
	// ErrTokenInvalid is returned for any token that fails validation.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrNoSecret is returned when signing or validating without a secret.
	ErrNoSecret = errors.New("auth: no signing secret")
)
