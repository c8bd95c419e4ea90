package order

import "errors"

var (
	// ErrValidation marks malformed or incomplete input. Always caller-caused.
	ErrValidation = errors.New("validation failed")

	// ErrStorageUnavailable marks a key/value backend fault, including timeouts.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrVersionConflict is returned when a supplied entry version is stale.
	ErrVersionConflict = errors.New("version conflict")

	// ErrPublish marks a failed publish to the message bus, including timeouts.
	ErrPublish = errors.New("publish failed")

	// ErrInvoke marks a failed call to a downstream service.
	ErrInvoke = errors.New("invoke failed")
)
