package storage

import "errors"

var (
	// ErrNotConfigured indicates the storage backend was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")

	// ErrInvalidInput is returned when a snapshot or query fails validation.
	ErrInvalidInput = errors.New("invalid input")
)
