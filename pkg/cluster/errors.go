package cluster

import "errors"

// Lifecycle errors
var (
	// ErrClosed is returned by every query, write, verify, repair and Start
	// call made after Shutdown.
	ErrClosed          = errors.New("cluster is shut down")
	ErrInvalidInterval = errors.New("monitor interval must be at least one second")
)

// Startup errors
var (
	ErrPrimaryUnavailable   = errors.New("primary database unavailable")
	ErrSecondaryUnavailable = errors.New("secondary database unavailable")
)
