package replication

import "errors"

// Write path errors
var (
	// ErrPrimaryWriteFailed aborts a dual write before the secondary is touched.
	ErrPrimaryWriteFailed = errors.New("primary write failed")

	// ErrSecondaryWriteFailed is logged and counted, never returned by DualWriter.
	ErrSecondaryWriteFailed = errors.New("secondary write failed")
)

// Consistency errors
var (
	ErrSyncCheckFailed      = errors.New("sync check failed")
	ErrRepairFailed         = errors.New("repair failed")
	ErrRepairPartialFailure = errors.New("repair partially failed")
	ErrMissingIDColumn      = errors.New("table rows have no id column")
)
