package memory

import "errors"

var (
	// ErrNotConfigured is returned when memory operations are attempted
	// but no memory driver has been configured.
	ErrNotConfigured = errors.New("memory not configured")

	// ErrPartialDelete is returned by ClearAll when some entries could not
	// be deleted.
	ErrPartialDelete = errors.New("some memories could not be deleted")
)
