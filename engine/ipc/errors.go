package ipc

import "errors"

var (
	// ErrNotFound is returned by Open when no region exists under the configured name.
	ErrNotFound = errors.New("ipc: shared region not found")
	// ErrRegionTooSmall is returned when an existing region is smaller than geometry.RegionSize.
	ErrRegionTooSmall = errors.New("ipc: shared region smaller than expected layout")
	// ErrClosed is returned by operations on a channel end that is not open.
	ErrClosed = errors.New("ipc: channel is closed")
	// ErrCapacityExceeded is returned by Publish when a frame does not fit the region.
	ErrCapacityExceeded = errors.New("ipc: frame exceeds channel capacity")
)
