package bfs

import "errors"

var (
	// ErrFileNotFound is returned when opening a name that does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidDescriptor is returned for operations on an fd that is not open.
	ErrInvalidDescriptor = errors.New("invalid file descriptor")

	// ErrInvalidOffset is returned by seeks that would leave the cursor negative.
	ErrInvalidOffset = errors.New("invalid offset")

	// ErrInvalidWhence is returned by seeks with an unknown origin.
	ErrInvalidWhence = errors.New("invalid whence")

	// ErrAllocationFailed is returned when no block or inode can be allocated.
	ErrAllocationFailed = errors.New("allocation failed")

	// ErrDiskUnavailable is returned when the disk image cannot be opened or created.
	ErrDiskUnavailable = errors.New("disk unavailable")

	// ErrInvalidName is returned for empty or overlong file names.
	ErrInvalidName = errors.New("invalid file name")

	// ErrFileBusy is returned when removing a file that is still open.
	ErrFileBusy = errors.New("file is open")

	// ErrCorrupt is returned when on-disk metadata does not make sense.
	ErrCorrupt = errors.New("corrupt file system")
)
