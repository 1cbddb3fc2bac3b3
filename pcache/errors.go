package pcache

import "github.com/pkg/errors"

var (
	// ErrCacheCorruption means a stored snapshot could not be read back in full
	ErrCacheCorruption = errors.New("cache snapshot corrupted")

	// ErrSnapshotNotFound is returned by a SnapshotStore when no blob exists under the name
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrClosed is returned by operations on a closed cache
	ErrClosed = errors.New("cache closed")
)
