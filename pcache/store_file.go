package pcache

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileStore keeps each snapshot as one file in a directory. Writes go to a
// temporary file that is renamed into place, so a crash never leaves a torn blob.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir, creating it if necessary
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create snapshot dir %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the file used for name
func (s *FileStore) Path(name string) string {
	return filepath.Join(s.dir, SnapshotFileName(name))
}

func (s *FileStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "context check failed")
	}

	blob, err := os.ReadFile(s.Path(name))
	if os.IsNotExist(err) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", s.Path(name))
	}
	return blob, nil
}

func (s *FileStore) Put(ctx context.Context, name string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "context check failed")
	}

	tmp, err := os.CreateTemp(s.dir, SnapshotFileName(name)+".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temp snapshot")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(blob); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmpPath)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "sync %s", tmpPath)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmpPath)
	}

	if err := os.Rename(tmpPath, s.Path(name)); err != nil {
		return errors.Wrapf(err, "rename %s", tmpPath)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }
