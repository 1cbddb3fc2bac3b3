package pcache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var snapshotBucket = []byte("snapshots")

// BoltStore keeps snapshots as values in a bbolt database, one key per name
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates the database at path
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open bolt db %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(snapshotBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create snapshot bucket")
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "context check failed")
	}

	var blob []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(snapshotBucket).Get([]byte(name))
		if v == nil {
			return ErrSnapshotNotFound
		}
		// v is only valid inside the transaction
		blob = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return blob, nil
}

func (s *BoltStore) Put(ctx context.Context, name string, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "context check failed")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(snapshotBucket).Put([]byte(name), blob)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
