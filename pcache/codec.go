package pcache

import (
	"time"

	"imagedupes/types"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/vmihailenco/msgpack/v5"
)

const snapshotVersion = 1

// snapshotPayload is the msgpack document inside a compressed snapshot blob
type snapshotPayload struct {
	Version   int                                `msgpack:"version"`
	Name      string                             `msgpack:"name"`
	CreatedAt time.Time                          `msgpack:"created_at"`
	Entries   map[string]types.FingerprintRecord `msgpack:"entries"`
}

var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil)
)

// SnapshotFileName is the object name used for a snapshot called name
func SnapshotFileName(name string) string {
	return "cache." + name + ".msgpack.zst"
}

func encodeSnapshot(payload snapshotPayload) ([]byte, error) {
	raw, err := msgpack.Marshal(&payload)
	if err != nil {
		return nil, errors.Wrap(err, "encode snapshot")
	}
	return zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/4)), nil
}

// decodeSnapshot returns ErrCacheCorruption for any blob that does not decode into
// a complete, self-consistent payload for name
func decodeSnapshot(blob []byte, name string) (snapshotPayload, error) {
	var payload snapshotPayload

	raw, err := zstdDecoder.DecodeAll(blob, nil)
	if err != nil {
		return payload, errors.Wrapf(ErrCacheCorruption, "decompress %s: %v", name, err)
	}
	if err := msgpack.Unmarshal(raw, &payload); err != nil {
		return snapshotPayload{}, errors.Wrapf(ErrCacheCorruption, "decode %s: %v", name, err)
	}

	if payload.Version != snapshotVersion {
		return snapshotPayload{}, errors.Wrapf(ErrCacheCorruption, "%s has version %d, want %d",
			name, payload.Version, snapshotVersion)
	}
	if payload.Name != name {
		return snapshotPayload{}, errors.Wrapf(ErrCacheCorruption, "snapshot belongs to cache %q, not %q",
			payload.Name, name)
	}
	for key, record := range payload.Entries {
		if key == "" || record.Key != key {
			return snapshotPayload{}, errors.Wrapf(ErrCacheCorruption, "%s: entry %q holds record for %q",
				name, key, record.Key)
		}
	}
	return payload, nil
}
