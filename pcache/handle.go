package pcache

import (
	"context"

	"imagedupes/types"
)

// Handle resolves to the outcome of one submitted key
type Handle struct {
	key    string
	done   chan struct{}
	record types.FingerprintRecord
	err    error
}

func newHandle(key string) *Handle {
	return &Handle{key: key, done: make(chan struct{})}
}

func (h *Handle) resolve(record types.FingerprintRecord, err error) {
	h.record = record
	h.err = err
	close(h.done)
}

// Key returns the submitted key
func (h *Handle) Key() string {
	return h.key
}

// Done is closed once the handle has resolved
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the handle resolves or ctx ends
func (h *Handle) Wait(ctx context.Context) (types.FingerprintRecord, error) {
	select {
	case <-h.done:
		return h.record, h.err
	case <-ctx.Done():
		return types.FingerprintRecord{}, ctx.Err()
	}
}
