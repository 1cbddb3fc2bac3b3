// Package pcache is a persistent, parallel, memoizing cache of fingerprint records.
//
// Each key is computed at most once per cache lifetime. Submitted keys are queued
// for a fixed pool of workers, and concurrent requests for a key share one
// computation. The full key to record map is written to a SnapshotStore on Close
// and merged back in by New.
package pcache

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"imagedupes/types"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Loader computes the record for one key
type Loader func(ctx context.Context, key string) (types.FingerprintRecord, error)

// Stats summarises cache activity since construction
type Stats struct {
	Entries  int
	Restored int
	Failures int
	Hits     int64
	Loads    int64
}

// Cache maps keys to fingerprint records
type Cache struct {
	name    string
	loader  Loader
	store   SnapshotStore
	logger  logrus.FieldLogger
	metrics *Metrics

	// ctx is handed to loader calls; computations are not cancelled mid-run
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	entries  map[string]types.FingerprintRecord
	failures map[string]error
	restored int
	closed   bool

	group    singleflight.Group
	inflight sync.WaitGroup

	// queue holds submitted handles until a worker picks them up
	queueMu   sync.Mutex
	queueCond *sync.Cond
	queue     []*Handle
	stopping  bool
	workers   sync.WaitGroup

	hits  atomic.Int64
	loads atomic.Int64
}

// New creates a cache and, when a store is configured, restores its last snapshot.
// A corrupt snapshot fails construction with ErrCacheCorruption unless
// WithResetOnCorruption is set, in which case the cache starts empty.
func New(ctx context.Context, loader Loader, opts ...Option) (*Cache, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	if loader == nil {
		return nil, errors.New("loader is required")
	}
	if o.workers < 1 {
		return nil, errors.Errorf("workers must be at least 1, got %d", o.workers)
	}
	if o.name == "" {
		return nil, errors.New("cache name is required")
	}

	c := &Cache{
		name:     o.name,
		loader:   loader,
		store:    o.store,
		logger:   o.logger.WithField("cache", o.name),
		metrics:  o.metrics,
		entries:  make(map[string]types.FingerprintRecord),
		failures: make(map[string]error),
	}
	c.queueCond = sync.NewCond(&c.queueMu)
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if c.store != nil {
		if err := c.Restore(ctx); err != nil {
			if !o.resetOnCorruption || !errors.Is(err, ErrCacheCorruption) {
				c.cancel()
				return nil, err
			}
			c.logger.WithError(err).Warn("snapshot is corrupt, starting from an empty cache")
		}
	}

	c.workers.Add(o.workers)
	for i := 0; i < o.workers; i++ {
		go c.work()
	}
	return c, nil
}

// Submit queues key for computation unless it is already cached, and returns a
// handle for its result. It never blocks on the computation. A key queued twice is
// still loaded once.
func (c *Cache) Submit(key string) *Handle {
	h := newHandle(key)

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		h.resolve(types.FingerprintRecord{}, ErrClosed)
		return h
	}
	if record, ok, err := c.lookupLocked(key); ok {
		c.mu.RUnlock()
		c.recordHit()
		h.resolve(record, err)
		return h
	}
	c.inflight.Add(1)
	c.mu.RUnlock()

	c.queueMu.Lock()
	c.queue = append(c.queue, h)
	c.queueMu.Unlock()
	c.queueCond.Signal()
	return h
}

// work resolves queued handles until the queue is stopped and drained
func (c *Cache) work() {
	defer c.workers.Done()
	for {
		h, ok := c.next()
		if !ok {
			return
		}
		h.resolve(c.compute(h.key))
		c.inflight.Done()
	}
}

func (c *Cache) next() (*Handle, bool) {
	c.queueMu.Lock()
	defer c.queueMu.Unlock()

	for len(c.queue) == 0 && !c.stopping {
		c.queueCond.Wait()
	}
	if len(c.queue) == 0 {
		return nil, false
	}
	h := c.queue[0]
	c.queue[0] = nil
	c.queue = c.queue[1:]
	return h, true
}

func (c *Cache) stopWorkers() {
	c.queueMu.Lock()
	c.stopping = true
	c.queueMu.Unlock()
	c.queueCond.Broadcast()
	c.workers.Wait()
}

// Get returns the record for key, computing it if needed, and blocks until it is available
func (c *Cache) Get(ctx context.Context, key string) (types.FingerprintRecord, error) {
	return c.Submit(key).Wait(ctx)
}

// AwaitAll blocks until every submitted key has resolved. Per-key failures are
// available from Failures and are not returned here.
func (c *Cache) AwaitAll() {
	c.inflight.Wait()
}

func (c *Cache) compute(key string) (types.FingerprintRecord, error) {
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A previous flight for this key may have finished after Submit looked
		if record, ok, err := c.lookup(key); ok {
			c.recordHit()
			return record, err
		}

		record, err := c.load(key)

		c.mu.Lock()
		if err != nil {
			c.failures[key] = err
		} else {
			c.entries[key] = record
		}
		c.mu.Unlock()

		return record, err
	})
	record, _ := v.(types.FingerprintRecord)
	return record, err
}

func (c *Cache) load(key string) (record types.FingerprintRecord, err error) {
	c.loads.Add(1)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			record = types.FingerprintRecord{}
			err = errors.Errorf("panic computing %s: %v", key, r)
		}
		c.metrics.observeLoad(time.Since(start), err)
		if err != nil {
			c.logger.WithField("key", key).WithError(err).Warn("computation failed")
		}
	}()

	record, err = c.loader(c.ctx, key)
	if err != nil {
		return types.FingerprintRecord{}, err
	}
	record.Key = key
	return record, nil
}

func (c *Cache) lookup(key string) (types.FingerprintRecord, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lookupLocked(key)
}

// lookupLocked reports a settled outcome for key: a record, or the failure it ended with
func (c *Cache) lookupLocked(key string) (types.FingerprintRecord, bool, error) {
	if record, ok := c.entries[key]; ok {
		return record, true, nil
	}
	if err, ok := c.failures[key]; ok {
		return types.FingerprintRecord{}, true, err
	}
	return types.FingerprintRecord{}, false, nil
}

func (c *Cache) recordHit() {
	c.hits.Add(1)
	c.metrics.observeHit()
}

// All returns a copy of every computed record keyed by its key
func (c *Cache) All() map[string]types.FingerprintRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]types.FingerprintRecord, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Records returns every computed record sorted by key
func (c *Cache) Records() []types.FingerprintRecord {
	all := c.All()
	records := make([]types.FingerprintRecord, 0, len(all))
	for _, r := range all {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key < records[j].Key })
	return records
}

// Failures returns a copy of the per-key computation failures
func (c *Cache) Failures() map[string]error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]error, len(c.failures))
	for k, v := range c.failures {
		out[k] = v
	}
	return out
}

// FailureSummary combines all per-key failures, ordered by key, or returns nil
func (c *Cache) FailureSummary() error {
	failures := c.Failures()
	keys := make([]string, 0, len(failures))
	for k := range failures {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var result *multierror.Error
	for _, k := range keys {
		result = multierror.Append(result, errors.Wrap(failures[k], k))
	}
	return result.ErrorOrNil()
}

// Stats returns counters for this cache instance
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Entries:  len(c.entries),
		Restored: c.restored,
		Failures: len(c.failures),
		Hits:     c.hits.Load(),
		Loads:    c.loads.Load(),
	}
}

// Restore reads the stored snapshot and merges it into the cache. Keys already
// present are kept. Nothing is merged unless the whole snapshot decodes cleanly.
func (c *Cache) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	blob, err := c.store.Get(ctx, c.name)
	if errors.Is(err, ErrSnapshotNotFound) {
		c.logger.Debug("no snapshot found")
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "read snapshot %s", c.name)
	}

	payload, err := decodeSnapshot(blob, c.name)
	if err != nil {
		return err
	}

	c.mu.Lock()
	merged := 0
	for key, record := range payload.Entries {
		if _, exists := c.entries[key]; exists {
			continue
		}
		c.entries[key] = record
		merged++
	}
	c.restored += merged
	total := len(c.entries)
	c.mu.Unlock()

	c.metrics.setEntries(total)
	c.logger.WithFields(logrus.Fields{
		"action":  "restore",
		"entries": merged,
		"bytes":   len(blob),
	}).Info("restored snapshot")
	return nil
}

// Snapshot writes every computed record to the store. Failures are not persisted,
// so failed keys are retried by the next process.
func (c *Cache) Snapshot(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	payload := snapshotPayload{
		Version:   snapshotVersion,
		Name:      c.name,
		CreatedAt: time.Now().UTC(),
		Entries:   c.All(),
	}

	blob, err := encodeSnapshot(payload)
	if err != nil {
		return err
	}
	if err := c.store.Put(ctx, c.name, blob); err != nil {
		return errors.Wrapf(err, "write snapshot %s", c.name)
	}

	c.metrics.setSnapshot(len(payload.Entries), len(blob))
	c.logger.WithFields(logrus.Fields{
		"action":  "snapshot",
		"entries": len(payload.Entries),
		"bytes":   len(blob),
	}).Info("wrote snapshot")
	return nil
}

// Close stops accepting work, waits for queued and in-flight computations, stops the
// workers, writes a final snapshot and closes the store. The cache owns the store
// passed to WithStore.
func (c *Cache) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.inflight.Wait()
	c.stopWorkers()

	var result *multierror.Error
	if err := c.Snapshot(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	c.cancel()

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			result = multierror.Append(result, errors.Wrap(err, "close snapshot store"))
		}
	}
	return result.ErrorOrNil()
}
