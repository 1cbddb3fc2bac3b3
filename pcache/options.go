package pcache

import (
	"runtime"

	"github.com/sirupsen/logrus"
)

// DefaultName names the snapshot when no name is given
const DefaultName = "image_metadata"

type options struct {
	name              string
	workers           int
	store             SnapshotStore
	logger            logrus.FieldLogger
	metrics           *Metrics
	resetOnCorruption bool
}

// Option configures a Cache
type Option func(*options)

// WithName sets the snapshot name
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithWorkers sets the size of the worker pool, which bounds concurrent loader calls
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithStore sets where snapshots are read from and written to.
// Without a store the cache is purely in memory.
func WithStore(store SnapshotStore) Option {
	return func(o *options) { o.store = store }
}

// WithLogger sets the logger
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics records cache activity in m
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithResetOnCorruption starts from an empty cache, instead of failing, when the
// stored snapshot is corrupt. The reset is logged.
func WithResetOnCorruption(reset bool) Option {
	return func(o *options) { o.resetOnCorruption = reset }
}

func defaultOptions() options {
	return options{
		name:    DefaultName,
		workers: runtime.NumCPU(),
		logger:  logrus.StandardLogger(),
	}
}
