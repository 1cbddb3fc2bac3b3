package pcache

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the prometheus collectors for one cache. A nil *Metrics records nothing.
type Metrics struct {
	Hits          prometheus.Counter
	Loads         prometheus.Counter
	Failures      prometheus.Counter
	LoadDuration  prometheus.Histogram
	Entries       prometheus.Gauge
	SnapshotBytes prometheus.Gauge
}

// NewMetrics creates the collectors labelled with the cache name and registers
// them with reg when reg is not nil
func NewMetrics(reg prometheus.Registerer, name string) (*Metrics, error) {
	labels := prometheus.Labels{"cache": name}
	m := &Metrics{
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "imagedupes",
			Subsystem:   "pcache",
			Name:        "hits_total",
			Help:        "Lookups answered without running the loader",
			ConstLabels: labels,
		}),
		Loads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "imagedupes",
			Subsystem:   "pcache",
			Name:        "loads_total",
			Help:        "Loader invocations",
			ConstLabels: labels,
		}),
		Failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "imagedupes",
			Subsystem:   "pcache",
			Name:        "failures_total",
			Help:        "Loader invocations that returned an error",
			ConstLabels: labels,
		}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "imagedupes",
			Subsystem:   "pcache",
			Name:        "load_duration_seconds",
			Help:        "Time spent computing one record",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.001, 4, 8),
		}),
		Entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "imagedupes",
			Subsystem:   "pcache",
			Name:        "entries",
			Help:        "Records held by the cache at the last restore or snapshot",
			ConstLabels: labels,
		}),
		SnapshotBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "imagedupes",
			Subsystem:   "pcache",
			Name:        "snapshot_bytes",
			Help:        "Size of the last written snapshot blob",
			ConstLabels: labels,
		}),
	}

	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Hits, m.Loads, m.Failures, m.LoadDuration, m.Entries, m.SnapshotBytes} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register cache metrics")
		}
	}
	return m, nil
}

func (m *Metrics) observeHit() {
	if m == nil {
		return
	}
	m.Hits.Inc()
}

func (m *Metrics) observeLoad(took time.Duration, err error) {
	if m == nil {
		return
	}
	m.Loads.Inc()
	m.LoadDuration.Observe(took.Seconds())
	if err != nil {
		m.Failures.Inc()
	}
}

func (m *Metrics) setEntries(n int) {
	if m == nil {
		return
	}
	m.Entries.Set(float64(n))
}

func (m *Metrics) setSnapshot(entries, size int) {
	if m == nil {
		return
	}
	m.Entries.Set(float64(entries))
	m.SnapshotBytes.Set(float64(size))
}
