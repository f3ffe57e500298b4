// Package metrics exports mnemo store activity in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Snapshot operations and outcomes used as label values.
const (
	OpSave    = "save"
	OpLoad    = "load"
	OpPrune   = "prune"
	StatusOK  = "ok"
	StatusErr = "error"
)

// Collector holds the store's Prometheus collectors on a private registry.
type Collector struct {
	registry *prometheus.Registry

	records       prometheus.Gauge
	decayPasses   *prometheus.CounterVec
	evictions     prometheus.Counter
	recalls       prometheus.Counter
	recallLatency prometheus.Histogram
	snapshots     *prometheus.CounterVec
}

// Config configures a Collector.
type Config struct {
	// Registry to use (if nil, creates a new one)
	Registry *prometheus.Registry

	// Buckets for the recall latency histogram (in seconds)
	LatencyBuckets []float64
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		LatencyBuckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}
}

// New creates a Collector and registers its metrics.
func New(cfg Config) *Collector {
	if len(cfg.LatencyBuckets) == 0 {
		cfg.LatencyBuckets = DefaultConfig().LatencyBuckets
	}
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{registry: registry}

	c.records = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "mnemo",
		Name:      "records",
		Help:      "Number of records currently held by the store",
	})
	c.decayPasses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mnemo",
		Name:      "decay_passes_total",
		Help:      "Total number of decay passes and resets",
	}, []string{"mode"})
	c.evictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mnemo",
		Name:      "evictions_total",
		Help:      "Total number of records evicted",
	})
	c.recalls = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "mnemo",
		Name:      "recalls_total",
		Help:      "Total number of recall queries",
	})
	c.recallLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mnemo",
		Name:      "recall_latency_seconds",
		Help:      "Recall latency in seconds",
		Buckets:   cfg.LatencyBuckets,
	})
	c.snapshots = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mnemo",
		Name:      "snapshots_total",
		Help:      "Total number of snapshot operations",
	}, []string{"op", "status"})

	registry.MustRegister(
		c.records,
		c.decayPasses,
		c.evictions,
		c.recalls,
		c.recallLatency,
		c.snapshots,
	)
	return c
}

// Nil-safe recorders: a nil *Collector records nothing.

// SetRecords sets the current record count.
func (c *Collector) SetRecords(n int) {
	if c == nil {
		return
	}
	c.records.Set(float64(n))
}

// ObserveDecay records a pass in the given mode and its evictions.
func (c *Collector) ObserveDecay(mode string, evicted int) {
	if c == nil {
		return
	}
	c.decayPasses.WithLabelValues(mode).Inc()
	c.evictions.Add(float64(evicted))
}

// ObserveRecall records one recall and how long it took.
func (c *Collector) ObserveRecall(d time.Duration) {
	if c == nil {
		return
	}
	c.recalls.Inc()
	c.recallLatency.Observe(d.Seconds())
}

// ObserveSnapshot records a snapshot operation outcome.
func (c *Collector) ObserveSnapshot(op string, err error) {
	if c == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusErr
	}
	c.snapshots.WithLabelValues(op, status).Inc()
}

// Registry returns the registry the collectors live on.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
