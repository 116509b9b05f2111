// Package metrics provides leafline telemetry.
// It wraps Prometheus collectors for remote calls, cache fallbacks, the
// pending queue, replay results and daily usage.
//
// Every Record method is safe on a nil *Collector so components can be built
// without metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Replay results.
const (
	ReplayConfirmed  = "confirmed"
	ReplayFailed     = "failed"
	ReplayDeadLetter = "dead_letter"
)

// Collector provides leafline metrics collection.
type Collector struct {
	registry *prometheus.Registry

	remoteTotal     *prometheus.CounterVec
	remoteLatency   *prometheus.HistogramVec
	cacheFallbacks  *prometheus.CounterVec
	queuedWrites    *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	replayTotal     *prometheus.CounterVec
	drainLatency    prometheus.Histogram
	usageRatio      prometheus.Gauge
	weightedCost    prometheus.Gauge
	alertsTotal     *prometheus.CounterVec
	storageFailures *prometheus.CounterVec
	online          prometheus.Gauge
}

// NewCollector creates a collector registered on its own registry.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "leafline"
	}

	c := &Collector{registry: prometheus.NewRegistry()}

	c.remoteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "operations_total",
			Help:      "Remote service calls by entity kind, operation and result",
		},
		[]string{"kind", "op", "result"},
	)

	c.remoteLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "duration_seconds",
			Help:      "Remote service call latency",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"kind", "op"},
	)

	c.cacheFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "fallbacks_total",
			Help:      "Reads served from the local cache instead of the remote service",
		},
		[]string{"kind", "reason"},
	)

	c.queuedWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "writes_total",
			Help:      "Writes accepted locally and queued for replay",
		},
		[]string{"kind"},
	)

	c.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "queue",
		Name:      "depth",
		Help:      "Pending operations waiting for replay",
	})

	c.replayTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "replays_total",
			Help:      "Replayed pending operations by result (confirmed, failed, dead_letter)",
		},
		[]string{"kind", "result"},
	)

	c.drainLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "drain_duration_seconds",
		Help:      "Time taken to drain the pending queue",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	c.usageRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "usage",
		Name:      "ratio",
		Help:      "Weighted cost consumed today divided by the daily limit",
	})

	c.weightedCost = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "usage",
		Name:      "weighted_cost",
		Help:      "Weighted cost consumed today",
	})

	c.alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "usage",
			Name:      "alerts_total",
			Help:      "Usage alerts raised by severity",
		},
		[]string{"severity"},
	)

	c.storageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "failures_total",
			Help:      "Local store operations that failed as unavailable",
		},
		[]string{"component"},
	)

	c.online = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "connectivity",
		Name:      "online",
		Help:      "1 when the remote service is considered reachable",
	})

	c.registry.MustRegister(
		c.remoteTotal,
		c.remoteLatency,
		c.cacheFallbacks,
		c.queuedWrites,
		c.queueDepth,
		c.replayTotal,
		c.drainLatency,
		c.usageRatio,
		c.weightedCost,
		c.alertsTotal,
		c.storageFailures,
		c.online,
	)

	return c
}

// Registry returns the Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// RecordRemote records one remote call.
func (c *Collector) RecordRemote(kind, op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.remoteTotal.WithLabelValues(kind, op, result(err)).Inc()
	c.remoteLatency.WithLabelValues(kind, op).Observe(duration.Seconds())
}

// RecordCacheFallback records a read answered from the cache.
// reason is "offline", "remote_error" or "budget".
func (c *Collector) RecordCacheFallback(kind, reason string) {
	if c == nil {
		return
	}
	c.cacheFallbacks.WithLabelValues(kind, reason).Inc()
}

// RecordQueuedWrite records a write accepted into the pending queue.
func (c *Collector) RecordQueuedWrite(kind string) {
	if c == nil {
		return
	}
	c.queuedWrites.WithLabelValues(kind).Inc()
}

// RecordQueueDepth sets the current pending-queue length.
func (c *Collector) RecordQueueDepth(depth int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(depth))
}

// RecordReplay records the outcome of replaying one pending operation.
func (c *Collector) RecordReplay(kind, outcome string) {
	if c == nil {
		return
	}
	c.replayTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordDrain records the duration of one queue drain.
func (c *Collector) RecordDrain(duration time.Duration) {
	if c == nil {
		return
	}
	c.drainLatency.Observe(duration.Seconds())
}

// RecordUsage sets the usage gauges for the current day.
func (c *Collector) RecordUsage(ratio, weightedCost float64) {
	if c == nil {
		return
	}
	c.usageRatio.Set(ratio)
	c.weightedCost.Set(weightedCost)
}

// RecordAlert counts a raised usage alert.
func (c *Collector) RecordAlert(severity string) {
	if c == nil {
		return
	}
	c.alertsTotal.WithLabelValues(severity).Inc()
}

// RecordStorageFailure counts a degraded local store operation.
func (c *Collector) RecordStorageFailure(component string) {
	if c == nil {
		return
	}
	c.storageFailures.WithLabelValues(component).Inc()
}

// RecordOnline sets the connectivity gauge.
func (c *Collector) RecordOnline(online bool) {
	if c == nil {
		return
	}
	if online {
		c.online.Set(1)
		return
	}
	c.online.Set(0)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
