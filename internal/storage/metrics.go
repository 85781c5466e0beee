package storage

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// Metrics holds Prometheus metrics for storage operations. A nil *Metrics records nothing.
type Metrics struct {
	operations *prometheus.CounterVec   // By backend, operation and result
	duration   *prometheus.HistogramVec // By backend and operation
	retries    *prometheus.CounterVec   // By backend and operation
	degraded   *prometheus.CounterVec   // Best-effort fallbacks, by backend and operation
}

// NewMetrics creates storage metrics and registers them with reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "katelyatv",
			Subsystem: "storage",
			Name:      "operations_total",
			Help:      "Total number of backend calls",
		}, []string{"backend", "operation", "result"}), // result: ok, error

		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "katelyatv",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Backend call duration in seconds, including retries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),

		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "katelyatv",
			Subsystem: "storage",
			Name:      "retries_total",
			Help:      "Total number of retried backend calls after transient failures",
		}, []string{"backend", "operation"}),

		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "katelyatv",
			Subsystem: "storage",
			Name:      "degraded_reads_total",
			Help:      "Malformed or missing auxiliary data replaced by defaults",
		}, []string{"backend", "operation"}),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{m.operations, m.duration, m.retries, m.degraded} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}

	return m, nil
}

func (m *Metrics) observe(backend, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil && !errors.Is(err, redis.Nil) {
		result = "error"
	}
	m.operations.WithLabelValues(backend, op, result).Inc()
	m.duration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) retried(backend, op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(backend, op).Inc()
}

func (m *Metrics) degrade(backend, op string) {
	if m == nil {
		return
	}
	m.degraded.WithLabelValues(backend, op).Inc()
}
