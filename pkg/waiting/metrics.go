package waiting

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics manages Prometheus metrics for the waiting engine. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	timeoutCounter *prometheus.CounterVec
	retryCounter   *prometheus.CounterVec
	failureCounter *prometheus.CounterVec
	waitDuration   *prometheus.HistogramVec
	registered     bool
	mu             sync.Mutex
}

// NewMetrics creates a metrics collector for the waiting engine.
func NewMetrics() *Metrics {
	return &Metrics{
		timeoutCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sat_wait_timeouts_total",
				Help: "Count of elapsed timeout cycles by condition",
			},
			[]string{"condition"},
		),
		retryCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sat_wait_retries_total",
				Help: "Count of retried timeout cycles by condition",
			},
			[]string{"condition"},
		),
		failureCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sat_wait_failures_total",
				Help: "Count of permanent condition failures by condition",
			},
			[]string{"condition"},
		),
		waitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sat_wait_duration_seconds",
				Help:    "Total wall time of waits by condition and outcome",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68m
			},
			[]string{"condition", "outcome"},
		),
	}
}

// Register registers the collectors with the default Prometheus registry.
// Registering twice is a no-op.
func (m *Metrics) Register() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return
	}
	prometheus.MustRegister(m.timeoutCounter)
	prometheus.MustRegister(m.retryCounter)
	prometheus.MustRegister(m.failureCounter)
	prometheus.MustRegister(m.waitDuration)
	m.registered = true
}

func (m *Metrics) observeTimeout(condition string) {
	if m == nil {
		return
	}
	m.timeoutCounter.WithLabelValues(condition).Inc()
}

func (m *Metrics) observeRetry(condition string) {
	if m == nil {
		return
	}
	m.retryCounter.WithLabelValues(condition).Inc()
}

func (m *Metrics) observeFailure(condition string) {
	if m == nil {
		return
	}
	m.failureCounter.WithLabelValues(condition).Inc()
}

func (m *Metrics) observeDuration(condition, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.waitDuration.WithLabelValues(condition, outcome).Observe(d.Seconds())
}
