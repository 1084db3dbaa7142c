package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/m3rciful/mbot/core/messenger"
)

// Metrics instruments event processing with Prometheus collectors.
type Metrics struct {
	events   *prometheus.CounterVec
	failures prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewMetrics builds and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mbot",
			Subsystem: "events",
			Name:      "processed_total",
			Help:      "Inbound events processed, by event type.",
		}, []string{"event_type"}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mbot",
			Subsystem: "events",
			Name:      "failed_total",
			Help:      "Events whose pass ended with a trapped error.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mbot",
			Subsystem: "events",
			Name:      "duration_seconds",
			Help:      "Event processing duration from chain entry to completion.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
	}
	reg.MustRegister(m.events, m.failures, m.duration)
	return m
}

// Middleware returns the instrumentation middleware. Install it first
// so the histogram covers the whole chain.
func (m *Metrics) Middleware() messenger.MiddlewareFunc {
	return func(next messenger.HandlerFunc) messenger.HandlerFunc {
		return func(c messenger.Context) error {
			start := time.Now()
			err := next(c)

			eventType := c.EventType()
			if eventType == "" {
				eventType = "unknown"
			}
			m.events.WithLabelValues(eventType).Inc()
			m.duration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
			if err != nil {
				m.failures.Inc()
			}
			return err
		}
	}
}
