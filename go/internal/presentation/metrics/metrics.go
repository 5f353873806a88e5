// Package metrics records broadcast and storage activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector defines the interface for collecting presentation metrics
type Collector interface {
	RecordPublish(kind string, success bool, duration time.Duration)
	RecordReceive(kind string)
	RecordDropped(kind string)
	RecordStorageFallback(slice string)
}

// NoOp is a no-op implementation for when metrics aren't needed
type NoOp struct{}

func (NoOp) RecordPublish(kind string, success bool, duration time.Duration) {}
func (NoOp) RecordReceive(kind string)                                       {}
func (NoOp) RecordDropped(kind string)                                       {}
func (NoOp) RecordStorageFallback(slice string)                              {}

// Prometheus implements Collector using Prometheus
type Prometheus struct {
	published       *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
	received        *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	fallbacks       *prometheus.CounterVec
}

// NewPrometheus creates the collectors and registers them on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	m := &Prometheus{
		published: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "altarpro_broadcast_published_total",
				Help: "Broadcast messages published, by kind and status",
			},
			[]string{"kind", "status"},
		),
		publishDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "altarpro_broadcast_publish_duration_seconds",
				Help:    "Time spent handing a message to the transport",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		received: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "altarpro_broadcast_received_total",
				Help: "Broadcast messages delivered to subscribers",
			},
			[]string{"kind"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "altarpro_broadcast_dropped_total",
				Help: "Broadcast messages ignored by receivers",
			},
			[]string{"kind"},
		),
		fallbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "altarpro_storage_fallback_total",
				Help: "Hydrations that fell back to defaults, by slice",
			},
			[]string{"slice"},
		),
	}
	reg.MustRegister(m.published, m.publishDuration, m.received, m.dropped, m.fallbacks)
	return m
}

func (m *Prometheus) RecordPublish(kind string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.published.WithLabelValues(kind, status).Inc()
	m.publishDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

func (m *Prometheus) RecordReceive(kind string) {
	m.received.WithLabelValues(kind).Inc()
}

func (m *Prometheus) RecordDropped(kind string) {
	m.dropped.WithLabelValues(kind).Inc()
}

func (m *Prometheus) RecordStorageFallback(slice string) {
	m.fallbacks.WithLabelValues(slice).Inc()
}
