package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks outbox delivery outcomes per event type.
type OutboxMetrics struct {
	events  *prometheus.CounterVec
	latency prometheus.Histogram
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "od_outbox_events_total",
		Help: "Outbox events handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "od_outbox_publish_seconds",
		Help:    "Time spent waiting for Pub/Sub to acknowledge a publish.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(events, latency)
	return &OutboxMetrics{events: events, latency: latency}
}

// ObserveEvent records one event outcome: published, retry or dead_lettered.
func (m *OutboxMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *OutboxMetrics) ObservePublish(d time.Duration) {
	if m == nil || m.latency == nil {
		return
	}
	m.latency.Observe(d.Seconds())
}
