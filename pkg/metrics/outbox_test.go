package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.ObserveEvent("order_placed", "published")
	m.ObserveEvent("order_placed", "published")
	m.ObserveEvent("task_submitted", "dead_lettered")
	m.ObservePublish(250 * time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	published, err := fetchCounterValue(mfs, "od_outbox_events_total", "outcome", "published")
	require.NoError(t, err)
	require.Equal(t, float64(2), published)

	dead, err := fetchCounterValue(mfs, "od_outbox_events_total", "event_type", "task_submitted")
	require.NoError(t, err)
	require.Equal(t, float64(1), dead)

	latency := findMetricFamily(mfs, "od_outbox_publish_seconds")
	require.NotNil(t, latency)
	require.Equal(t, uint64(1), latency.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestOutboxMetricsNilSafe(t *testing.T) {
	var m *OutboxMetrics
	m.ObserveEvent("order_placed", "published")
	m.ObservePublish(time.Second)

	NewOutboxMetrics(nil).ObserveEvent("", "")
}
