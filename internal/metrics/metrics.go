// Package metrics exposes watcher state as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"aiwatch/internal/channel"
	"aiwatch/internal/costs"
	"aiwatch/internal/jobs"
)

const namespace = "aiwatch"

// Metrics owns a private registry so that several watchers (and tests) never
// collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	channelConnected  prometheus.Gauge
	channelReconnects prometheus.Counter
	heartbeatLatency  prometheus.Histogram
	events            *prometheus.CounterVec
	refreshDuration   *prometheus.HistogramVec
	jobs              *prometheus.GaugeVec
	costTotal         prometheus.Gauge
	quotaRatio        prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		channelConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_connected",
			Help:      "1 while the sync channel is connected and authenticated",
		}),
		channelReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channel_reconnects_total",
			Help:      "Sync channel reconnect attempts",
		}),
		heartbeatLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "channel_heartbeat_latency_seconds",
			Help:      "Ping to matching pong round trip",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Channel events by type and merge outcome",
		}, []string{"type", "outcome"}),
		refreshDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "Full refresh pull duration by result",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
		jobs: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs",
			Help:      "Jobs in the registry by status",
		}, []string{"status"}),
		costTotal: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cost_total_micros",
			Help:      "Spend in the active cost range, in millionths of the currency unit",
		}),
		quotaRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_ratio",
			Help:      "Quota used divided by quota total",
		}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// EventOutcome counts one merged channel event.
func (m *Metrics) EventOutcome(eventType, outcome string) {
	m.events.WithLabelValues(eventType, outcome).Inc()
}

// RefreshDone records one full refresh.
func (m *Metrics) RefreshDone(result string, elapsed time.Duration) {
	m.refreshDuration.WithLabelValues(result).Observe(elapsed.Seconds())
}

// StateObserved mirrors derived aggregates after a view recompute.
func (m *Metrics) StateObserved(counts map[jobs.Status]int, costTotal costs.Micros, quotaRatio float64) {
	for _, status := range jobs.AllStatuses {
		m.jobs.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
	m.costTotal.Set(float64(costTotal))
	m.quotaRatio.Set(quotaRatio)
}

// ChannelStatus implements channel.Observer.
func (m *Metrics) ChannelStatus(st channel.Status) {
	if st.Connected && st.Authenticated {
		m.channelConnected.Set(1)
		return
	}
	m.channelConnected.Set(0)
}

// ChannelReconnect implements channel.Observer.
func (m *Metrics) ChannelReconnect() {
	m.channelReconnects.Inc()
}

// HeartbeatLatency implements channel.Observer.
func (m *Metrics) HeartbeatLatency(d time.Duration) {
	m.heartbeatLatency.Observe(d.Seconds())
}

var _ channel.Observer = (*Metrics)(nil)
