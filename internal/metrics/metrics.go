// Package metrics exposes the relay and API counters on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	Connections     prometheus.Gauge
	Frames          *prometheus.CounterVec
	DroppedFrames   prometheus.Counter
	MessagesCreated prometheus.Counter
	RateLimited     *prometheus.CounterVec
}

// New builds a Metrics on its own registry so tests can create as many as
// they like.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "chat",
			Name:      "ws_connections",
			Help:      "Open realtime websocket connections.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "ws_frames_total",
			Help:      "Inbound websocket frames by op.",
		}, []string{"op"}),
		DroppedFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "ws_dropped_frames_total",
			Help:      "Outbound frames dropped because a connection was too slow.",
		}),
		MessagesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "messages_created_total",
			Help:      "Messages persisted.",
		}),
		RateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chat",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by a rate limit, by scope.",
		}, []string{"scope"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Connections,
		m.Frames,
		m.DroppedFrames,
		m.MessagesCreated,
		m.RateLimited,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
