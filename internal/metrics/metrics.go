// Package metrics exposes Prometheus instrumentation for the capture
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CapturesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hookbin_captures_total",
		Help: "Inbound requests captured and persisted.",
	})

	EvictedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hookbin_evicted_total",
		Help: "Captured requests evicted by the per-endpoint retention cap.",
	})

	BroadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hookbin_broadcasts_total",
		Help: "Realtime events queued for delivery to dashboard connections.",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hookbin_ws_connections",
		Help: "Currently open dashboard websocket connections.",
	})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
