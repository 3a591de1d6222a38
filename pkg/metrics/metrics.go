package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ConnectedSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_sessions",
		Help: "Number of live websocket sessions.",
	})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_events_published_total",
		Help: "Events fanned out by the room router, by event type.",
	}, []string{"type"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_events_dropped_total",
		Help: "Events dropped because a session's outbound buffer was full.",
	})
)

// Handler returns an http.Handler for Prometheus scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
