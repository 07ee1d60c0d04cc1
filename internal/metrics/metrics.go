// Package metrics exposes prometheus counters for the dispatcher and the
// /metrics debug endpoint they're served on. Adopted from SAGE-X's
// internal/metrics package, the one example repo that wires prometheus —
// the teacher has no metrics of its own.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "hyperspace"

// Registry is a dedicated registry rather than the global default, so a
// node embedding this package never collides with other collectors.
var Registry = prometheus.NewRegistry()

var (
	// MessagesDispatched counts messages the dispatcher handles, by kind
	// (connect, addresses, routing_table, error, query, app_data, unknown)
	// and outcome (ok, dropped). Envelopes that fail verification count as
	// unknown/dropped; source routes are counted by SourceRouteForwards.
	MessagesDispatched = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "dispatched_total",
			Help:      "Total number of messages dispatched, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// RoutesOpened counts transports opened, by kind: ws when a WebSocket
	// connection has been accepted and greeted, dc when a DataChannel opens.
	RoutesOpened = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routes",
			Name:      "opened_total",
			Help:      "Total number of routes opened, by transport kind",
		},
		[]string{"kind"},
	)

	// RoutesClosed counts those transports closing, by kind; any route a
	// closing transport still holds is removed from the routing table.
	RoutesClosed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "routes",
			Name:      "closed_total",
			Help:      "Total number of routes closed, by transport kind",
		},
		[]string{"kind"},
	)

	// SourceRouteForwards counts source-routed forwarding attempts, by
	// outcome (forwarded, replied_undeliverable).
	SourceRouteForwards = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "source_route",
			Name:      "forwards_total",
			Help:      "Total number of source-route forwarding attempts, by outcome",
		},
		[]string{"outcome"},
	)
)

// Handler returns the HTTP handler for the /metrics debug endpoint.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
