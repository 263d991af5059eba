// Package metrics wraps the Prometheus collectors exposed by
// odin-marketfeed: broadcast/connection gauges, cache counters, per-class
// fetch outcomes, and leader-election state.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps the Prometheus collectors used across the service.
type Registry struct {
	Connections prometheus.Gauge
	IsLeader    prometheus.Gauge

	MessagesPublished prometheus.Counter
	MessagesDelivered prometheus.Counter
	BroadcastDropped  prometheus.Counter
	AcceptErrors      prometheus.Counter

	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheCoalesced  prometheus.Counter
	CacheStoreError prometheus.Counter

	FetchSuccess *prometheus.CounterVec
	FetchFailure *prometheus.CounterVec

	LeaderTransitions prometheus.Counter
	TickDuration      prometheus.Histogram
	TickPartialFail   prometheus.Counter
}

// NewRegistry creates Prometheus metrics collectors for odin-marketfeed.
func NewRegistry() *Registry {
	return &Registry{
		Connections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marketfeed_ws_connections_active",
			Help: "Number of active WebSocket subscribers.",
		}),
		IsLeader: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "marketfeed_is_leader",
			Help: "1 if this node currently holds the leader lease, else 0.",
		}),
		MessagesPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_ws_messages_published_total",
			Help: "Total number of snapshot messages handed to the broadcast bus.",
		}),
		MessagesDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_ws_messages_delivered_total",
			Help: "Total number of messages delivered to a subscriber's send queue.",
		}),
		BroadcastDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_ws_messages_dropped_total",
			Help: "Total number of messages dropped due to a full subscriber buffer.",
		}),
		AcceptErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_ws_accept_errors_total",
			Help: "Total number of WebSocket accept/handshake errors.",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_cache_hits_total",
			Help: "Total number of cache reads served from tier-1 or tier-2.",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_cache_misses_total",
			Help: "Total number of cache reads that required a producer call.",
		}),
		CacheCoalesced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_cache_coalesced_total",
			Help: "Total number of GetOrCompute calls whose producer call was shared with other concurrent callers (the originating call included).",
		}),
		CacheStoreError: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_cache_store_errors_total",
			Help: "Total number of tier-2 store errors degraded to a soft warning.",
		}),
		FetchSuccess: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfeed_fetch_success_total",
			Help: "Total number of successful upstream fetches, by data class.",
		}, []string{"class"}),
		FetchFailure: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "marketfeed_fetch_failure_total",
			Help: "Total number of failed upstream fetches, by data class.",
		}, []string{"class"}),
		LeaderTransitions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_leader_transitions_total",
			Help: "Total number of follower<->leader role transitions observed by this node.",
		}),
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketfeed_tick_duration_seconds",
			Help:    "Duration of a periodic driver tick.",
			Buckets: prometheus.DefBuckets,
		}),
		TickPartialFail: promauto.NewCounter(prometheus.CounterOpts{
			Name: "marketfeed_tick_partial_failure_total",
			Help: "Total number of ticks whose snapshot had partial_failure=true.",
		}),
	}
}

// Handler returns an HTTP handler exposing Prometheus metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.Handler()
}
