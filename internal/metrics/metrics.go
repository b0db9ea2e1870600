package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "coinboard"

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

var CatalogFetches = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_fetches_total",
		Help:      "Catalog fetches by sort key and result.",
	},
	[]string{"sort", "result"},
)

var CatalogFetchDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "catalog_fetch_duration_seconds",
		Help:      "Catalog fetch latency.",
		Buckets:   prometheus.DefBuckets,
	},
)

var CatalogCacheHits = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "catalog_cache_hits_total",
		Help:      "Catalog requests served from cache by sort key.",
	},
	[]string{"sort"},
)

var CatalogInstruments = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "catalog_active_instruments",
		Help:      "Instruments in the active catalog list.",
	},
)

var TickerPolls = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticker_polls_total",
		Help:      "Ticker polls by result.",
	},
	[]string{"result"},
)

var TickerSkippedPolls = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ticker_polls_skipped_total",
		Help:      "Poll ticks skipped because the catalog was empty.",
	},
)

var TickerSnapshotSize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ticker_snapshot_instruments",
		Help:      "Instruments covered by the last good snapshot.",
	},
)

var HighlightTransitions = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "highlight_transitions_total",
		Help:      "Highlight state transitions by direction.",
	},
	[]string{"direction"},
)

var HighlightActiveTimers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "highlight_active_timers",
		Help:      "Pending flash expiry timers.",
	},
)

var StreamClients = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "stream_clients",
		Help:      "Connected WebSocket clients.",
	},
)

var StreamDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stream_dropped_frames_total",
		Help:      "Frames dropped from full client queues.",
	},
)

var BoardsPublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "boards_published_total",
		Help:      "Boards delivered by sink and result.",
	},
	[]string{"sink", "result"},
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// Registry returns the process registry holding all collectors.
func Registry() *prometheus.Registry {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			CatalogFetches,
			CatalogFetchDuration,
			CatalogCacheHits,
			CatalogInstruments,
			TickerPolls,
			TickerSkippedPolls,
			TickerSnapshotSize,
			HighlightTransitions,
			HighlightActiveTimers,
			StreamClients,
			StreamDropped,
			BoardsPublished,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry(), promhttp.HandlerOpts{})
}
