package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "explorer_http_requests_total",
		Help: "Total number of HTTP requests, labelled by route pattern, method and status.",
	}, []string{"route", "method", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "explorer_http_request_duration_ms",
		Help:    "HTTP request latency in milliseconds, labelled by route pattern.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	}, []string{"route"})

	CacheRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "explorer_cache_refreshes_total",
		Help: "Total number of cache refreshes, labelled by trigger.",
	}, []string{"trigger"})

	GroupsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "explorer_groups_loaded",
		Help: "Number of enriched groups currently cached.",
	})

	GroupLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "explorer_group_load_duration_ms",
		Help:    "Time to load and enrich every group in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	ReportsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "explorer_reports_submitted_total",
		Help: "Total number of reports appended to the ledger.",
	})

	NetworkCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "explorer_network_cache_lookups_total",
		Help: "Network payload cache lookups, labelled by result (hit or miss).",
	}, []string{"result"})
)
