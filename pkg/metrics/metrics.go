// Package metrics bundles Prometheus collectors for a harvest run on a
// dedicated registry, so exposition never collides with other processes in
// the same binary.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the harvest collectors.
type Metrics struct {
	Registry            *prometheus.Registry
	PagesFetchedTotal   prometheus.Counter
	ItemsProcessedTotal *prometheus.CounterVec
	DownloadsTotal      *prometheus.CounterVec
	DownloadBytesTotal  prometheus.Counter
	TokenRefreshesTotal prometheus.Counter
	ItemDuration        prometheus.Histogram
	ErrorsTotal         *prometheus.CounterVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	pagesFetched := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_pages_fetched_total",
			Help: "Total index and item pages fetched.",
		},
	)
	itemsProcessed := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_items_processed_total",
			Help: "Items processed by final state.",
		},
		[]string{"state"},
	)
	downloads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_downloads_total",
			Help: "Asset download attempts by role and outcome.",
		},
		[]string{"role", "outcome"},
	)
	downloadBytes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_download_bytes_total",
			Help: "Total bytes of validated asset payloads written.",
		},
	)
	tokenRefreshes := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvest_token_refreshes_total",
			Help: "Times the access token was replaced after a challenge.",
		},
	)
	itemDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvest_item_duration_seconds",
			Help:    "Wall time spent acquiring one item.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvest_errors_total",
			Help: "Total errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(pagesFetched, itemsProcessed, downloads, downloadBytes,
		tokenRefreshes, itemDuration, errorsTotal)

	return &Metrics{
		Registry:            registry,
		PagesFetchedTotal:   pagesFetched,
		ItemsProcessedTotal: itemsProcessed,
		DownloadsTotal:      downloads,
		DownloadBytesTotal:  downloadBytes,
		TokenRefreshesTotal: tokenRefreshes,
		ItemDuration:        itemDuration,
		ErrorsTotal:         errorsTotal,
	}
}

// IncPageFetched increments the page fetch counter.
func (m *Metrics) IncPageFetched() {
	if m == nil {
		return
	}
	m.PagesFetchedTotal.Inc()
}

// IncItemProcessed records an item's final state.
func (m *Metrics) IncItemProcessed(state string) {
	if m == nil {
		return
	}
	m.ItemsProcessedTotal.WithLabelValues(state).Inc()
}

// IncDownload records one asset download outcome.
func (m *Metrics) IncDownload(role, outcome string) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(role, outcome).Inc()
}

// AddDownloadBytes records validated payload bytes written.
func (m *Metrics) AddDownloadBytes(n int) {
	if m == nil {
		return
	}
	m.DownloadBytesTotal.Add(float64(n))
}

// IncTokenRefresh increments the token refresh counter.
func (m *Metrics) IncTokenRefresh() {
	if m == nil {
		return
	}
	m.TokenRefreshesTotal.Inc()
}

// ObserveItemDuration records how long one item took.
func (m *Metrics) ObserveItemDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.ItemDuration.Observe(d.Seconds())
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
