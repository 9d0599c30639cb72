package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the recommender.
// Every helper is safe to call on a nil *Metrics.
type Metrics struct {
	Registry *prometheus.Registry

	RelatedItemsTotal   *prometheus.CounterVec
	SectionItemsTotal   *prometheus.CounterVec
	FetchErrorsTotal    *prometheus.CounterVec
	StaleTotal          prometheus.Counter
	IndexCacheTotal     *prometheus.CounterVec
	JournalErrorsTotal  *prometheus.CounterVec
	UpstreamRequests    *prometheus.CounterVec
	UpstreamDuration    prometheus.Histogram
	ViewEventsProcessed prometheus.Counter
	HTTPRequests        *prometheus.CounterVec
	HTTPDuration        *prometheus.HistogramVec
}

// New constructs and registers all metrics on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	related := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_related_items_total",
			Help: "Related items selected, by tier.",
		},
		[]string{"tier"},
	)
	sectionItems := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_section_items_total",
			Help: "Items returned in browse sections, by section.",
		},
		[]string{"section"},
	)
	fetchErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_fetch_errors_total",
			Help: "Failed catalog fetches, by source.",
		},
		[]string{"source"},
	)
	stale := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recommender_stale_computations_total",
			Help: "Product page computations discarded because a newer one started.",
		},
	)
	indexCache := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recommender_index_cache_total",
			Help: "Category index cache lookups, by result.",
		},
		[]string{"result"},
	)
	journalErrors := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "journal_store_errors_total",
			Help: "Affinity journal store failures, by operation.",
		},
		[]string{"op"},
	)
	upstreamRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Requests issued to the upstream catalog API.",
		},
		[]string{"route", "outcome"},
	)
	upstreamDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream catalog API latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	viewEvents := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "view_events_processed_total",
			Help: "View events applied to product popularity.",
		},
	)
	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP API requests.",
		},
		[]string{"method", "route", "status"},
	)
	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP API latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	registry.MustRegister(related, sectionItems, fetchErrors, stale, indexCache, journalErrors,
		upstreamRequests, upstreamDuration, viewEvents, httpRequests, httpDuration)

	return &Metrics{
		Registry:            registry,
		RelatedItemsTotal:   related,
		SectionItemsTotal:   sectionItems,
		FetchErrorsTotal:    fetchErrors,
		StaleTotal:          stale,
		IndexCacheTotal:     indexCache,
		JournalErrorsTotal:  journalErrors,
		UpstreamRequests:    upstreamRequests,
		UpstreamDuration:    upstreamDuration,
		ViewEventsProcessed: viewEvents,
		HTTPRequests:        httpRequests,
		HTTPDuration:        httpDuration,
	}
}

func (m *Metrics) IncRelated(tier string) {
	if m == nil {
		return
	}
	m.RelatedItemsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) AddSectionItems(section string, n int) {
	if m == nil {
		return
	}
	m.SectionItemsTotal.WithLabelValues(section).Add(float64(n))
}

func (m *Metrics) IncFetchError(source string) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) IncStale() {
	if m == nil {
		return
	}
	m.StaleTotal.Inc()
}

// IncIndexCache records a cache lookup; result is hit or miss.
func (m *Metrics) IncIndexCache(result string) {
	if m == nil {
		return
	}
	m.IndexCacheTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) IncJournalError(op string) {
	if m == nil {
		return
	}
	m.JournalErrorsTotal.WithLabelValues(op).Inc()
}

// ObserveUpstream records one upstream call; outcome is ok, error or circuit_open.
func (m *Metrics) ObserveUpstream(route, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(route, outcome).Inc()
	m.UpstreamDuration.Observe(d.Seconds())
}

func (m *Metrics) AddViewEvents(n int) {
	if m == nil {
		return
	}
	m.ViewEventsProcessed.Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
