package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper and the ingestion run.
type Metrics struct {
	Registry           *prometheus.Registry
	RequestsTotal      *prometheus.CounterVec
	RequestDuration    prometheus.Histogram
	ListingsFoundTotal prometheus.Counter
	ItemsTotal         prometheus.Counter
	BidsTotal          prometheus.Counter
	ImagesTotal        *prometheus.CounterVec
	FallbacksTotal     *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	BatchesTotal       *prometheus.CounterVec
	QuarantinedTotal   *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"route"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	listingsFound := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_listings_found_total",
			Help: "Listing identifiers collected from search result pages.",
		},
	)
	items := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_items_extracted_total",
			Help: "Listings turned into item records.",
		},
	)
	bids := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_bids_extracted_total",
			Help: "Bid records parsed from bid-history pages.",
		},
	)
	images := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_images_total",
			Help: "Image retrievals by outcome.",
		},
		[]string{"outcome"},
	)
	fallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_field_fallbacks_total",
			Help: "Fields that fell back to their default value.",
		},
		[]string{"field"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)
	batches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_batches_total",
			Help: "Batches finished by final state.",
		},
		[]string{"state"},
	)
	quarantined := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_quarantined_total",
			Help: "Record sets that failed to persist, by table.",
		},
		[]string{"table"},
	)

	registry.MustRegister(requests, requestDuration, listingsFound, items, bids, images, fallbacks, errorsTotal, batches, quarantined)

	return &Metrics{
		Registry:           registry,
		RequestsTotal:      requests,
		RequestDuration:    requestDuration,
		ListingsFoundTotal: listingsFound,
		ItemsTotal:         items,
		BidsTotal:          bids,
		ImagesTotal:        images,
		FallbacksTotal:     fallbacks,
		ErrorsTotal:        errorsTotal,
		BatchesTotal:       batches,
		QuarantinedTotal:   quarantined,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(route string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// AddListings adds n enumerated listing identifiers.
func (m *Metrics) AddListings(n int) {
	if m == nil {
		return
	}
	m.ListingsFoundTotal.Add(float64(n))
}

// IncItems increments the items extracted counter.
func (m *Metrics) IncItems() {
	if m == nil {
		return
	}
	m.ItemsTotal.Inc()
}

// AddBids adds n parsed bids.
func (m *Metrics) AddBids(n int) {
	if m == nil {
		return
	}
	m.BidsTotal.Add(float64(n))
}

// IncImage counts one image retrieval outcome.
func (m *Metrics) IncImage(outcome string) {
	if m == nil {
		return
	}
	m.ImagesTotal.WithLabelValues(outcome).Inc()
}

// IncFallback counts a field falling back to its default.
func (m *Metrics) IncFallback(field string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(field).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// IncBatch counts a finished batch by its final state.
func (m *Metrics) IncBatch(state string) {
	if m == nil {
		return
	}
	m.BatchesTotal.WithLabelValues(state).Inc()
}

// IncQuarantined counts a record set spooled to quarantine.
func (m *Metrics) IncQuarantined(table string) {
	if m == nil {
		return
	}
	m.QuarantinedTotal.WithLabelValues(table).Inc()
}
