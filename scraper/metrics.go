package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the scraper.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ItemsScrapedTotal *prometheus.CounterVec
	EventsTotal       prometheus.Counter
	SkippedTotal      *prometheus.CounterVec
	DegradedTotal     *prometheus.CounterVec
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"phase"},
	)
	itemsScraped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_items_scraped_total",
			Help: "Total number of list items extracted, by kind.",
		},
		[]string{"kind"},
	)
	events := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_events_scraped_total",
			Help: "Total number of forum events extracted.",
		},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_items_skipped_total",
			Help: "Total number of candidate items dropped during extraction, by reason.",
		},
		[]string{"kind", "reason"},
	)
	degraded := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_degraded_results_total",
			Help: "Total number of list scrapes served by a fallback.",
		},
		[]string{"kind", "mode"},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Total number of retry attempts scheduled.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of scraper errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, itemsScraped, events, skipped, degraded, retries, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		ItemsScrapedTotal: itemsScraped,
		EventsTotal:       events,
		SkippedTotal:      skipped,
		DegradedTotal:     degraded,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// AddItems adds n extracted items of kind.
func (m *Metrics) AddItems(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ItemsScrapedTotal.WithLabelValues(kind).Add(float64(n))
}

// IncEvents increments the events counter.
func (m *Metrics) IncEvents() {
	if m == nil {
		return
	}
	m.EventsTotal.Inc()
}

// IncSkipped counts one skipped candidate item.
func (m *Metrics) IncSkipped(kind, reason string) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(kind, reason).Inc()
}

// IncDegraded counts a list scrape that fell back to mode.
func (m *Metrics) IncDegraded(kind, mode string) {
	if m == nil || mode == "" {
		return
	}
	m.DegradedTotal.WithLabelValues(kind, mode).Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
