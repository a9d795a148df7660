package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the recordings gateway.
// A nil *Metrics is valid and records nothing, so tests can pass nil.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	fetchPagesTotal       prometheus.Counter
	fetchFailuresTotal    prometheus.Counter
	recordingsListedTotal prometheus.Counter
	mutationsTotal        *prometheus.CounterVec
	importReferences      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the gateway.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bbb_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bbb_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	fetchPagesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bbb_fetch_pages_total",
		Help: "Total number of getRecordings pages requested from the BigBlueButton server",
	})
	fetchFailuresTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bbb_fetch_failures_total",
		Help: "Total number of remote fetches that returned no usable response",
	})
	recordingsListedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bbb_recordings_listed_total",
		Help: "Total number of recordings returned by table view requests",
	})
	mutationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bbb_mutations_total",
		Help: "Total number of recording mutations forwarded to the BigBlueButton server",
	}, []string{"action"})
	importReferences := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bbb_import_references",
		Help: "Number of imported-recording reference rows in the event-log store",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		fetchPagesTotal,
		fetchFailuresTotal,
		recordingsListedTotal,
		mutationsTotal,
		importReferences,
	)

	return &Metrics{
		registry:              registry,
		requestsTotal:         requestsTotal,
		errorsTotal:           errorsTotal,
		fetchPagesTotal:       fetchPagesTotal,
		fetchFailuresTotal:    fetchFailuresTotal,
		recordingsListedTotal: recordingsListedTotal,
		mutationsTotal:        mutationsTotal,
		importReferences:      importReferences,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

// IncFetchPages increments the fetched-pages counter.
func (m *Metrics) IncFetchPages() {
	if m != nil {
		m.fetchPagesTotal.Inc()
	}
}

// IncFetchFailures increments the fetch-failures counter.
func (m *Metrics) IncFetchFailures() {
	if m != nil {
		m.fetchFailuresTotal.Inc()
	}
}

// AddRecordingsListed adds n to the recordings-listed counter.
func (m *Metrics) AddRecordingsListed(n int) {
	if m != nil {
		m.recordingsListedTotal.Add(float64(n))
	}
}

// IncMutations increments the mutation counter for the given action
// (publish, delete, update).
func (m *Metrics) IncMutations(action string) {
	if m != nil {
		m.mutationsTotal.WithLabelValues(action).Inc()
	}
}

// SetImportReferences sets the import-references gauge.
func (m *Metrics) SetImportReferences(n int) {
	if m != nil {
		m.importReferences.Set(float64(n))
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. the import-reference count).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
