package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedpress"

// Item outcomes recorded by the pipeline.
const (
	OutcomePublished = "published"
	OutcomeDraft     = "draft"
	OutcomeShort     = "too_short"
	OutcomeNoImage   = "no_image"
	OutcomeBadImage  = "image_unreachable"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// Metrics owns a private registry and every FeedPress collector.
// All recording methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	sweeps           *prometheus.CounterVec
	items            *prometheus.CounterVec
	fetchErrors      prometheus.Counter
	classifications  *prometheus.CounterVec
	rewriteFallbacks prometheus.Counter
	queueTransitions *prometheus.CounterVec
	notifierErrors   *prometheus.CounterVec
	queueDepth       *prometheus.GaugeVec
}

// New registers the collectors, including Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_sweeps_total",
			Help:      "Feed sweeps by result.",
		}, []string{"result"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_items_total",
			Help:      "Feed items processed by outcome.",
		}, []string{"outcome"}),
		fetchErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_fetch_errors_total",
			Help:      "Feeds that could not be fetched or parsed.",
		}),
		classifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Category classifications by strategy.",
		}, []string{"strategy"}),
		rewriteFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_fallbacks_total",
			Help:      "Rewrites that returned the original body.",
		}),
		queueTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexing_queue_transitions_total",
			Help:      "Indexing queue item transitions by target status.",
		}, []string{"status"}),
		notifierErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "indexing_errors_total",
			Help:      "Indexing notifier failures by class.",
		}, []string{"class"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "indexing_queue_items",
			Help:      "Indexing queue items by status.",
		}, []string{"status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sweeps,
		m.items,
		m.fetchErrors,
		m.classifications,
		m.rewriteFallbacks,
		m.queueTransitions,
		m.notifierErrors,
		m.queueDepth,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Sweep(result string) {
	if m != nil {
		m.sweeps.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Item(outcome string) {
	if m != nil {
		m.items.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) FetchError() {
	if m != nil {
		m.fetchErrors.Inc()
	}
}

func (m *Metrics) Classified(strategy string) {
	if m != nil {
		m.classifications.WithLabelValues(strategy).Inc()
	}
}

func (m *Metrics) RewriteFallback() {
	if m != nil {
		m.rewriteFallbacks.Inc()
	}
}

func (m *Metrics) QueueTransition(status string) {
	if m != nil {
		m.queueTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) NotifierError(class string) {
	if m != nil {
		m.notifierErrors.WithLabelValues(class).Inc()
	}
}

// QueueDepth replaces the per-status gauge values.
func (m *Metrics) QueueDepth(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.queueDepth.WithLabelValues(status).Set(float64(n))
	}
}
