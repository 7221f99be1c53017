// Package telemetry provides OpenTelemetry instrumentation for the rule service.
// It exports Prometheus metrics and provides tracing capabilities.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "rule-service"

// Stage outcome labels.
const (
	OutcomeHit      = "hit"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "failed"
)

// Metrics holds all rule service Prometheus metrics
type Metrics struct {
	// Matcher metrics
	Requests      *prometheus.CounterVec
	StageOutcomes *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	ContentTooBig prometheus.Counter

	// Extraction and search metrics
	UnitsExtracted  *prometheus.HistogramVec
	PatternSkipped  prometheus.Counter
	IndexSize       prometheus.Histogram
	SearchDuration  prometheus.Histogram
	BannedFiltered  prometheus.Counter
	BannedReverted  prometheus.Counter
	TiedOutcomes    prometheus.Counter
	BrowserRecreate prometheus.Counter
	BrowserFetches  *prometheus.CounterVec
}

// Provider wraps telemetry providers. Each provider owns its registry so
// several can coexist in one process.
type Provider struct {
	Tracer   trace.Tracer
	Metrics  *Metrics
	registry *prometheus.Registry
}

// NewProvider initializes telemetry with Prometheus metrics
func NewProvider() *Provider {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Provider{
		Tracer:   otel.Tracer(serviceName),
		Metrics:  initMetrics(promauto.With(registry)),
		registry: registry,
	}
}

// Handler returns the Prometheus HTTP handler for /metrics endpoint
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Gatherer exposes the provider registry, mostly for tests.
func (p *Provider) Gatherer() prometheus.Gatherer {
	return p.registry
}

func initMetrics(f promauto.Factory) *Metrics {
	m := &Metrics{}
	initMatcherMetrics(f, m)
	initExtractionMetrics(f, m)
	initSearchMetrics(f, m)
	return m
}

func initMatcherMetrics(f promauto.Factory, m *Metrics) {
	m.Requests = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rules_requests_total",
		Help: "Total rule evaluations by kind (rule, children) and result",
	}, []string{"kind", "result"})

	m.StageOutcomes = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rules_stage_outcomes_total",
		Help: "Fallback chain stage outcomes (hit, not_found, failed)",
	}, []string{"stage", "outcome"})

	m.StageDuration = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rules_stage_duration_seconds",
		Help:    "Time spent in one fallback chain stage, extraction included",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10, 30},
	}, []string{"stage"})

	m.ContentTooBig = f.NewCounter(prometheus.CounterOpts{
		Name: "rules_content_too_large_total",
		Help: "Pages rejected because they exceed the maximum page length",
	})

	m.TiedOutcomes = f.NewCounter(prometheus.CounterOpts{
		Name: "rules_tied_outcomes_total",
		Help: "Rules resolved to several candidates sharing the best score",
	})

	m.BannedFiltered = f.NewCounter(prometheus.CounterOpts{
		Name: "rules_banned_filtered_total",
		Help: "Search hits dropped because their URL is banned",
	})

	m.BannedReverted = f.NewCounter(prometheus.CounterOpts{
		Name: "rules_banned_reverted_total",
		Help: "Banned filters reverted because no hit would have been left",
	})
}

func initExtractionMetrics(f promauto.Factory, m *Metrics) {
	m.UnitsExtracted = f.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "rules_units_extracted",
		Help:    "Content units extracted per page",
		Buckets: []float64{0, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	}, []string{"extractor"})

	m.PatternSkipped = f.NewCounter(prometheus.CounterOpts{
		Name: "rules_pattern_skipped_total",
		Help: "Anchor candidates skipped because their href could not be matched",
	})

	m.BrowserRecreate = f.NewCounter(prometheus.CounterOpts{
		Name: "rules_browser_session_recreated_total",
		Help: "Headless browser sessions discarded and recreated after a failure",
	})

	m.BrowserFetches = f.NewCounterVec(prometheus.CounterOpts{
		Name: "rules_browser_fetches_total",
		Help: "Pages rendered through the headless browser",
	}, []string{"result"})
}

func initSearchMetrics(f promauto.Factory, m *Metrics) {
	m.IndexSize = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "rules_index_documents",
		Help:    "Documents indexed per request and stage",
		Buckets: []float64{0, 10, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
	})

	m.SearchDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "rules_search_duration_seconds",
		Help:    "Time spent in a single term search",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1},
	})
}

// RecordRequest counts a rule or children evaluation and its result.
func (p *Provider) RecordRequest(ctx context.Context, kind, result string) {
	p.Metrics.Requests.WithLabelValues(kind, result).Inc()
}

// RecordStage records the outcome and duration of a fallback chain stage.
func (p *Provider) RecordStage(ctx context.Context, stage, outcome string, duration time.Duration) {
	p.Metrics.StageOutcomes.WithLabelValues(stage, outcome).Inc()
	p.Metrics.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordExtraction records how many units an extractor produced.
func (p *Provider) RecordExtraction(ctx context.Context, extractor string, units int) {
	p.Metrics.UnitsExtracted.WithLabelValues(extractor).Observe(float64(units))
}

// RecordIndex records the size of a freshly built index.
func (p *Provider) RecordIndex(ctx context.Context, documents int) {
	p.Metrics.IndexSize.Observe(float64(documents))
}

// RecordSearch records the duration of one term search.
func (p *Provider) RecordSearch(ctx context.Context, duration time.Duration) {
	p.Metrics.SearchDuration.Observe(duration.Seconds())
}

// RecordBanned records a banned URL filter pass.
func (p *Provider) RecordBanned(ctx context.Context, dropped int, reverted bool) {
	if reverted {
		p.Metrics.BannedReverted.Inc()
		return
	}
	p.Metrics.BannedFiltered.Add(float64(dropped))
}

// IncrementPatternSkipped increments the skipped anchor candidate counter
func (p *Provider) IncrementPatternSkipped() {
	p.Metrics.PatternSkipped.Inc()
}

// IncrementTied increments the tied outcome counter
func (p *Provider) IncrementTied() {
	p.Metrics.TiedOutcomes.Inc()
}

// IncrementContentTooLarge increments the rejected page counter
func (p *Provider) IncrementContentTooLarge() {
	p.Metrics.ContentTooBig.Inc()
}

// IncrementBrowserRecreate increments the browser session recreation counter
func (p *Provider) IncrementBrowserRecreate() {
	p.Metrics.BrowserRecreate.Inc()
}

// RecordBrowserFetch counts a rendered page by result (ok, error).
func (p *Provider) RecordBrowserFetch(result string) {
	p.Metrics.BrowserFetches.WithLabelValues(result).Inc()
}

// StartSpan starts a new trace span.
// The caller is responsible for ending the span with span.End().
//
//nolint:spancheck // Caller is responsible for ending the span
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := p.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, span
}
