// Package metrics exposes Prometheus collectors for batches, rows and analyzer calls.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shpitdev/review-insight-pipeline/internal/analyzer"
	"github.com/shpitdev/review-insight-pipeline/internal/batch"
)

// Batch states reported by BatchFinished.
const (
	BatchSucceeded = "succeeded"
	BatchFailed    = "failed"
	BatchCanceled  = "canceled"
)

// Recorder owns the collectors. Register it on a dedicated registry in tests.
type Recorder struct {
	rowsTotal     *prometheus.CounterVec
	callsTotal    *prometheus.CounterVec
	callSeconds   *prometheus.HistogramVec
	confidence    *prometheus.HistogramVec
	batchesTotal  *prometheus.CounterVec
	batchesActive prometheus.Gauge
}

func New(reg prometheus.Registerer) *Recorder {
	m := &Recorder{
		rowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_rows_total",
				Help: "Rows processed by outcome (success, skipped, failed)",
			},
			[]string{"outcome"},
		),
		callsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_analyzer_calls_total",
				Help: "Analyzer calls by operation and status, counting every retry attempt",
			},
			[]string{"op", "status"},
		),
		callSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "review_analyzer_call_seconds",
				Help:    "Latency of analyzer calls",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"op"},
		),
		confidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "review_sentiment_confidence",
				Help:    "Distribution of sentiment confidence scores by label",
				Buckets: []float64{0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 0.98, 0.99, 1.0},
			},
			[]string{"sentiment"},
		),
		batchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "review_batches_total",
				Help: "Finished batches by terminal state",
			},
			[]string{"state"},
		),
		batchesActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "review_batches_active",
				Help: "Batches accepted and not yet finished (pending or running)",
			},
		),
	}
	reg.MustRegister(
		m.rowsTotal,
		m.callsTotal,
		m.callSeconds,
		m.confidence,
		m.batchesTotal,
		m.batchesActive,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RowDone implements batch.Observer.
func (m *Recorder) RowDone(_ int, o batch.Outcome) {
	m.rowsTotal.WithLabelValues(o.Status.String()).Inc()
}

// BatchStarted marks a batch as accepted.
func (m *Recorder) BatchStarted() {
	m.batchesActive.Inc()
}

// BatchFinished records a terminal batch state.
func (m *Recorder) BatchFinished(state string) {
	m.batchesActive.Dec()
	m.batchesTotal.WithLabelValues(state).Inc()
}

func callStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case analyzer.IsPermission(err):
		return "permission"
	case analyzer.IsTransient(err):
		return "transient"
	}
	return "error"
}

type instrumented struct {
	next analyzer.Analyzer
	m    *Recorder
}

// Instrument counts and times every call made through next.
// Wrap it inside the retry decorator so that each attempt is observed.
func (m *Recorder) Instrument(next analyzer.Analyzer) analyzer.Analyzer {
	return &instrumented{next: next, m: m}
}

func (i *instrumented) observe(op analyzer.Op, start time.Time, err error) {
	i.m.callSeconds.WithLabelValues(string(op)).Observe(time.Since(start).Seconds())
	i.m.callsTotal.WithLabelValues(string(op), callStatus(err)).Inc()
}

func (i *instrumented) Sentiment(ctx context.Context, req analyzer.Request) (analyzer.Sentiment, error) {
	start := time.Now()
	s, err := i.next.Sentiment(ctx, req)
	i.observe(analyzer.OpSentiment, start, err)
	if err == nil {
		i.m.confidence.WithLabelValues(string(s.Label)).Observe(s.Confidence)
	}
	return s, err
}

func (i *instrumented) Summary(ctx context.Context, req analyzer.Request) (string, error) {
	start := time.Now()
	s, err := i.next.Summary(ctx, req)
	i.observe(analyzer.OpSummary, start, err)
	return s, err
}

func (i *instrumented) Aspects(ctx context.Context, req analyzer.Request) ([]analyzer.Aspect, error) {
	start := time.Now()
	as, err := i.next.Aspects(ctx, req)
	i.observe(analyzer.OpAspects, start, err)
	return as, err
}

func (i *instrumented) ReplyDraft(ctx context.Context, req analyzer.Request, prior analyzer.Label) (string, error) {
	start := time.Now()
	s, err := i.next.ReplyDraft(ctx, req, prior)
	i.observe(analyzer.OpReply, start, err)
	return s, err
}
