package runs

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mohammad-safakhou/wikiwriter/internal/article"
	"github.com/mohammad-safakhou/wikiwriter/internal/helpers"
	"github.com/mohammad-safakhou/wikiwriter/internal/stage"
)

// Metrics are the run counters exported at /metrics.
type Metrics struct {
	Submitted prometheus.Counter
	Finished  *prometheus.CounterVec
	Duration  prometheus.Histogram
	Failures  *prometheus.CounterVec
}

// NewMetrics creates the run metrics and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Submitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wikiwriter_runs_submitted_total",
			Help: "Runs accepted for generation.",
		}),
		Finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wikiwriter_runs_finished_total",
			Help: "Runs that reached a terminal status.",
		}, []string{"status"}),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wikiwriter_run_duration_seconds",
			Help:    "Wall time from kickoff to terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 900},
		}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wikiwriter_run_failures_total",
			Help: "Failed runs by cause.",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Submitted, m.Finished, m.Duration, m.Failures)
	}
	return m
}

// FailureKind classifies err for the failures counter.
func FailureKind(err error) string {
	var (
		extractErr   *helpers.ExtractionError
		schemaErr    *article.SchemaError
		wordCountErr *article.WordCountError
		genErr       *stage.GenerationError
		panicErr     *PanicError
	)
	switch {
	case errors.As(err, &extractErr):
		return "extraction"
	case errors.As(err, &schemaErr):
		return "schema"
	case errors.As(err, &wordCountErr):
		return "word_count"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &genErr):
		return "generation"
	case errors.As(err, &panicErr):
		return "panic"
	default:
		return "other"
	}
}
