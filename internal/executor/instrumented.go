package executor

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/conduit-lang/metricsd/internal/metrics/snql"
)

const metricsPrefix = "metricsd_executor_"

// InstrumentedExecutor records query counts, failures and latencies
type InstrumentedExecutor struct {
	next     Executor
	queries  *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewInstrumentedExecutor wraps next and registers its collectors with reg
func NewInstrumentedExecutor(next Executor, reg prometheus.Registerer) *InstrumentedExecutor {
	factory := promauto.With(reg)
	return &InstrumentedExecutor{
		next: next,
		queries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "queries_total",
				Help: "Number of metrics queries submitted, by referrer and entity",
			},
			[]string{"referrer", "entity"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "query_failures_total",
				Help: "Number of metrics queries that failed, by referrer and entity",
			},
			[]string{"referrer", "entity"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricsPrefix + "query_duration_seconds",
				Help:    "Time taken to execute a metrics query",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"referrer"},
		),
	}
}

// Execute runs q through the wrapped executor
func (e *InstrumentedExecutor) Execute(ctx context.Context, q *snql.Query, referrer string, useCache bool) (*Result, error) {
	e.queries.WithLabelValues(referrer, q.Match).Inc()

	start := time.Now()
	result, err := e.next.Execute(ctx, q, referrer, useCache)
	e.duration.WithLabelValues(referrer).Observe(time.Since(start).Seconds())

	if err != nil {
		e.failures.WithLabelValues(referrer, q.Match).Inc()
	}
	return result, err
}
