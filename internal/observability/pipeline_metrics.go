package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Answer outcomes.
const (
	OutcomeAnswered = "answered"
	OutcomeHelp     = "help"
	OutcomeEmpty    = "empty"
	OutcomeFailed   = "failed"
)

var (
	answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detectql_answers_total",
			Help: "Total number of answered prompts by outcome.",
		},
		[]string{"outcome"},
	)
	answerLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "detectql_answer_latency_seconds",
			Help:    "End to end latency of answering a prompt.",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 40, 80},
		},
	)
	droppedFiltersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detectql_dropped_filters_total",
			Help: "Filters removed because their column does not exist in the table.",
		},
		[]string{"table"},
	)
	dateFallbacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "detectql_date_fallbacks_total",
			Help: "Date references that could not be parsed and fell back to today.",
		},
	)
	skippedQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detectql_skipped_queries_total",
			Help: "Structured queries skipped by reason.",
		},
		[]string{"reason"},
	)
	comparisonReportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detectql_comparison_reports_total",
			Help: "Comparison reports built by kind.",
		},
		[]string{"kind"},
	)
	sqlExecutionSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detectql_sql_execution_seconds",
			Help:    "Latency of generated SQL statements.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
	archivedExchangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detectql_archived_exchanges_total",
			Help: "Exchanges written to the archive by status.",
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		answersTotal,
		answerLatencySeconds,
		droppedFiltersTotal,
		dateFallbacksTotal,
		skippedQueriesTotal,
		comparisonReportsTotal,
		sqlExecutionSeconds,
		archivedExchangesTotal,
	)
}

func ObserveAnswer(outcome string, elapsed time.Duration) {
	answersTotal.WithLabelValues(outcome).Inc()
	answerLatencySeconds.Observe(elapsed.Seconds())
}

func IncDroppedFilter(table string) {
	droppedFiltersTotal.WithLabelValues(table).Inc()
}

func IncDateFallback() {
	dateFallbacksTotal.Inc()
}

func IncSkippedQuery(reason string) {
	skippedQueriesTotal.WithLabelValues(reason).Inc()
}

func IncComparisonReport(kind string) {
	comparisonReportsTotal.WithLabelValues(kind).Inc()
}

func ObserveSQLExecution(err error, elapsed time.Duration) {
	sqlExecutionSeconds.WithLabelValues(statusLabel(err)).Observe(elapsed.Seconds())
}

func IncArchivedExchange(err error) {
	archivedExchangesTotal.WithLabelValues(statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
