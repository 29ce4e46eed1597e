package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabsql_translations_total",
			Help: "Total number of questions translated to SQL, by source.",
		},
		[]string{"source"},
	)
	aiFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabsql_ai_failures_total",
			Help: "Total number of AI translation attempts that fell back to the heuristic, by kind.",
		},
		[]string{"kind"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabsql_query_executions_total",
			Help: "Total number of SQL executions, by status.",
		},
		[]string{"status"},
	)
	queryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tabsql_query_duration_seconds",
			Help:    "SQL execution latency including table load.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
	coercedColumnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tabsql_coerced_columns_total",
			Help: "Total number of uploaded columns by kind after coercion.",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(
		translationsTotal,
		aiFailuresTotal,
		queryExecutionsTotal,
		queryDurationSeconds,
		coercedColumnsTotal,
	)
}

func ObserveTranslation(source string) {
	translationsTotal.WithLabelValues(source).Inc()
}

func ObserveAIFailure(kind string) {
	if kind == "" {
		kind = "unknown"
	}
	aiFailuresTotal.WithLabelValues(kind).Inc()
}

func ObserveQueryExecution(err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	queryExecutionsTotal.WithLabelValues(status).Inc()
	queryDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveCoercedColumns(numeric, temporal, text int) {
	if numeric > 0 {
		coercedColumnsTotal.WithLabelValues("numeric").Add(float64(numeric))
	}
	if temporal > 0 {
		coercedColumnsTotal.WithLabelValues("temporal").Add(float64(temporal))
	}
	if text > 0 {
		coercedColumnsTotal.WithLabelValues("text").Add(float64(text))
	}
}
