package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instantly_retrieval_fetches_total",
		Help: "Page fetches recorded by retrieval sessions, by operation",
	}, []string{"operation"})

	itemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instantly_retrieval_items_total",
		Help: "Items retrieved by retrieval sessions, by operation",
	}, []string{"operation"})

	fetchErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instantly_retrieval_errors_total",
		Help: "Failed page fetches recorded by retrieval sessions, by operation",
	}, []string{"operation"})

	abortsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instantly_retrieval_aborts_total",
		Help: "Retrievals stopped early, by operation and reason",
	}, []string{"operation", "reason"})

	sessionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "instantly_retrieval_duration_seconds",
		Help:    "Wall-clock duration of retrieval sessions, by operation",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 45, 60},
	}, []string{"operation"})
)

func observe(sum Summary) {
	fetchesTotal.WithLabelValues(sum.Operation).Add(float64(sum.Calls))
	itemsTotal.WithLabelValues(sum.Operation).Add(float64(sum.Items))
	fetchErrorsTotal.WithLabelValues(sum.Operation).Add(float64(sum.Errors))
	sessionDuration.WithLabelValues(sum.Operation).Observe(sum.Elapsed.Seconds())
}
