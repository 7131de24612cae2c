package retrieval

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcomes of a retrieval.
const (
	outcomeComplete = "complete"
	outcomePartial  = "partial"
	outcomeFailed   = "failed"
	outcomeRefused  = "rate_limited"
	outcomeStopped  = "stopped"
)

var (
	retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "instantly_retrievals_total",
		Help: "Total retrievals by operation and outcome",
	}, []string{"operation", "outcome"})

	retrievalPages = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "instantly_retrieval_pages",
		Help:    "Pages fetched per retrieval by operation",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
	}, []string{"operation"})
)
