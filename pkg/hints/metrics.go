package hints

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	storeMemory = "memory"
	storeRedis  = "redis"
)

var (
	hintHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instantly_hints_hits_total",
			Help: "Total number of size hint lookups that found a live hint",
		},
		[]string{"store"}, // "memory", "redis"
	)

	hintMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instantly_hints_misses_total",
			Help: "Total number of size hint lookups without a live hint",
		},
		[]string{"store"},
	)

	hintErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "instantly_hints_errors_total",
			Help: "Total number of size hint store errors",
		},
		[]string{"operation"}, // "get", "set", "delete"
	)
)
