package store

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	storeOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethpayload",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Envelope store operations by kind and result.",
	}, []string{"op", "result"})

	storeEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "ethpayload",
		Subsystem: "store",
		Name:      "entries",
		Help:      "Block numbers currently held in the store index.",
	})

	cacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "ethpayload",
		Subsystem: "store",
		Name:      "cache_hits_total",
		Help:      "Envelope reads served from the in-memory cache.",
	})
)

func init() {
	prometheus.MustRegister(storeOps, storeEntries, cacheHits)
}

func observe(op string, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	storeOps.WithLabelValues(op, result).Inc()
}
