package ethereum

import "github.com/prometheus/client_golang/prometheus"

var (
	rpcRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethpayload",
		Subsystem: "engine",
		Name:      "requests_total",
		Help:      "JSON-RPC requests sent to the execution client.",
	}, []string{"method"})

	rpcErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethpayload",
		Subsystem: "engine",
		Name:      "errors_total",
		Help:      "JSON-RPC requests that failed in transport or returned an error object.",
	}, []string{"method"})

	rpcDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ethpayload",
		Subsystem: "engine",
		Name:      "request_duration_seconds",
		Help:      "Latency of JSON-RPC requests to the execution client.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	payloadStatuses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ethpayload",
		Subsystem: "engine",
		Name:      "payload_status_total",
		Help:      "engine_newPayload results by status.",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(rpcRequests, rpcErrors, rpcDuration, payloadStatuses)
}
