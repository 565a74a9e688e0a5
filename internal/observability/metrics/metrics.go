// Package metrics provides Prometheus instrumentation for holdergate.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Verification domain metrics
	verificationTotal    *prometheus.CounterVec
	challengeIssuedTotal prometheus.Counter
	transferScanTotal    *prometheus.CounterVec

	// Chain RPC metrics
	rpcErrorsTotal *prometheus.CounterVec

	// External dependency metrics
	holdingsLookupTotal *prometheus.CounterVec
	roleGrantTotal      *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Verification outcome counter
	verificationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_request_total",
			Help: "Total number of ownership verification attempts",
		},
		[]string{"network", "result"},
	)

	// Challenge issuance counter
	challengeIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "challenge_issued_total",
			Help: "Total number of fresh challenges issued",
		},
	)

	// Transfer scan counter
	transferScanTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "transfer_scan_total",
			Help: "Total number of challenge transfer scans",
		},
		[]string{"network", "outcome"},
	)

	// Chain RPC error counter
	rpcErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rpc_errors_total",
			Help: "Total number of chain RPC failures",
		},
		[]string{"network"},
	)

	// Holdings API lookup counter
	holdingsLookupTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holdings_lookup_total",
			Help: "Total number of holdings API lookups",
		},
		[]string{"status"},
	)

	// Role grant/revoke counter
	roleGrantTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "role_grant_total",
			Help: "Total number of role grant and revoke calls",
		},
		[]string{"operation", "status"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// RecordVerification counts one verification attempt by network and result.
func RecordVerification(network, result string) {
	if !enabled {
		return
	}
	verificationTotal.WithLabelValues(network, result).Inc()
}

// RecordChallengeIssued counts one freshly issued challenge.
func RecordChallengeIssued() {
	if !enabled {
		return
	}
	challengeIssuedTotal.Inc()
}

// RecordTransferScan counts one scan by outcome (found, not_found, error).
func RecordTransferScan(network, outcome string) {
	if !enabled {
		return
	}
	transferScanTotal.WithLabelValues(network, outcome).Inc()
}

// RecordRPCError counts one chain RPC failure.
func RecordRPCError(network string) {
	if !enabled {
		return
	}
	rpcErrorsTotal.WithLabelValues(network).Inc()
}

// RecordHoldingsLookup counts one holdings API lookup by status.
func RecordHoldingsLookup(status string) {
	if !enabled {
		return
	}
	holdingsLookupTotal.WithLabelValues(status).Inc()
}

// RecordRoleCall counts one role grant or revoke by status.
func RecordRoleCall(operation, status string) {
	if !enabled {
		return
	}
	roleGrantTotal.WithLabelValues(operation, status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}
