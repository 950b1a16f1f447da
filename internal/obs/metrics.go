package obs

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	initOnce sync.Once

	backendInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ballot_backend_in_flight_requests",
		Help: "In-flight requests to the voting backend.",
	})

	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballot_backend_requests_total",
			Help: "Total number of requests sent to the voting backend.",
		},
		[]string{"method", "path", "status"},
	)

	backendRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ballot_backend_request_duration_seconds",
			Help:    "Voting backend request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ballot_operations_total",
			Help: "State machine operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ballot_build_info",
			Help: "Constant 1 labelled with the running client build.",
		},
		[]string{"version", "commit", "goversion"},
	)
)

// Init registers client metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(backendInFlight, backendRequestsTotal, backendRequestDuration, operationsTotal, buildInfo)
	})
}

// SetBuildInfo labels ballot_build_info with this build. Only the latest
// build is kept.
func SetBuildInfo(version, commit string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}

// BackendRequestStarted marks a request as in flight and returns the
// function that records its completion. status 0 means no response arrived.
func BackendRequestStarted(method, path string) func(status int) {
	backendInFlight.Inc()
	start := time.Now()
	path = CanonicalPath(path)
	return func(status int) {
		label := "error"
		if status > 0 {
			label = strconv.Itoa(status)
		}
		backendRequestDuration.WithLabelValues(method, path, label).Observe(time.Since(start).Seconds())
		backendRequestsTotal.WithLabelValues(method, path, label).Inc()
		backendInFlight.Dec()
	}
}

// ObserveOperation counts an operation outcome ("ok" or an error kind).
func ObserveOperation(operation, outcome string) {
	operationsTotal.WithLabelValues(operation, outcome).Inc()
}

// CanonicalPath strips the query string and collapses numeric segments to
// ":id" so per-candidate paths share one label value.
func CanonicalPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if _, err := strconv.ParseUint(part, 10, 64); err == nil {
			parts[i] = ":id"
		}
	}
	return strings.Join(parts, "/")
}
