// Package stats provides the Prometheus metrics of factorio-chill.
package stats

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label values
const (
	DirectionUp   = "up"
	DirectionDown = "down"

	OutcomeSuccess      = "success"
	OutcomePartial      = "partial"
	OutcomeFailure      = "failure"
	OutcomeUnauthorized = "unauthorized"
)

var (
	// Command metrics
	commandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factorio_chill_commands_total",
			Help: "Total number of chat commands handled",
		},
		[]string{"command", "outcome"},
	)

	repliesFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "factorio_chill_replies_failed_total",
			Help: "Total number of chat replies that could not be sent",
		},
	)

	// Scaling metrics
	scaleOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factorio_chill_scale_operations_total",
			Help: "Total number of scale operations",
		},
		[]string{"direction", "status"},
	)

	scaleOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factorio_chill_scale_operation_duration_seconds",
			Help:    "Scale operation duration in seconds, credential resolution included",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"direction"},
	)

	// Current state metrics
	currentReplicas = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "factorio_chill_current_replicas",
			Help: "Replica count written by the last successful scale operation",
		},
	)

	// HTTP metrics
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "factorio_chill_http_requests_total",
			Help: "Total number of HTTP requests served",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "factorio_chill_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	nodeExternalIPs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "factorio_chill_node_external_ips",
			Help: "Number of nodes with an external IP at the last listing",
		},
	)
)

// MetricsRecorder handles recording metrics
type MetricsRecorder struct{}

// NewMetricsRecorder creates a new metrics recorder
func NewMetricsRecorder() *MetricsRecorder {
	return &MetricsRecorder{}
}

// RecordCommand records a handled chat command
func (mr *MetricsRecorder) RecordCommand(command, outcome string) {
	commandsTotal.WithLabelValues(command, outcome).Inc()
}

// RecordReplyFailure records a reply that could not be delivered
func (mr *MetricsRecorder) RecordReplyFailure() {
	repliesFailed.Inc()
}

// RecordScaleOp records a scale operation
func (mr *MetricsRecorder) RecordScaleOp(direction string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}

	scaleOps.WithLabelValues(direction, status).Inc()
	if success {
		scaleOpDuration.WithLabelValues(direction).Observe(duration.Seconds())
	}
}

// UpdateReplicas updates the current replica count
func (mr *MetricsRecorder) UpdateReplicas(replicas int32) {
	currentReplicas.Set(float64(replicas))
}

// UpdateExternalIPs records how many nodes exposed an external IP
func (mr *MetricsRecorder) UpdateExternalIPs(count int) {
	nodeExternalIPs.Set(float64(count))
}

// RecordHTTPRequest records a served HTTP request
func (mr *MetricsRecorder) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
