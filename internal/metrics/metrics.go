package metrics

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestDuration tracks HTTP request duration in seconds by method, path, status.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts HTTP requests by method, path, status.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// BlocksCommittedTotal counts blocks appended to the chain.
	BlocksCommittedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_blocks_committed_total",
			Help: "Total number of blocks committed to the ledger",
		},
	)

	// CommitFailuresTotal counts commits that exhausted their retries.
	CommitFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_commit_failures_total",
			Help: "Total number of events that failed to commit after retries",
		},
	)

	// IngestQueueDepth is the current depth of the ingestion queue.
	IngestQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_ingest_queue_depth",
			Help: "Number of events waiting in the ingestion queue",
		},
	)

	// MirrorFailuresTotal counts failed secondary-ledger mirror attempts.
	MirrorFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_mirror_failures_total",
			Help: "Total number of failed secondary-ledger mirror writes",
		},
	)

	// VerificationRunsTotal counts chain verification runs by result (verified, failed).
	VerificationRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_verification_runs_total",
			Help: "Total number of chain verification runs by result",
		},
		[]string{"result"},
	)

	// AnomalyAlertsTotal counts anomaly-detector alerts.
	AnomalyAlertsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_anomaly_alerts_total",
			Help: "Total number of anomaly alerts raised",
		},
	)
)

var (
	numericPathSegment = regexp.MustCompile(`/[0-9]+(/|$)`)
	initOnce           sync.Once
)

func init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestDuration, RequestTotal,
			BlocksCommittedTotal, CommitFailuresTotal, IngestQueueDepth,
			MirrorFailuresTotal, VerificationRunsTotal, AnomalyAlertsTotal,
		)
	})
}

// NormalizePath reduces cardinality by replacing numeric path segments with {id}.
// E.g. /v1/blocks/123 -> /v1/blocks/{id}.
func NormalizePath(path string) string {
	return numericPathSegment.ReplaceAllString(path, "/{id}$1")
}

// RecordRequest records duration and count for an HTTP request. Call from middleware with method, path, statusCode, duration.
func RecordRequest(method, path string, statusCode int, durationSeconds float64) {
	path = NormalizePath(path)
	status := strconv.Itoa(statusCode)
	RequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	RequestTotal.WithLabelValues(method, path, status).Inc()
}

// IncBlocksCommitted increments the committed-blocks counter.
func IncBlocksCommitted() {
	BlocksCommittedTotal.Inc()
}

// IncCommitFailures increments the exhausted-commit counter.
func IncCommitFailures() {
	CommitFailuresTotal.Inc()
}

// SetIngestQueueDepth records the current ingestion queue depth.
func SetIngestQueueDepth(depth int) {
	IngestQueueDepth.Set(float64(depth))
}

// IncMirrorFailures increments the mirror-failure counter.
func IncMirrorFailures() {
	MirrorFailuresTotal.Inc()
}

// IncVerificationRuns increments the verification counter for the given result (verified, failed).
func IncVerificationRuns(result string) {
	VerificationRunsTotal.WithLabelValues(result).Inc()
}

// IncAnomalyAlerts increments the anomaly alert counter.
func IncAnomalyAlerts() {
	AnomalyAlertsTotal.Inc()
}
