package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric emitted by the orchestrator.
type Metrics struct {
	BatchesCreated   *prometheus.CounterVec
	BatchesCompleted *prometheus.CounterVec
	BatchDuration    *prometheus.HistogramVec
	BatchJobsTotal   *prometheus.CounterVec
	BatchJobDuration *prometheus.HistogramVec
	BatchJobErrors   *prometheus.CounterVec

	CompensationChains   *prometheus.CounterVec
	CompensationJobsRun  *prometheus.CounterVec

	QueueDepth          *prometheus.GaugeVec
	QueueEnqueueTotal   *prometheus.CounterVec
	QueueDequeueTotal   *prometheus.CounterVec
	QueueProcessingTime *prometheus.HistogramVec

	StorageOperations *prometheus.CounterVec
	StorageErrors     *prometheus.CounterVec
	StorageLatency    *prometheus.HistogramVec

	HTTPRequestsInFlight prometheus.Gauge
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

// NewMetrics creates and registers every Prometheus collector.
func NewMetrics() *Metrics {
	return &Metrics{
		BatchesCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_batches_created_total",
				Help: "Total number of batches created",
			},
			[]string{"type"},
		),
		BatchesCompleted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_batches_completed_total",
				Help: "Total number of batches reaching a terminal state",
			},
			[]string{"type", "status"},
		),
		BatchDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batchqueue_batch_duration_seconds",
				Help:    "Wall-clock duration from batch creation to terminal state",
				Buckets: []float64{.5, 1, 5, 10, 30, 60, 300, 900},
			},
			[]string{"type"},
		),
		BatchJobsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_batch_jobs_total",
				Help: "Total number of batch jobs processed",
			},
			[]string{"class", "status"},
		),
		BatchJobDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batchqueue_batch_job_duration_seconds",
				Help:    "Batch job execution duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"class"},
		),
		BatchJobErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_batch_job_errors_total",
				Help: "Total number of batch job execution errors",
			},
			[]string{"class"},
		),
		CompensationChains: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_compensation_chains_total",
				Help: "Total number of compensation chains launched",
			},
			[]string{"status"},
		),
		CompensationJobsRun: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_compensation_jobs_total",
				Help: "Total number of compensation jobs executed",
			},
			[]string{"status"},
		),
		QueueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "batchqueue_queue_depth",
				Help: "Current queue depth",
			},
			[]string{"queue_name"},
		),
		QueueEnqueueTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_queue_enqueue_total",
				Help: "Total number of messages enqueued",
			},
			[]string{"queue_name"},
		),
		QueueDequeueTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_queue_dequeue_total",
				Help: "Total number of messages dequeued",
			},
			[]string{"queue_name"},
		),
		QueueProcessingTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batchqueue_queue_processing_time_seconds",
				Help:    "Per-message processing time in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"queue_name"},
		),
		StorageOperations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),
		StorageErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"operation"},
		),
		StorageLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batchqueue_storage_latency_seconds",
				Help:    "Storage operation latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "batchqueue_http_requests_in_flight",
				Help: "Number of HTTP requests currently being served",
			},
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batchqueue_http_requests_total",
				Help: "Total number of HTTP requests served by the introspection API",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "batchqueue_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordBatchCreated records a newly dispatched batch.
func (m *Metrics) RecordBatchCreated(batchType string) {
	m.BatchesCreated.WithLabelValues(batchType).Inc()
}

// RecordBatchTerminal records a batch reaching completed/failed.
func (m *Metrics) RecordBatchTerminal(batchType, status string, duration time.Duration) {
	m.BatchesCompleted.WithLabelValues(batchType, status).Inc()
	m.BatchDuration.WithLabelValues(batchType).Observe(duration.Seconds())
}

// RecordJob records a single job execution.
func (m *Metrics) RecordJob(class, status string, duration time.Duration) {
	m.BatchJobsTotal.WithLabelValues(class, status).Inc()
	m.BatchJobDuration.WithLabelValues(class).Observe(duration.Seconds())
	if status == "failed" {
		m.BatchJobErrors.WithLabelValues(class).Inc()
	}
}

// RecordStorageOp records a storage call outcome.
func (m *Metrics) RecordStorageOp(operation string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
		m.StorageErrors.WithLabelValues(operation).Inc()
	}
	m.StorageOperations.WithLabelValues(operation, status).Inc()
	m.StorageLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordHTTPRequest records one served HTTP request on the
// introspection API.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler returns the Prometheus metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
