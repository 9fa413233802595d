// Package metrics holds the Prometheus collectors for drive operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the drive service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Operation metrics
	OperationsTotal   *prometheus.CounterVec   // stratadrive_operations_total{operation,result}
	OperationDuration *prometheus.HistogramVec // stratadrive_operation_duration_seconds{operation}

	// Upload metrics
	FilesUploaded  prometheus.Counter     // stratadrive_files_uploaded_total
	BytesUploaded  prometheus.Counter     // stratadrive_bytes_uploaded_total
	CreditsDebited prometheus.Counter     // stratadrive_credits_debited_total
	Rejections     *prometheus.CounterVec // stratadrive_upload_rejections_total{reason}

	// Cleanup metrics
	BlobDeleteFailures prometheus.Counter // stratadrive_blob_delete_failures_total
}

// New registers the drive metrics with registry. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	f := promauto.With(registry)

	return &Metrics{
		OperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stratadrive_operations_total",
			Help: "Drive operations by operation and result",
		}, []string{"operation", "result"}),

		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stratadrive_operation_duration_seconds",
			Help:    "Drive operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),

		FilesUploaded: f.NewCounter(prometheus.CounterOpts{
			Name: "stratadrive_files_uploaded_total",
			Help: "Files committed by successful uploads",
		}),

		BytesUploaded: f.NewCounter(prometheus.CounterOpts{
			Name: "stratadrive_bytes_uploaded_total",
			Help: "Bytes committed by successful uploads",
		}),

		CreditsDebited: f.NewCounter(prometheus.CounterOpts{
			Name: "stratadrive_credits_debited_total",
			Help: "Credits consumed by successful uploads",
		}),

		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "stratadrive_upload_rejections_total",
			Help: "Upload batches rejected by the quota ledger",
		}, []string{"reason"}),

		BlobDeleteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "stratadrive_blob_delete_failures_total",
			Help: "Best-effort blob deletions that failed",
		}),
	}
}

// ObserveOp records one operation's outcome and latency.
func (m *Metrics) ObserveOp(operation, result string, started time.Time) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// RecordUpload records a committed upload batch.
func (m *Metrics) RecordUpload(files int, bytes, credits int64) {
	if m == nil {
		return
	}
	m.FilesUploaded.Add(float64(files))
	m.BytesUploaded.Add(float64(bytes))
	m.CreditsDebited.Add(float64(credits))
}

// RecordRejection records an upload batch refused by the ledger.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(reason).Inc()
}

// RecordBlobDeleteFailure records a failed best-effort blob deletion.
func (m *Metrics) RecordBlobDeleteFailure() {
	if m == nil {
		return
	}
	m.BlobDeleteFailures.Inc()
}
