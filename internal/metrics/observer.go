package metrics

import (
	"errors"
	"fmt"
	"time"

	uniforme_errors "uniforme-api/pkg/errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Observer captures telemetry for attachment operations.
type Observer interface {
	RecordOperation(operation string, duration time.Duration, err error)
	RecordUploadedBytes(sizeBytes int64)
	RecordStorageFailure(operation string)
}

// NopObserver drops every measurement.
type NopObserver struct{}

func (NopObserver) RecordOperation(string, time.Duration, error) {}
func (NopObserver) RecordUploadedBytes(int64)                    {}
func (NopObserver) RecordStorageFailure(string)                  {}

// PrometheusObserver exports attachment metrics to Prometheus.
type PrometheusObserver struct {
	duration        *prometheus.HistogramVec
	operations      *prometheus.CounterVec
	storageFailures *prometheus.CounterVec
	uploadedBytes   prometheus.Counter
}

// NewPrometheusObserver registers the attachment collectors on reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "attachments"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	o := &PrometheusObserver{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of attachment operations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Attachment operations by outcome.",
		}, []string{"operation", "outcome"}),
		storageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_failures_total",
			Help:      "Object store calls that failed.",
		}, []string{"operation"}),
		uploadedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Declared size of committed attachments.",
		}),
	}
	collectors := []prometheus.Collector{o.duration, o.operations, o.storageFailures, o.uploadedBytes}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register attachment metric: %w", err)
		}
	}
	return o, nil
}

func (o *PrometheusObserver) RecordOperation(operation string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(operation).Observe(duration.Seconds())
	o.operations.WithLabelValues(operation, Outcome(err)).Inc()
}

var clientErrors = []error{
	uniforme_errors.ErrInvalidInput,
	uniforme_errors.ErrOwnership,
	uniforme_errors.ErrUnsupportedMedia,
	uniforme_errors.ErrTooLarge,
	uniforme_errors.ErrKeyMismatch,
	uniforme_errors.ErrKeyRecorded,
	uniforme_errors.ErrNotFound,
	uniforme_errors.ErrNotUploaded,
	uniforme_errors.ErrConflict,
}

// Outcome labels err as "ok", "client_error" (caller's fault) or "error".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	for _, target := range clientErrors {
		if errors.Is(err, target) {
			return "client_error"
		}
	}
	return "error"
}

func (o *PrometheusObserver) RecordUploadedBytes(sizeBytes int64) {
	if o == nil || sizeBytes <= 0 {
		return
	}
	o.uploadedBytes.Add(float64(sizeBytes))
}

func (o *PrometheusObserver) RecordStorageFailure(operation string) {
	if o == nil {
		return
	}
	o.storageFailures.WithLabelValues(operation).Inc()
}
