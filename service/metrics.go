package service

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks Prometheus counters/histograms for StorageService
// operations. All methods are nil-receiver safe.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	BytesReclaimed    prometheus.Counter
}

// NewMetrics registers the storage_ prefixed metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storage_operations_total",
				Help: "Total StorageService operations by name and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storage_operation_duration_seconds",
				Help:    "StorageService operation duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		BytesReclaimed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "storage_bytes_reclaimed_total",
				Help: "Total bytes released back to user quotas by hard delete.",
			},
		),
	}
	reg.MustRegister(m.OperationsTotal, m.OperationDuration, m.BytesReclaimed)
	return m
}

func (m *Metrics) record(operation, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

func (m *Metrics) recordReclaimed(bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.BytesReclaimed.Add(float64(bytes))
}
