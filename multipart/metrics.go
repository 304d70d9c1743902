package multipart

import "github.com/prometheus/client_golang/prometheus"

// Metrics tracks Prometheus counters for the multipart hot path and the
// sweeper. All methods are nil-receiver safe, so a Coordinator/Sweeper
// built without NewMetrics simply records nothing.
type Metrics struct {
	PartsUploadedTotal   *prometheus.CounterVec
	SessionsFinishedTotal *prometheus.CounterVec
	SessionsSweptTotal   prometheus.Counter
}

// NewMetrics registers the multipart_ prefixed metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PartsUploadedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multipart_parts_uploaded_total",
				Help: "Total chunk uploads accepted by the multipart coordinator.",
			},
			[]string{"outcome"},
		),
		SessionsFinishedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "multipart_sessions_finished_total",
				Help: "Total multipart sessions finished, by how they ended.",
			},
			[]string{"outcome"},
		),
		SessionsSweptTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "multipart_sessions_swept_total",
				Help: "Total multipart sessions reclaimed by the expiry sweeper.",
			},
		),
	}

	reg.MustRegister(m.PartsUploadedTotal, m.SessionsFinishedTotal, m.SessionsSweptTotal)
	return m
}

func (m *Metrics) recordPart(outcome string) {
	if m == nil {
		return
	}
	m.PartsUploadedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordSessionFinished(outcome string) {
	if m == nil {
		return
	}
	m.SessionsFinishedTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordSwept() {
	if m == nil {
		return
	}
	m.SessionsSweptTotal.Inc()
}
