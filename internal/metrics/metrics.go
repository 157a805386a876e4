package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters for conversation turns and bookings. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	turnsTotal         *prometheus.CounterVec
	reservationsTotal  *prometheus.CounterVec
	reservationLatency prometheus.Histogram
	notificationsTotal *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "intake",
			Name:      "turns_total",
			Help:      "Conversation turns handled, by the stage the turn started in",
		}, []string{"stage"}),
		reservationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "schedule",
			Name:      "reservations_total",
			Help:      "Slot reservation attempts by outcome",
		}, []string{"outcome"}),
		reservationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "schedule",
			Name:      "reservation_latency_seconds",
			Help:      "Time spent holding the store lock and rewriting the workbook",
			Buckets:   prometheus.DefBuckets,
		}),
		notificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "outbox",
			Name:      "artifacts_total",
			Help:      "Simulated notification artifacts by kind and status",
		}, []string{"kind", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.reservationsTotal, m.reservationLatency, m.notificationsTotal)
	return m
}

func (m *Metrics) ObserveTurn(stage string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveReservation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.reservationsTotal.WithLabelValues(outcome).Inc()
	m.reservationLatency.Observe(seconds)
}

func (m *Metrics) ObserveNotification(kind, status string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind, status).Inc()
}
