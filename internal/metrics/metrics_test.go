package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveTurn("collect")
	m.ObserveTurn("collect")
	m.ObserveReservation("booked", 0.01)
	m.ObserveReservation("already_booked", 0.002)
	m.ObserveNotification("email", "written")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turnsTotal.WithLabelValues("collect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reservationsTotal.WithLabelValues("booked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notificationsTotal.WithLabelValues("email", "written")))
	assert.Equal(t, 3, testutil.CollectAndCount(m.reservationsTotal)+testutil.CollectAndCount(m.reservationLatency))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("greet")
	m.ObserveReservation("booked", 1)
	m.ObserveNotification("sms", "failed")
}
