package metrics

import "github.com/prometheus/client_golang/prometheus"

// EngineMetrics exposes counters/histograms for the scheduling engine.
// A nil *EngineMetrics is a valid no-op receiver.
type EngineMetrics struct {
	bookingAttempts *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	sweepReminders  prometheus.Counter
	sweepNoShows    prometheus.Counter
	sweepDuration   prometheus.Histogram
}

// NewEngineMetrics registers the engine collectors on reg (default registry
// when nil).
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	m := &EngineMetrics{
		bookingAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "bookings",
			Name:      "attempts_total",
			Help:      "Booking attempts by outcome",
		}, []string{"result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Status transition attempts by target state and outcome",
		}, []string{"to", "result"}),
		sweepReminders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "monitor",
			Name:      "reminders_sent_total",
			Help:      "Confirmation reminders dispatched by the sweep",
		}),
		sweepNoShows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "scheduler",
			Subsystem: "monitor",
			Name:      "no_show_total",
			Help:      "Appointments lapsed to no_show by the sweep",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "scheduler",
			Subsystem: "monitor",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of monitor sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingAttempts, m.transitions, m.sweepReminders, m.sweepNoShows, m.sweepDuration)
	return m
}

// BookingAttempt records a booking attempt outcome: created, conflict,
// invalid or error.
func (m *EngineMetrics) BookingAttempt(result string) {
	if m == nil {
		return
	}
	m.bookingAttempts.WithLabelValues(result).Inc()
}

// Transition records a status-transition attempt.
func (m *EngineMetrics) Transition(to, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to, result).Inc()
}

// SweepReminder counts one dispatched reminder.
func (m *EngineMetrics) SweepReminder() {
	if m == nil {
		return
	}
	m.sweepReminders.Inc()
}

// SweepNoShow counts one no-show transition.
func (m *EngineMetrics) SweepNoShow() {
	if m == nil {
		return
	}
	m.sweepNoShows.Inc()
}

// ObserveSweepDuration records how long a sweep took.
func (m *EngineMetrics) ObserveSweepDuration(seconds float64) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
}
