package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tazhate/dosebot/internal/domain"
)

const namespace = "dosebot"

// Metrics holds the reminder engine counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	NotificationsScheduled *prometheus.CounterVec
	NotificationsCancelled prometheus.Counter
	NotificationsDelivered *prometheus.CounterVec
	DosesConfirmed         prometheus.Counter
	RescheduleFailures     prometheus.Counter
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		NotificationsScheduled: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_scheduled_total",
				Help:      "Daily notifications registered, by kind.",
			},
			[]string{"kind"},
		),
		NotificationsCancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_cancelled_total",
			Help:      "Scheduled notifications cancelled.",
		}),
		NotificationsDelivered: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_delivered_total",
				Help:      "Notification deliveries attempted, by result.",
			},
			[]string{"result"},
		),
		DosesConfirmed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "doses_confirmed_total",
			Help:      "Doses recorded as taken.",
		}),
		RescheduleFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reschedule_failures_total",
			Help:      "Medications whose notifications could not be rescheduled.",
		}),
	}
}

func (m *Metrics) Scheduled(kind domain.NotificationKind) {
	if m == nil {
		return
	}
	m.NotificationsScheduled.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) Cancelled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.NotificationsCancelled.Add(float64(n))
}

func (m *Metrics) Delivered(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.NotificationsDelivered.WithLabelValues(result).Inc()
}

func (m *Metrics) DoseConfirmed() {
	if m == nil {
		return
	}
	m.DosesConfirmed.Inc()
}

func (m *Metrics) RescheduleFailed() {
	if m == nil {
		return
	}
	m.RescheduleFailures.Inc()
}
