package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ScheduleMetrics exposes counters/histograms for the schedule workflow.
type ScheduleMetrics struct {
	slotRejections *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	submitDuration *prometheus.HistogramVec
}

func NewScheduleMetrics(reg prometheus.Registerer) *ScheduleMetrics {
	m := &ScheduleMetrics{
		slotRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "schedule",
			Name:      "slot_rejections_total",
			Help:      "Draft slot changes rejected by the editor",
		}, []string{"reason"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "schedule",
			Name:      "submissions_total",
			Help:      "Draft submissions by mode and outcome",
		}, []string{"mode", "outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "schedule",
			Name:      "status_transitions_total",
			Help:      "Schedule status changes by target status",
		}, []string{"to"}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "schedule",
			Name:      "submit_duration_seconds",
			Help:      "Time spent persisting a submitted draft",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.slotRejections, m.submissions, m.transitions, m.submitDuration)
	return m
}

func (m *ScheduleMetrics) ObserveRejection(reason string) {
	if m == nil {
		return
	}
	m.slotRejections.WithLabelValues(reason).Inc()
}

func (m *ScheduleMetrics) ObserveSubmit(mode, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(mode, outcome).Inc()
	m.submitDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *ScheduleMetrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}
