package metrics

import (
	"mu-scheduler/internal/scheduler"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "mu_scheduler"

// SchedulerMetrics exports scheduling decisions. It is registered as a
// scheduler observer.
type SchedulerMetrics struct {
	Decisions   *prometheus.CounterVec
	Receivers   *prometheus.HistogramVec
	Truncated   *prometheus.CounterVec
	RUs         *prometheus.CounterVec
	Duration    *prometheus.HistogramVec
	Utilization *prometheus.GaugeVec
}

func NewSchedulerMetrics(registry *prometheus.Registry) *SchedulerMetrics {
	m := &SchedulerMetrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Transmission opportunities by selected format",
		}, []string{"format"}),

		Receivers: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "receivers",
			Help:      "Stations served per multi-user exchange",
			Buckets:   []float64{1, 2, 4, 8, 9, 16, 18, 32, 37, 74},
		}, []string{"format"}),

		Truncated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "truncated_stations_total",
			Help:      "Eligible stations left out by the RU allocation",
		}, []string{"format"}),

		RUs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resource_units_total",
			Help:      "Resource units assigned by tone class",
		}, []string{"format", "class"}),

		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "PPDU or uplink grant duration",
			Buckets:   prometheus.ExponentialBuckets(50e-6, 2, 8),
		}, []string{"format"}),

		Utilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tone_utilization_ratio",
			Help:      "Share of the channel's 26-tone units used by the last exchange",
		}, []string{"format"}),
	}

	registry.MustRegister(
		m.Decisions,
		m.Receivers,
		m.Truncated,
		m.RUs,
		m.Duration,
		m.Utilization,
	)
	return m
}

func (m *SchedulerMetrics) ObserveDecision(d *scheduler.Decision) {
	format := d.Format.String()
	m.Decisions.WithLabelValues(format).Inc()
	if d.Plan == nil {
		return
	}
	m.Receivers.WithLabelValues(format).Observe(float64(len(d.Receivers)))
	m.Truncated.WithLabelValues(format).Add(float64(len(d.Truncated)))
	for class, n := range d.Plan.ClassCounts() {
		m.RUs.WithLabelValues(format, class.String()).Add(float64(n))
	}
	m.Duration.WithLabelValues(format).Observe(d.Duration.Seconds())
	if d.Plan.UnitsTotal > 0 {
		m.Utilization.WithLabelValues(format).Set(float64(d.Plan.UnitsUsed) / float64(d.Plan.UnitsTotal))
	}
}

var _ scheduler.Observer = (*SchedulerMetrics)(nil)
