package supervisor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the supervisor's Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	RunsTotal     *prometheus.CounterVec
	AttemptsTotal prometheus.Counter
	MessagesTotal *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	ActiveRuns    prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_runner_runs_total",
			Help: "Finished crawl runs by outcome.",
		}, []string{"outcome"}), // completed, failed, aborted
		AttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawl_runner_attempts_total",
			Help: "Crawler processes launched, retries included.",
		}),
		MessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawl_runner_messages_total",
			Help: "Crawl messages by severity.",
		}, []string{"severity"}),
		RunDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawl_runner_run_duration_seconds",
			Help:    "Wall time from start to the end of a run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		ActiveRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crawl_runner_active_runs",
			Help: "1 while a crawler process is owned by the supervisor.",
		}),
	}
}

func (m *Metrics) attemptStarted() {
	if m == nil {
		return
	}
	m.AttemptsTotal.Inc()
}

func (m *Metrics) message(severity string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(severity).Inc()
}

func (m *Metrics) runStarted() {
	if m == nil {
		return
	}
	m.ActiveRuns.Set(1)
}

func (m *Metrics) runFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ActiveRuns.Set(0)
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.RunDuration.Observe(elapsed.Seconds())
}
