package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bot's Prometheus collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	votes           *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	saves           prometheus.Counter
	saveErrors      prometheus.Counter
	warnsExpired    prometheus.Counter
	schedulerPanics prometheus.Counter
	storeDirty      prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		votes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oooz_sugestie_votes_total",
			Help: "votes cast on proposals",
		}, []string{"choice"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "oooz_sugestie_outcomes_total",
			Help: "proposals resolved by the vote",
		}, []string{"outcome"}),
		saves: factory.NewCounter(prometheus.CounterOpts{
			Name: "oooz_store_saves_total",
			Help: "successful store snapshots",
		}),
		saveErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "oooz_store_save_errors_total",
			Help: "failed store snapshots",
		}),
		warnsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "oooz_warns_expired_total",
			Help: "warnings marked expired",
		}),
		schedulerPanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "oooz_scheduler_panics_total",
			Help: "panics recovered in scheduled tasks",
		}),
		storeDirty: factory.NewGauge(prometheus.GaugeOpts{
			Name: "oooz_store_dirty",
			Help: "1 while the store has unsaved changes",
		}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry, mostly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.DefaultGatherer
	}
	return m.registry
}

func (m *Metrics) VoteCast(choice string) {
	if m != nil {
		m.votes.WithLabelValues(choice).Inc()
	}
}

func (m *Metrics) Outcome(passed bool) {
	if m == nil {
		return
	}
	label := "rejected"
	if passed {
		label = "passed"
	}
	m.outcomes.WithLabelValues(label).Inc()
}

func (m *Metrics) StoreSaved(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.saveErrors.Inc()
		return
	}
	m.saves.Inc()
}

func (m *Metrics) StoreDirty(dirty bool) {
	if m == nil {
		return
	}
	if dirty {
		m.storeDirty.Set(1)
	} else {
		m.storeDirty.Set(0)
	}
}

func (m *Metrics) WarnsExpired(n int) {
	if m != nil && n > 0 {
		m.warnsExpired.Add(float64(n))
	}
}

func (m *Metrics) SchedulerPanic() {
	if m != nil {
		m.schedulerPanics.Inc()
	}
}
