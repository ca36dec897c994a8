// Package metrics exposes detector and dispatch counters in Prometheus format.
package metrics

import (
	"net/http"

	"github.com/gmsas95/medwatch/internal/detector"
	"github.com/gmsas95/medwatch/internal/notify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "medwatch"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	runsTotal     *prometheus.CounterVec
	runDuration   prometheus.Histogram
	lastRun       prometheus.Gauge
	occurrences   *prometheus.CounterVec
	tabletSkips   prometheus.Counter
	dispatches    *prometheus.CounterVec
	notifications *prometheus.CounterVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_runs_total",
			Help:      "Detection runs by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "detector_run_duration_seconds",
			Help:      "Wall time of one detection run.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "detector_last_run_timestamp_seconds",
			Help:      "Unix time the last detection run finished.",
		}),
		occurrences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_occurrences_total",
			Help:      "Evaluated dose occurrences by outcome.",
		}, []string{"outcome"}),
		tabletSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detector_tablets_skipped_total",
			Help:      "Tablets not evaluated because they were incomplete, disabled or not scheduled today.",
		}),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_dispatches_total",
			Help:      "Multicast dispatches by source and result.",
		}, []string{"source", "result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "push_notifications_total",
			Help:      "Per-token delivery outcomes by source.",
		}, []string{"source", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.runsTotal,
		m.runDuration,
		m.lastRun,
		m.occurrences,
		m.tabletSkips,
		m.dispatches,
		m.notifications,
	)
	return m
}

// Handler serves the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished detection run.
func (m *Metrics) ObserveRun(s *detector.RunSummary) {
	result := "ok"
	if s.Aborted {
		result = "aborted"
	}
	m.runsTotal.WithLabelValues(result).Inc()
	m.runDuration.Observe(s.FinishedAt.Sub(s.StartedAt).Seconds())
	m.lastRun.Set(float64(s.FinishedAt.Unix()))
	m.tabletSkips.Add(float64(s.TabletsSkipped))

	for outcome, n := range map[detector.Outcome]int{
		detector.OutcomeNotDue:        s.NotDue,
		detector.OutcomeAlreadyLogged: s.AlreadyLogged,
		detector.OutcomeMissed:        s.Missed,
		detector.OutcomeSkipped:       s.Skipped,
		detector.OutcomeError:         s.Errors,
	} {
		m.occurrences.WithLabelValues(string(outcome)).Add(float64(n))
	}
}

// ObserveDispatch implements notify.Observer.
func (m *Metrics) ObserveDispatch(source string, c notify.Counts, err error) {
	if err != nil {
		m.dispatches.WithLabelValues(source, "error").Inc()
		return
	}
	m.dispatches.WithLabelValues(source, "ok").Inc()
	m.notifications.WithLabelValues(source, "sent").Add(float64(c.Sent))
	m.notifications.WithLabelValues(source, "failed").Add(float64(c.Failed))
}

var _ notify.Observer = (*Metrics)(nil)
