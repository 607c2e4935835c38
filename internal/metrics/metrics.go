// Package metrics holds the prometheus collectors of the risk engine. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	sweepRuns        prometheus.Counter
	sweepDuration    prometheus.Histogram
	positionsChecked prometheus.Counter
	sweepFailures    *prometheus.CounterVec
	liquidations     *prometheus.CounterVec
	positionsOpened  *prometheus.CounterVec
	positionsClosed  *prometheus.CounterVec
	lockRejections   prometheus.Counter
	interestAccruals prometheus.Counter
}

func New(namespace string) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		sweepRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_sweeps_total",
			Help:      "Completed risk monitor sweeps",
		}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_sweep_duration_seconds",
			Help:      "Wall time of one risk monitor sweep",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		positionsChecked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_positions_checked_total",
			Help:      "Open positions marked to market by the sweep",
		}),
		sweepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_sweep_failures_total",
			Help:      "Per-position sweep failures by stage",
		}, []string{"stage"}),
		liquidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "liquidations_total",
			Help:      "Positions liquidated",
		}, []string{"product"}),
		positionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_opened_total",
			Help:      "Positions opened",
		}, []string{"product"}),
		positionsClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "positions_closed_total",
			Help:      "Positions closed by their owner",
		}, []string{"product"}),
		lockRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wallet_lock_rejections_total",
			Help:      "Collateral locks refused for insufficient balance",
		}),
		interestAccruals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "margin_interest_accruals_total",
			Help:      "Margin positions that accrued at least one day of interest",
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.sweepRuns,
		m.sweepDuration,
		m.positionsChecked,
		m.sweepFailures,
		m.liquidations,
		m.positionsOpened,
		m.positionsClosed,
		m.lockRejections,
		m.interestAccruals,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveSweep(elapsed time.Duration, checked int) {
	if m == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepDuration.Observe(elapsed.Seconds())
	m.positionsChecked.Add(float64(checked))
}

func (m *Metrics) SweepFailure(stage string) {
	if m == nil {
		return
	}
	m.sweepFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) Liquidated(product string) {
	if m == nil {
		return
	}
	m.liquidations.WithLabelValues(product).Inc()
}

func (m *Metrics) Opened(product string) {
	if m == nil {
		return
	}
	m.positionsOpened.WithLabelValues(product).Inc()
}

func (m *Metrics) Closed(product string) {
	if m == nil {
		return
	}
	m.positionsClosed.WithLabelValues(product).Inc()
}

func (m *Metrics) LockRejected() {
	if m == nil {
		return
	}
	m.lockRejections.Inc()
}

func (m *Metrics) InterestAccrued() {
	if m == nil {
		return
	}
	m.interestAccruals.Inc()
}
