// Package metrics exposes the fund engine's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fundbot"

// Sweep results
const (
	SweepOK      = "ok"
	SweepPartial = "partial"
	SweepFailed  = "failed"
	SweepSkipped = "skipped"
	SweepPanic   = "panic"
)

// Metrics groups every collector on a private registry so tests can build
// as many instances as they like.
type Metrics struct {
	registry *prometheus.Registry

	Settlements        *prometheus.CounterVec
	Votes              *prometheus.CounterVec
	Sweeps             *prometheus.CounterVec
	SweepDuration      prometheus.Histogram
	PendingWithdrawals prometheus.Gauge
}

// New registers all collectors, plus the Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settlements_total",
			Help:      "Fund transactions that reached a terminal status, by status and trigger.",
		}, []string{"status", "trigger"}),
		Votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "votes_total",
			Help:      "Votes recorded on pending withdrawals.",
		}, []string{"decision"}),
		Sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "sweeps_total",
			Help:      "Reconciliation sweeps by result.",
		}, []string{"result"}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "sweep_duration_seconds",
			Help:      "Wall time of reconciliation sweeps.",
			Buckets:   prometheus.DefBuckets,
		}),
		PendingWithdrawals: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_withdrawals",
			Help:      "Pending withdrawals seen by the last sweep.",
		}),
	}

	reg.MustRegister(
		m.Settlements,
		m.Votes,
		m.Sweeps,
		m.SweepDuration,
		m.PendingWithdrawals,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
