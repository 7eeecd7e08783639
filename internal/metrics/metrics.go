// Package metrics records discovery and migration metrics for Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cloudhop"

// Recorder owns a private registry with the cloudhop metric vectors. A nil
// *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	DiscoveredAssets    *prometheus.CounterVec
	DiscoveryPartials   *prometheus.CounterVec
	Migrations          *prometheus.CounterVec
	PhaseDuration       *prometheus.HistogramVec
	MigrationsInFlight  prometheus.Gauge
	ProviderCallRetries *prometheus.CounterVec
}

// New creates a Recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	r := &Recorder{
		registry: reg,
		DiscoveredAssets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovered_assets_total",
			Help:      "Assets produced by discovery runs",
		}, []string{"provider", "kind"}),
		DiscoveryPartials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_partial_failures_total",
			Help:      "Resources skipped during discovery",
		}, []string{"provider"}),
		Migrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Migrations reaching a terminal status",
		}, []string{"strategy", "status"}),
		PhaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_phase_seconds",
			Help:      "Duration of migration phases in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 9),
		}, []string{"strategy", "phase"}),
		MigrationsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "migrations_in_flight",
			Help:      "Migrations currently being driven",
		}),
		ProviderCallRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_call_retries_total",
			Help:      "Retried provider calls after transient errors",
		}, []string{"op"}),
	}
	reg.MustRegister(r.DiscoveredAssets, r.DiscoveryPartials, r.Migrations, r.PhaseDuration, r.MigrationsInFlight, r.ProviderCallRetries)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) AssetsDiscovered(provider, kind string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.DiscoveredAssets.WithLabelValues(provider, kind).Add(float64(n))
}

func (r *Recorder) DiscoverySkipped(provider string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.DiscoveryPartials.WithLabelValues(provider).Add(float64(n))
}

func (r *Recorder) MigrationStarted() {
	if r == nil {
		return
	}
	r.MigrationsInFlight.Inc()
}

// MigrationFinished records the status a migration goroutine exited with.
func (r *Recorder) MigrationFinished(strategy, status string) {
	if r == nil {
		return
	}
	r.MigrationsInFlight.Dec()
	r.Migrations.WithLabelValues(strategy, status).Inc()
}

// MigrationRolledBack counts a rollback requested after the goroutine exited.
func (r *Recorder) MigrationRolledBack(strategy string) {
	if r == nil {
		return
	}
	r.Migrations.WithLabelValues(strategy, "rolled_back").Inc()
}

func (r *Recorder) PhaseObserved(strategy, phase string, d time.Duration) {
	if r == nil {
		return
	}
	r.PhaseDuration.WithLabelValues(strategy, phase).Observe(d.Seconds())
}

// Retried counts one retry of op; it matches the provider caller's retry hook.
func (r *Recorder) Retried(op string) {
	if r == nil {
		return
	}
	r.ProviderCallRetries.WithLabelValues(op).Inc()
}
