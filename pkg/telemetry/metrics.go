package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Metrics provides Prometheus metrics for planning runs. A Metrics created
// with collection disabled accepts every call and records nothing.
type Metrics struct {
	config MetricsConfig

	// Plan metrics
	plansStarted   prometheus.Counter
	plansCompleted *prometheus.CounterVec
	planDuration   *prometheus.HistogramVec
	planTimeouts   prometheus.Counter
	resolved       prometheus.Counter

	// Round metrics
	rounds        prometheus.Counter
	roundDuration prometheus.Histogram
	candidates    *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	population    prometheus.Gauge

	// Error metrics
	errorsByClass *prometheus.CounterVec
	errorsByCode  *prometheus.CounterVec

	activePlans prometheus.Gauge

	registry *prometheus.Registry
}

// Reasons a candidate leaves a round, used as the "reason" label.
const (
	DropNull      = "null"
	DropDuplicate = "duplicate"
	DropInvalid   = "invalid"
	DropAttached  = "attached"
)

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		plansStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_started_total",
				Help:      "Total number of planning runs started",
			},
		),
		plansCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_completed_total",
				Help:      "Total number of planning runs completed",
			},
			[]string{"status"},
		),
		planDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_duration_seconds",
				Help:      "Duration of planning runs in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),
		planTimeouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plan_timeouts_total",
				Help:      "Total number of planning runs stopped by their time budget",
			},
		),
		resolved: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "resolved_recipes_total",
				Help:      "Total number of fully resolved recipes produced",
			},
		),

		rounds: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rounds_total",
				Help:      "Total number of strategizer rounds",
			},
		),
		roundDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "round_duration_seconds",
				Help:      "Duration of strategizer rounds in seconds",
				Buckets:   buckets,
			},
		),
		candidates: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candidates_total",
				Help:      "Total number of raw candidates proposed per strategy",
			},
			[]string{"strategy"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dropped_derivations_total",
				Help:      "Total number of candidates removed by deduplication and validity checks",
			},
			[]string{"reason"},
		),
		population: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "population_size",
				Help:      "Size of the retained population after the last round",
			},
		),

		errorsByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_class_total",
				Help:      "Total number of errors by error class",
			},
			[]string{"class"},
		),
		errorsByCode: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_by_code_total",
				Help:      "Total number of errors by error code",
			},
			[]string{"code"},
		),

		activePlans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_plans",
				Help:      "Current number of planning runs in progress",
			},
		),
	}

	registry.MustRegister(
		m.plansStarted,
		m.plansCompleted,
		m.planDuration,
		m.planTimeouts,
		m.resolved,
		m.rounds,
		m.roundDuration,
		m.candidates,
		m.dropped,
		m.population,
		m.errorsByClass,
		m.errorsByCode,
		m.activePlans,
	)

	return m, nil
}

// Registry returns the registry the metrics are registered with, or nil when
// collection is disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Plan Metrics

// RecordPlanStarted increments the counter for started planning runs.
func (m *Metrics) RecordPlanStarted() {
	if m.plansStarted == nil {
		return
	}
	m.plansStarted.Inc()
	m.activePlans.Inc()
}

// RecordPlanCompleted records a finished planning run with its status and
// duration.
func (m *Metrics) RecordPlanCompleted(status string, duration time.Duration) {
	if m.plansCompleted == nil {
		return
	}
	m.plansCompleted.WithLabelValues(status).Inc()
	m.planDuration.WithLabelValues(status).Observe(duration.Seconds())
	m.activePlans.Dec()
}

// RecordPlanTimeout counts a planning run that ran out of time.
func (m *Metrics) RecordPlanTimeout() {
	if m.planTimeouts == nil {
		return
	}
	m.planTimeouts.Inc()
}

// RecordResolved adds n newly resolved recipes.
func (m *Metrics) RecordResolved(n int) {
	if m.resolved == nil || n <= 0 {
		return
	}
	m.resolved.Add(float64(n))
}

// Round Metrics

// RecordRound records a completed round, the population it left behind and
// its duration.
func (m *Metrics) RecordRound(population int, duration time.Duration) {
	if m.rounds == nil {
		return
	}
	m.rounds.Inc()
	m.roundDuration.Observe(duration.Seconds())
	m.population.Set(float64(population))
}

// RecordCandidates adds n raw candidates proposed by strategy.
func (m *Metrics) RecordCandidates(strategy string, n int) {
	if m.candidates == nil || n <= 0 {
		return
	}
	m.candidates.WithLabelValues(strategy).Add(float64(n))
}

// RecordDropped adds n candidates dropped for reason.
func (m *Metrics) RecordDropped(reason string, n int) {
	if m.dropped == nil || n <= 0 {
		return
	}
	m.dropped.WithLabelValues(reason).Add(float64(n))
}

// Error Metrics

// RecordError records an error by class and optionally by code.
func (m *Metrics) RecordError(errorClass, errorCode string) {
	if m.errorsByClass == nil {
		return
	}
	m.errorsByClass.WithLabelValues(errorClass).Inc()
	if errorCode != "" && m.errorsByCode != nil {
		m.errorsByCode.WithLabelValues(errorCode).Inc()
	}
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server exposing the metrics. It returns
// immediately; the server stops with the process.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("address", m.config.ListenAddress).Msg("Metrics server stopped")
		}
	}()

	return nil
}
