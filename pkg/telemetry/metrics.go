package telemetry

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LifecycleStates are the values reported by the lifecycle state gauge.
var LifecycleStates = []string{"active", "destroying", "destroyed"}

// Metrics provides Prometheus metrics for erbridge. All recorders are safe to
// call on a nil *Metrics or on one built with metrics disabled.
type Metrics struct {
	config MetricsConfig

	// Dispatch metrics
	dispatchTasks      *prometheus.CounterVec
	dispatchDuration   *prometheus.HistogramVec
	dispatchQueueDepth *prometheus.GaugeVec
	dispatchInFlight   *prometheus.GaugeVec

	// Native call metrics
	nativeCalls    *prometheus.CounterVec
	nativeDuration *prometheus.HistogramVec

	// Failure metrics
	failuresByKind *prometheus.CounterVec

	// Lifecycle metrics
	lifecycleState *prometheus.GaugeVec
	facadeBinds    *prometheus.CounterVec
	instancesBuilt prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
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

		dispatchTasks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "tasks_total",
				Help:      "Total number of dispatched tasks by outcome",
			},
			[]string{"pool", "outcome"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "task_duration_seconds",
				Help:      "Time spent running dispatched tasks in seconds",
				Buckets:   buckets,
			},
			[]string{"pool"},
		),
		dispatchQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "queue_depth",
				Help:      "Tasks submitted but not yet picked up by a worker",
			},
			[]string{"pool"},
		),
		dispatchInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "dispatch",
				Name:      "in_flight",
				Help:      "Tasks currently running on a worker",
			},
			[]string{"pool"},
		),

		nativeCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "native",
				Name:      "calls_total",
				Help:      "Total number of native engine calls",
			},
			[]string{"facade", "operation", "outcome"},
		),
		nativeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "native",
				Name:      "call_duration_seconds",
				Help:      "Duration of native engine calls in seconds, including queueing",
				Buckets:   buckets,
			},
			[]string{"facade", "operation"},
		),

		failuresByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Total number of failures returned to callers by kind",
			},
			[]string{"kind"},
		),

		lifecycleState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "state",
				Help:      "Current provider lifecycle state (1 for the current state, 0 otherwise)",
			},
			[]string{"instance", "state"},
		),
		facadeBinds: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "facade_binds_total",
				Help:      "Total number of facade bindings by outcome",
			},
			[]string{"facade", "outcome"},
		),
		instancesBuilt: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "provider",
				Name:      "instances_built_total",
				Help:      "Total number of provider instances built",
			},
		),
	}

	registry.MustRegister(
		m.dispatchTasks,
		m.dispatchDuration,
		m.dispatchQueueDepth,
		m.dispatchInFlight,
		m.nativeCalls,
		m.nativeDuration,
		m.failuresByKind,
		m.lifecycleState,
		m.facadeBinds,
		m.instancesBuilt,
	)

	return m, nil
}

// Dispatch Metrics

// SetDispatchQueueDepth sets the number of queued tasks for a pool.
func (m *Metrics) SetDispatchQueueDepth(pool string, n int64) {
	if m == nil || m.dispatchQueueDepth == nil {
		return
	}
	m.dispatchQueueDepth.WithLabelValues(pool).Set(float64(n))
}

// SetDispatchInFlight sets the number of running tasks for a pool.
func (m *Metrics) SetDispatchInFlight(pool string, n int64) {
	if m == nil || m.dispatchInFlight == nil {
		return
	}
	m.dispatchInFlight.WithLabelValues(pool).Set(float64(n))
}

// RecordDispatchTask records a finished task. Abandoned tasks never ran and
// are counted without a duration sample.
func (m *Metrics) RecordDispatchTask(pool, outcome string, d time.Duration) {
	if m == nil || m.dispatchTasks == nil {
		return
	}
	m.dispatchTasks.WithLabelValues(pool, outcome).Inc()
	if d > 0 {
		m.dispatchDuration.WithLabelValues(pool).Observe(d.Seconds())
	}
}

// Native Call Metrics

// RecordNativeCall records one facade operation.
func (m *Metrics) RecordNativeCall(facade, operation, outcome string, d time.Duration) {
	if m == nil || m.nativeCalls == nil {
		return
	}
	m.nativeCalls.WithLabelValues(facade, operation, outcome).Inc()
	m.nativeDuration.WithLabelValues(facade, operation).Observe(d.Seconds())
}

// RecordFailure counts a failure returned to a caller.
func (m *Metrics) RecordFailure(kind string) {
	if m == nil || m.failuresByKind == nil {
		return
	}
	m.failuresByKind.WithLabelValues(kind).Inc()
}

// Lifecycle Metrics

// SetLifecycleState marks state as the current state of the named instance.
func (m *Metrics) SetLifecycleState(instance, state string) {
	if m == nil || m.lifecycleState == nil {
		return
	}
	for _, s := range LifecycleStates {
		v := 0.0
		if s == state {
			v = 1
		}
		m.lifecycleState.WithLabelValues(instance, s).Set(v)
	}
}

// RecordFacadeBind records a facade binding attempt.
func (m *Metrics) RecordFacadeBind(facade, outcome string) {
	if m == nil || m.facadeBinds == nil {
		return
	}
	m.facadeBinds.WithLabelValues(facade, outcome).Inc()
}

// RecordInstanceBuilt counts a successful Build.
func (m *Metrics) RecordInstanceBuilt() {
	if m == nil || m.instancesBuilt == nil {
		return
	}
	m.instancesBuilt.Inc()
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
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics. It returns nil
// when metrics are disabled. Serve errors are reported to the logger.
func (m *Metrics) StartMetricsServer(logger *Logger) *http.Server {
	if m == nil || !m.config.Enabled {
		return nil
	}
	if logger == nil {
		logger = NewNopLogger()
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
			// Log error but don't fail the application
			logger.WithError(err).Error("metrics server stopped")
		}
	}()

	return server
}
