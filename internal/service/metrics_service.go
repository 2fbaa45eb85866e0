package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/shadowgate/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the shadow
// pipeline. All methods are safe on a nil receiver so wiring metrics stays
// optional.
type MetricsService struct {
	registry         *prometheus.Registry
	handler          http.Handler
	decisionsTotal   *prometheus.CounterVec
	reportsTotal     *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	circuitOpen      prometheus.Gauge
}

// NewMetricsService registers the shadow collectors on a fresh registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	decisionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shadow_decisions_total",
		Help: "Sampling decisions by outcome",
	}, []string{"decision"})

	reportsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shadow_reports_total",
		Help: "Completed shadow pipeline runs by result",
	}, []string{"result"})

	dispatchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "shadow_dispatch_duration_seconds",
		Help:    "Duration of shadow dispatch requests in seconds",
		Buckets: prometheus.DefBuckets,
	})

	circuitOpen := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "shadow_condition_circuit_open",
		Help: "Whether the condition circuit breaker is currently open",
	})

	registry.MustRegister(decisionsTotal, reportsTotal, dispatchDuration, circuitOpen)

	return &MetricsService{
		registry:         registry,
		handler:          promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		decisionsTotal:   decisionsTotal,
		reportsTotal:     reportsTotal,
		dispatchDuration: dispatchDuration,
		circuitOpen:      circuitOpen,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveDecision counts one sampling decision.
func (m *MetricsService) ObserveDecision(sampled bool) {
	if m == nil {
		return
	}
	decision := "skipped"
	if sampled {
		decision = "sampled"
	}
	m.decisionsTotal.WithLabelValues(decision).Inc()
}

// ObserveReport counts one completed pipeline run.
func (m *MetricsService) ObserveReport(outcome models.Outcome) {
	if m == nil {
		return
	}
	m.reportsTotal.WithLabelValues(string(outcome)).Inc()
}

// ObserveDispatch records the duration of one shadow dispatch.
func (m *MetricsService) ObserveDispatch(duration time.Duration) {
	if m == nil {
		return
	}
	m.dispatchDuration.Observe(duration.Seconds())
}

// SetCircuitOpen mirrors the breaker state into a gauge.
func (m *MetricsService) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.circuitOpen.Set(1)
	} else {
		m.circuitOpen.Set(0)
	}
}
