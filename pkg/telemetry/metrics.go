package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Metrics = struct {
	ExecutionsTotal    *prometheus.CounterVec
	ExecutionDuration  *prometheus.HistogramVec
	PoolProcesses      *prometheus.GaugeVec
	PoolAcquireWait    prometheus.Histogram
	PoolRecyclesTotal  *prometheus.CounterVec
	CallbacksTotal     *prometheus.CounterVec
	CallbackDuration   *prometheus.HistogramVec
	OperationsTotal    *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
}{
	ExecutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ghmcp",
		Name:      "executions_total",
		Help:      "Total guest code executions by path (pooled/oneshot) and outcome.",
	}, []string{"path", "outcome"}),

	ExecutionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ghmcp",
		Name:      "execution_duration_seconds",
		Help:      "Guest code execution duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"path"}),

	PoolProcesses: promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ghmcp",
		Name:      "pool_processes",
		Help:      "Interpreter processes in the warm pool by lifecycle state.",
	}, []string{"state"}),

	PoolAcquireWait: promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "ghmcp",
		Name:      "pool_acquire_wait_seconds",
		Help:      "Time spent waiting to acquire a warm process.",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
	}),

	PoolRecyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ghmcp",
		Name:      "pool_recycles_total",
		Help:      "Pooled processes retired by reason (max_uses, idle, unhealthy, shutdown).",
	}, []string{"reason"}),

	CallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ghmcp",
		Name:      "callbacks_total",
		Help:      "Host callback round-trips by operation and status.",
	}, []string{"operation", "status"}),

	CallbackDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ghmcp",
		Name:      "callback_duration_seconds",
		Help:      "Host callback round-trip duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"operation"}),

	OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ghmcp",
		Name:      "operations_total",
		Help:      "Host operations invoked by name and status.",
	}, []string{"operation", "status"}),

	ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ghmcp",
		Name:      "errors_total",
		Help:      "Total errors by component.",
	}, []string{"component"}),
}
