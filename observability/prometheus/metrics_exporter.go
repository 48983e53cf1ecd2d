package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-execctx/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	taskDurationSeconds *prom.HistogramVec
	taskPanicTotal      *prom.CounterVec
	taskRejectedTotal   *prom.CounterVec
	queueDepth          *prom.GaugeVec
	taskBindingTotal    *prom.CounterVec
	bindingMismatch     *prom.CounterVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "execctx"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	buckets := opts.DurationBuckets
	if len(buckets) == 0 {
		buckets = prom.DefBuckets
	}

	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Task execution duration in seconds.",
		Buckets:   buckets,
	}, []string{"executor"})
	panicVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_panic_total",
		Help:      "Total number of task panics.",
	}, []string{"executor"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_rejected_total",
		Help:      "Total number of rejected tasks.",
	}, []string{"executor", "reason"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Queue depth observed at the last submission.",
	}, []string{"executor"})

	bindingVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_binding_total",
		Help:      "Tasks started, by the executor CurrentExecutor reported to them (\"none\" if unbound).",
	}, []string{"executor", "bound_to"})
	mismatchVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "task_binding_mismatch_total",
		Help:      "Tasks that started unbound or bound to an executor other than the one running them.",
	}, []string{"executor"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if panicVec, err = registerCollector(reg, panicVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}
	if bindingVec, err = registerCollector(reg, bindingVec); err != nil {
		return nil, err
	}
	if mismatchVec, err = registerCollector(reg, mismatchVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		taskDurationSeconds: durationVec,
		taskPanicTotal:      panicVec,
		taskRejectedTotal:   rejectedVec,
		queueDepth:          queueDepthVec,
		taskBindingTotal:    bindingVec,
		bindingMismatch:     mismatchVec,
	}, nil
}

func (m *MetricsExporter) RecordTaskDuration(executorName string, duration time.Duration) {
	if m == nil {
		return
	}
	m.taskDurationSeconds.WithLabelValues(normalizeLabel(executorName, "unknown")).Observe(duration.Seconds())
}

func (m *MetricsExporter) RecordTaskPanic(executorName string, _ any) {
	if m == nil {
		return
	}
	m.taskPanicTotal.WithLabelValues(normalizeLabel(executorName, "unknown")).Inc()
}

func (m *MetricsExporter) RecordQueueDepth(executorName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(executorName, "unknown")).Set(float64(depth))
}

func (m *MetricsExporter) RecordTaskRejected(executorName string, reason string) {
	if m == nil {
		return
	}
	m.taskRejectedTotal.WithLabelValues(normalizeLabel(executorName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordTaskBinding counts the binding a task started with. A task whose
// binding differs from the executor running it also counts as a mismatch.
func (m *MetricsExporter) RecordTaskBinding(executorName string, boundTo string) {
	if m == nil {
		return
	}
	executor := normalizeLabel(executorName, "unknown")
	m.taskBindingTotal.WithLabelValues(executor, normalizeLabel(boundTo, "none")).Inc()
	if boundTo != executorName {
		m.bindingMismatch.WithLabelValues(executor).Inc()
	}
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// registerCollector registers collector, reusing an identical one already in reg.
func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
