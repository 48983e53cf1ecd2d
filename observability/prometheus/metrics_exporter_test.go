package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-execctx/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("execctx", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskDuration("loop-a", 250*time.Millisecond)
	exporter.RecordTaskPanic("loop-a", "panic")
	exporter.RecordQueueDepth("loop-a", 7)
	exporter.RecordTaskRejected("loop-a", "shutting down")

	if got := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("loop-a")); got != 1 {
		t.Fatalf("panic total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("loop-a")); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(exporter.taskRejectedTotal.WithLabelValues("loop-a", "shutting down")); got != 1 {
		t.Fatalf("rejected total = %v, want 1", got)
	}

	histCount, err := histogramSampleCount(exporter.taskDurationSeconds.WithLabelValues("loop-a"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_EmptyExecutorNameUsesFallback(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskPanic("", nil)

	if got := testutil.ToFloat64(exporter.taskPanicTotal.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("panic total for unknown = %v, want 1", got)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("execctx", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("execctx", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordTaskPanic("loop-a", nil)
	second.RecordTaskPanic("loop-a", nil)

	if got := testutil.ToFloat64(first.taskPanicTotal.WithLabelValues("loop-a")); got != 2 {
		t.Fatalf("shared panic counter = %v, want 2", got)
	}
}

func TestMetricsExporter_NilReceiverIsNoOp(t *testing.T) {
	var m *MetricsExporter
	m.RecordTaskDuration("x", time.Second)
	m.RecordTaskPanic("x", nil)
	m.RecordQueueDepth("x", 1)
	m.RecordTaskRejected("x", "y")
	m.RecordTaskBinding("x", "")
}

// TestMetricsExporter_RecordTaskBinding tests the binding series
// Main test items:
// 1. A task bound to its own executor counts under bound_to=<executor> with no mismatch
// 2. Unbound tasks count under bound_to="none" and as mismatches
// 3. Tasks bound to another executor count as mismatches
func TestMetricsExporter_RecordTaskBinding(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("execctx", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordTaskBinding("loop-a", "loop-a")
	exporter.RecordTaskBinding("loop-a", "loop-a")
	exporter.RecordTaskBinding("loop-a", "")
	exporter.RecordTaskBinding("loop-a", "loop-b")

	if got := testutil.ToFloat64(exporter.taskBindingTotal.WithLabelValues("loop-a", "loop-a")); got != 2 {
		t.Fatalf("bound to self = %v, want 2", got)
	}
	if got := testutil.ToFloat64(exporter.taskBindingTotal.WithLabelValues("loop-a", "none")); got != 1 {
		t.Fatalf("unbound = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.bindingMismatch.WithLabelValues("loop-a")); got != 2 {
		t.Fatalf("mismatch = %v, want 2", got)
	}
}

// TestMetricsExporter_EnginesReportTheirOwnBinding runs real executors against the exporter
func TestMetricsExporter_EnginesReportTheirOwnBinding(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("execctx", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	loop, err := core.NewSingleThreadEventExecutor("loop-m", nil, &core.ExecutorConfig{Logger: core.NewNoOpLogger(), Metrics: exporter})
	if err != nil {
		t.Fatalf("NewSingleThreadEventExecutor failed: %v", err)
	}
	defer loop.Stop()

	for i := 0; i < 3; i++ {
		loop.Execute(func(ctx context.Context) {})
	}
	if err := loop.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	// 3 tasks + the WaitIdle barrier
	if got := testutil.ToFloat64(exporter.taskBindingTotal.WithLabelValues("loop-m", "loop-m")); got != 4 {
		t.Fatalf("bound to loop-m = %v, want 4", got)
	}
	if got := testutil.CollectAndCount(exporter.bindingMismatch); got != 0 {
		t.Fatalf("mismatch series = %d, want 0", got)
	}
}

func histogramSampleCount(observer prom.Observer) (uint64, error) {
	collector, ok := observer.(prom.Collector)
	if !ok {
		return 0, nil
	}

	metricCh := make(chan prom.Metric, 1)
	collector.Collect(metricCh)
	close(metricCh)
	for metric := range metricCh {
		msg := &dto.Metric{}
		if err := metric.Write(msg); err != nil {
			return 0, err
		}
		if msg.Histogram != nil {
			return msg.Histogram.GetSampleCount(), nil
		}
	}
	return 0, nil
}
