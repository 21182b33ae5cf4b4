package prometheus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Swind/go-workqueue/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestMetricsExporter_RecordMethods(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("workqueue", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("NewMetricsExporter failed: %v", err)
	}

	exporter.RecordWorkDuration("queue-a", core.WorkPriorityHigh, 250*time.Millisecond)
	exporter.RecordWorkFailure("queue-a")
	exporter.RecordQueueDepth("queue-a", 7)
	exporter.RecordWorkRejected("queue-a", core.RejectPoisoned)
	exporter.RecordResourceException("queue-a")

	if got := testutil.ToFloat64(exporter.workFailuresTotal.WithLabelValues("queue-a")); got != 1 {
		t.Fatalf("failure total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.queueDepth.WithLabelValues("queue-a")); got != 7 {
		t.Fatalf("queue depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(exporter.workRejectedTotal.WithLabelValues("queue-a", "poisoned")); got != 1 {
		t.Fatalf("rejected total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.resourceExceptionsTotal.WithLabelValues("queue-a")); got != 1 {
		t.Fatalf("resource exceptions = %v, want 1", got)
	}

	histCount, err := histogramSampleCount(exporter.workDurationSeconds.WithLabelValues("queue-a", "high"))
	if err != nil {
		t.Fatalf("histogramSampleCount failed: %v", err)
	}
	if histCount != 1 {
		t.Fatalf("duration sample count = %d, want 1", histCount)
	}
}

func TestMetricsExporter_AlreadyRegisteredReuse(t *testing.T) {
	reg := prom.NewRegistry()
	first, err := NewMetricsExporter("workqueue", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("first NewMetricsExporter failed: %v", err)
	}
	second, err := NewMetricsExporter("workqueue", reg, ExporterOptions{})
	if err != nil {
		t.Fatalf("second NewMetricsExporter failed: %v", err)
	}

	first.RecordWorkFailure("queue-a")
	second.RecordWorkFailure("queue-a")

	got := testutil.ToFloat64(first.workFailuresTotal.WithLabelValues("queue-a"))
	if got != 2 {
		t.Fatalf("shared failure counter = %v, want 2", got)
	}
}

// inlinePool executes work on the caller's goroutine.
type inlinePool struct{}

func (inlinePool) BeginWork(item *core.WorkItem) error {
	if err := item.SetState(core.WorkStateRunning); err != nil {
		return err
	}
	if err := item.Execute(); err != nil {
		item.SetFailure(err)
		_ = item.SetState(core.WorkStateFailing)
	}
	return item.SetState(core.WorkStateCompleted)
}

// TestMetricsExporter_WithQueue verifies a queue reports through the exporter
// Given: A queue using the exporter as its metrics sink
// When: One good item, one failing item and a nil item are submitted
// Then: Duration, failure and rejection series are populated
func TestMetricsExporter_WithQueue(t *testing.T) {
	reg := prom.NewRegistry()
	exporter, err := NewMetricsExporter("wq", reg, ExporterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	q := core.NewWorkQueue(inlinePool{}, core.WithName("metered"), core.WithMetrics(exporter))

	_ = q.Add(core.NewWorkItem(context.Background(), func(context.Context) error { return nil }))
	_ = q.Add(core.NewWorkItem(context.Background(), func(context.Context) error { return errors.New("bad") }))
	_ = q.Add(nil)

	if got := testutil.ToFloat64(exporter.workFailuresTotal.WithLabelValues("metered")); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
	if got := testutil.ToFloat64(exporter.workRejectedTotal.WithLabelValues("metered", core.RejectNilItem)); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}
	count, err := histogramSampleCount(exporter.workDurationSeconds.WithLabelValues("metered", "normal"))
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("duration samples = %d, want 2", count)
	}
	n, err := testutil.GatherAndCount(reg, "wq_work_duration_seconds")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected one duration series, got %d", n)
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
