package prometheus

import (
	"errors"
	"fmt"
	"time"

	"github.com/Swind/go-workqueue/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	DurationBuckets []float64
}

// MetricsExporter adapts core.Metrics to Prometheus collectors.
type MetricsExporter struct {
	workDurationSeconds     *prom.HistogramVec
	workFailuresTotal       *prom.CounterVec
	workRejectedTotal       *prom.CounterVec
	resourceExceptionsTotal *prom.CounterVec
	queueDepth              *prom.GaugeVec
}

var _ core.Metrics = (*MetricsExporter)(nil)

// NewMetricsExporter creates and registers Prometheus collectors for core.Metrics.
func NewMetricsExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*MetricsExporter, error) {
	if namespace == "" {
		namespace = "workqueue"
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
		Name:      "work_duration_seconds",
		Help:      "Work item execution duration in seconds, from Running to Completed.",
		Buckets:   buckets,
	}, []string{"queue", "priority"})
	failuresVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "work_failures_total",
		Help:      "Total number of work items whose body failed.",
	}, []string{"queue"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "work_rejected_total",
		Help:      "Total number of rejected Add calls.",
	}, []string{"queue", "reason"})
	resourceVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "resource_exceptions_total",
		Help:      "Total number of resource failures reported to a queue.",
	}, []string{"queue"})
	queueDepthVec := prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Current number of pending work items.",
	}, []string{"queue"})

	var err error
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}
	if failuresVec, err = registerCollector(reg, failuresVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if resourceVec, err = registerCollector(reg, resourceVec); err != nil {
		return nil, err
	}
	if queueDepthVec, err = registerCollector(reg, queueDepthVec); err != nil {
		return nil, err
	}

	return &MetricsExporter{
		workDurationSeconds:     durationVec,
		workFailuresTotal:       failuresVec,
		workRejectedTotal:       rejectedVec,
		resourceExceptionsTotal: resourceVec,
		queueDepth:              queueDepthVec,
	}, nil
}

// RecordWorkDuration records work execution duration.
func (m *MetricsExporter) RecordWorkDuration(queueName string, priority core.WorkPriority, duration time.Duration) {
	if m == nil {
		return
	}
	m.workDurationSeconds.WithLabelValues(normalizeLabel(queueName, "unknown"), priority.String()).Observe(duration.Seconds())
}

// RecordWorkFailure records a work item that completed through Failing.
func (m *MetricsExporter) RecordWorkFailure(queueName string) {
	if m == nil {
		return
	}
	m.workFailuresTotal.WithLabelValues(normalizeLabel(queueName, "unknown")).Inc()
}

// RecordQueueDepth records queue depth.
func (m *MetricsExporter) RecordQueueDepth(queueName string, depth int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(queueName, "unknown")).Set(float64(depth))
}

// RecordWorkRejected records rejected Add calls.
func (m *MetricsExporter) RecordWorkRejected(queueName string, reason string) {
	if m == nil {
		return
	}
	m.workRejectedTotal.WithLabelValues(normalizeLabel(queueName, "unknown"), normalizeLabel(reason, "unknown")).Inc()
}

// RecordResourceException records a resource failure reported to a queue.
func (m *MetricsExporter) RecordResourceException(queueName string) {
	if m == nil {
		return
	}
	m.resourceExceptionsTotal.WithLabelValues(normalizeLabel(queueName, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

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
