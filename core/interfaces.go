package core

import (
	"time"
)

// =============================================================================
// ResourcePool: executes work items handed over by a WorkQueue
// =============================================================================

// ResourcePool runs scheduled work items. BeginWork must not block on the
// execution of the item; it only takes ownership of running it.
//
// Implementations drive the item through Running and then Failing/Completed
// and report failures of their own machinery to the item's owner via
// NotifyResourceException.
type ResourcePool interface {
	BeginWork(item *WorkItem) error
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting work execution metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast; they are called from worker
// goroutines and from inside queue bookkeeping.
type Metrics interface {
	// RecordWorkDuration records how long a work body took, from Running to Completed.
	RecordWorkDuration(queueName string, priority WorkPriority, duration time.Duration)

	// RecordWorkFailure records a work item that completed through Failing.
	RecordWorkFailure(queueName string)

	// RecordQueueDepth records the current number of pending items.
	RecordQueueDepth(queueName string, depth int)

	// RecordWorkRejected records an Add that was refused.
	//
	// reason is one of "nil_item", "poisoned", "invalid_state", "owned".
	RecordWorkRejected(queueName string, reason string)

	// RecordResourceException records a resource-level failure that poisoned a queue.
	RecordResourceException(queueName string)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordWorkDuration(queueName string, priority WorkPriority, duration time.Duration) {
}
func (m *NilMetrics) RecordWorkFailure(queueName string)                 {}
func (m *NilMetrics) RecordQueueDepth(queueName string, depth int)       {}
func (m *NilMetrics) RecordWorkRejected(queueName string, reason string) {}
func (m *NilMetrics) RecordResourceException(queueName string)           {}
