package workqueue

import "github.com/Swind/go-workqueue/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the workqueue package for most use cases.

// Work is the body of a unit of work
type Work = core.Work

// WorkItem is a unit of work with a lifecycle state and a priority
type WorkItem = core.WorkItem

// WorkTraits defines item attributes (priority, display name)
type WorkTraits = core.WorkTraits

// WorkPriority defines the priority levels for work items
type WorkPriority = core.WorkPriority

// WorkState is the lifecycle state of a work item
type WorkState = core.WorkState

// WorkQueue admits work up to a concurrency limit
type WorkQueue = core.WorkQueue

type (
	QueueOption   = core.QueueOption
	QueueObserver = core.QueueObserver
	PoolObserver  = core.PoolObserver
	QueueStats    = core.QueueStats
	PoolStats     = core.PoolStats
)

// Priority constants
const (
	WorkPriorityLowest  = core.WorkPriorityLowest
	WorkPriorityLow     = core.WorkPriorityLow
	WorkPriorityNormal  = core.WorkPriorityNormal
	WorkPriorityHigh    = core.WorkPriorityHigh
	WorkPriorityHighest = core.WorkPriorityHighest
)

// Convenience functions for creating items and traits
var (
	NewWorkItem           = core.NewWorkItem
	NewWorkItemWithTraits = core.NewWorkItemWithTraits
	DefaultWorkTraits     = core.DefaultWorkTraits
	TraitsHigh            = core.TraitsHigh
	TraitsLow             = core.TraitsLow
)

// Queue options
var (
	WithName            = core.WithName
	WithConcurrentLimit = core.WithConcurrentLimit
	WithLogger          = core.WithLogger
	WithMetrics         = core.WithMetrics
	WithHistorySize     = core.WithHistorySize
)

// NewWorkQueue creates a queue that runs its work on pool.
func NewWorkQueue(pool core.ResourcePool, opts ...QueueOption) *WorkQueue {
	return core.NewWorkQueue(pool, opts...)
}

// SyncWork runs a work function through a queue and waits for it.
type SyncWork = core.SyncWork

// Synchronous execution helpers
var (
	RunSync     = core.RunSync
	NewSyncWork = core.NewSyncWork
)

// Sentinel errors
var (
	ErrInvalidTransition = core.ErrInvalidTransition
	ErrNullArgument      = core.ErrNullArgument
	ErrInvalidArgument   = core.ErrInvalidArgument
	ErrInvalidOperation  = core.ErrInvalidOperation
	ErrQueuePoisoned     = core.ErrQueuePoisoned
	ErrOwnerAlreadySet   = core.ErrOwnerAlreadySet
	ErrPoolShutdown      = core.ErrPoolShutdown
	ErrWorkDropped       = core.ErrWorkDropped
)
