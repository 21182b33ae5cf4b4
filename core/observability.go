package core

import "time"

// WorkExecutionRecord captures a completed work item.
type WorkExecutionRecord struct {
	ID         string
	Name       string
	Queue      string
	Priority   WorkPriority
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
	Failed     bool
}

// QueueStats represents runtime observability state for a work queue.
type QueueStats struct {
	Name         string
	Pending      int
	Running      int
	Limit        int
	Paused       bool
	Poisoned     bool
	Submitted    int64
	Completed    int64
	Failed       int64
	Dropped      int64
	LastWorkName string
	LastWorkAt   time.Time
}

// PoolStats represents runtime observability state for a worker pool.
type PoolStats struct {
	ID         string
	Workers    int
	Idle       int
	Queued     int
	Active     int
	MinThreads int
	MaxThreads int
	Running    bool
}
