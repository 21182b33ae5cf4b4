package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	// DefaultConcurrentLimit is the number of items a queue runs at once
	// unless configured otherwise.
	DefaultConcurrentLimit = 4

	// MaxConcurrentLimit bounds the concurrency limit. Values higher than this
	// could lead to excessive goroutine creation in the pool.
	MaxConcurrentLimit = 10000

	defaultQueueName = "workqueue"
)

// Reasons passed to Metrics.RecordWorkRejected.
const (
	RejectNilItem      = "nil_item"
	RejectPoisoned     = "poisoned"
	RejectInvalidState = "invalid_state"
	RejectOwned        = "owned"
)

// errUnknownResourceFailure stands in for a nil error reported by a pool.
var errUnknownResourceFailure = errors.New("workqueue: unknown resource failure")

// QueueOption configures a WorkQueue.
type QueueOption func(*queueOptions)

type queueOptions struct {
	name        string
	limit       int
	logger      Logger
	metrics     Metrics
	historySize int
}

// WithName sets the name used in logs, metrics and stats.
func WithName(name string) QueueOption {
	return func(o *queueOptions) { o.name = name }
}

// WithConcurrentLimit sets the maximum number of items delegated to the pool at once.
func WithConcurrentLimit(limit int) QueueOption {
	return func(o *queueOptions) { o.limit = limit }
}

func WithLogger(logger Logger) QueueOption {
	return func(o *queueOptions) { o.logger = logger }
}

func WithMetrics(metrics Metrics) QueueOption {
	return func(o *queueOptions) { o.metrics = metrics }
}

// WithHistorySize sets how many completed items RecentWork can return.
func WithHistorySize(size int) QueueOption {
	return func(o *queueOptions) { o.historySize = size }
}

// WorkQueue admits work items up to a concurrency limit, holds the overflow in
// a priority queue and hands ready items to a ResourcePool.
//
// Items move through their lifecycle under the queue's lock; BeginWork calls
// and observer notifications happen after the lock is released so a pool may
// execute inline and observers may call back into the queue.
type WorkQueue struct {
	pool    ResourcePool
	name    string
	logger  Logger
	metrics Metrics

	mu         sync.Mutex
	pending    *PriorityQueue
	running    int
	limit      int
	paused     bool
	poisoned   error
	idle       bool
	idleCh     chan struct{} // closed while running == 0 && pending is empty
	poisonedCh chan struct{} // closed once poisoned is set

	submitted int64
	completed int64
	failed    int64
	dropped   int64

	observers ObserverRegistry[QueueObserver]
	history   executionHistory
}

// NewWorkQueue creates a queue that delegates ready items to pool.
// Panics if pool is nil or the concurrency limit is out of range [1, 10000].
func NewWorkQueue(pool ResourcePool, opts ...QueueOption) *WorkQueue {
	if pool == nil {
		panic("WorkQueue: pool must not be nil")
	}

	o := queueOptions{
		name:        defaultQueueName,
		limit:       DefaultConcurrentLimit,
		historySize: defaultHistoryCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := validateLimit(o.limit); err != nil {
		panic(fmt.Sprintf("WorkQueue: %v", err))
	}
	if o.name == "" {
		o.name = defaultQueueName
	}
	if o.logger == nil {
		o.logger = NewNoOpLogger()
	}
	if o.metrics == nil {
		o.metrics = &NilMetrics{}
	}

	idleCh := make(chan struct{})
	close(idleCh)

	return &WorkQueue{
		pool:       pool,
		name:       o.name,
		logger:     o.logger,
		metrics:    o.metrics,
		pending:    NewPriorityQueue(),
		limit:      o.limit,
		idle:       true,
		idleCh:     idleCh,
		poisonedCh: make(chan struct{}),
		history:    newExecutionHistory(o.historySize),
	}
}

func validateLimit(limit int) error {
	if limit < 1 || limit > MaxConcurrentLimit {
		return fmt.Errorf("%w: concurrency limit %d outside [1, %d]", ErrInvalidArgument, limit, MaxConcurrentLimit)
	}
	return nil
}

// Name returns the queue name.
func (q *WorkQueue) Name() string { return q.name }

// Subscribe registers a lifecycle observer.
func (q *WorkQueue) Subscribe(observer QueueObserver) (unsubscribe func()) {
	return q.observers.Subscribe(observer)
}

// =============================================================================
// Admission
// =============================================================================

// Add submits an item. The queue becomes the item's owner; the item is either
// Scheduled and handed to the pool or Queued until a slot frees up.
func (q *WorkQueue) Add(item *WorkItem) error {
	if item == nil {
		q.reject(RejectNilItem)
		return ErrNullArgument
	}
	if err := q.Err(); err != nil {
		q.reject(RejectPoisoned)
		return fmt.Errorf("%w: %w", ErrQueuePoisoned, err)
	}
	if state := item.State(); state != WorkStateCreated {
		q.reject(RejectInvalidState)
		return &InvalidTransitionError{ItemID: item.ID(), From: state, To: WorkStateQueued}
	}
	if err := item.SetOwner(q); err != nil {
		q.reject(RejectOwned)
		return err
	}

	var fx queueEffects
	q.mu.Lock()
	if q.poisoned != nil {
		err := q.poisoned
		q.mu.Unlock()
		q.reject(RejectPoisoned)
		return fmt.Errorf("%w: %w", ErrQueuePoisoned, err)
	}

	var err error
	if !q.paused && q.running < q.limit {
		err = q.scheduleLocked(item, &fx)
	} else {
		err = q.enqueueLocked(item, &fx)
	}
	if err == nil {
		q.submitted++
		q.syncIdleLocked()
		q.metrics.RecordQueueDepth(q.name, q.pending.Len())
	}
	q.mu.Unlock()

	if err != nil {
		q.reject(RejectInvalidState)
		return err
	}
	q.apply(fx)
	return nil
}

func (q *WorkQueue) reject(reason string) {
	q.metrics.RecordWorkRejected(q.name, reason)
	q.logger.Debug("work item rejected",
		F("queue", q.name),
		F("reason", reason),
	)
}

func (q *WorkQueue) scheduleLocked(item *WorkItem, fx *queueEffects) error {
	prev, _, err := item.transition(WorkStateScheduled)
	if err != nil {
		return err
	}
	q.onStateChangedLocked(item, prev, WorkStateScheduled, fx)
	return nil
}

func (q *WorkQueue) enqueueLocked(item *WorkItem, fx *queueEffects) error {
	prev, _, err := item.transition(WorkStateQueued)
	if err != nil {
		return err
	}
	q.pending.Push(item)
	q.onStateChangedLocked(item, prev, WorkStateQueued, fx)
	return nil
}

// promoteLocked schedules pending items, highest priority first, while slots
// are free and the queue is not paused.
func (q *WorkQueue) promoteLocked(fx *queueEffects) {
	promoted := false
	for !q.paused && q.running < q.limit {
		item, ok := q.pending.Pop()
		if !ok {
			break
		}
		promoted = true
		if err := q.scheduleLocked(item, fx); err != nil {
			q.logger.Warn("dropping pending work item in unexpected state",
				F("queue", q.name),
				F("work_id", item.ID()),
				F("error", err),
			)
		}
	}
	if promoted {
		q.metrics.RecordQueueDepth(q.name, q.pending.Len())
	}
}

// syncIdleLocked keeps idleCh consistent with the counters and reports whether
// the queue just became idle.
func (q *WorkQueue) syncIdleLocked() bool {
	idle := q.running == 0 && q.pending.IsEmpty()
	switch {
	case idle && !q.idle:
		q.idle = true
		close(q.idleCh)
		return true
	case !idle && q.idle:
		q.idle = false
		q.idleCh = make(chan struct{})
	}
	return false
}

// =============================================================================
// WorkOwner
// =============================================================================

// NotifyStateChanged reacts to a transition made by a pool or any other
// caller of WorkItem.SetState.
func (q *WorkQueue) NotifyStateChanged(item *WorkItem, previous WorkState) {
	if item == nil {
		return
	}
	var fx queueEffects
	q.mu.Lock()
	q.onStateChangedLocked(item, previous, item.State(), &fx)
	q.mu.Unlock()
	q.apply(fx)
}

func (q *WorkQueue) onStateChangedLocked(item *WorkItem, previous, state WorkState, fx *queueEffects) {
	fx.emit("state_changed", func(o QueueObserver) {
		if o.OnStateChanged != nil {
			o.OnStateChanged(item, previous)
		}
	})

	switch state {
	case WorkStateScheduled:
		q.running++
		fx.begin = append(fx.begin, item)
	case WorkStateRunning:
		fx.emit("running", func(o QueueObserver) {
			if o.OnRunning != nil {
				o.OnRunning(item)
			}
		})
	case WorkStateFailing:
		fx.emit("failed", func(o QueueObserver) {
			if o.OnFailed != nil {
				o.OnFailed(item)
			}
		})
	case WorkStateCompleted:
		q.completeLocked(item, fx)
	}
}

func (q *WorkQueue) completeLocked(item *WorkItem, fx *queueEffects) {
	if q.running > 0 {
		q.running--
	}
	q.completed++

	record := newExecutionRecord(item, q.name)
	q.history.Add(record)
	q.metrics.RecordWorkDuration(q.name, record.Priority, record.Duration)
	if record.Failed {
		q.failed++
		q.metrics.RecordWorkFailure(q.name)
	}

	fx.emit("completed", func(o QueueObserver) {
		if o.OnCompleted != nil {
			o.OnCompleted(item)
		}
	})

	q.promoteLocked(fx)
	if q.syncIdleLocked() {
		fx.emit("all_completed", func(o QueueObserver) {
			if o.OnAllCompleted != nil {
				o.OnAllCompleted()
			}
		})
	}
}

// NotifyResourceException poisons the queue: it pauses, records err and wakes
// every WaitAll caller. Only the first report is recorded; every report is
// forwarded to observers.
func (q *WorkQueue) NotifyResourceException(source any, err error, item *WorkItem) {
	if err == nil {
		err = errUnknownResourceFailure
	}

	q.mu.Lock()
	first := q.poisoned == nil
	if first {
		q.poisoned = &ResourceError{Source: source, Item: item, Err: err}
		q.paused = true
		close(q.poisonedCh)
	}
	q.mu.Unlock()

	fields := []Field{F("queue", q.name), F("source", fmt.Sprint(source)), F("error", err)}
	if item != nil {
		fields = append(fields, F("work_id", item.ID()), F("work_name", item.Name()))
	}
	if first {
		q.logger.Error("queue poisoned by resource failure", fields...)
	} else {
		q.logger.Warn("resource failure on poisoned queue", fields...)
	}
	q.metrics.RecordResourceException(q.name)

	q.observers.Emit(q.logger, "worker_exception", func(o QueueObserver) {
		if o.OnWorkerException != nil {
			o.OnWorkerException(source, err, item)
		}
	})
}

// queueEffects collects work that must run after the queue lock is released.
type queueEffects struct {
	events []queueEvent
	begin  []*WorkItem
}

type queueEvent struct {
	name string
	fn   func(QueueObserver)
}

func (fx *queueEffects) emit(name string, fn func(QueueObserver)) {
	fx.events = append(fx.events, queueEvent{name: name, fn: fn})
}

func (q *WorkQueue) apply(fx queueEffects) {
	for _, ev := range fx.events {
		q.observers.Emit(q.logger, ev.name, ev.fn)
	}
	for _, item := range fx.begin {
		if err := q.pool.BeginWork(item); err != nil {
			q.NotifyResourceException(q.pool, err, item)
		}
	}
}

// =============================================================================
// Control
// =============================================================================

// Pause stops promotion. Running items are unaffected and new items are queued.
func (q *WorkQueue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume re-enables promotion and immediately schedules as many pending items
// as the limit allows. A poisoned queue stays paused.
func (q *WorkQueue) Resume() {
	var fx queueEffects
	q.mu.Lock()
	if q.poisoned == nil {
		q.paused = false
		q.promoteLocked(&fx)
	}
	q.mu.Unlock()
	q.apply(fx)
}

func (q *WorkQueue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Clear drops every pending item and returns them in priority order. Dropped
// items stay Queued, are never run and have their Dropped channel closed.
// Running items are unaffected.
func (q *WorkQueue) Clear() []*WorkItem {
	var fx queueEffects
	q.mu.Lock()
	dropped := q.pending.Clear()
	if len(dropped) > 0 {
		q.dropped += int64(len(dropped))
		q.metrics.RecordQueueDepth(q.name, 0)
	}
	if q.syncIdleLocked() {
		fx.emit("all_completed", func(o QueueObserver) {
			if o.OnAllCompleted != nil {
				o.OnAllCompleted()
			}
		})
	}
	q.mu.Unlock()
	for _, item := range dropped {
		item.drop()
	}
	q.apply(fx)

	if len(dropped) > 0 {
		q.logger.Info("pending work cleared",
			F("queue", q.name),
			F("dropped", len(dropped)),
		)
	}
	return dropped
}

func (q *WorkQueue) ConcurrentLimit() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit
}

// SetConcurrentLimit changes the limit for future promotions. Running items
// are never preempted; a raised limit promotes pending items right away.
func (q *WorkQueue) SetConcurrentLimit(limit int) error {
	if err := validateLimit(limit); err != nil {
		return err
	}
	var fx queueEffects
	q.mu.Lock()
	q.limit = limit
	q.promoteLocked(&fx)
	q.mu.Unlock()
	q.apply(fx)
	return nil
}

// Err returns the error that poisoned the queue, or nil.
func (q *WorkQueue) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.poisoned
}

func (q *WorkQueue) poisonedSignal() <-chan struct{} {
	return q.poisonedCh
}

// =============================================================================
// Waiting
// =============================================================================

// WaitAll blocks until no item is running or pending. It fails immediately
// with ErrInvalidOperation on a paused queue and returns the poisoning error
// if the queue is or becomes poisoned.
func (q *WorkQueue) WaitAll(ctx context.Context) error {
	q.mu.Lock()
	if q.poisoned != nil {
		err := q.poisoned
		q.mu.Unlock()
		return err
	}
	if q.paused {
		q.mu.Unlock()
		return fmt.Errorf("%w: WaitAll on paused queue %q", ErrInvalidOperation, q.name)
	}
	idle := q.idleCh
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-q.poisonedCh:
		return q.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitAllTimeout is WaitAll with a deadline. It reports whether the queue
// became idle before the timeout expired.
func (q *WorkQueue) WaitAllTimeout(timeout time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := q.WaitAll(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// =============================================================================
// Observability
// =============================================================================

func (q *WorkQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

func (q *WorkQueue) RunningCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running
}

// Stats returns a snapshot of the queue's counters.
func (q *WorkQueue) Stats() QueueStats {
	q.mu.Lock()
	stats := QueueStats{
		Name:      q.name,
		Pending:   q.pending.Len(),
		Running:   q.running,
		Limit:     q.limit,
		Paused:    q.paused,
		Poisoned:  q.poisoned != nil,
		Submitted: q.submitted,
		Completed: q.completed,
		Failed:    q.failed,
		Dropped:   q.dropped,
	}
	q.mu.Unlock()

	if last, ok := q.history.Last(); ok {
		stats.LastWorkName = last.Name
		stats.LastWorkAt = last.FinishedAt
	}
	return stats
}

// RecentWork returns completed work records, newest first.
func (q *WorkQueue) RecentWork(limit int) []WorkExecutionRecord {
	return q.history.Recent(limit)
}
