package core

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Work is the body of a unit of work. A returned error, or a panic raised while
// it runs, is recorded as the work item's failure.
type Work func(ctx context.Context) error

// =============================================================================
// WorkState: lifecycle of a work item
// =============================================================================

type WorkState int

const (
	WorkStateCreated WorkState = iota
	WorkStateScheduled
	WorkStateQueued
	WorkStateRunning
	WorkStateFailing
	WorkStateCompleted
)

func (s WorkState) String() string {
	switch s {
	case WorkStateCreated:
		return "Created"
	case WorkStateScheduled:
		return "Scheduled"
	case WorkStateQueued:
		return "Queued"
	case WorkStateRunning:
		return "Running"
	case WorkStateFailing:
		return "Failing"
	case WorkStateCompleted:
		return "Completed"
	default:
		return "Unknown"
	}
}

// allowedTransitions lists every legal move. Completed -> Completed is handled
// separately as an idempotent no-op.
var allowedTransitions = map[WorkState][]WorkState{
	WorkStateCreated:   {WorkStateScheduled, WorkStateQueued},
	WorkStateQueued:    {WorkStateScheduled},
	WorkStateScheduled: {WorkStateRunning},
	WorkStateRunning:   {WorkStateCompleted, WorkStateFailing},
	WorkStateFailing:   {WorkStateCompleted},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to WorkState) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// =============================================================================
// WorkTraits: priority and display name
// =============================================================================

type WorkPriority int

const (
	WorkPriorityLowest WorkPriority = iota
	WorkPriorityLow
	// WorkPriorityNormal is the default priority.
	WorkPriorityNormal
	WorkPriorityHigh
	WorkPriorityHighest
)

func (p WorkPriority) String() string {
	switch p {
	case WorkPriorityLowest:
		return "lowest"
	case WorkPriorityLow:
		return "low"
	case WorkPriorityNormal:
		return "normal"
	case WorkPriorityHigh:
		return "high"
	case WorkPriorityHighest:
		return "highest"
	default:
		return "unknown"
	}
}

type WorkTraits struct {
	Priority WorkPriority
	Name     string
}

func DefaultWorkTraits() WorkTraits {
	return WorkTraits{Priority: WorkPriorityNormal}
}

func TraitsHigh() WorkTraits {
	return WorkTraits{Priority: WorkPriorityHigh}
}

func TraitsLow() WorkTraits {
	return WorkTraits{Priority: WorkPriorityLow}
}

// =============================================================================
// WorkOwner: the queue side of the item contract
// =============================================================================

// WorkOwner is notified by a work item on every state transition and by a
// resource pool when its machinery fails while handling one of the owner's items.
type WorkOwner interface {
	// NotifyStateChanged is called synchronously after each successful
	// transition, before SetState returns. It must not assume the caller holds
	// any of the owner's locks.
	NotifyStateChanged(item *WorkItem, previous WorkState)

	// NotifyResourceException reports a failure outside the work body.
	NotifyResourceException(source any, err error, item *WorkItem)
}

// nowFunc returns the current time. Override in tests for determinism.
var nowFunc = time.Now

// =============================================================================
// WorkItem
// =============================================================================

// WorkItem is a unit of work with a lifecycle state, a priority, timestamps
// and a failure slot. It is owned by at most one WorkOwner for its lifetime.
type WorkItem struct {
	id   string
	name string
	work Work
	ctx  context.Context

	mu          sync.Mutex
	state       WorkState
	priority    WorkPriority
	createdAt   time.Time
	startedAt   time.Time
	completedAt time.Time
	failure     error
	owner       WorkOwner
	done        chan struct{}
	dropped     chan struct{}
	wasDropped  bool
}

// NewWorkItem creates a work item with default traits. ctx is the ambient
// context the work body will observe when it runs.
func NewWorkItem(ctx context.Context, work Work) *WorkItem {
	return NewWorkItemWithTraits(ctx, work, DefaultWorkTraits())
}

func NewWorkItemWithTraits(ctx context.Context, work Work, traits WorkTraits) *WorkItem {
	if ctx == nil {
		ctx = context.Background()
	}
	return &WorkItem{
		id:        uuid.NewString(),
		name:      resolveWorkName(work, traits.Name),
		work:      work,
		ctx:       ctx,
		state:     WorkStateCreated,
		priority:  traits.Priority,
		createdAt: nowFunc(),
		done:      make(chan struct{}),
		dropped:   make(chan struct{}),
	}
}

func (w *WorkItem) ID() string { return w.id }

// Name returns the explicit name, or the work function's symbol name.
func (w *WorkItem) Name() string { return w.name }

// Context returns the ambient context captured at creation.
func (w *WorkItem) Context() context.Context { return w.ctx }

func (w *WorkItem) State() WorkState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *WorkItem) Priority() WorkPriority {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.priority
}

// SetPriority changes the priority. Queues snapshot the priority when an item
// is pushed, so a change only affects later pushes.
func (w *WorkItem) SetPriority(p WorkPriority) {
	w.mu.Lock()
	w.priority = p
	w.mu.Unlock()
}

func (w *WorkItem) Failure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.failure
}

func (w *WorkItem) SetFailure(err error) {
	w.mu.Lock()
	w.failure = err
	w.mu.Unlock()
}

func (w *WorkItem) CreatedAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.createdAt
}

func (w *WorkItem) StartedAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.startedAt
}

func (w *WorkItem) CompletedAt() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.completedAt
}

func (w *WorkItem) Owner() WorkOwner {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.owner
}

// SetOwner assigns the owning queue. It can succeed only once.
func (w *WorkItem) SetOwner(owner WorkOwner) error {
	if owner == nil {
		return ErrNullArgument
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.owner != nil {
		return ErrOwnerAlreadySet
	}
	w.owner = owner
	return nil
}

// Done is closed once the item is Completed and its owner has reacted.
func (w *WorkItem) Done() <-chan struct{} { return w.done }

// Dropped is closed when the owning queue discards the item without running
// it. A dropped item stays Queued and Done is never closed.
func (w *WorkItem) Dropped() <-chan struct{} { return w.dropped }

func (w *WorkItem) drop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.wasDropped {
		w.wasDropped = true
		close(w.dropped)
	}
}

// SetState validates and applies a transition, then notifies the owner before
// returning. Completed -> Completed is accepted and does nothing.
func (w *WorkItem) SetState(next WorkState) error {
	prev, changed, err := w.transition(next)
	if err != nil || !changed {
		return err
	}
	if owner := w.Owner(); owner != nil {
		owner.NotifyStateChanged(w, prev)
	}
	if next == WorkStateCompleted {
		close(w.done)
	}
	return nil
}

// transition applies a validated state change without notifying the owner.
// Owners driving their own transitions use it while holding their lock.
func (w *WorkItem) transition(next WorkState) (prev WorkState, changed bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev = w.state
	if prev == WorkStateCompleted && next == WorkStateCompleted {
		return prev, false, nil
	}
	if !CanTransition(prev, next) {
		return prev, false, &InvalidTransitionError{ItemID: w.id, From: prev, To: next}
	}

	w.state = next
	switch next {
	case WorkStateRunning:
		w.startedAt = nowFunc()
	case WorkStateCompleted:
		w.completedAt = nowFunc()
	}
	return prev, true, nil
}

// Execute runs the work body with the context captured at creation. A panic in
// the body is recovered and returned as a *PanicError.
func (w *WorkItem) Execute() (err error) {
	if w.work == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = NewPanicError(r, debug.Stack())
		}
	}()
	return w.work(w.ctx)
}
