package core

import (
	"errors"
	"fmt"
)

// Common errors returned by work items, queues and pools.
var (
	// ErrInvalidTransition is matched by every *InvalidTransitionError.
	ErrInvalidTransition = errors.New("workqueue: invalid state transition")

	// ErrNullArgument is returned when a required work item is nil.
	ErrNullArgument = errors.New("workqueue: work item is nil")

	// ErrInvalidArgument is returned for out-of-range settings such as a
	// concurrency limit below one or negative thread bounds.
	ErrInvalidArgument = errors.New("workqueue: invalid argument")

	// ErrInvalidOperation is returned when an operation cannot be performed in
	// the current state, e.g. WaitAll on a paused queue.
	ErrInvalidOperation = errors.New("workqueue: invalid operation")

	// ErrQueuePoisoned is returned by Add once the queue has recorded a
	// resource-level failure. The recorded cause is wrapped alongside it.
	ErrQueuePoisoned = errors.New("workqueue: queue is poisoned")

	// ErrOwnerAlreadySet is returned when a work item is assigned to a second queue.
	ErrOwnerAlreadySet = errors.New("workqueue: work item already has an owner")

	// ErrPoolShutdown is returned by a resource pool that no longer accepts work.
	ErrPoolShutdown = errors.New("workqueue: pool is shut down")

	// ErrWorkDropped is returned by RunSync when Clear removed the item before
	// it ran.
	ErrWorkDropped = errors.New("workqueue: work item dropped before it ran")
)

// InvalidTransitionError describes a rejected lifecycle transition.
type InvalidTransitionError struct {
	ItemID string
	From   WorkState
	To     WorkState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("workqueue: work item %s cannot move from %s to %s", e.ItemID, e.From, e.To)
}

// Is reports whether target is ErrInvalidTransition.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// ResourceError is a failure of the pool machinery itself, as opposed to an
// error raised by a work body. It poisons the owning queue.
type ResourceError struct {
	Source any
	Item   *WorkItem
	Err    error
}

func (e *ResourceError) Error() string {
	if e.Item != nil {
		return fmt.Sprintf("workqueue: resource failure (%v) while handling work item %s: %v", e.Source, e.Item.ID(), e.Err)
	}
	return fmt.Sprintf("workqueue: resource failure (%v): %v", e.Source, e.Err)
}

func (e *ResourceError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panic together with the stack at
// the point of recovery.
type PanicError struct {
	Value any
	Stack []byte
}

// NewPanicError wraps a recovered value. If the value already is an error it
// stays reachable through errors.Unwrap.
func NewPanicError(value any, stack []byte) *PanicError {
	return &PanicError{Value: value, Stack: stack}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
