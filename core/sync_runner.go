package core

import "context"

// RunSync submits item to q and blocks until that item has completed. It
// returns the item's failure, the queue's poisoning error if the queue is
// poisoned first, ErrWorkDropped if Clear discards the item, or ctx.Err() if
// ctx ends first. Cancelling ctx does not cancel the item.
func RunSync(ctx context.Context, q *WorkQueue, item *WorkItem) error {
	if q == nil || item == nil {
		return ErrNullArgument
	}
	if err := q.Add(item); err != nil {
		return err
	}

	select {
	case <-item.Done():
		return item.Failure()
	case <-item.Dropped():
		return ErrWorkDropped
	case <-q.poisonedSignal():
		select {
		case <-item.Done():
			return item.Failure()
		default:
			return q.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SyncWork runs a work function through a queue and waits for it.
type SyncWork func(work Work, traits WorkTraits) error

// NewSyncWork binds RunSync to a queue. ctx is both the ambient context of the
// created items and the wait context.
func NewSyncWork(ctx context.Context, q *WorkQueue) SyncWork {
	return func(work Work, traits WorkTraits) error {
		return RunSync(ctx, q, NewWorkItemWithTraits(ctx, work, traits))
	}
}
