package core

import (
	"fmt"
	"sync"
)

// QueueObserver receives lifecycle notifications from a WorkQueue. Any nil
// callback is skipped. Callbacks run on the goroutine that caused the event,
// after the queue has released its lock, so they may call back into the queue.
type QueueObserver struct {
	OnStateChanged    func(item *WorkItem, previous WorkState)
	OnRunning         func(item *WorkItem)
	OnFailed          func(item *WorkItem)
	OnCompleted       func(item *WorkItem)
	OnAllCompleted    func()
	OnWorkerException func(source any, err error, item *WorkItem)
}

// PoolObserver receives notifications from a worker pool.
type PoolObserver struct {
	// OnThreadException reports a failure in a worker's own machinery. item is
	// nil when the failure happened outside any work item.
	OnThreadException func(poolID string, err error, item *WorkItem)
}

type subscription[T any] struct {
	id       uint64
	observer T
}

// ObserverRegistry is an ordered list of subscribers guarded by its own mutex.
// Emit snapshots the list and calls each observer without holding the lock.
type ObserverRegistry[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscription[T]
}

// Subscribe adds an observer and returns a function that removes it. The
// returned function is safe to call more than once.
func (r *ObserverRegistry[T]) Subscribe(observer T) (unsubscribe func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.subs = append(r.subs, subscription[T]{id: id, observer: observer})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(id) })
	}
}

func (r *ObserverRegistry[T]) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of subscribers.
func (r *ObserverRegistry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// Emit calls fn for every subscriber in subscription order. A panicking
// observer is logged and does not stop delivery to the others.
func (r *ObserverRegistry[T]) Emit(logger Logger, event string, fn func(T)) {
	r.mu.Lock()
	if len(r.subs) == 0 {
		r.mu.Unlock()
		return
	}
	snapshot := make([]subscription[T], len(r.subs))
	copy(snapshot, r.subs)
	r.mu.Unlock()

	for _, s := range snapshot {
		deliver(logger, event, s.observer, fn)
	}
}

func deliver[T any](logger Logger, event string, observer T, fn func(T)) {
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("observer panicked",
				F("event", event),
				F("panic", fmt.Sprint(r)),
			)
		}
	}()
	fn(observer)
}
