// Package workqueue provides priority-ordered, admission-controlled execution
// of work items on a resizable pool of worker goroutines.
//
// # Quick Start
//
// Create a pool and a queue bound to it:
//
//	pool, err := workqueue.NewWorkerPool("io", workqueue.WithMaxThreads(8))
//	if err != nil {
//		return err
//	}
//	defer pool.Shutdown()
//
//	q := workqueue.NewWorkQueue(pool, workqueue.WithConcurrentLimit(4))
//	q.Add(workqueue.NewWorkItem(ctx, func(ctx context.Context) error {
//		// Your code here
//		return nil
//	}))
//	if err := q.WaitAll(ctx); err != nil {
//		// the queue was poisoned by a pool failure
//	}
//
// # Key Concepts
//
// WorkItem: a unit of work with a lifecycle
// (Created, Scheduled or Queued, Running, Failing, Completed). Illegal
// transitions are rejected with an InvalidTransitionError.
//
// WorkQueue: the admission controller. At most ConcurrentLimit items are
// delegated to the pool at once; the rest wait in a priority queue and are
// promoted highest priority first, in arrival order among equals.
//
// WorkerPool: the execution engine. Workers pull items from the pool's own
// priority queue; the pool grows on demand up to MaxThreads.
//
// # Failures
//
// An error returned by a work body, or a panic inside it, is recorded on the
// item and reported through QueueObserver.OnFailed. It never affects the queue.
// A failure of the pool machinery poisons the owning queue: it is paused, Add
// fails with ErrQueuePoisoned and every WaitAll caller receives the error.
//
// # Default Pool
//
// InitDefaultPool creates a process-wide pool for programs that want one. Queues
// never use it implicitly; pass DefaultPool() to NewWorkQueue. The default pool
// is stopped only by ShutdownDefaultPool.
package workqueue
