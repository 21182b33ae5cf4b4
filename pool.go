package workqueue

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/Swind/go-workqueue/core"
	"github.com/Swind/go-workqueue/internal/tracing"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMinThreads = 0
	DefaultMaxThreads = 25

	// basePriority is the execution priority a worker returns to between items.
	basePriority = core.WorkPriorityNormal
)

// PoolOption configures a WorkerPool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	minThreads     int
	maxThreads     int
	logger         core.Logger
	tracerProvider trace.TracerProvider
}

// WithMinThreads sets the number of workers kept alive while idle.
func WithMinThreads(n int) PoolOption {
	return func(o *poolOptions) { o.minThreads = n }
}

// WithMaxThreads sets the upper bound on workers.
func WithMaxThreads(n int) PoolOption {
	return func(o *poolOptions) { o.maxThreads = n }
}

func WithPoolLogger(logger core.Logger) PoolOption {
	return func(o *poolOptions) { o.logger = logger }
}

// WithTracerProvider sets where execution spans go. The global provider is
// used when unset.
func WithTracerProvider(tp trace.TracerProvider) PoolOption {
	return func(o *poolOptions) { o.tracerProvider = tp }
}

type worker struct {
	id       int
	priority core.WorkPriority
	busy     bool
	waiting  bool
	stop     bool
	retired  bool
}

// WorkerPool is a resizable set of worker goroutines that execute work items
// handed over through BeginWork, highest priority first.
//
// A failure raised by a work body is recorded on the item. A failure of the
// pool's own handling of an item is reported to the item's owner, or raised
// as a thread exception when the item has no owner.
type WorkerPool struct {
	id        string
	logger    core.Logger
	tracer    trace.Tracer
	isDefault bool

	mu       sync.Mutex
	cond     *sync.Cond
	queue    *core.PriorityQueue
	workers  map[int]*worker
	nextID   int
	waiters  int
	active   int
	retiring int // removed from workers but not yet exited
	min      int
	max      int
	shutdown bool
	stopped  chan struct{} // closed when shutdown has finished
	wg       sync.WaitGroup

	observers core.ObserverRegistry[core.PoolObserver]

	// beforeDequeue runs at the top of every worker loop iteration. Tests use
	// it to fail the loop itself.
	beforeDequeue func()
}

var _ core.ResourcePool = (*WorkerPool)(nil)

// NewWorkerPool creates a pool and starts its minimum number of workers.
// It returns ErrInvalidArgument for negative or inconsistent thread bounds.
func NewWorkerPool(id string, opts ...PoolOption) (*WorkerPool, error) {
	o := poolOptions{
		minThreads: DefaultMinThreads,
		maxThreads: DefaultMaxThreads,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxThreads < 1 || o.minThreads < 0 || o.minThreads > o.maxThreads {
		return nil, fmt.Errorf("%w: thread bounds min=%d max=%d", core.ErrInvalidArgument, o.minThreads, o.maxThreads)
	}
	if o.logger == nil {
		o.logger = core.NewNoOpLogger()
	}

	p := &WorkerPool{
		id:      id,
		logger:  o.logger,
		tracer:  tracing.Tracer(o.tracerProvider),
		queue:   core.NewPriorityQueue(),
		workers: make(map[int]*worker),
		stopped: make(chan struct{}),
		min:     o.minThreads,
		max:     o.maxThreads,
	}
	p.cond = sync.NewCond(&p.mu)

	p.mu.Lock()
	for len(p.workers) < p.min {
		p.spawnLocked()
	}
	p.mu.Unlock()
	return p, nil
}

// ID returns the ID of the pool
func (p *WorkerPool) ID() string {
	return p.id
}

// Subscribe registers an observer for thread exceptions.
func (p *WorkerPool) Subscribe(observer core.PoolObserver) (unsubscribe func()) {
	return p.observers.Subscribe(observer)
}

// =============================================================================
// ResourcePool
// =============================================================================

// BeginWork queues item for the next free worker, starting a new worker when
// none is idle and the pool is below MaxThreads.
func (p *WorkerPool) BeginWork(item *core.WorkItem) error {
	if item == nil {
		return core.ErrNullArgument
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.shutdown {
		return core.ErrPoolShutdown
	}
	p.queue.Push(item)
	if p.waiters < p.queue.Len() && p.liveLocked() < p.max {
		p.spawnLocked()
	}
	p.cond.Signal()
	return nil
}

// liveLocked counts worker goroutines that have not exited, including retired
// ones still finishing an item.
func (p *WorkerPool) liveLocked() int {
	return len(p.workers) + p.retiring
}

func (p *WorkerPool) spawnLocked() {
	p.nextID++
	w := &worker{id: p.nextID, priority: basePriority}
	p.workers[w.id] = w
	p.wg.Add(1)
	go p.runWorker(w)

	p.logger.Debug("worker started",
		core.F("pool", p.id),
		core.F("worker", w.id),
		core.F("workers", len(p.workers)),
	)
}

// =============================================================================
// Worker loop
// =============================================================================

// runWorker keeps a worker alive until it is stopped. A failure in the loop
// itself is raised as a thread exception and the loop starts over.
func (p *WorkerPool) runWorker(w *worker) {
	defer p.wg.Done()
	for !p.loopOnce(w) {
	}
	p.logger.Debug("worker stopped",
		core.F("pool", p.id),
		core.F("worker", w.id),
	)
}

// loopOnce runs the worker loop and reports whether it ended cooperatively.
func (p *WorkerPool) loopOnce(w *worker) (stopped bool) {
	defer func() {
		if r := recover(); r != nil {
			err := core.NewPanicError(r, debug.Stack())
			p.logger.Error("worker loop failed, restarting",
				core.F("pool", p.id),
				core.F("worker", w.id),
				core.F("error", err),
			)
			p.raiseThreadException(err, nil)
			stopped = false
		}
	}()

	for {
		if hook := p.beforeDequeue; hook != nil {
			hook()
		}
		item, ok := p.next(w)
		if !ok {
			return true
		}
		p.execute(w, item)
	}
}

// next blocks until an item is available or the worker must stop.
func (p *WorkerPool) next(w *worker) (*core.WorkItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w.busy {
		w.busy = false
		p.active--
	}
	for {
		if w.stop || p.shutdown {
			delete(p.workers, w.id)
			if w.retired {
				w.retired = false
				p.retiring--
				p.replaceRetiredLocked()
			}
			// a Signal meant for a live worker may have woken this one
			if !p.queue.IsEmpty() {
				p.cond.Signal()
			}
			return nil, false
		}
		if item, ok := p.queue.Pop(); ok {
			w.busy = true
			p.active++
			return item, true
		}

		w.waiting = true
		p.waiters++
		p.cond.Wait()
		if w.waiting {
			w.waiting = false
			p.waiters--
		}
	}
}

// replaceRetiredLocked starts the workers a retired worker held capacity for.
func (p *WorkerPool) replaceRetiredLocked() {
	if p.shutdown {
		return
	}
	for p.liveLocked() < p.min {
		p.spawnLocked()
	}
	if p.waiters < p.queue.Len() && p.liveLocked() < p.max {
		p.spawnLocked()
	}
}

// execute runs one item at the item's priority. Only errors from the work body
// become the item's failure; anything else is a resource failure.
func (p *WorkerPool) execute(w *worker, item *core.WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			p.reportResourceFailure(item, core.NewPanicError(r, debug.Stack()))
		}
	}()
	defer p.adoptPriority(w, item.Priority())()

	if err := item.SetState(core.WorkStateRunning); err != nil {
		p.reportResourceFailure(item, err)
		return
	}

	_, span := tracing.StartWorkSpan(item.Context(), p.tracer, tracing.WorkAttributes{
		WorkID:   item.ID(),
		WorkName: item.Name(),
		Priority: item.Priority().String(),
		Queue:    ownerName(item),
		Pool:     p.id,
		Worker:   w.id,
	})
	workErr := item.Execute()
	tracing.EndSpan(span, workErr)

	if workErr != nil {
		item.SetFailure(workErr)
		if err := item.SetState(core.WorkStateFailing); err != nil {
			p.reportResourceFailure(item, err)
			return
		}
	}
	if err := item.SetState(core.WorkStateCompleted); err != nil {
		p.reportResourceFailure(item, err)
	}
}

// adoptPriority switches the worker to priority and returns the restore func.
func (p *WorkerPool) adoptPriority(w *worker, priority core.WorkPriority) (restore func()) {
	p.mu.Lock()
	previous := w.priority
	w.priority = priority
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		w.priority = previous
		p.mu.Unlock()
	}
}

func ownerName(item *core.WorkItem) string {
	if named, ok := item.Owner().(interface{ Name() string }); ok {
		return named.Name()
	}
	return ""
}

func (p *WorkerPool) reportResourceFailure(item *core.WorkItem, err error) {
	if owner := item.Owner(); owner != nil {
		owner.NotifyResourceException(p, err, item)
		return
	}
	p.logger.Error("resource failure on unowned work item",
		core.F("pool", p.id),
		core.F("work_id", item.ID()),
		core.F("error", err),
	)
	p.raiseThreadException(err, item)
}

func (p *WorkerPool) raiseThreadException(err error, item *core.WorkItem) {
	p.observers.Emit(p.logger, "thread_exception", func(o core.PoolObserver) {
		if o.OnThreadException != nil {
			o.OnThreadException(p.id, err, item)
		}
	})
}

// =============================================================================
// Sizing
// =============================================================================

func (p *WorkerPool) MinThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.min
}

// SetMinThreads starts workers up to n. n is clamped to MaxThreads.
func (p *WorkerPool) SetMinThreads(n int) error {
	if n < 0 {
		return fmt.Errorf("%w: min threads %d", core.ErrInvalidArgument, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > p.max {
		n = p.max
	}
	p.min = n
	if p.shutdown {
		return nil
	}
	for p.liveLocked() < p.min {
		p.spawnLocked()
	}
	return nil
}

func (p *WorkerPool) MaxThreads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.max
}

// SetMaxThreads changes the upper bound. Lowering it retires idle workers
// first; busy workers being retired exit after their current item and count
// against the bound until then.
func (p *WorkerPool) SetMaxThreads(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: max threads %d", core.ErrInvalidArgument, n)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.max = n
	if p.min > n {
		p.min = n
	}

	excess := len(p.workers) - n
	if excess <= 0 {
		return nil
	}
	for _, wantBusy := range []bool{false, true} {
		for id, w := range p.workers {
			if excess == 0 {
				break
			}
			if w.busy != wantBusy {
				continue
			}
			w.stop = true
			w.retired = true
			p.retiring++
			if w.waiting {
				w.waiting = false
				p.waiters--
			}
			delete(p.workers, id)
			excess--
		}
	}
	p.cond.Broadcast()

	p.logger.Debug("pool shrunk",
		core.F("pool", p.id),
		core.F("max_threads", n),
		core.F("workers", len(p.workers)),
	)
	return nil
}

// Workers returns the number of live workers.
func (p *WorkerPool) Workers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// IdleWorkers returns the number of workers blocked waiting for work.
func (p *WorkerPool) IdleWorkers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiters
}

func (p *WorkerPool) Stats() core.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return core.PoolStats{
		ID:         p.id,
		Workers:    len(p.workers),
		Idle:       p.waiters,
		Queued:     p.queue.Len(),
		Active:     p.active,
		MinThreads: p.min,
		MaxThreads: p.max,
		Running:    !p.shutdown,
	}
}

// workerPriority returns the current execution priority of worker id.
func (p *WorkerPool) workerPriority(id int) (core.WorkPriority, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.workers[id]
	if !ok {
		return 0, false
	}
	return w.priority, true
}

// =============================================================================
// Shutdown
// =============================================================================

// Shutdown stops every worker once its current item is done and waits for
// all of them to exit. Concurrent calls all wait for the workers. Items
// still waiting for a worker are reported to their owners as ErrPoolShutdown
// resource failures. The default pool cannot be shut down this way; use
// ShutdownDefaultPool.
//
// Shutdown must not be called from a work body running on this pool.
func (p *WorkerPool) Shutdown() error {
	if p.isDefault {
		return fmt.Errorf("%w: the default pool is stopped by ShutdownDefaultPool", core.ErrInvalidOperation)
	}
	p.stop()
	return nil
}

func (p *WorkerPool) stop() {
	p.mu.Lock()
	if p.shutdown {
		p.mu.Unlock()
		<-p.stopped
		return
	}
	p.shutdown = true
	for _, w := range p.workers {
		w.stop = true
	}
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	close(p.stopped)

	p.mu.Lock()
	leftovers := p.queue.Clear()
	p.mu.Unlock()

	for _, item := range leftovers {
		p.reportResourceFailure(item, core.ErrPoolShutdown)
	}
	p.logger.Info("pool shut down",
		core.F("pool", p.id),
		core.F("abandoned", len(leftovers)),
	)
}

// =============================================================================
// Default pool
// =============================================================================

var (
	defaultPool *WorkerPool
	defaultMu   sync.Mutex
)

// InitDefaultPool creates the process-wide default pool. Later calls return
// the existing pool and ignore opts.
func InitDefaultPool(opts ...PoolOption) (*WorkerPool, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultPool != nil {
		return defaultPool, nil
	}
	pool, err := NewWorkerPool("default-pool", opts...)
	if err != nil {
		return nil, err
	}
	pool.isDefault = true
	defaultPool = pool
	return pool, nil
}

// DefaultPool returns the default pool.
// It panics if InitDefaultPool has not been called.
func DefaultPool() *WorkerPool {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultPool == nil {
		panic("default pool not initialized. Call InitDefaultPool() first.")
	}
	return defaultPool
}

// ShutdownDefaultPool stops the default pool and forgets it.
func ShutdownDefaultPool() {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultPool != nil {
		defaultPool.stop()
		defaultPool = nil
	}
}
