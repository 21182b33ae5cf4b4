package prometheus

import (
	"context"
	"sync"
	"time"

	"github.com/Swind/go-workqueue/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// QueueSnapshotProvider provides current queue stats snapshots.
type QueueSnapshotProvider interface {
	Stats() core.QueueStats
}

// PoolSnapshotProvider provides current pool stats snapshots.
type PoolSnapshotProvider interface {
	Stats() core.PoolStats
}

// SnapshotPoller periodically exports queue/pool Stats() snapshots into Prometheus gauges.
type SnapshotPoller struct {
	interval time.Duration

	queuesMu sync.RWMutex
	queues   map[string]QueueSnapshotProvider

	poolsMu sync.RWMutex
	pools   map[string]PoolSnapshotProvider

	queuePending   *prom.GaugeVec
	queueRunning   *prom.GaugeVec
	queueLimit     *prom.GaugeVec
	queuePaused    *prom.GaugeVec
	queuePoisoned  *prom.GaugeVec
	queueCompleted *prom.GaugeVec
	queueFailed    *prom.GaugeVec
	queueDropped   *prom.GaugeVec

	poolQueued  *prom.GaugeVec
	poolActive  *prom.GaugeVec
	poolIdle    *prom.GaugeVec
	poolWorkers *prom.GaugeVec
	poolMax     *prom.GaugeVec
	poolRunning *prom.GaugeVec

	stateMu sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewSnapshotPoller creates a snapshot poller and registers its collectors.
func NewSnapshotPoller(namespace string, reg prom.Registerer, interval time.Duration) (*SnapshotPoller, error) {
	if namespace == "" {
		namespace = "workqueue"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	if interval <= 0 {
		interval = time.Second
	}

	p := &SnapshotPoller{
		interval: interval,
		queues:   make(map[string]QueueSnapshotProvider),
		pools:    make(map[string]PoolSnapshotProvider),
	}

	queueLabels := []string{"queue"}
	poolLabels := []string{"pool"}
	gauges := []struct {
		target **prom.GaugeVec
		name   string
		help   string
		labels []string
	}{
		{&p.queuePending, "queue_pending", "Pending work items per queue.", queueLabels},
		{&p.queueRunning, "queue_running", "Work items delegated to the pool per queue.", queueLabels},
		{&p.queueLimit, "queue_concurrency_limit", "Concurrency limit per queue.", queueLabels},
		{&p.queuePaused, "queue_paused", "Queue paused state (1=paused, 0=admitting).", queueLabels},
		{&p.queuePoisoned, "queue_poisoned", "Queue poisoned state (1=poisoned, 0=healthy).", queueLabels},
		{&p.queueCompleted, "queue_completed", "Completed work item count snapshot.", queueLabels},
		{&p.queueFailed, "queue_failed", "Failed work item count snapshot.", queueLabels},
		{&p.queueDropped, "queue_dropped", "Work items discarded by Clear, count snapshot.", queueLabels},
		{&p.poolQueued, "pool_queued", "Items waiting for a worker per pool.", poolLabels},
		{&p.poolActive, "pool_active", "Busy workers per pool.", poolLabels},
		{&p.poolIdle, "pool_idle", "Idle workers per pool.", poolLabels},
		{&p.poolWorkers, "pool_workers", "Worker count per pool.", poolLabels},
		{&p.poolMax, "pool_max_threads", "Maximum worker count per pool.", poolLabels},
		{&p.poolRunning, "pool_running", "Pool running state (1=running, 0=stopped).", poolLabels},
	}
	for _, g := range gauges {
		vec := prom.NewGaugeVec(prom.GaugeOpts{
			Namespace: namespace,
			Name:      g.name,
			Help:      g.help,
		}, g.labels)
		registered, err := registerCollector(reg, vec)
		if err != nil {
			return nil, err
		}
		*g.target = registered
	}
	return p, nil
}

// AddQueue adds or replaces a queue snapshot provider by name.
func (p *SnapshotPoller) AddQueue(name string, provider QueueSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "queue")
	p.queuesMu.Lock()
	p.queues[name] = provider
	p.queuesMu.Unlock()
}

// AddPool adds or replaces a pool snapshot provider by name.
func (p *SnapshotPoller) AddPool(name string, provider PoolSnapshotProvider) {
	if p == nil || provider == nil {
		return
	}
	name = normalizeLabel(name, "pool")
	p.poolsMu.Lock()
	p.pools[name] = provider
	p.poolsMu.Unlock()
}

// Start begins periodic polling; repeated calls are no-ops.
func (p *SnapshotPoller) Start(ctx context.Context) {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.running {
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running = true

	go p.loop(pollCtx, p.done)
}

// Stop stops periodic polling; repeated calls are safe.
func (p *SnapshotPoller) Stop() {
	if p == nil {
		return
	}

	p.stateMu.Lock()
	if !p.running {
		p.stateMu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.running = false
	p.cancel = nil
	p.done = nil
	p.stateMu.Unlock()

	cancel()
	<-done
}

func (p *SnapshotPoller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.CollectOnce()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CollectOnce()
		}
	}
}

// CollectOnce copies every registered snapshot into the gauges.
func (p *SnapshotPoller) CollectOnce() {
	p.queuesMu.RLock()
	for name, provider := range p.queues {
		stats := provider.Stats()
		p.queuePending.WithLabelValues(name).Set(float64(stats.Pending))
		p.queueRunning.WithLabelValues(name).Set(float64(stats.Running))
		p.queueLimit.WithLabelValues(name).Set(float64(stats.Limit))
		p.queuePaused.WithLabelValues(name).Set(boolGauge(stats.Paused))
		p.queuePoisoned.WithLabelValues(name).Set(boolGauge(stats.Poisoned))
		p.queueCompleted.WithLabelValues(name).Set(float64(stats.Completed))
		p.queueFailed.WithLabelValues(name).Set(float64(stats.Failed))
		p.queueDropped.WithLabelValues(name).Set(float64(stats.Dropped))
	}
	p.queuesMu.RUnlock()

	p.poolsMu.RLock()
	for name, provider := range p.pools {
		stats := provider.Stats()
		p.poolQueued.WithLabelValues(name).Set(float64(stats.Queued))
		p.poolActive.WithLabelValues(name).Set(float64(stats.Active))
		p.poolIdle.WithLabelValues(name).Set(float64(stats.Idle))
		p.poolWorkers.WithLabelValues(name).Set(float64(stats.Workers))
		p.poolMax.WithLabelValues(name).Set(float64(stats.MaxThreads))
		p.poolRunning.WithLabelValues(name).Set(boolGauge(stats.Running))
	}
	p.poolsMu.RUnlock()
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
