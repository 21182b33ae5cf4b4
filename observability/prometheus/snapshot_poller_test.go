package prometheus

import (
	"context"
	"testing"
	"time"

	"github.com/Swind/go-workqueue/core"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type queueStub struct {
	stats core.QueueStats
}

func (s queueStub) Stats() core.QueueStats { return s.stats }

type poolStub struct {
	stats core.PoolStats
}

func (s poolStub) Stats() core.PoolStats { return s.stats }

func TestSnapshotPoller_CollectsQueueAndPoolStats(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("workqueue", reg, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	poller.AddQueue("queue-a", queueStub{stats: core.QueueStats{
		Pending:   3,
		Running:   1,
		Limit:     4,
		Poisoned:  true,
		Completed: 9,
		Failed:    2,
		Dropped:   5,
	}})
	poller.AddPool("pool-a", poolStub{stats: core.PoolStats{
		Queued:     4,
		Active:     2,
		Idle:       1,
		Workers:    8,
		MaxThreads: 25,
		Running:    true,
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	assertEventually(t, 2*time.Second, func() bool {
		pending := testutil.ToFloat64(poller.queuePending.WithLabelValues("queue-a"))
		active := testutil.ToFloat64(poller.poolActive.WithLabelValues("pool-a"))
		return pending == 3 && active == 2
	})

	if got := testutil.ToFloat64(poller.queuePoisoned.WithLabelValues("queue-a")); got != 1 {
		t.Fatalf("queue poisoned gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.queuePaused.WithLabelValues("queue-a")); got != 0 {
		t.Fatalf("queue paused gauge = %v, want 0", got)
	}
	if got := testutil.ToFloat64(poller.queueFailed.WithLabelValues("queue-a")); got != 2 {
		t.Fatalf("queue failed gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(poller.queueDropped.WithLabelValues("queue-a")); got != 5 {
		t.Fatalf("queue dropped gauge = %v, want 5", got)
	}
	if got := testutil.ToFloat64(poller.poolRunning.WithLabelValues("pool-a")); got != 1 {
		t.Fatalf("pool running gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.poolMax.WithLabelValues("pool-a")); got != 25 {
		t.Fatalf("pool max gauge = %v, want 25", got)
	}
}

func TestSnapshotPoller_CollectOnceWithRealQueue(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("", reg, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	q := core.NewWorkQueue(inlinePool{}, core.WithName("real"), core.WithConcurrentLimit(2))
	_ = q.Add(core.NewWorkItem(context.Background(), nil))
	poller.AddQueue(q.Name(), q)
	poller.AddQueue("ignored", nil)

	poller.CollectOnce()

	if got := testutil.ToFloat64(poller.queueCompleted.WithLabelValues("real")); got != 1 {
		t.Fatalf("completed gauge = %v, want 1", got)
	}
	if got := testutil.ToFloat64(poller.queueLimit.WithLabelValues("real")); got != 2 {
		t.Fatalf("limit gauge = %v, want 2", got)
	}
}

func TestSnapshotPoller_StartStop_Idempotent(t *testing.T) {
	reg := prom.NewRegistry()
	poller, err := NewSnapshotPoller("workqueue", reg, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewSnapshotPoller failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller.Start(ctx)
	poller.Start(ctx)
	poller.Stop()
	poller.Stop()
	poller.Start(ctx)
	poller.Stop()
}

func assertEventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
