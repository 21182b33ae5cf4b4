package workqueue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// TestWorkQueue_ConcurrentSubmitters drives a real pool from several submitting goroutines
// Given: A queue limited to 3 on a pool of 8 workers
// When: 8 goroutines submit 200 items, every tenth of which fails
// Then: No more than 3 bodies overlap, every item completes, and the counters add up
func TestWorkQueue_ConcurrentSubmitters(t *testing.T) {
	const (
		submitters = 8
		perWorker  = 25
		limit      = 3
	)
	pool := newTestPool(t, WithMaxThreads(8))
	defer pool.Shutdown()
	queue := NewWorkQueue(pool, WithName("integration"), WithConcurrentLimit(limit))

	var inFlight, peak, ran atomic.Int32
	errBody := errors.New("body failed")

	g, ctx := errgroup.WithContext(context.Background())
	for s := range submitters {
		g.Go(func() error {
			for i := range perWorker {
				n := s*perWorker + i
				traits := WorkTraits{Priority: WorkPriority(n % 5), Name: fmt.Sprintf("item-%d", n)}
				item := NewWorkItemWithTraits(ctx, func(ctx context.Context) error {
					cur := inFlight.Add(1)
					defer inFlight.Add(-1)
					for {
						old := peak.Load()
						if cur <= old || peak.CompareAndSwap(old, cur) {
							break
						}
					}
					ran.Add(1)
					time.Sleep(100 * time.Microsecond)
					if n%10 == 0 {
						return errBody
					}
					return nil
				}, traits)
				if err := queue.Add(item); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("submit: %v", err)
	}

	ok, err := queue.WaitAllTimeout(5 * time.Second)
	if err != nil || !ok {
		t.Fatalf("WaitAllTimeout: ok=%v err=%v", ok, err)
	}

	total := int64(submitters * perWorker)
	if got := ran.Load(); int64(got) != total {
		t.Errorf("expected %d bodies to run, got %d", total, got)
	}
	if p := peak.Load(); p > limit {
		t.Errorf("expected at most %d overlapping bodies, saw %d", limit, p)
	}

	stats := queue.Stats()
	if stats.Submitted != total || stats.Completed != total {
		t.Errorf("expected submitted=completed=%d, got %+v", total, stats)
	}
	if stats.Failed != total/10 {
		t.Errorf("expected %d failures, got %d", total/10, stats.Failed)
	}
	if stats.Pending != 0 || stats.Running != 0 {
		t.Errorf("expected an idle queue, got pending=%d running=%d", stats.Pending, stats.Running)
	}
}
