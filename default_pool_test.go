package workqueue_test

import (
	"context"
	"errors"
	"testing"

	workqueue "github.com/Swind/go-workqueue"
)

// TestDefaultPool demonstrates sharing the default pool between two queues.
func TestDefaultPool(t *testing.T) {
	pool, err := workqueue.InitDefaultPool(workqueue.WithMaxThreads(4))
	if err != nil {
		t.Fatalf("InitDefaultPool: %v", err)
	}
	defer workqueue.ShutdownDefaultPool()

	again, err := workqueue.InitDefaultPool(workqueue.WithMaxThreads(99))
	if err != nil || again != pool {
		t.Fatal("second InitDefaultPool should return the existing pool")
	}
	if workqueue.DefaultPool() != pool {
		t.Fatal("DefaultPool() returned a different instance")
	}
	if pool.MaxThreads() != 4 {
		t.Errorf("options of later Init calls must be ignored, max=%d", pool.MaxThreads())
	}

	q1 := workqueue.NewWorkQueue(workqueue.DefaultPool(), workqueue.WithName("q1"))
	q2 := workqueue.NewWorkQueue(workqueue.DefaultPool(), workqueue.WithName("q2"))

	count := make(chan string, 2)
	for _, q := range []*workqueue.WorkQueue{q1, q2} {
		name := q.Name()
		if err := q.Add(workqueue.NewWorkItem(context.Background(), func(ctx context.Context) error {
			count <- name
			return nil
		})); err != nil {
			t.Fatal(err)
		}
	}
	for _, q := range []*workqueue.WorkQueue{q1, q2} {
		if err := q.WaitAll(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if len(count) != 2 {
		t.Errorf("expected 2 items executed, got %d", len(count))
	}
}

// TestDefaultPool_ShutdownRejected verifies only ShutdownDefaultPool stops the default pool
func TestDefaultPool_ShutdownRejected(t *testing.T) {
	pool, err := workqueue.InitDefaultPool()
	if err != nil {
		t.Fatal(err)
	}

	if err := pool.Shutdown(); !errors.Is(err, workqueue.ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation, got %v", err)
	}
	if !pool.Stats().Running {
		t.Error("default pool must keep running after a rejected Shutdown")
	}

	workqueue.ShutdownDefaultPool()
	if pool.Stats().Running {
		t.Error("ShutdownDefaultPool should stop the pool")
	}

	defer func() {
		if recover() == nil {
			t.Error("DefaultPool() should panic after ShutdownDefaultPool")
		}
	}()
	workqueue.DefaultPool()
}
