package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	workqueue "github.com/Swind/go-workqueue"
	"github.com/Swind/go-workqueue/core"
	"github.com/Swind/go-workqueue/internal/tracing"
	wqprom "github.com/Swind/go-workqueue/observability/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "submit synthetic work and wait for it to finish",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "items", Aliases: []string{"n"}, Value: 100, Usage: "number of work items"},
			&cli.IntFlag{Name: "submitters", Value: 4, Usage: "concurrent submitting goroutines"},
			&cli.Float64Flag{Name: "fail-ratio", Value: 0.05, Usage: "fraction of items whose body fails"},
			&cli.DurationFlag{Name: "work", Value: 10 * time.Millisecond, Usage: "time each item spends working"},
			&cli.IntFlag{Name: "max-threads", Usage: "override pool.maxThreads"},
			&cli.IntFlag{Name: "limit", Usage: "override queue.concurrencyLimit"},
			&cli.BoolFlag{Name: "metrics", Usage: "serve Prometheus metrics on metrics.address"},
			&cli.BoolFlag{Name: "trace", Usage: "write execution spans to stderr"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "development logging"},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	// 1. Get flags and config
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	if n := c.Int("max-threads"); n > 0 {
		cfg.Pool.MaxThreads = n
	}
	if n := c.Int("limit"); n > 0 {
		cfg.Queue.ConcurrencyLimit = n
	}
	if c.Bool("metrics") {
		cfg.Metrics.Enabled = true
	}

	// 2. Validate (format only)
	items, submitters := c.Int("items"), c.Int("submitters")
	failRatio := c.Float64("fail-ratio")
	if items < 0 || submitters < 1 || failRatio < 0 || failRatio > 1 {
		return cli.Exit("items must be >= 0, submitters >= 1 and fail-ratio within [0, 1]", 1)
	}

	zl, err := newZap(c.Bool("verbose"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer zl.Sync()
	logger := core.NewZapLogger(zl)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Bool("trace") {
		tp, err := tracing.NewStdoutProvider("workqueue", "dev", os.Stderr)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		otel.SetTracerProvider(tp)
		defer tp.Shutdown(context.Background())
	}

	// 3. Wire metrics, pool and queue
	var metrics core.Metrics
	var poller *wqprom.SnapshotPoller
	if cfg.Metrics.Enabled {
		reg := prom.NewRegistry()
		exporter, err := wqprom.NewMetricsExporter(cfg.Metrics.Namespace, reg, wqprom.ExporterOptions{})
		if err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		metrics = exporter
		if poller, err = wqprom.NewSnapshotPoller(cfg.Metrics.Namespace, reg, cfg.Metrics.PollInterval); err != nil {
			return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
		}
		srv := serveMetrics(cfg.Metrics.Address, reg, logger)
		defer srv.Shutdown(context.Background())
	}

	rt, err := workqueue.NewFromConfig(cfg, logger, metrics)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	defer rt.Close()

	if poller != nil {
		poller.AddQueue(rt.Queue.Name(), rt.Queue)
		poller.AddPool(rt.Pool.ID(), rt.Pool)
		poller.Start(ctx)
		defer poller.Stop()
	}

	// 4. Submit and wait
	started := time.Now()
	if err := submit(ctx, rt.Queue, items, submitters, failRatio, c.Duration("work")); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	if err := rt.Queue.WaitAll(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	// 5. Format output
	stats := rt.Queue.Stats()
	fmt.Fprintf(c.App.Writer, "✓ %d items in %s: %d completed, %d failed\n",
		stats.Submitted, time.Since(started).Round(time.Millisecond), stats.Completed, stats.Failed)
	pool := rt.Pool.Stats()
	fmt.Fprintf(c.App.Writer, "  pool %s: %d workers (min %d, max %d)\n", pool.ID, pool.Workers, pool.MinThreads, pool.MaxThreads)
	for _, rec := range rt.Queue.RecentWork(5) {
		fmt.Fprintf(c.App.Writer, "  %-24s %-8s %8s failed=%t\n", rec.Name, rec.Priority, rec.Duration.Round(time.Microsecond), rec.Failed)
	}
	return nil
}

// submit adds items from several goroutines with random priorities. The items
// run with ctx; the errgroup context only stops submission early.
func submit(ctx context.Context, q *workqueue.WorkQueue, items, submitters int, failRatio float64, work time.Duration) error {
	errFailed := errors.New("synthetic failure")
	g, gctx := errgroup.WithContext(ctx)
	for s := range submitters {
		g.Go(func() error {
			for i := s; i < items; i += submitters {
				if err := gctx.Err(); err != nil {
					return err
				}
				fail := rand.Float64() < failRatio
				traits := workqueue.WorkTraits{
					Name:     fmt.Sprintf("item-%04d", i),
					Priority: workqueue.WorkPriority(rand.IntN(int(core.WorkPriorityHighest) + 1)),
				}
				item := workqueue.NewWorkItemWithTraits(ctx, func(ctx context.Context) error {
					select {
					case <-time.After(work):
					case <-ctx.Done():
						return ctx.Err()
					}
					if fail {
						return errFailed
					}
					return nil
				}, traits)
				if err := q.Add(item); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func serveMetrics(addr string, reg *prom.Registry, logger core.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", core.F("addr", addr), core.F("error", err))
		}
	}()
	logger.Info("serving metrics", core.F("addr", addr))
	return srv
}

func newZap(verbose bool) (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
