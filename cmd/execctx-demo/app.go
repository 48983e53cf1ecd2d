package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/phsym/zeroslog"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	execctx "github.com/Swind/go-execctx"
	"github.com/Swind/go-execctx/core"
	"github.com/Swind/go-execctx/logging"
	promexp "github.com/Swind/go-execctx/observability/prometheus"
)

const (
	poolName = "demo-pool"
	loopName = "demo-loop"

	shutdownTimeout = 5 * time.Second
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "execctx-demo",
		Usage: "run tasks on a thread pool and an event executor and report what each task observed",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Value:   4,
				Usage:   "number of pool workers",
				EnvVars: []string{"EXECCTX_WORKERS"},
			},
			&cli.IntFlag{
				Name:    "tasks",
				Aliases: []string{"n"},
				Value:   100,
				Usage:   "number of tasks to submit",
				EnvVars: []string{"EXECCTX_TASKS"},
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "serve /metrics and /healthz on this address (empty disables)",
				EnvVars: []string{"EXECCTX_METRICS_ADDR"},
			},
			&cli.DurationFlag{
				Name:    "linger",
				Usage:   "keep serving metrics this long after the run (until interrupted)",
				EnvVars: []string{"EXECCTX_LINGER"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "debug, info, warn or error",
				EnvVars: []string{"EXECCTX_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Usage:   "print the report as JSON",
				EnvVars: []string{"EXECCTX_JSON"},
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	// 1. Get flags
	workers := c.Int("workers")
	tasks := c.Int("tasks")
	if workers < 1 || tasks < 0 {
		return cli.Exit("workers must be >= 1 and tasks >= 0", 1)
	}
	level, err := logrus.ParseLevel(c.String("log-level"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid log level: %v", err), 1)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Wire logging and metrics
	logger := setupLogging(c.App.ErrWriter, level)

	reg := prom.NewRegistry()
	exporter, err := promexp.NewMetricsExporter("execctx", reg, promexp.ExporterOptions{})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}
	poller, err := promexp.NewSnapshotPoller("execctx", reg, time.Second)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	config := &core.ExecutorConfig{Logger: logger, Metrics: exporter}

	// 3. Start the engines
	pool := execctx.NewGoroutineThreadPoolWithConfig(poolName, workers, config)
	pool.Start(ctx)
	loop, err := core.NewSingleThreadEventExecutor(loopName, nil, config)
	if err != nil {
		pool.Stop()
		return cli.Exit(fmt.Sprintf("Failed: %v", err), 1)
	}

	poller.Add(poolName, pool)
	poller.Add(loopName, loop)
	poller.Start(ctx)
	defer poller.Stop()

	var srv *http.Server
	if addr := c.String("metrics-addr"); addr != "" {
		srv = &http.Server{
			Addr:              addr,
			Handler:           newRouter(reg, pool, loop),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", "addr", addr, "error", err)
			}
		}()
		slog.Info("serving metrics", "addr", addr)
	}

	// 4. Run the workload
	rep := runWorkload(ctx, pool, loop, tasks)
	rep.Workers = workers

	if linger := c.Duration("linger"); srv != nil && linger > 0 {
		select {
		case <-time.After(linger):
		case <-ctx.Done():
		}
	}

	// 5. Shut down
	if err := pool.StopGraceful(shutdownTimeout); err != nil {
		slog.Warn("pool did not drain", "error", err)
	}
	loop.Shutdown()
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := loop.WaitTermination(waitCtx); err != nil {
		slog.Warn("event loop did not drain", "error", err)
	}
	loop.Stop()
	if srv != nil {
		_ = srv.Shutdown(waitCtx)
	}
	rep.Executors = []core.ExecutorStats{pool.Stats(), loop.Stats()}

	// 6. Format output
	return printReport(c.App.Writer, rep, c.Bool("json"))
}

// setupLogging routes slog through zerolog and returns the logrus-backed
// executor logger. Both tag records with the current executor and thread.
func setupLogging(w io.Writer, level logrus.Level) core.Logger {
	if w == nil {
		w = os.Stderr
	}

	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}).
		With().Timestamp().Logger().
		Hook(logging.ZerologHook{})
	slog.SetDefault(slog.New(logging.NewSlogHandler(
		zeroslog.NewHandler(zl, &zeroslog.HandlerOptions{Level: slogLevel(level)}),
	)))

	lr := logrus.New()
	lr.SetOutput(w)
	lr.SetLevel(level)
	lr.AddHook(logging.NewLogrusHook())
	return core.NewLogrusLogger(lr)
}

func slogLevel(level logrus.Level) slog.Level {
	switch {
	case level >= logrus.DebugLevel:
		return slog.LevelDebug
	case level == logrus.InfoLevel:
		return slog.LevelInfo
	case level == logrus.WarnLevel:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// report summarizes what the submitted tasks observed.
type report struct {
	Tasks     int                  `json:"tasks"`
	Workers   int                  `json:"workers"`
	Elapsed   time.Duration        `json:"elapsed_ns"`
	Observed  map[string]int       `json:"observed"`
	Unbound   int                  `json:"unbound"`
	Executors []core.ExecutorStats `json:"executors"`
}

// runWorkload submits n tasks to pool. Each one records the executor it sees,
// then hands a follow-up to loop, which records its own.
func runWorkload(ctx context.Context, pool *execctx.GoroutineThreadPool, loop *core.SingleThreadEventExecutor, n int) *report {
	rep := &report{Tasks: n, Observed: make(map[string]int)}
	var mu sync.Mutex
	observe := func(ctx context.Context) {
		mu.Lock()
		defer mu.Unlock()
		if exec, ok := execctx.CurrentExecutor(ctx); ok {
			rep.Observed[exec.Name()]++
		} else {
			rep.Unbound++
		}
	}

	var wg sync.WaitGroup
	wg.Add(2 * n)
	start := time.Now()
	for i := 0; i < n; i++ {
		id := i
		pool.Execute(func(ctx context.Context) {
			defer wg.Done()
			observe(ctx)
			slog.DebugContext(ctx, "pool task", "id", id)
			loop.Execute(func(ctx context.Context) {
				defer wg.Done()
				observe(ctx)
				slog.DebugContext(ctx, "loop task", "id", id, "in_event_loop", loop.InEventLoop(ctx))
			})
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		slog.Warn("workload interrupted")
	}
	rep.Elapsed = time.Since(start)

	mu.Lock()
	defer mu.Unlock()
	out := &report{Tasks: rep.Tasks, Elapsed: rep.Elapsed, Observed: make(map[string]int, len(rep.Observed)), Unbound: rep.Unbound}
	for k, v := range rep.Observed {
		out.Observed[k] = v
	}
	return out
}

func printReport(w io.Writer, rep *report, asJSON bool) error {
	if asJSON {
		b, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	}

	fmt.Fprintf(w, "tasks=%d workers=%d elapsed=%v\n", rep.Tasks, rep.Workers, rep.Elapsed)
	for _, name := range []string{poolName, loopName} {
		fmt.Fprintf(w, "  %s observed by %d tasks\n", name, rep.Observed[name])
	}
	fmt.Fprintf(w, "  unbound: %d\n", rep.Unbound)
	for _, s := range rep.Executors {
		fmt.Fprintf(w, "  %s (%s): completed=%d rejected=%d pending=%d\n", s.Name, s.Type, s.Completed, s.Rejected, s.Pending)
	}
	return nil
}
