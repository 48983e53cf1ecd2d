package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestEventExecutor(t *testing.T, name string, cfg *ExecutorConfig) *SingleThreadEventExecutor {
	t.Helper()
	if cfg == nil {
		cfg = &ExecutorConfig{}
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}
	e, err := NewSingleThreadEventExecutor(name, nil, cfg)
	if err != nil {
		t.Fatalf("NewSingleThreadEventExecutor failed: %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

// TestSingleThreadEventExecutor_TasksSeeTheirExecutor tests the binding from the engine side
// Main test items:
// 1. Every task observes CurrentExecutor == the executor
// 2. InEventLoop is true inside tasks and false outside
// 3. All tasks run on the same Thread, named after the executor
func TestSingleThreadEventExecutor_TasksSeeTheirExecutor(t *testing.T) {
	e := newTestEventExecutor(t, "loop", nil)

	var mu sync.Mutex
	threads := make(map[*Thread]bool)
	var wrong atomic.Int32

	for i := 0; i < 20; i++ {
		e.Execute(func(ctx context.Context) {
			if exec, ok := CurrentExecutor(ctx); !ok || exec != e {
				wrong.Add(1)
			}
			if !e.InEventLoop(ctx) {
				wrong.Add(1)
			}
			mu.Lock()
			threads[CurrentThread(ctx)] = true
			mu.Unlock()
		})
	}

	if err := e.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	if wrong.Load() != 0 {
		t.Errorf("%d binding checks failed", wrong.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(threads) != 1 {
		t.Fatalf("tasks ran on %d threads, want 1", len(threads))
	}
	for th := range threads {
		if th != e.Thread() || th.Name() != "loop-1" {
			t.Errorf("thread = %v, want executor's loop-1", th)
		}
	}
	if e.InEventLoop(context.Background()) {
		t.Error("InEventLoop true outside the executor")
	}
}

// TestSingleThreadEventExecutor_ExecutionOrder tests FIFO order
func TestSingleThreadEventExecutor_ExecutionOrder(t *testing.T) {
	e := newTestEventExecutor(t, "order", nil)

	var order []int
	for i := 0; i < 10; i++ {
		id := i
		e.Execute(func(ctx context.Context) {
			order = append(order, id)
		})
	}
	if err := e.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	if len(order) != 10 {
		t.Fatalf("ran %d tasks, want 10", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Errorf("position %d: got %d", i, v)
		}
	}
}

// TestSingleThreadEventExecutor_ReentrantExecute verifies a task can post to its own executor
// Given: a task that posts a follow-up task to the same executor
// Then: the follow-up runs after the first one, also bound to the executor
func TestSingleThreadEventExecutor_ReentrantExecute(t *testing.T) {
	e := newTestEventExecutor(t, "reentrant", nil)
	done := make(chan bool, 1)

	e.Execute(func(ctx context.Context) {
		e.Execute(func(ctx context.Context) {
			done <- e.InEventLoop(ctx)
		})
		if err := e.WaitIdle(ctx); !errors.Is(err, ErrInEventLoop) {
			t.Errorf("WaitIdle inside loop = %v, want ErrInEventLoop", err)
		}
	})

	select {
	case inLoop := <-done:
		if !inLoop {
			t.Error("follow-up task not bound to the executor")
		}
	case <-time.After(time.Second):
		t.Fatal("follow-up task did not run")
	}
}

// TestSingleThreadEventExecutor_PanicRecovery tests that a panicking task does not kill the loop
// Main test items:
// 1. PanicHandler receives the executor name, thread name and value
// 2. The handler still sees the binding (it runs inside the decorated loop)
// 3. Metrics record the panic
// 4. Later tasks still run
func TestSingleThreadEventExecutor_PanicRecovery(t *testing.T) {
	handler := NewTestPanicHandler()
	metrics := NewTestMetrics()
	e := newTestEventExecutor(t, "panicky", &ExecutorConfig{PanicHandler: handler, Metrics: metrics})

	e.Execute(func(ctx context.Context) { panic("task failed") })

	var ranAfter atomic.Bool
	e.Execute(func(ctx context.Context) { ranAfter.Store(true) })

	if err := e.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	if !ranAfter.Load() {
		t.Error("task after panic did not run")
	}
	calls := handler.GetCalls()
	if len(calls) != 1 {
		t.Fatalf("panic handler called %d times, want 1", len(calls))
	}
	if calls[0].ExecutorName != "panicky" || calls[0].ThreadName != "panicky-1" || calls[0].PanicInfo != "task failed" {
		t.Errorf("unexpected panic call %+v", calls[0])
	}
	if !calls[0].Bound {
		t.Error("panic handler ran without the executor binding")
	}
	if metrics.Panics("panicky") != 1 {
		t.Errorf("metrics panics = %d, want 1", metrics.Panics("panicky"))
	}
	if metrics.Durations("panicky") < 2 {
		t.Errorf("metrics durations = %d, want >= 2", metrics.Durations("panicky"))
	}
}

// TestSingleThreadEventExecutor_ShutdownDrainsAndRejects tests graceful shutdown
// Given: queued tasks and a Shutdown issued from inside a task
// Then: already queued tasks still run, new tasks are rejected, and the loop exits
func TestSingleThreadEventExecutor_ShutdownDrainsAndRejects(t *testing.T) {
	rejected := &TestRejectedTaskHandler{}
	metrics := NewTestMetrics()
	e := newTestEventExecutor(t, "drain", &ExecutorConfig{RejectedTaskHandler: rejected, Metrics: metrics})

	gate := make(chan struct{})
	var ran atomic.Int32

	e.Execute(func(ctx context.Context) {
		<-gate
		ran.Add(1)
		e.Shutdown()
	})
	e.Execute(func(ctx context.Context) { ran.Add(1) })
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := e.WaitShutdown(ctx); err != nil {
		t.Fatalf("WaitShutdown failed: %v", err)
	}
	if err := e.WaitTermination(ctx); err != nil {
		t.Fatalf("WaitTermination failed: %v", err)
	}

	if ran.Load() != 2 {
		t.Errorf("ran %d tasks, want 2", ran.Load())
	}
	if !e.IsClosed() {
		t.Error("IsClosed = false after Shutdown")
	}

	e.Execute(func(ctx context.Context) { t.Error("task ran after shutdown") })
	e.Execute(nil)

	if got := rejected.Reasons(); len(got) != 2 || got[0] != "drain: shutting down" || got[1] != "drain: nil task" {
		t.Errorf("rejections = %v", got)
	}
	if got := metrics.Rejected("drain"); len(got) != 2 {
		t.Errorf("metrics rejections = %v", got)
	}
	if got := metrics.Bindings("drain", "drain"); got != 2 {
		t.Errorf("tasks started bound to the executor = %d, want 2", got)
	}
	if err := e.WaitIdle(context.Background()); !errors.Is(err, ErrExecutorClosed) {
		t.Errorf("WaitIdle after shutdown = %v, want ErrExecutorClosed", err)
	}

	stats := e.Stats()
	if !stats.Closed || stats.Running || stats.Rejected != 2 || stats.Completed != 2 || stats.Type != "single_thread" {
		t.Errorf("unexpected stats %+v", stats)
	}
}

// TestSingleThreadEventExecutor_StopWithoutStart verifies Stop on an idle executor returns
func TestSingleThreadEventExecutor_StopWithoutStart(t *testing.T) {
	e, err := NewSingleThreadEventExecutor("idle", nil, &ExecutorConfig{Logger: NewNoOpLogger()})
	if err != nil {
		t.Fatalf("NewSingleThreadEventExecutor failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		e.Stop()
		e.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on an executor that never started")
	}
	if e.Thread() != nil {
		t.Error("Thread() non-nil for an executor that never started")
	}
}

// TestSingleThreadEventExecutor_StopCancelsTaskContext verifies Stop cancels the ctx of the running task
func TestSingleThreadEventExecutor_StopCancelsTaskContext(t *testing.T) {
	e, err := NewSingleThreadEventExecutor("cancel", nil, &ExecutorConfig{Logger: NewNoOpLogger()})
	if err != nil {
		t.Fatalf("NewSingleThreadEventExecutor failed: %v", err)
	}

	started := make(chan struct{})
	e.Execute(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return; task ctx was not cancelled")
	}
}

// TestSingleThreadEventExecutor_PostDelayedTask tests delayed submission
func TestSingleThreadEventExecutor_PostDelayedTask(t *testing.T) {
	e := newTestEventExecutor(t, "delayed", nil)

	start := time.Now()
	done := make(chan time.Duration, 1)
	e.PostDelayedTask(func(ctx context.Context) {
		if !e.InEventLoop(ctx) {
			t.Error("delayed task not bound to the executor")
		}
		done <- time.Since(start)
	}, 50*time.Millisecond)

	select {
	case elapsed := <-done:
		if elapsed < 50*time.Millisecond {
			t.Errorf("delayed task ran after %v, want >= 50ms", elapsed)
		}
	case <-time.After(time.Second):
		t.Fatal("delayed task did not run")
	}
}

// TestSingleThreadEventExecutor_SharedContextKeepsLoopBound verifies the loop binding
// survives a task handing its ctx to a goroutine that binds another executor
// Given: a loop task that starts `go DecorateTask(..., other)(ctx)`
// Then: the loop task keeps observing the loop, and later loop tasks are still in the event loop
func TestSingleThreadEventExecutor_SharedContextKeepsLoopBound(t *testing.T) {
	e := newTestEventExecutor(t, "owner", nil)
	other := newNamed("other")

	otherRunning := make(chan struct{})
	otherDone := make(chan struct{})
	var duringOther, afterOther, laterTask atomic.Bool

	e.Execute(func(ctx context.Context) {
		go MustDecorateTask(func(context.Context) {
			close(otherRunning)
			time.Sleep(20 * time.Millisecond)
			close(otherDone)
		}, other)(ctx)

		<-otherRunning
		duringOther.Store(e.InEventLoop(ctx))
		<-otherDone
		afterOther.Store(e.InEventLoop(ctx))
	})
	e.Execute(func(ctx context.Context) {
		laterTask.Store(e.InEventLoop(ctx))
	})

	if err := e.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	if !duringOther.Load() {
		t.Error("loop task lost its binding while the other goroutine ran")
	}
	if !afterOther.Load() {
		t.Error("loop task lost its binding after the other goroutine returned")
	}
	if !laterTask.Load() {
		t.Error("later loop task not in the event loop")
	}
}

// TestSingleThreadEventExecutor_ShutdownRaceAccountsForEveryTask interleaves
// Execute and Shutdown
// Main test items:
// 1. Every submitted task either runs or is reported as rejected
// 2. No accepted task is lost when Shutdown lands between the loop's last pop and its exit
func TestSingleThreadEventExecutor_ShutdownRaceAccountsForEveryTask(t *testing.T) {
	const rounds = 50
	const submitters = 4
	const perSubmitter = 25

	for round := 0; round < rounds; round++ {
		rejected := &TestRejectedTaskHandler{}
		e, err := NewSingleThreadEventExecutor("race", nil, &ExecutorConfig{Logger: NewNoOpLogger(), RejectedTaskHandler: rejected})
		if err != nil {
			t.Fatalf("NewSingleThreadEventExecutor failed: %v", err)
		}

		var ran atomic.Int32
		start := make(chan struct{})
		var wg sync.WaitGroup
		for i := 0; i < submitters; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				for j := 0; j < perSubmitter; j++ {
					e.Execute(func(ctx context.Context) { ran.Add(1) })
				}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			time.Sleep(time.Duration(round%5) * 100 * time.Microsecond)
			e.Shutdown()
		}()

		close(start)
		wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := e.WaitTermination(ctx); err != nil {
			cancel()
			t.Fatalf("round %d: WaitTermination failed: %v", round, err)
		}
		cancel()

		total := int(ran.Load()) + len(rejected.Reasons())
		if total != submitters*perSubmitter {
			t.Fatalf("round %d: ran %d + rejected %d != submitted %d",
				round, ran.Load(), len(rejected.Reasons()), submitters*perSubmitter)
		}
		e.Stop()
	}
}
