package core

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"
)

// ErrExecutorClosed is returned by WaitIdle once the executor has been shut down.
var ErrExecutorClosed = errors.New("executor is closed")

// ErrInEventLoop is returned by blocking calls made from the executor's own goroutine.
var ErrInEventLoop = errors.New("called from inside the event loop")

// SingleThreadEventExecutor runs every task sequentially on one dedicated goroutine.
//
// The goroutine is created lazily on the first Execute through
// DecorateExecutor(ThreadPerTaskExecutor, self), so CurrentExecutor returns this
// executor for every task it runs, and InEventLoop can be used for reentrancy checks.
type SingleThreadEventExecutor struct {
	name     string
	config   *ExecutorConfig
	executor Executor

	queue  TaskQueue
	signal chan struct{}

	// Lifecycle control
	ctx       context.Context
	cancel    context.CancelFunc
	mu        sync.Mutex // guards closed check + enqueue against Shutdown
	startOnce sync.Once
	stopOnce  sync.Once
	shutOnce  sync.Once
	started   atomic.Bool
	closed    atomic.Bool
	stopped   chan struct{}
	shutdown  chan struct{}

	thread    atomic.Pointer[Thread]
	active    atomic.Int32
	completed atomic.Int64
	rejected  atomic.Int64
}

// NewSingleThreadEventExecutor creates an executor named name. A nil factory
// uses a DefaultThreadFactory with the executor's name as prefix.
func NewSingleThreadEventExecutor(name string, factory ThreadFactory, config *ExecutorConfig) (*SingleThreadEventExecutor, error) {
	config = config.Normalize()
	if factory == nil {
		factory = NewDefaultThreadFactoryWithConfig(name, config)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &SingleThreadEventExecutor{
		name:     name,
		config:   config,
		queue:    NewFIFOTaskQueue(),
		signal:   make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		stopped:  make(chan struct{}),
		shutdown: make(chan struct{}),
	}

	perTask, err := NewThreadPerTaskExecutor(ctx, factory)
	if err != nil {
		cancel()
		return nil, err
	}
	if e.executor, err = DecorateExecutor(perTask, e); err != nil {
		cancel()
		return nil, err
	}
	return e, nil
}

// Name returns the name of the executor
func (e *SingleThreadEventExecutor) Name() string {
	return e.name
}

// Thread returns the executor's goroutine, or nil before the first task.
func (e *SingleThreadEventExecutor) Thread() *Thread {
	return e.thread.Load()
}

// InEventLoop reports whether ctx belongs to a task running on this executor.
func (e *SingleThreadEventExecutor) InEventLoop(ctx context.Context) bool {
	return InEventLoop(ctx, e)
}

// Execute queues task. Tasks are dropped and reported as rejected once the
// executor is shut down.
func (e *SingleThreadEventExecutor) Execute(task Task) {
	if task == nil {
		e.reject("nil task")
		return
	}

	e.mu.Lock()
	if e.closed.Load() {
		e.mu.Unlock()
		e.reject("shutting down")
		return
	}
	e.queue.Push(task)
	e.mu.Unlock()

	e.config.Metrics.RecordQueueDepth(e.name, e.queue.Len())
	e.startOnce.Do(e.start)
	e.wake()
}

// PostDelayedTask queues task after delay.
func (e *SingleThreadEventExecutor) PostDelayedTask(task Task, delay time.Duration) {
	if e.closed.Load() {
		e.reject("shutting down")
		return
	}
	time.AfterFunc(delay, func() {
		e.Execute(task)
	})
}

func (e *SingleThreadEventExecutor) start() {
	e.started.Store(true)
	e.executor.Execute(e.runLoop)
}

func (e *SingleThreadEventExecutor) wake() {
	select {
	case e.signal <- struct{}{}:
	default:
	}
}

func (e *SingleThreadEventExecutor) reject(reason string) {
	e.rejected.Add(1)
	e.config.RejectedTaskHandler.HandleRejectedTask(e.name, reason)
	e.config.Metrics.RecordTaskRejected(e.name, reason)
}

// runLoop occupies the dedicated goroutine until the queue is drained after
// Shutdown, or until Stop.
func (e *SingleThreadEventExecutor) runLoop(ctx context.Context) {
	defer close(e.stopped)
	e.thread.Store(CurrentThread(ctx))

	for {
		if task, ok := e.queue.Pop(); ok {
			e.runTask(ctx, task)
			continue
		}
		if e.closed.Load() {
			// Every push happened before closed was set; run what is left.
			for task, ok := e.queue.Pop(); ok; task, ok = e.queue.Pop() {
				e.runTask(ctx, task)
			}
			return
		}
		select {
		case <-e.signal:
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *SingleThreadEventExecutor) runTask(ctx context.Context, task Task) {
	start := time.Now()
	e.active.Add(1)
	RecordBinding(ctx, e.config.Metrics, e.name)
	defer func() {
		e.active.Add(-1)
		e.completed.Add(1)
		if r := recover(); r != nil {
			threadName := ""
			if t := CurrentThread(ctx); t != nil {
				threadName = t.Name()
			}
			e.config.Metrics.RecordTaskPanic(e.name, r)
			e.config.PanicHandler.HandlePanic(ctx, e.name, threadName, r, debug.Stack())
		}
		e.config.Metrics.RecordTaskDuration(e.name, time.Since(start))
	}()
	task(ctx)
}

// Shutdown stops accepting tasks. Already queued tasks still run, after which
// the goroutine exits. Safe to call from a task on this executor.
func (e *SingleThreadEventExecutor) Shutdown() {
	e.shutOnce.Do(func() {
		e.mu.Lock()
		e.closed.Store(true)
		e.mu.Unlock()
		close(e.shutdown)
		e.wake()
	})
}

// IsClosed returns true once Shutdown or Stop has been called.
func (e *SingleThreadEventExecutor) IsClosed() bool {
	return e.closed.Load()
}

// Stop shuts down, discards queued tasks and waits for the running task to finish.
// It must not be called from a task on this executor.
func (e *SingleThreadEventExecutor) Stop() {
	e.stopOnce.Do(func() {
		e.Shutdown()
		e.queue.Clear()
		e.cancel()
		// Never started: nothing to wait for.
		e.startOnce.Do(func() { close(e.stopped) })
		<-e.stopped
	})
}

// WaitIdle blocks until every task queued before the call has run.
func (e *SingleThreadEventExecutor) WaitIdle(ctx context.Context) error {
	if e.IsClosed() {
		return ErrExecutorClosed
	}
	if e.InEventLoop(ctx) {
		return ErrInEventLoop
	}

	done := make(chan struct{})
	e.Execute(func(context.Context) {
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-e.stopped:
		return ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitShutdown blocks until Shutdown is called.
func (e *SingleThreadEventExecutor) WaitShutdown(ctx context.Context) error {
	select {
	case <-e.shutdown:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitTermination blocks until the goroutine has exited.
func (e *SingleThreadEventExecutor) WaitTermination(ctx context.Context) error {
	if !e.started.Load() && e.IsClosed() {
		return nil
	}
	select {
	case <-e.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a snapshot of the executor state.
func (e *SingleThreadEventExecutor) Stats() ExecutorStats {
	threads := 0
	if t := e.thread.Load(); t != nil && t.IsAlive() {
		threads = 1
	}
	return ExecutorStats{
		Name:      e.name,
		Type:      "single_thread",
		Threads:   threads,
		Pending:   e.queue.Len(),
		Active:    int(e.active.Load()),
		Completed: e.completed.Load(),
		Rejected:  e.rejected.Load(),
		Running:   e.started.Load() && !e.IsClosed(),
		Closed:    e.IsClosed(),
	}
}
