package execctx

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Swind/go-execctx/core"
)

// GoroutineThreadPool manages a set of worker threads pulling from one shared
// FIFO queue. Workers are created through a ThreadFactory decorated with the
// pool itself, so CurrentExecutor returns the pool inside every task it runs.
type GoroutineThreadPool struct {
	id        string
	workers   int
	scheduler *core.TaskScheduler
	factory   core.ThreadFactory
	config    *core.ExecutorConfig

	threads   []*core.Thread
	ctx       context.Context
	cancel    context.CancelFunc
	running   bool
	runningMu sync.RWMutex

	completed atomic.Int64
	rejected  atomic.Int64
}

var _ core.EventExecutor = (*GoroutineThreadPool)(nil)
var _ core.Executor = (*GoroutineThreadPool)(nil)

// NewGoroutineThreadPool creates a pool with default handlers.
func NewGoroutineThreadPool(id string, workers int) *GoroutineThreadPool {
	return NewGoroutineThreadPoolWithConfig(id, workers, nil)
}

// NewGoroutineThreadPoolWithConfig creates a pool whose workers are named "<id>-<n>".
func NewGoroutineThreadPoolWithConfig(id string, workers int, config *core.ExecutorConfig) *GoroutineThreadPool {
	config = config.Normalize()
	p, err := NewGoroutineThreadPoolWithFactory(id, workers, core.NewDefaultThreadFactoryWithConfig(id, config), config)
	if err != nil {
		// Only reachable with a nil factory, which cannot happen here.
		panic(err)
	}
	return p
}

// NewGoroutineThreadPoolWithFactory creates a pool whose workers come from factory.
func NewGoroutineThreadPoolWithFactory(id string, workers int, factory core.ThreadFactory, config *core.ExecutorConfig) (*GoroutineThreadPool, error) {
	if workers < 1 {
		workers = 1
	}
	p := &GoroutineThreadPool{
		id:        id,
		workers:   workers,
		scheduler: core.NewTaskScheduler(workers),
		config:    config.Normalize(),
	}
	decorated, err := core.DecorateThreadFactory(factory, p)
	if err != nil {
		return nil, err
	}
	p.factory = decorated
	return p, nil
}

// Start starts all worker threads
func (p *GoroutineThreadPool) Start(ctx context.Context) {
	p.runningMu.Lock()
	defer p.runningMu.Unlock()

	if p.running {
		return // Already running
	}

	if ctx == nil {
		ctx = context.Background()
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.running = true

	p.threads = make([]*core.Thread, 0, p.workers)
	for i := 0; i < p.workers; i++ {
		t := p.factory.NewThread(p.workerLoop)
		p.threads = append(p.threads, t)
		t.Start(p.ctx)
	}
	p.config.Logger.Info("thread pool started", core.F("pool", p.id), core.F("workers", p.workers))
}

// Stop drops queued tasks and waits for the workers to exit.
func (p *GoroutineThreadPool) Stop() {
	// Always shutdown scheduler so later posts are rejected,
	// even if pool was never started
	p.scheduler.Shutdown()
	p.stopWorkers()
}

// StopGraceful waits up to timeout for queued tasks to complete before
// stopping the workers.
func (p *GoroutineThreadPool) StopGraceful(timeout time.Duration) error {
	if !p.IsRunning() {
		p.scheduler.Shutdown()
		return nil
	}

	err := p.scheduler.ShutdownGraceful(timeout)
	p.stopWorkers()
	return err
}

func (p *GoroutineThreadPool) stopWorkers() {
	p.runningMu.Lock()
	if !p.running {
		p.runningMu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.runningMu.Unlock()

	cancel()
	p.Join()
	p.config.Logger.Info("thread pool stopped", core.F("pool", p.id))
}

// Join waits for all worker threads to finish
func (p *GoroutineThreadPool) Join() {
	p.runningMu.RLock()
	threads := p.threads
	p.runningMu.RUnlock()

	for _, t := range threads {
		t.Join()
	}
}

// Execute queues task on the pool.
func (p *GoroutineThreadPool) Execute(task core.Task) {
	if task == nil {
		p.reject("nil task")
		return
	}
	if !p.scheduler.Post(task) {
		p.reject("shutting down")
		return
	}
	p.config.Metrics.RecordQueueDepth(p.id, p.scheduler.QueuedTaskCount())
}

func (p *GoroutineThreadPool) reject(reason string) {
	p.rejected.Add(1)
	p.config.RejectedTaskHandler.HandleRejectedTask(p.id, reason)
	p.config.Metrics.RecordTaskRejected(p.id, reason)
}

// InEventLoop reports whether ctx belongs to a task running on one of this pool's workers.
func (p *GoroutineThreadPool) InEventLoop(ctx context.Context) bool {
	return core.InEventLoop(ctx, p)
}

// workerLoop is the top-level task of every worker thread
func (p *GoroutineThreadPool) workerLoop(ctx context.Context) {
	stopCh := ctx.Done()

	for {
		task, ok := p.scheduler.GetWork(stopCh)
		if !ok {
			return
		}
		p.runTask(ctx, task)
	}
}

func (p *GoroutineThreadPool) runTask(ctx context.Context, task core.Task) {
	start := time.Now()
	core.RecordBinding(ctx, p.config.Metrics, p.id)
	defer func() {
		p.scheduler.OnTaskEnd()
		p.completed.Add(1)
		if r := recover(); r != nil {
			threadName := ""
			if t := core.CurrentThread(ctx); t != nil {
				threadName = t.Name()
			}
			p.config.Metrics.RecordTaskPanic(p.id, r)
			p.config.PanicHandler.HandlePanic(ctx, p.id, threadName, r, debug.Stack())
		}
		p.config.Metrics.RecordTaskDuration(p.id, time.Since(start))
	}()
	task(ctx)
}

// ID returns the ID of the thread pool
func (p *GoroutineThreadPool) ID() string {
	return p.id
}

// Name returns the pool ID; it identifies the pool as an EventExecutor.
func (p *GoroutineThreadPool) Name() string {
	return p.id
}

// IsRunning returns whether the thread pool is running
func (p *GoroutineThreadPool) IsRunning() bool {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	return p.running
}

// WorkerCount returns the number of workers
func (p *GoroutineThreadPool) WorkerCount() int {
	return p.workers
}

func (p *GoroutineThreadPool) QueuedTaskCount() int {
	return p.scheduler.QueuedTaskCount()
}

func (p *GoroutineThreadPool) ActiveTaskCount() int {
	return p.scheduler.ActiveTaskCount()
}

// Threads returns the worker threads of the current run.
func (p *GoroutineThreadPool) Threads() []*core.Thread {
	p.runningMu.RLock()
	defer p.runningMu.RUnlock()
	out := make([]*core.Thread, len(p.threads))
	copy(out, p.threads)
	return out
}

// Stats returns a snapshot of the pool state.
func (p *GoroutineThreadPool) Stats() core.ExecutorStats {
	alive := 0
	for _, t := range p.Threads() {
		if t.IsAlive() {
			alive++
		}
	}
	return core.ExecutorStats{
		Name:      p.id,
		Type:      "thread_pool",
		Threads:   alive,
		Pending:   p.QueuedTaskCount(),
		Active:    p.ActiveTaskCount(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Running:   p.IsRunning(),
		Closed:    p.scheduler.IsShuttingDown(),
	}
}

func (p *GoroutineThreadPool) String() string {
	return fmt.Sprintf("GoroutineThreadPool[%s]", p.id)
}

// =============================================================================
// Global Thread Pool Helper (Singleton)
// =============================================================================

var (
	globalThreadPool *GoroutineThreadPool
	globalMu         sync.Mutex
)

// InitGlobalThreadPool initializes the global thread pool with specified number of workers.
// It starts the pool immediately.
func InitGlobalThreadPool(workers int) {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		return // Already initialized
	}

	globalThreadPool = NewGoroutineThreadPool("global-pool", workers)
	globalThreadPool.Start(context.Background())
}

// GetGlobalThreadPool returns the global thread pool instance.
// It panics if InitGlobalThreadPool has not been called.
func GetGlobalThreadPool() *GoroutineThreadPool {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool == nil {
		panic("GlobalThreadPool not initialized. Call InitGlobalThreadPool() first.")
	}
	return globalThreadPool
}

// ShutdownGlobalThreadPool stops the global thread pool.
func ShutdownGlobalThreadPool() {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalThreadPool != nil {
		globalThreadPool.Stop()
		globalThreadPool = nil
	}
}
