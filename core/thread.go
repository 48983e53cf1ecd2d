package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/google/uuid"
)

// Thread is a goroutine that has not necessarily been started yet.
//
// Start installs an empty binding slot into the context passed to the task, so
// a Thread started from inside a bound task does not inherit that binding.
type Thread struct {
	id     uuid.UUID
	name   string
	task   Task
	config *ExecutorConfig

	started atomic.Bool
	alive   atomic.Bool
	done    chan struct{}

	panicked atomic.Bool
	panicVal atomic.Value
}

type threadKeyType struct{}

var threadKey threadKeyType

// NewThread creates an unstarted Thread that will run task.
func NewThread(name string, task Task) *Thread {
	return NewThreadWithConfig(name, task, nil)
}

// NewThreadWithConfig is like NewThread but reports panics through config.
func NewThreadWithConfig(name string, task Task, config *ExecutorConfig) *Thread {
	return &Thread{
		id:     uuid.New(),
		name:   name,
		task:   task,
		config: config.Normalize(),
		done:   make(chan struct{}),
	}
}

// CurrentThread returns the Thread whose goroutine ctx was handed to.
func CurrentThread(ctx context.Context) *Thread {
	if ctx == nil {
		return nil
	}
	t, _ := ctx.Value(threadKey).(*Thread)
	return t
}

func (t *Thread) ID() uuid.UUID { return t.id }
func (t *Thread) Name() string  { return t.name }

// Start launches the goroutine. It returns false if the Thread was already started.
func (t *Thread) Start(ctx context.Context) bool {
	if !t.started.CompareAndSwap(false, true) {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	t.alive.Store(true)
	go t.run(ctx)
	return true
}

func (t *Thread) run(ctx context.Context) {
	defer close(t.done)
	defer t.alive.Store(false)

	runCtx, _ := withSlot(context.WithValue(ctx, threadKey, t))

	defer func() {
		if r := recover(); r != nil {
			t.panicked.Store(true)
			t.panicVal.Store(fmt.Sprint(r))
			t.config.PanicHandler.HandlePanic(runCtx, "", t.name, r, debug.Stack())
		}
	}()

	t.config.Logger.Debug("thread started", F("thread", t.name), F("id", t.id.String()))
	if t.task != nil {
		t.task(runCtx)
	}
	t.config.Logger.Debug("thread finished", F("thread", t.name), F("id", t.id.String()))
}

// Join blocks until the goroutine has exited. Joining an unstarted Thread
// blocks until it is started and finishes.
func (t *Thread) Join() {
	<-t.done
}

// Done is closed when the goroutine exits.
func (t *Thread) Done() <-chan struct{} {
	return t.done
}

// IsAlive reports whether the goroutine is running.
func (t *Thread) IsAlive() bool {
	return t.alive.Load()
}

// Panic returns the formatted panic value that terminated the Thread, if any.
func (t *Thread) Panic() (string, bool) {
	if !t.panicked.Load() {
		return "", false
	}
	v, _ := t.panicVal.Load().(string)
	return v, true
}

func (t *Thread) String() string {
	return fmt.Sprintf("Thread[%s]", t.name)
}

// =============================================================================
// DefaultThreadFactory
// =============================================================================

// DefaultThreadFactory names its threads "<prefix>-<n>", counting from 1.
type DefaultThreadFactory struct {
	prefix string
	seq    atomic.Uint64
	config *ExecutorConfig
}

// NewDefaultThreadFactory creates a factory using prefix for thread names.
func NewDefaultThreadFactory(prefix string) *DefaultThreadFactory {
	return NewDefaultThreadFactoryWithConfig(prefix, nil)
}

// NewDefaultThreadFactoryWithConfig creates a factory whose threads use config.
func NewDefaultThreadFactoryWithConfig(prefix string, config *ExecutorConfig) *DefaultThreadFactory {
	if prefix == "" {
		prefix = "thread"
	}
	return &DefaultThreadFactory{prefix: prefix, config: config.Normalize()}
}

// NewThread creates an unstarted Thread.
func (f *DefaultThreadFactory) NewThread(task Task) *Thread {
	n := f.seq.Add(1)
	return NewThreadWithConfig(fmt.Sprintf("%s-%d", f.prefix, n), task, f.config)
}
