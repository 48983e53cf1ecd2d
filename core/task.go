package core

import "context"

// Task is the unit of work (Closure).
// A task signals failure by panicking; the panic value is its error.
type Task func(ctx context.Context)

// =============================================================================
// EventExecutor: the engine that owns a goroutine
// =============================================================================

// EventExecutor identifies the execution engine running on a goroutine.
// The core never creates or destroys one; it only remembers which engine
// is running the current task.
type EventExecutor interface {
	Name() string
}

// =============================================================================
// Executor: Define task submission capability
// =============================================================================

// Executor runs submitted tasks, possibly asynchronously or on another goroutine.
type Executor interface {
	Execute(task Task)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(task Task)

// Execute calls f(task).
func (f ExecutorFunc) Execute(task Task) {
	f(task)
}

// =============================================================================
// ThreadFactory: Define goroutine creation capability
// =============================================================================

// ThreadFactory creates Threads that will run the given task once started.
type ThreadFactory interface {
	NewThread(task Task) *Thread
}

// ThreadFactoryFunc adapts a plain function to the ThreadFactory interface.
type ThreadFactoryFunc func(task Task) *Thread

// NewThread calls f(task).
func (f ThreadFactoryFunc) NewThread(task Task) *Thread {
	return f(task)
}
