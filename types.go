package execctx

import "github.com/Swind/go-execctx/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the execctx package for most use cases.

// Task is the unit of work (Closure)
type Task = core.Task

// EventExecutor identifies the engine that owns a goroutine
type EventExecutor = core.EventExecutor

// Executor is the task submission capability
type Executor = core.Executor

// ThreadFactory is the goroutine creation capability
type ThreadFactory = core.ThreadFactory

// Thread is a goroutine with its own executor binding
type Thread = core.Thread

// SingleThreadEventExecutor runs all tasks on one dedicated goroutine
type SingleThreadEventExecutor = core.SingleThreadEventExecutor

// ExecutorConfig holds the logging, panic, metrics and rejection handlers
type ExecutorConfig = core.ExecutorConfig

// ErrInvalidArgument is returned when a decorator is given a nil argument
var ErrInvalidArgument = core.ErrInvalidArgument

// Executor context accessors and decorators
var (
	CurrentExecutor       = core.CurrentExecutor
	InEventLoop           = core.InEventLoop
	DecorateTask          = core.DecorateTask
	DecorateExecutor      = core.DecorateExecutor
	DecorateThreadFactory = core.DecorateThreadFactory
)

// NewSingleThreadEventExecutor creates an event executor with a default thread factory.
func NewSingleThreadEventExecutor(name string) (*SingleThreadEventExecutor, error) {
	return core.NewSingleThreadEventExecutor(name, nil, nil)
}

// NewDefaultThreadFactory creates a factory naming its threads "<prefix>-<n>".
func NewDefaultThreadFactory(prefix string) *core.DefaultThreadFactory {
	return core.NewDefaultThreadFactory(prefix)
}
