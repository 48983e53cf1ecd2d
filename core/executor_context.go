package core

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrInvalidArgument is returned when a decorator receives a nil task,
// executor, factory or event executor.
var ErrInvalidArgument = errors.New("invalid argument")

func invalidArgument(what string) error {
	return fmt.Errorf("%w: %s is nil", ErrInvalidArgument, what)
}

// =============================================================================
// Binding slot: the per-invocation storage cell
// =============================================================================

// bindingSlot holds the EventExecutor bound for one decorated invocation.
// Only the goroutine running that invocation writes it.
type bindingSlot struct {
	current atomic.Pointer[binding]
}

type binding struct {
	executor EventExecutor
}

type bindingSlotKeyType struct{}

var bindingSlotKey bindingSlotKeyType

func slotFrom(ctx context.Context) *bindingSlot {
	if ctx == nil {
		return nil
	}
	if s, ok := ctx.Value(bindingSlotKey).(*bindingSlot); ok {
		return s
	}
	return nil
}

// withSlot returns a ctx carrying a fresh, empty slot.
func withSlot(ctx context.Context) (context.Context, *bindingSlot) {
	s := &bindingSlot{}
	return context.WithValue(ctx, bindingSlotKey, s), s
}

// =============================================================================
// Accessors
// =============================================================================

// CurrentExecutor returns the EventExecutor that owns the goroutine ctx belongs to.
// It reports false if no decorated task is currently running there.
func CurrentExecutor(ctx context.Context) (EventExecutor, bool) {
	s := slotFrom(ctx)
	if s == nil {
		return nil, false
	}
	b := s.current.Load()
	if b == nil {
		return nil, false
	}
	return b.executor, true
}

// InEventLoop reports whether exec is the executor currently bound to ctx.
func InEventLoop(ctx context.Context, exec EventExecutor) bool {
	cur, ok := CurrentExecutor(ctx)
	return ok && cur == exec
}

// boundName returns the name of the executor bound to ctx, or "" if none.
func boundName(ctx context.Context) string {
	if exec, ok := CurrentExecutor(ctx); ok {
		return exec.Name()
	}
	return ""
}

// RecordBinding reports the executor bound to ctx to m under executorName.
func RecordBinding(ctx context.Context, m Metrics, executorName string) {
	m.RecordTaskBinding(executorName, boundName(ctx))
}

// setCurrentExecutor binds exec to the slot; nil clears it.
func setCurrentExecutor(s *bindingSlot, exec EventExecutor) {
	if exec == nil {
		s.current.Store(nil)
		return
	}
	s.current.Store(&binding{executor: exec})
}

// =============================================================================
// Decorators
// =============================================================================

// DecorateTask returns a Task that binds exec for the duration of task.
//
// Every invocation binds a slot of its own, derived from the caller's ctx, so
// the caller's ctx is never written and goroutines sharing it are unaffected.
// The binding is cleared to absent when task returns or panics; a panic is
// re-raised unchanged after the binding is cleared.
func DecorateTask(task Task, exec EventExecutor) (Task, error) {
	if task == nil {
		return nil, invalidArgument("task")
	}
	if exec == nil {
		return nil, invalidArgument("event executor")
	}
	return func(ctx context.Context) {
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, s := withSlot(ctx)
		setCurrentExecutor(s, exec)
		defer setCurrentExecutor(s, nil)
		task(ctx)
	}, nil
}

// DecorateExecutor returns an Executor that decorates every task with exec
// before handing it to executor.
func DecorateExecutor(executor Executor, exec EventExecutor) (Executor, error) {
	if executor == nil {
		return nil, invalidArgument("executor")
	}
	if exec == nil {
		return nil, invalidArgument("event executor")
	}
	return &decoratedExecutor{executor: executor, exec: exec}, nil
}

type decoratedExecutor struct {
	executor Executor
	exec     EventExecutor
}

func (e *decoratedExecutor) Execute(task Task) {
	decorated, err := DecorateTask(task, e.exec)
	if err != nil {
		panic(err)
	}
	e.executor.Execute(decorated)
}

// DecorateThreadFactory returns a ThreadFactory whose threads run with exec bound
// for the whole lifetime of the task they were created for.
func DecorateThreadFactory(factory ThreadFactory, exec EventExecutor) (ThreadFactory, error) {
	if factory == nil {
		return nil, invalidArgument("thread factory")
	}
	if exec == nil {
		return nil, invalidArgument("event executor")
	}
	return &decoratedThreadFactory{factory: factory, exec: exec}, nil
}

type decoratedThreadFactory struct {
	factory ThreadFactory
	exec    EventExecutor
}

func (f *decoratedThreadFactory) NewThread(task Task) *Thread {
	decorated, err := DecorateTask(task, f.exec)
	if err != nil {
		panic(err)
	}
	return f.factory.NewThread(decorated)
}

// MustDecorateTask is like DecorateTask but panics on invalid arguments.
func MustDecorateTask(task Task, exec EventExecutor) Task {
	t, err := DecorateTask(task, exec)
	if err != nil {
		panic(err)
	}
	return t
}

// MustDecorateExecutor is like DecorateExecutor but panics on invalid arguments.
func MustDecorateExecutor(executor Executor, exec EventExecutor) Executor {
	e, err := DecorateExecutor(executor, exec)
	if err != nil {
		panic(err)
	}
	return e
}

// MustDecorateThreadFactory is like DecorateThreadFactory but panics on invalid arguments.
func MustDecorateThreadFactory(factory ThreadFactory, exec EventExecutor) ThreadFactory {
	f, err := DecorateThreadFactory(factory, exec)
	if err != nil {
		panic(err)
	}
	return f
}
