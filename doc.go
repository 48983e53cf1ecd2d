// Package execctx lets code running on a worker goroutine find out which
// execution engine currently owns that goroutine.
//
// Go has no thread-local storage, so the per-thread cell lives in the
// context.Context that a Thread hands to its task. Engines install the binding
// by wrapping what they run with one of three decorators:
//
//	DecorateTask(task, exec)             // one unit of work
//	DecorateExecutor(executor, exec)     // every task submitted to executor
//	DecorateThreadFactory(factory, exec) // the whole life of every thread it creates
//
// All three funnel through DecorateTask, which sets the binding, runs the task
// and clears the binding again in a deferred step, so nothing leaks even when
// the task panics.
//
// # Quick Start
//
//	pool := execctx.NewGoroutineThreadPool("io", 4)
//	pool.Start(context.Background())
//	defer pool.Stop()
//
//	pool.Execute(func(ctx context.Context) {
//		exec, _ := execctx.CurrentExecutor(ctx) // exec == pool
//		fmt.Println("running on", exec.Name())
//	})
//
// # Reentrancy
//
// SingleThreadEventExecutor.InEventLoop(ctx) reports whether the caller is
// already running on the executor, which lets an engine run work inline instead
// of queueing it behind itself.
//
// # Scope
//
// Bindings do not stack: a decorated task nested inside another one sees only
// its own executor, and its binding is gone when it returns. Each decorated
// invocation binds a ctx of its own, so a ctx shared with other goroutines is
// never rewritten by them. A goroutine handed a task's ctx sees that task's
// executor while the task runs, and nothing afterwards.
package execctx
