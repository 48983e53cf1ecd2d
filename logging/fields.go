package logging

import (
	"context"

	"github.com/Swind/go-execctx/core"
)

const (
	// ExecutorKey is the field name carrying the executor name.
	ExecutorKey = "executor"
	// ThreadKey is the field name carrying the thread name.
	ThreadKey = "thread"
)

// bindingFields returns the executor and thread names for ctx, "" when unknown.
func bindingFields(ctx context.Context) (executor, thread string) {
	if exec, ok := core.CurrentExecutor(ctx); ok {
		executor = exec.Name()
	}
	if t := core.CurrentThread(ctx); t != nil {
		thread = t.Name()
	}
	return executor, thread
}
