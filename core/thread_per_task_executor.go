package core

import "context"

// ThreadPerTaskExecutor starts a new Thread for every task it is given.
type ThreadPerTaskExecutor struct {
	ctx     context.Context
	factory ThreadFactory
}

// NewThreadPerTaskExecutor returns an executor whose threads are created by
// factory and started with ctx.
func NewThreadPerTaskExecutor(ctx context.Context, factory ThreadFactory) (*ThreadPerTaskExecutor, error) {
	if factory == nil {
		return nil, invalidArgument("thread factory")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &ThreadPerTaskExecutor{ctx: ctx, factory: factory}, nil
}

// Execute starts task on a fresh Thread and returns immediately.
func (e *ThreadPerTaskExecutor) Execute(task Task) {
	e.factory.NewThread(task).Start(e.ctx)
}
