package core

import (
	"context"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task panics and an engine recovers it.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context of the panicked task (CurrentExecutor may still be set)
	// - executorName: The executor that was running the task, "" if unknown
	// - threadName: The Thread the task ran on
	// - panicInfo: The recovered panic value
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, executorName, threadName string, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler reports panics through a Logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs the panic at error level.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, executorName, threadName string, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panicked",
		F("executor", executorName),
		F("thread", threadName),
		F("panic", panicInfo),
		F("stack", string(stackTrace)),
	)
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics collects task execution metrics per executor.
// Methods should be non-blocking and fast to avoid impacting task execution.
type Metrics interface {
	// RecordTaskDuration records how long a task took to execute.
	RecordTaskDuration(executorName string, duration time.Duration)

	// RecordTaskPanic records that a task panicked during execution.
	RecordTaskPanic(executorName string, panicInfo any)

	// RecordQueueDepth records the current number of queued tasks.
	RecordQueueDepth(executorName string, depth int)

	// RecordTaskRejected records that a task was rejected (e.g., during shutdown).
	RecordTaskRejected(executorName string, reason string)

	// RecordTaskBinding records the executor a task observed through
	// CurrentExecutor when it started; boundTo is "" if it ran unbound.
	RecordTaskBinding(executorName string, boundTo string)
}

// NilMetrics provides a no-op metrics implementation.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

func (m *NilMetrics) RecordTaskDuration(executorName string, duration time.Duration) {}
func (m *NilMetrics) RecordTaskPanic(executorName string, panicInfo any)            {}
func (m *NilMetrics) RecordQueueDepth(executorName string, depth int)               {}
func (m *NilMetrics) RecordTaskRejected(executorName string, reason string)         {}
func (m *NilMetrics) RecordTaskBinding(executorName string, boundTo string)         {}

// =============================================================================
// RejectedTaskHandler: Interface for handling rejected tasks
// =============================================================================

// RejectedTaskHandler is called when an executor refuses a task, typically
// because it is shutting down.
type RejectedTaskHandler interface {
	HandleRejectedTask(executorName string, reason string)
}

// DefaultRejectedTaskHandler logs rejected tasks at warn level.
type DefaultRejectedTaskHandler struct {
	Logger Logger
}

// HandleRejectedTask logs the rejected task.
func (h *DefaultRejectedTaskHandler) HandleRejectedTask(executorName string, reason string) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Warn("task rejected", F("executor", executorName), F("reason", reason))
}

// =============================================================================
// ExecutorConfig: Configuration shared by executors and threads
// =============================================================================

// ExecutorConfig holds the handlers used by executors and their threads.
// All fields are optional; Normalize fills in defaults.
type ExecutorConfig struct {
	// Logger defaults to a logrus-backed logger.
	Logger Logger

	// PanicHandler defaults to DefaultPanicHandler using Logger.
	PanicHandler PanicHandler

	// Metrics defaults to NilMetrics.
	Metrics Metrics

	// RejectedTaskHandler defaults to DefaultRejectedTaskHandler using Logger.
	RejectedTaskHandler RejectedTaskHandler
}

// DefaultExecutorConfig returns a config with default handlers.
func DefaultExecutorConfig() *ExecutorConfig {
	return (&ExecutorConfig{}).Normalize()
}

// Normalize returns a copy of c with every nil handler replaced by its default.
// A nil receiver yields the default config.
func (c *ExecutorConfig) Normalize() *ExecutorConfig {
	out := &ExecutorConfig{}
	if c != nil {
		*out = *c
	}
	if out.Logger == nil {
		out.Logger = NewDefaultLogger()
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{Logger: out.Logger}
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.RejectedTaskHandler == nil {
		out.RejectedTaskHandler = &DefaultRejectedTaskHandler{Logger: out.Logger}
	}
	return out
}
