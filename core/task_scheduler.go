package core

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// TaskScheduler is the shared work source pulled by pool workers.
type TaskScheduler struct {
	queue       TaskQueue
	signal      chan struct{}
	workerCount int

	metricActive int32 // Executing in Worker

	mu           sync.Mutex // orders Post against the shutdown flag
	shuttingDown atomic.Bool
}

// NewTaskScheduler creates a FIFO scheduler for workerCount workers.
func NewTaskScheduler(workerCount int) *TaskScheduler {
	return &TaskScheduler{
		queue:       NewFIFOTaskQueue(),
		signal:      make(chan struct{}, max(workerCount*2, 1)),
		workerCount: workerCount,
	}
}

// Post queues task. It returns false if the scheduler is shutting down.
func (s *TaskScheduler) Post(task Task) bool {
	s.mu.Lock()
	if s.shuttingDown.Load() {
		s.mu.Unlock()
		return false
	}
	s.queue.Push(task)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
		// Signal channel full, workers are already awake
	}
	return true
}

// GetWork blocks until a task is available or stopCh is closed.
// A returned task already counts as active; the worker must call OnTaskEnd.
func (s *TaskScheduler) GetWork(stopCh <-chan struct{}) (Task, bool) {
	for {
		// Count before popping so ShutdownGraceful never sees an empty queue
		// and zero active tasks while a task is in flight.
		atomic.AddInt32(&s.metricActive, 1)
		if task, ok := s.queue.Pop(); ok {
			return task, true
		}
		atomic.AddInt32(&s.metricActive, -1)

		select {
		case <-s.signal:
			continue
		case <-stopCh:
			return nil, false
		}
	}
}

// Shutdown rejects further posts and drops every queued task.
func (s *TaskScheduler) Shutdown() {
	s.closeForPosts()
	s.queue.Clear()
}

// ShutdownGraceful rejects further posts and waits for queued and active tasks
// to finish. On timeout the remaining queue is dropped and an error returned.
func (s *TaskScheduler) ShutdownGraceful(timeout time.Duration) error {
	s.closeForPosts()

	deadline := time.After(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.QueuedTaskCount() == 0 && s.ActiveTaskCount() == 0 {
			return nil
		}
		select {
		case <-deadline:
			s.queue.Clear()
			return fmt.Errorf("shutdown graceful timeout after %v, forced clearing", timeout)
		case <-ticker.C:
		}
	}
}

// closeForPosts sets the shutdown flag; once it returns no Post can still push.
func (s *TaskScheduler) closeForPosts() {
	s.mu.Lock()
	s.shuttingDown.Store(true)
	s.mu.Unlock()
}

func (s *TaskScheduler) IsShuttingDown() bool { return s.shuttingDown.Load() }
func (s *TaskScheduler) WorkerCount() int     { return s.workerCount }
func (s *TaskScheduler) QueuedTaskCount() int { return s.queue.Len() }
func (s *TaskScheduler) ActiveTaskCount() int { return int(atomic.LoadInt32(&s.metricActive)) }

func (s *TaskScheduler) OnTaskEnd() {
	atomic.AddInt32(&s.metricActive, -1)
}
