package relay

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-katproxy/logger"
)

// TaskFunc is the body of a goroutine managed by the TaskManager.
// It should return when ctx is canceled.
type TaskFunc func(ctx context.Context)

// TaskManager manages the lifecycle of the goroutines a Server starts, one per relay session.
//
// The TaskManager derives a context from its parent context. Stop cancels it, signaling every
// running task to terminate, and Wait blocks until they all returned. Panics inside a task
// are recovered and logged so one broken session can't take the process down.
//
// Example Usage:
//
//	taskMgr := relay.NewTaskManager(ctx, logger)
//
//	taskMgr.Go("session", func(ctx context.Context) {
//	    // ... relay until ctx is done ...
//	})
//
//	taskMgr.Stop()
//	err := taskMgr.WaitTimeout(3 * time.Second)
type TaskManager struct {
	pctx   context.Context
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger logger.Logger
	count  atomic.Int32
	mu     sync.RWMutex // protect ctx and cancel
	taskMu sync.RWMutex // protect task creation during Wait()
}

// NewTaskManager creates a new TaskManager with the given context as the parent context and logger.
func NewTaskManager(ctx context.Context, l logger.Logger) *TaskManager {
	mgr := &TaskManager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context passed to tasks. It is canceled by Stop.
func (mgr *TaskManager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Go starts fn in a new goroutine.
//
// It returns an error without starting anything when the manager has been stopped.
func (mgr *TaskManager) Go(name string, fn TaskFunc) error {
	mgr.taskMu.RLock()
	defer mgr.taskMu.RUnlock()

	ctx := mgr.Context()
	select {
	case <-ctx.Done():
		return fmt.Errorf("task manager already stopped, can't start %s", name)
	default:
	}

	mgr.logger.Debug("start task", "name", name)

	mgr.wg.Add(1)
	mgr.count.Add(1)

	go func() {
		defer func() {
			mgr.count.Add(-1)
			mgr.wg.Done()
			mgr.logger.Debug(fmt.Sprintf("%s task terminated", name), "task_count", mgr.TaskCount())
		}()

		mgr.callWithRecover(name, func() {
			fn(ctx)
		})
	}()

	return nil
}

// callWithRecover calls a function with panic protection
func (mgr *TaskManager) callWithRecover(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
		}
	}()

	fn()
}

// Stop signals all running goroutines.
func (mgr *TaskManager) Stop() {
	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait waits for all goroutines to terminate, then re-arms the manager with a fresh
// context derived from the parent context.
func (mgr *TaskManager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// WaitTimeout is like Wait but gives up after timeout, returning ErrCloseTimeout.
func (mgr *TaskManager) WaitTimeout(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		mgr.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %d tasks still running after %s", ErrCloseTimeout, mgr.TaskCount(), timeout)
	}
}

// TaskCount returns the number of currently running goroutines.
func (mgr *TaskManager) TaskCount() int {
	return int(mgr.count.Load())
}
