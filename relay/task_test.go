package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/arloliu/go-katproxy/logger"
)

func newTaskMockLogger() *logger.MockLogger {
	mockLogger := logger.NewMockLogger()
	mockLogger.On("Debug", mock.Anything, mock.Anything).Return()
	mockLogger.On("Error", mock.Anything, mock.Anything).Return()

	return mockLogger
}

func TestTaskManager_Go(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mockLogger := newTaskMockLogger()
	taskMgr := NewTaskManager(ctx, mockLogger)

	err := taskMgr.Go("testTask", func(ctx context.Context) {
		<-ctx.Done()
	})
	assert.NoError(t, err)

	// Allow some time for the goroutine to start
	time.Sleep(100 * time.Millisecond)

	// Verify that the task is running
	assert.Equal(t, 1, taskMgr.TaskCount())

	// Cancel the parent context to stop the task
	cancel()

	// Allow some time for the goroutine to stop
	time.Sleep(100 * time.Millisecond)

	// Verify that the task has stopped
	assert.Equal(t, 0, taskMgr.TaskCount())
	mockLogger.AssertNumberOfCalls(t, "Debug", 2)
	mockLogger.AssertNumberOfCalls(t, "Error", 0)
}

func TestTaskManager_StopAndWait(t *testing.T) {
	mockLogger := newTaskMockLogger()
	taskMgr := NewTaskManager(context.Background(), mockLogger)

	for range 3 {
		err := taskMgr.Go("session", func(ctx context.Context) {
			<-ctx.Done()
		})
		assert.NoError(t, err)
	}

	taskMgr.Stop()
	assert.NoError(t, taskMgr.WaitTimeout(time.Second))
	assert.Equal(t, 0, taskMgr.TaskCount())

	// Wait re-arms the manager
	assert.NoError(t, taskMgr.Context().Err())
	done := make(chan struct{})
	assert.NoError(t, taskMgr.Go("again", func(context.Context) { close(done) }))
	<-done
}

func TestTaskManager_GoAfterStop(t *testing.T) {
	taskMgr := NewTaskManager(context.Background(), newTaskMockLogger())
	taskMgr.Stop()

	err := taskMgr.Go("late", func(context.Context) {})
	assert.EqualError(t, err, "task manager already stopped, can't start late")
	assert.Equal(t, 0, taskMgr.TaskCount())
}

func TestTaskManager_WaitTimeout(t *testing.T) {
	taskMgr := NewTaskManager(context.Background(), newTaskMockLogger())

	release := make(chan struct{})
	defer close(release)

	// ignores cancellation on purpose
	assert.NoError(t, taskMgr.Go("stuck", func(context.Context) {
		<-release
	}))

	taskMgr.Stop()
	err := taskMgr.WaitTimeout(100 * time.Millisecond)
	assert.ErrorIs(t, err, ErrCloseTimeout)
	assert.Equal(t, 1, taskMgr.TaskCount())
}

func TestTaskManager_RecoverPanic(t *testing.T) {
	mockLogger := newTaskMockLogger()
	taskMgr := NewTaskManager(context.Background(), mockLogger)

	assert.NoError(t, taskMgr.Go("panicky", func(context.Context) {
		panic("boom")
	}))

	taskMgr.Stop()
	assert.NoError(t, taskMgr.WaitTimeout(time.Second))
	mockLogger.AssertCalled(t, "Error", "panic in task", mock.Anything)
}
