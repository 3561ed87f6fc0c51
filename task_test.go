package jsengine

import (
	"sync"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIsolate(t *testing.T) *Isolate {
	t.Helper()
	im := NewIsolate(IsolateOptions{TaskQueueSize: 16})
	t.Cleanup(im.Stop)
	return im
}

// Canceling before the owner thread ever runs the task body yields
// onCanceled with a nil result, never onCompleted.
func TestTaskManagerCancelBeforeRun(t *testing.T) {
	im := newTestIsolate(t)
	tm := NewTaskManager(im)

	// Starve the owner thread so Cancel can land before Schedule's
	// body runs.
	block := make(chan struct{})
	Submit(im, func(rt *goja.Runtime) (struct{}, error) {
		<-block
		return struct{}{}, nil
	})

	var mu sync.Mutex
	var completed, canceled bool

	id := tm.Schedule(
		func(rt *goja.Runtime) (*Value, error) { return nil, nil },
		func(*Value, error) { mu.Lock(); completed = true; mu.Unlock() },
		func(*Value) { mu.Lock(); canceled = true; mu.Unlock() },
	)
	tm.Cancel(id)
	close(block)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return completed || canceled
	}, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, completed, "onCompleted fired for a task canceled before it ran")
	assert.True(t, canceled, "onCanceled never fired")
}

// A task that runs to normal completion without ever being canceled
// invokes onCompleted exactly once.
func TestTaskManagerNormalCompletion(t *testing.T) {
	im := newTestIsolate(t)
	tm := NewTaskManager(im)

	done := make(chan *Value, 1)
	tm.Schedule(
		func(rt *goja.Runtime) (*Value, error) {
			f := NewFactory(rt)
			return f.FromInt(42), nil
		},
		func(v *Value, _ error) { done <- v },
		func(*Value) { done <- nil },
	)

	select {
	case v := <-done:
		require.NotNil(t, v)
		assert.Equal(t, int64(42), v.Int64())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
}

// Cancel on an unknown (already-forgotten) task id is a silent no-op.
func TestTaskManagerCancelUnknown(t *testing.T) {
	im := newTestIsolate(t)
	tm := NewTaskManager(im)
	tm.Cancel(TaskID(99999))
}
