package jsengine

import (
	"runtime"
	"sync"

	"github.com/dop251/goja"
)

// TaskID identifies a task scheduled through a TaskManager, stable for
// the lifetime of the task and passed back to the client so it can
// later call cancel_task.
type TaskID uint64

// taskState is the per-task lifecycle state machine: not-started → running → {completed | canceled}. canceled is
// terminal from any state; completed only from running.
type taskState int32

const (
	taskNotStarted taskState = iota
	taskRunning
	taskCompleted
	taskCanceled
)

// task is the per-task record. Exactly one of onCompleted/onCanceled
// is ever invoked per task; the state machine is the sole arbiter of
// which.
type task struct {
	mu    sync.Mutex
	state taskState
	im    *Isolate
}

func (t *task) setRunningIfNotCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == taskCanceled {
		return false
	}
	t.state = taskRunning
	return true
}

func (t *task) setCompleteIfNotCanceled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != taskRunning {
		return false
	}
	t.state = taskCompleted
	return true
}

// cancel moves the task to canceled from not-started or running; a
// no-op if it's already completed or canceled. If it was running,
// also asks the Isolate Manager to terminate whatever script is
// currently executing.
func (t *task) cancel() {
	t.mu.Lock()
	wasRunning := t.state == taskRunning
	terminal := t.state == taskCompleted || t.state == taskCanceled
	if !terminal {
		t.state = taskCanceled
	}
	t.mu.Unlock()

	if wasRunning {
		t.im.TerminateRunning()
	}
}

func (t *task) isTerminal() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == taskCompleted || t.state == taskCanceled
}

// TaskManager runs user-visible async work (script evaluation,
// function calls) with cooperative cancellation, on top of one
// Isolate's Submit primitive.
type TaskManager struct {
	im *Isolate

	mu     sync.Mutex
	tasks  map[TaskID]*task
	nextID uint64
}

// NewTaskManager builds a TaskManager bound to im.
func NewTaskManager(im *Isolate) *TaskManager {
	return &TaskManager{im: im, tasks: make(map[TaskID]*task)}
}

// Schedule submits body to run on the owner thread, wrapped so that
// exactly one of onCompleted/onCanceled fires once the task reaches a
// terminal state. Returns a TaskID the client can later pass to
// Cancel.
func (tm *TaskManager) Schedule(
	body func(rt *goja.Runtime) (*Value, error),
	onCompleted func(*Value, error),
	onCanceled func(*Value),
) TaskID {
	t := &task{im: tm.im}

	tm.mu.Lock()
	tm.nextID++
	id := TaskID(tm.nextID)
	tm.tasks[id] = t
	tm.mu.Unlock()

	Submit(tm.im, func(rt *goja.Runtime) (struct{}, error) {
		if !t.setRunningIfNotCanceled() {
			onCanceled(nil)
			tm.forget(id)
			return struct{}{}, nil
		}

		result, err := body(rt)

		if !t.setCompleteIfNotCanceled() {
			onCanceled(result)
			tm.forget(id)
			return struct{}{}, nil
		}

		onCompleted(result, err)
		tm.forget(id)
		return struct{}{}, nil
	})

	return id
}

func (tm *TaskManager) forget(id TaskID) {
	tm.mu.Lock()
	delete(tm.tasks, id)
	tm.mu.Unlock()
}

// Cancel requests cancellation of the task identified by id. No-op if
// id is unknown (already terminal and forgotten) — from the client's
// perspective this looks identical to "canceled after it already
// finished", which is a legal race.
func (tm *TaskManager) Cancel(id TaskID) {
	tm.mu.Lock()
	t := tm.tasks[id]
	tm.mu.Unlock()
	if t != nil {
		t.cancel()
	}
}

// Handle is a fire-and-forget safety wrapper for internal callers that
// schedule a task but might drop their reference before it completes:
// if the wrapped task is not yet terminal when the Handle is
// collected, it is canceled.
type Handle struct {
	id TaskID
	tm *TaskManager
}

// NewHandle schedules body exactly like Schedule and wraps the
// resulting id in a Handle with a finalizer that cancels on leak.
func (tm *TaskManager) NewHandle(
	body func(rt *goja.Runtime) (*Value, error),
	onCompleted func(*Value, error),
	onCanceled func(*Value),
) *Handle {
	id := tm.Schedule(body, onCompleted, onCanceled)
	h := &Handle{id: id, tm: tm}
	runtime.SetFinalizer(h, func(h *Handle) {
		h.tm.Cancel(h.id)
	})
	return h
}

// Cancel cancels the wrapped task explicitly and clears the finalizer
// (an explicit Cancel means there's nothing left to guard against).
func (h *Handle) Cancel() {
	runtime.SetFinalizer(h, nil)
	h.tm.Cancel(h.id)
}

// ID returns the wrapped TaskID.
func (h *Handle) ID() TaskID { return h.id }
