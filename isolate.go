package jsengine

import (
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
	"github.com/rs/zerolog"
)

// ownerState is the Isolate Manager's owner-thread loop state.
type ownerState int32

const (
	stateRun ownerState = iota
	stateNoJS
	stateStop
)

func (s ownerState) String() string {
	switch s {
	case stateRun:
		return "RUN"
	case stateNoJS:
		return "NO_JS"
	case stateStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// Isolate is the single-threaded owner of one engine runtime and its
// one global context. Every touch of rt happens on the dedicated
// owner goroutine started by NewIsolate; all other code reaches it
// only through Submit.
//
// Rationale (carried from the design this implements): the engine
// forbids concurrent access. Rather than gate it with locks — which
// is fragile around a message pump's internal dispatching — the
// runtime is hidden entirely behind the owner thread and a task
// queue.
type Isolate struct {
	rt      *goja.Runtime
	factory *Factory

	tasks chan func()
	state atomic.Int32
	done  chan struct{}

	microMu    sync.Mutex
	microtasks []func()

	log zerolog.Logger

	boundaryMu   sync.Mutex
	boundaryHook func()

	disposeOnce sync.Once
}

// setBoundaryHook installs a function called on the owner thread
// after every task body the main owner loop runs (whether or not a
// microtask checkpoint follows); tasks drained by drainRemaining at
// STOP time do not trigger it. The Memory Monitor uses this as its
// GC-epilogue analog.
func (im *Isolate) setBoundaryHook(hook func()) {
	im.boundaryMu.Lock()
	im.boundaryHook = hook
	im.boundaryMu.Unlock()
}

func (im *Isolate) runBoundaryHook() {
	im.boundaryMu.Lock()
	hook := im.boundaryHook
	im.boundaryMu.Unlock()
	if hook != nil {
		hook()
	}
}

// IsolateOptions configures a new Isolate. The zero value is valid
// and picks sane defaults.
type IsolateOptions struct {
	// TaskQueueSize bounds how many pending Submit calls may queue
	// before a submitter blocks. 0 selects a reasonable default.
	TaskQueueSize int

	// Log receives owner-loop lifecycle events (state transitions,
	// panics recovered from task bodies). The zero value is a
	// disabled logger, matching zerolog's own nil-safe default.
	Log zerolog.Logger
}

// NewIsolate creates a new Isolate and starts its owner thread. The
// returned Isolate must eventually be stopped with Stop.
func NewIsolate(opts IsolateOptions) *Isolate {
	if opts.TaskQueueSize <= 0 {
		opts.TaskQueueSize = 256
	}
	rt := goja.New()
	im := &Isolate{
		rt:    rt,
		tasks: make(chan func(), opts.TaskQueueSize),
		done:  make(chan struct{}),
		log:   opts.Log,
	}
	im.factory = NewFactory(rt)
	go im.run()
	return im
}

// Factory returns the Value Factory bound to this Isolate's runtime.
func (im *Isolate) Factory() *Factory { return im.factory }

// enqueue pushes a task onto the FIFO queue. Tasks submitted
// sequentially from one goroutine run in submission order (Testable
// Property 5); tasks from different goroutines may interleave with
// each other but never run concurrently with one another.
func (im *Isolate) enqueue(task func()) {
	im.tasks <- task
}

// Submit schedules f to run on the owner thread with the runtime
// already available, and returns a Future resolved with its result.
// f is never invoked if the Isolate has already transitioned past
// STOP; in that case the returned Future never resolves, matching the
// "teardown drains the Registry last" ordering the façade relies on —
// callers that might race shutdown should use Context-level
// cancellation instead of blocking forever on Get.
func Submit[T any](im *Isolate, f func(rt *goja.Runtime) (T, error)) *Future[T] {
	fut := newFuture[T]()
	im.enqueue(func() {
		v, err := f(im.rt)
		fut.resolve(v, err)
	})
	return fut
}

// EnqueueMicrotask schedules f to run during the next microtask
// checkpoint, on the owner thread, so engine-side reactions can be
// bridged back into Go without reentering the engine off-thread.
// Nothing else in this package calls it.
func (im *Isolate) EnqueueMicrotask(f func()) {
	im.microMu.Lock()
	im.microtasks = append(im.microtasks, f)
	im.microMu.Unlock()
}

// drainMicrotasks runs queued microtasks to a fixed point. Only
// called from the owner thread, and only in RUN state — never in
// NO_JS, so promise chains stay deterministic relative to task
// boundaries.
func (im *Isolate) drainMicrotasks() {
	for {
		im.microMu.Lock()
		if len(im.microtasks) == 0 {
			im.microMu.Unlock()
			return
		}
		batch := im.microtasks
		im.microtasks = nil
		im.microMu.Unlock()
		for _, f := range batch {
			f()
		}
	}
}

// terminationReason is the value passed to goja's Interrupt. The Code
// Evaluator classifies any *goja.InterruptedError as a termination by
// its type alone; it does not inspect this value.
type terminationReason struct{}

func (terminationReason) Error() string { return "execution terminated" }

// TerminateRunning requests the engine abort whatever script is
// currently executing. Safe to call from any thread; idempotent.
func (im *Isolate) TerminateRunning() {
	im.rt.Interrupt(terminationReason{})
}

// clearInterrupt resets the runtime's interrupt flag so a future
// script submitted to this Isolate is allowed to run. Must be called
// from the owner thread after observing an InterruptedError.
func (im *Isolate) clearInterrupt() {
	im.rt.ClearInterrupt()
}

// StopJavaScript transitions the owner loop to NO_JS: the Code
// Evaluator refuses further scripts (it checks allowsJS before
// compiling/running; the Object Manipulator's operations do not check
// it), but the loop keeps servicing submitted tasks so
// in-flight cleanup (the Object Collector's release batches) can
// still run. Also requests termination of whatever is running right
// now.
func (im *Isolate) StopJavaScript() {
	im.setState(stateNoJS)
	im.rt.Interrupt(terminationReason{})
}

// State reports the owner loop's current lifecycle state.
func (im *Isolate) State() string {
	return ownerState(im.state.Load()).String()
}

// allowsJS reports whether the owner loop is still willing to compile
// or run script. Called by the Code Evaluator before touching the
// engine.
func (im *Isolate) allowsJS() bool {
	return ownerState(im.state.Load()) == stateRun
}

// setState publishes a new state atomically, then enqueues a no-op
// task so the owner loop wakes and observes it even if it's currently
// blocked waiting for work.
func (im *Isolate) setState(s ownerState) {
	im.state.Store(int32(s))
	im.log.Debug().Str("state", s.String()).Msg("jsengine: owner loop state change")
	im.enqueue(func() {})
}

// Stop transitions to STOP and blocks until the owner thread has
// drained its queue and exited. After Stop returns, Submit must not
// be called again.
func (im *Isolate) Stop() {
	im.disposeOnce.Do(func() {
		im.setState(stateStop)
		<-im.done
	})
}

// run is the owner thread's message loop: pump for work, and in RUN
// state, perform a microtask checkpoint after each task.
func (im *Isolate) run() {
	defer close(im.done)
	for task := range im.tasks {
		im.runTask(task)
		im.runBoundaryHook()

		switch ownerState(im.state.Load()) {
		case stateRun:
			im.drainMicrotasks()
		case stateStop:
			im.drainRemaining()
			return
		}
	}
}

func (im *Isolate) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			im.log.Error().Interface("panic", r).Msg("jsengine: task body panicked")
		}
	}()
	task()
}

// drainRemaining processes whatever cleanup tasks (typically Object
// Collector release batches) are still queued at STOP time, without
// performing microtask checkpoints, then returns so the owner
// goroutine can exit and the Isolate can be considered disposed.
func (im *Isolate) drainRemaining() {
	for {
		select {
		case task, ok := <-im.tasks:
			if !ok {
				return
			}
			im.runTask(task)
		default:
			return
		}
	}
}
