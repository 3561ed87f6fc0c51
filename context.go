package jsengine

import (
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextID is the client-visible identity for a Context, handed back
// from make_context and passed to every subsequent operation.
type ContextID = uuid.UUID

// Context is the thin façade composing an Isolate Manager, Object
// Collector, Memory Monitor, Registry, Factory, Task Manager, and the
// Operation Modules into the one surface a client actually drives.
// All synchronous operations dispatch through Submit; eval and
// call_function dispatch through the Task Manager so they can be
// canceled mid-flight.
type Context struct {
	id ContextID

	im        *Isolate
	collector *Collector
	mon       *Monitor
	registry  *Registry
	factory   *Factory
	tasks     *TaskManager

	callerID CallerID
	caller   Caller

	// manip is created on first use and reused, so the Object
	// Manipulator's identity-hash table persists across operations.
	// Only touched on the owner thread.
	manip *manipulator

	metrics *Metrics
	log     zerolog.Logger

	closeOnce sync.Once
}

var (
	contextsMu sync.RWMutex
	contexts   = make(map[ContextID]*Context)
)

// engineVersion is the string returned by EngineVersion. goja has no
// release-versioned builds the way V8 does; this names the engine
// actually running underneath the Context façade.
const engineVersion = "goja (github.com/dop251/goja)"

var (
	initOnce       sync.Once
	initSingleFlag bool
)

// InitEngine performs process-wide engine setup. Must be called at
// most once before any Context is made; subsequent calls are no-ops.
// icuDataPath and snapshotPath are accepted for interface parity with
// the engine this façade used to wrap, but goja needs neither
// (it has no ICU dependency and no startup-snapshot mechanism) so they
// are otherwise unused. engineFlags containing "--single-threaded"
// is recorded and reported back by SingleThreaded; goja's runtime is
// already confined to its owner goroutine regardless, so this flag is
// bookkeeping rather than a behavior switch.
func InitEngine(engineFlags, icuDataPath, snapshotPath string) {
	initOnce.Do(func() {
		initSingleFlag = strings.Contains(engineFlags, "--single-threaded")
	})
}

// SingleThreaded reports whether the first (and only effective)
// InitEngine call had "--single-threaded" in its flags string.
func SingleThreaded() bool { return initSingleFlag }

// EngineVersion implements the v8_version diagnostic, adapted to name
// whatever engine is actually embedded.
func EngineVersion() string { return engineVersion }

// EngineUsingSandbox implements the v8_is_using_sandbox diagnostic.
// goja is a pure-Go interpreter with no process-level memory sandbox
// to report on, so this is unconditionally false.
func EngineUsingSandbox() bool { return false }

// MakeContext builds a new Context, registers it in the process-wide
// registry, and returns its id. caller receives every async-operation
// result and every JS→client callback invocation this Context
// produces, keyed by the callback_id the client originally supplied.
func MakeContext(cfg RuntimeConfig, log zerolog.Logger, caller Caller) ContextID {
	im := NewIsolate(IsolateOptions{TaskQueueSize: cfg.TaskQueueSize, Log: log})
	mon := NewMonitor(im, log, time.Duration(cfg.MemorySampleIntervalMillis)*time.Millisecond)
	mon.SetSoftLimit(cfg.SoftHeapLimitBytes)
	mon.SetHardLimit(cfg.HardHeapLimitBytes)
	registry := NewRegistry()

	// The registry entry here matters: a JS→client callback's argv
	// Value must be remembered before the client sees it, the same as
	// every other operation's result, so the client can turn right
	// around and get_object_item into it instead of receiving a handle
	// that immediately looks unknown.
	callerID := registerCaller(func(id CallbackID, v *Value) {
		registry.Remember(v)
		caller(id, v)
	})

	ctx := &Context{
		id:        uuid.New(),
		im:        im,
		collector: NewCollector(im),
		mon:       mon,
		registry:  registry,
		factory:   im.Factory(),
		tasks:     NewTaskManager(im),
		callerID:  callerID,
		caller:    caller,
		log:       log,
	}

	contextsMu.Lock()
	contexts[ctx.id] = ctx
	contextsMu.Unlock()

	return ctx.id
}

// lookupContext resolves id, or reports ok=false if the Context is
// unknown or already freed — the client-visible "context is gone" case.
func lookupContext(id ContextID) (*Context, bool) {
	contextsMu.RLock()
	ctx, ok := contexts[id]
	contextsMu.RUnlock()
	return ctx, ok
}

// ContextCount reports how many Contexts are currently live.
func ContextCount() int {
	contextsMu.RLock()
	n := len(contexts)
	contextsMu.RUnlock()
	return n
}

// FreeContext tears down and forgets the Context identified by id.
// A repeated or unknown id is a silent no-op, matching the Registry's
// own tolerance for a confused client.
func FreeContext(id ContextID) {
	contextsMu.Lock()
	ctx, ok := contexts[id]
	if ok {
		delete(contexts, id)
	}
	contextsMu.Unlock()
	if ok {
		ctx.close()
	}
}

// close runs the teardown order: stop accepting script, drain
// the Collector, stop the owner thread, stop the Monitor's background
// sampler, then drain the Registry.
func (c *Context) close() {
	c.closeOnce.Do(func() {
		c.im.StopJavaScript()
		c.collector.Close()
		c.im.Stop()
		c.mon.Close()
		c.registry.Drain()
		unregisterCaller(c.callerID)
	})
}

func (c *Context) requireHandle(name string, h HandlePtr) (*Value, *Value) {
	v := c.registry.Lookup(h)
	if v == nil {
		bad := c.factory.FromException(TypeValueException, "Bad handle: "+name)
		c.registry.Remember(bad)
		return nil, bad
	}
	return v, nil
}

func (c *Context) manipulator(rt *goja.Runtime) *manipulator {
	if c.manip == nil {
		c.manip = newManipulator(rt, c.factory)
	}
	return c.manip
}

// deliver sends v to this Context's caller under callbackID. Used by
// every async-operation completion; installed JS callbacks go through
// the wrapper registered in MakeContext, which does the same
// Remember-then-call.
func (c *Context) deliver(callbackID CallbackID, v *Value) {
	c.registry.Remember(v)
	c.caller(callbackID, v)
}

// Eval is the async Code Evaluator entry point: compiles and runs
// codeHandle's script on the owner thread, delivering the result (or
// an error-tagged Value) to callbackID. Returns the scheduled TaskID
// so the client can cancel_task it.
func (c *Context) Eval(codeHandle HandlePtr, callbackID CallbackID) TaskID {
	code, bad := c.requireHandle("code", codeHandle)
	if bad != nil {
		c.caller(callbackID, bad)
		return 0
	}

	return c.tasks.Schedule(
		func(rt *goja.Runtime) (*Value, error) {
			ev := newEvaluator(c.im, c.mon, c.factory)
			return ev.Eval(rt, code), nil
		},
		func(v *Value, _ error) {
			c.deliver(callbackID, v)
			if c.metrics != nil {
				c.metrics.RecordTaskCompleted()
			}
		},
		func(*Value) {
			c.deliver(callbackID, c.factory.FromException(TypeTerminatedException, "task was canceled"))
			if c.metrics != nil {
				c.metrics.RecordTaskCanceled()
			}
		},
	)
}

// CallFunction is the async half of the Object Manipulator's call:
// invokes funcHandle bound to thisHandle (or with an undefined this, if
// thisHandle is nil) with argvHandle's elements, delivering
// the result to callbackID.
func (c *Context) CallFunction(funcHandle, thisHandle, argvHandle HandlePtr, callbackID CallbackID) TaskID {
	fn, bad := c.requireHandle("function", funcHandle)
	if bad != nil {
		c.caller(callbackID, bad)
		return 0
	}
	argv, bad := c.requireHandle("argv", argvHandle)
	if bad != nil {
		c.caller(callbackID, bad)
		return 0
	}
	var this *Value
	if thisHandle != nil {
		this, bad = c.requireHandle("this", thisHandle)
		if bad != nil {
			c.caller(callbackID, bad)
			return 0
		}
	}

	return c.tasks.Schedule(
		func(rt *goja.Runtime) (*Value, error) {
			m := c.manipulator(rt)
			return m.Call(fn, this, argv), nil
		},
		func(v *Value, _ error) {
			c.deliver(callbackID, v)
			if c.metrics != nil {
				c.metrics.RecordTaskCompleted()
			}
		},
		func(*Value) {
			c.deliver(callbackID, c.factory.FromException(TypeTerminatedException, "task was canceled"))
			if c.metrics != nil {
				c.metrics.RecordTaskCanceled()
			}
		},
	)
}

// CancelTask requests cancellation of a previously scheduled task.
func (c *Context) CancelTask(id TaskID) { c.tasks.Cancel(id) }

// AttachMetrics wires m to this Context so task completions/cancels
// feed its Prometheus outcome counter. The Context does not update the
// heap, in-flight or live-value gauges; those change only through the
// Metrics methods called directly. Optional; a Context with no
// attached Metrics behaves identically, just unwatched.
func (c *Context) AttachMetrics(m *Metrics) { c.metrics = m }

// ID returns this Context's id.
func (c *Context) ID() ContextID { return c.id }

// Lookup resolves id to its Context, reporting ok=false if it is
// unknown or already freed. Exported for callers outside the package
// (the CLI binding, supplementary tooling) that are handed a
// ContextID and need the façade it names rather than repeating the
// per-operation functions.
func Lookup(id ContextID) (*Context, bool) { return lookupContext(id) }

// ValueAt resolves h against this Context's Registry, for callers that
// received a handle back from a synchronous operation (HeapStats,
// GetObjectItem, ...) rather than through the async callback path.
func (c *Context) ValueAt(h HandlePtr) (*Value, bool) {
	v := c.registry.Lookup(h)
	return v, v != nil
}

// NewStringValue builds a client-originated string Value (the Factory's
// from_string), remembers it, and returns its handle — the usual way a
// caller hands eval a script: construct the code_value, then Eval its
// handle.
func (c *Context) NewStringValue(s string) HandlePtr {
	return c.registry.Remember(c.factory.FromString(s))
}

// AllocInt implements alloc_int: builds a client-originated Value from
// an inline int64 payload, interpreted per tag. Only tags whose
// payload kind is the int64 union member (TypeInteger, TypeBool) are
// legal; anything else comes back as a value_exception rather than
// silently reinterpreting the bits.
func (c *Context) AllocInt(i int64, tag TypeTag) HandlePtr {
	var v *Value
	switch tag {
	case TypeInteger:
		v = c.factory.FromInt(i)
	case TypeBool:
		v = c.factory.FromBool(i != 0)
	default:
		v = c.factory.FromException(TypeValueException, "alloc_int: unsupported type_tag "+tag.String())
	}
	return c.registry.Remember(v)
}

// AllocDouble implements alloc_double: builds a client-originated
// Value from an inline float64 payload, interpreted per tag. Only
// TypeDouble is legal here; dates and other float64-backed tags are
// always engine-produced, never client-allocated.
func (c *Context) AllocDouble(d float64, tag TypeTag) HandlePtr {
	var v *Value
	switch tag {
	case TypeDouble:
		v = c.factory.FromDouble(d)
	default:
		v = c.factory.FromException(TypeValueException, "alloc_double: unsupported type_tag "+tag.String())
	}
	return c.registry.Remember(v)
}

// SetHardMemoryLimit implements set_hard_memory_limit.
func (c *Context) SetHardMemoryLimit(bytes uint64) { c.mon.SetHardLimit(bytes) }

// SetSoftMemoryLimit implements set_soft_memory_limit.
func (c *Context) SetSoftMemoryLimit(bytes uint64) { c.mon.SetSoftLimit(bytes) }

// HardMemoryLimitReached implements hard_memory_limit_reached.
func (c *Context) HardMemoryLimitReached() bool { return c.mon.IsHardReached() }

// SoftMemoryLimitReached implements soft_memory_limit_reached.
func (c *Context) SoftMemoryLimitReached() bool { return c.mon.IsSoftReached() }

// LowMemoryNotification implements low_memory_notification.
func (c *Context) LowMemoryNotification() { c.mon.ApplyLowMemoryNotification() }

// submitSync runs f on the owner thread and blocks for its result,
// backing every sync Operation Module entry point below.
func submitSync(c *Context, f func(rt *goja.Runtime) (*Value, error)) *Value {
	fut := Submit(c.im, f)
	v, _ := fut.Get()
	return v
}

// GetIdentityHash implements get_identity_hash.
func (c *Context) GetIdentityHash(objHandle HandlePtr) HandlePtr {
	obj, bad := c.requireHandle("object", objHandle)
	if bad != nil {
		return bad.Handle()
	}
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return c.manipulator(rt).IdentityHash(obj), nil
	})
	return c.registry.Remember(v)
}

// GetOwnPropertyNames implements get_own_property_names.
func (c *Context) GetOwnPropertyNames(objHandle HandlePtr) HandlePtr {
	obj, bad := c.requireHandle("object", objHandle)
	if bad != nil {
		return bad.Handle()
	}
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return c.manipulator(rt).OwnPropertyNames(obj), nil
	})
	return c.registry.Remember(v)
}

// GetObjectItem implements get_object_item.
func (c *Context) GetObjectItem(objHandle HandlePtr, key string) HandlePtr {
	obj, bad := c.requireHandle("object", objHandle)
	if bad != nil {
		return bad.Handle()
	}
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return c.manipulator(rt).Get(obj, key), nil
	})
	return c.registry.Remember(v)
}

// SetObjectItem implements set_object_item.
func (c *Context) SetObjectItem(objHandle HandlePtr, key string, valHandle HandlePtr) HandlePtr {
	obj, bad := c.requireHandle("object", objHandle)
	if bad != nil {
		return bad.Handle()
	}
	val, bad := c.requireHandle("value", valHandle)
	if bad != nil {
		return bad.Handle()
	}
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return c.manipulator(rt).Set(obj, key, val), nil
	})
	return c.registry.Remember(v)
}

// DelObjectItem implements del_object_item.
func (c *Context) DelObjectItem(objHandle HandlePtr, key string) HandlePtr {
	obj, bad := c.requireHandle("object", objHandle)
	if bad != nil {
		return bad.Handle()
	}
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return c.manipulator(rt).Del(obj, key), nil
	})
	return c.registry.Remember(v)
}

// SpliceArray implements splice_array. newValHandle may be nil when
// the client omits the optional insertion element.
func (c *Context) SpliceArray(arrHandle HandlePtr, start, deleteCount int, newValHandle HandlePtr) HandlePtr {
	arr, bad := c.requireHandle("array", arrHandle)
	if bad != nil {
		return bad.Handle()
	}
	var newVal *Value
	if newValHandle != nil {
		newVal, bad = c.requireHandle("new_value", newValHandle)
		if bad != nil {
			return bad.Handle()
		}
	}
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return c.manipulator(rt).Splice(arr, start, deleteCount, newVal), nil
	})
	return c.registry.Remember(v)
}

// ArrayPush implements array_push.
func (c *Context) ArrayPush(arrHandle, valHandle HandlePtr) HandlePtr {
	arr, bad := c.requireHandle("array", arrHandle)
	if bad != nil {
		return bad.Handle()
	}
	val, bad := c.requireHandle("value", valHandle)
	if bad != nil {
		return bad.Handle()
	}
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return c.manipulator(rt).Push(arr, val), nil
	})
	return c.registry.Remember(v)
}

// GlobalObject returns a handle to the engine's global object, the
// usual place a client installs a JS callback (globalThis.foo = ...)
// before eval'ing script that invokes it.
func (c *Context) GlobalObject() HandlePtr {
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return c.factory.FromEngineValue(rt.GlobalObject(), TypeObject)
	})
	return c.registry.Remember(v)
}

// HeapStats implements heap_stats.
func (c *Context) HeapStats() HandlePtr {
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return newHeapReporter(rt, c.factory, c.mon).HeapStats(), nil
	})
	return c.registry.Remember(v)
}

// HeapSnapshot implements heap_snapshot.
func (c *Context) HeapSnapshot() HandlePtr {
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return newHeapReporter(rt, c.factory, c.mon).HeapSnapshot(), nil
	})
	return c.registry.Remember(v)
}

// MakeJSCallback implements make_js_callback(callback_id).
func (c *Context) MakeJSCallback(callbackID CallbackID) HandlePtr {
	v := submitSync(c, func(rt *goja.Runtime) (*Value, error) {
		return newCallbackMaker(rt, c.factory, c.callerID).MakeJSCallback(callbackID), nil
	})
	return c.registry.Remember(v)
}

// FreeValue implements free_value: releases the client's reference to
// h immediately (so the handle can't be looked up again), then routes
// the actual engine-reference release through the Collector so it
// always runs on the owner thread, batched with any other pending
// releases, even though FreeValue itself may be called from any
// client thread.
func (c *Context) FreeValue(h HandlePtr) {
	v := c.registry.Lookup(h)
	c.registry.Forget(h)
	if v == nil {
		return
	}
	c.collector.Collect(func() {
		v.engine = nil
	})
}

// ValueCount implements the value_count diagnostic.
func (c *Context) ValueCount() int { return c.registry.Count() }

// Checkpoint batches a sequence of Operation Module calls (typically
// direct manipulator/evaluator calls made by supplementary tooling
// rather than individual Context methods) so that any intermediate
// Values they Remember are discarded together when fn returns, rather
// than living until Context teardown. Adapted from the upstream
// Context.WithTemporaryValues push/pop value scope pattern. A Value
// that should outlive the checkpoint must be re-Remembered by the
// caller after fn returns, not from inside fn.
func (c *Context) Checkpoint(fn func()) {
	scope := c.registry.PushScope()
	defer c.registry.PopScope(scope)
	fn()
}
