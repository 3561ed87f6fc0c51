package jsengine

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/dop251/goja"
)

// CallerID identifies a Context's callback caller in the process-wide
// registry below. It is the "caller_id" half of the 2-element
// [caller_id, callback_id] identity pair installed functions close
// over; never a native pointer, so a callback firing after its
// Context has torn down resolves to "no such caller" instead of
// dereferencing freed memory.
type CallerID uint64

// CallbackID identifies one client-registered callback within a
// Context, opaque to this package.
type CallbackID uint64

// Caller delivers a JS→client callback invocation: the callback id the
// client originally registered, and the call's arguments re-hydrated
// as an array Value.
type Caller func(id CallbackID, argv *Value)

var (
	callerRegistry sync.Map // CallerID -> Caller
	nextCallerID   atomic.Uint64
)

// registerCaller adds caller to the process-wide registry and returns
// its CallerID. One Context registers exactly one Caller, at
// construction, and unregisters it at teardown via unregisterCaller.
func registerCaller(caller Caller) CallerID {
	id := CallerID(nextCallerID.Add(1))
	callerRegistry.Store(id, caller)
	return id
}

// unregisterCaller removes id from the registry. After this call,
// any JS function previously made by a callbackMaker holding id
// silently does nothing when invoked.
func unregisterCaller(id CallerID) {
	callerRegistry.Delete(id)
}

func lookupCaller(id CallerID) (Caller, bool) {
	v, ok := callerRegistry.Load(id)
	if !ok {
		return nil, false
	}
	return v.(Caller), true
}

// callbackMaker is the JS Callback Maker operation module: installs a
// JS function that re-enters the client when called from script.
type callbackMaker struct {
	rt       *goja.Runtime
	f        *Factory
	callerID CallerID
}

func newCallbackMaker(rt *goja.Runtime, f *Factory, callerID CallerID) *callbackMaker {
	return &callbackMaker{rt: rt, f: f, callerID: callerID}
}

// MakeJSCallback produces a JS function Value whose invocation
// re-enters the client with (callbackID, argv_as_handle). The
// function closes over the [caller_id, callback_id] pair purely as Go
// values; nothing V8/engine-visible carries a native pointer.
func (cm *callbackMaker) MakeJSCallback(callbackID CallbackID) *Value {
	callerID := cm.callerID
	fn := cm.rt.ToValue(func(call goja.FunctionCall) goja.Value {
		caller, ok := lookupCaller(callerID)
		if !ok {
			// Context already torn down; drop the call per // JS Callback Maker contract.
			return goja.Undefined()
		}

		argv := cm.rt.NewArray()
		for i, arg := range call.Arguments {
			_ = argv.Set(strconv.Itoa(i), arg)
		}
		argvVal, err := cm.f.FromEngineValue(argv, TypeArray)
		if err != nil {
			return goja.Undefined()
		}
		caller(callbackID, argvVal)
		return goja.Undefined()
	})
	v, err := cm.f.FromEngineValue(fn, TypeFunction)
	if err != nil {
		return cm.f.FromException(TypeExecuteException, err.Error())
	}
	return v
}
