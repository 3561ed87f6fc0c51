package jsengine

import (
	"fmt"

	"github.com/dop251/goja"
)

// manipulator is the Object Manipulator operation module:
// property get/set/delete, array splice/push, function call. Every
// method here assumes it is running on the owner thread with the
// engine context entered, same as the Code Evaluator.
type manipulator struct {
	rt *goja.Runtime
	f  *Factory

	// identityHashes assigns small sequential ids to *goja.Object
	// pointers on first sight. goja has no V8-style object identity
	// hash API; this is the adopted substitute, safe because it is
	// only ever touched on the owner thread.
	identityHashes map[*goja.Object]int64
	nextHash       int64
}

func newManipulator(rt *goja.Runtime, f *Factory) *manipulator {
	return &manipulator{rt: rt, f: f, identityHashes: make(map[*goja.Object]int64)}
}

func (m *manipulator) engineObject(o *Value) (*goja.Object, error) {
	obj, ok := o.GoValue().(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("value of type %s is not an engine object", o.Type())
	}
	return obj, nil
}

// IdentityHash returns a stable-for-process integer for the identity
// of o, analogous to V8's Object::GetIdentityHash.
func (m *manipulator) IdentityHash(o *Value) *Value {
	obj, err := m.engineObject(o)
	if err != nil {
		return m.f.FromException(TypeValueException, err.Error())
	}
	if h, ok := m.identityHashes[obj]; ok {
		return m.f.FromInt(h)
	}
	m.nextHash++
	m.identityHashes[obj] = m.nextHash
	return m.f.FromInt(m.nextHash)
}

// OwnPropertyNames returns the own, enumerable, string-keyed property
// names of o as an array Value.
func (m *manipulator) OwnPropertyNames(o *Value) *Value {
	obj, err := m.engineObject(o)
	if err != nil {
		return m.f.FromException(TypeValueException, err.Error())
	}
	keys := obj.Keys()
	arr := m.rt.NewArray()
	for i, k := range keys {
		_ = arr.Set(fmt.Sprintf("%d", i), k)
	}
	v, verr := m.f.FromEngineValue(arr, TypeArray)
	if verr != nil {
		return m.f.FromException(TypeExecuteException, verr.Error())
	}
	return v
}

// hasOwnOrInherited approximates JS `key in o`. goja's public Object
// API exposes Get and Keys but no direct Has; a property that resolves
// to undefined and isn't in the object's own key list is treated as
// absent. This under-approximates prototype-chain properties whose
// value is genuinely `undefined`, a documented open trade-off (see
// DESIGN.md).
func (m *manipulator) hasOwnOrInherited(obj *goja.Object, key string) bool {
	val := obj.Get(key)
	if val != nil && !goja.IsUndefined(val) {
		return true
	}
	for _, k := range obj.Keys() {
		if k == key {
			return true
		}
	}
	return false
}

// Get implements get(o, k): key_exception if the key is
// missing, otherwise the property value.
func (m *manipulator) Get(o *Value, key string) *Value {
	obj, err := m.engineObject(o)
	if err != nil {
		return m.f.FromException(TypeValueException, err.Error())
	}
	if !m.hasOwnOrInherited(obj, key) {
		return m.f.FromException(TypeKeyException, "No such key")
	}
	v, verr := m.f.FromAny(obj.Get(key))
	if verr != nil {
		return m.f.FromException(TypeExecuteException, verr.Error())
	}
	return v
}

// Set implements set(o, k, v): a boolean true Value on success;
// engine errors (e.g. setting on a frozen object) surface as
// execute_exception.
func (m *manipulator) Set(o *Value, key string, val *Value) *Value {
	obj, err := m.engineObject(o)
	if err != nil {
		return m.f.FromException(TypeValueException, err.Error())
	}
	if serr := obj.Set(key, toEngineArg(m.rt, val)); serr != nil {
		return m.f.FromException(TypeExecuteException, summarizeRuntimeError(serr))
	}
	return m.f.FromBool(true)
}

// Del implements del(o, k): key_exception if missing, else a boolean
// true Value once the property is deleted. A delete the engine refuses
// (e.g. a non-configurable property) surfaces as execute_exception,
// not as a false Value.
func (m *manipulator) Del(o *Value, key string) *Value {
	obj, err := m.engineObject(o)
	if err != nil {
		return m.f.FromException(TypeValueException, err.Error())
	}
	if !m.hasOwnOrInherited(obj, key) {
		return m.f.FromException(TypeKeyException, "No such key")
	}
	if derr := obj.Delete(key); derr != nil {
		return m.f.FromException(TypeExecuteException, summarizeRuntimeError(derr))
	}
	return m.f.FromBool(true)
}

// Splice implements splice(o, start, deleteCount, newVal?) by looking
// up and invoking Array.prototype.splice on o.
func (m *manipulator) Splice(o *Value, start, deleteCount int, newVal *Value) *Value {
	args := []goja.Value{m.rt.ToValue(start), m.rt.ToValue(deleteCount)}
	if newVal != nil {
		args = append(args, toEngineArg(m.rt, newVal))
	}
	return m.callMethodByName(o, "splice", args)
}

// Push implements push(o, v) by looking up and invoking
// Array.prototype.push on o.
func (m *manipulator) Push(o *Value, v *Value) *Value {
	return m.callMethodByName(o, "push", []goja.Value{toEngineArg(m.rt, v)})
}

// callMethodByName is the CallMethod convenience dispatch adapted
// from the teacher's Object.MethodCall: get a property, assert it's
// callable, invoke it bound to the receiver. Used by Splice, Push and
// CallMethod.
func (m *manipulator) callMethodByName(o *Value, methodName string, args []goja.Value) *Value {
	obj, err := m.engineObject(o)
	if err != nil {
		return m.f.FromException(TypeValueException, err.Error())
	}
	prop := obj.Get(methodName)
	fn, ok := goja.AssertFunction(prop)
	if !ok {
		return m.f.FromException(TypeExecuteException,
			fmt.Sprintf("%s is not callable on this value", methodName))
	}
	result, callErr := fn(obj, args...)
	if callErr != nil {
		return m.classifyCallError(callErr)
	}
	v, verr := m.f.FromAny(result)
	if verr != nil {
		return m.f.FromException(TypeExecuteException, verr.Error())
	}
	return v
}

// CallMethod is the *Value-argument form of callMethodByName,
// supplementing the Object Manipulator with the teacher's MethodCall
// ergonomics (get a property, assert it's a function, call it bound
// to the receiver). The manipulator type is package-internal and
// Context has no wrapper for CallMethod, so it is reachable only from
// inside this package.
func (m *manipulator) CallMethod(o *Value, methodName string, argv []*Value) *Value {
	args := make([]goja.Value, len(argv))
	for i, a := range argv {
		args[i] = toEngineArg(m.rt, a)
	}
	return m.callMethodByName(o, methodName, args)
}

// Call implements call(fn, thisOrNull, argv): fn must be a function
// Value, argv must be an array Value; its elements are unpacked by
// length and passed through.
func (m *manipulator) Call(fn *Value, this *Value, argv *Value) *Value {
	if fn.Type() != TypeFunction {
		return m.f.FromException(TypeValueException, "Bad argument: call expects a function")
	}
	if argv.Type() != TypeArray {
		return m.f.FromException(TypeValueException, "Bad argument: call expects argv to be an array")
	}
	fnVal, err := m.engineObject(fn)
	if err != nil {
		return m.f.FromException(TypeValueException, err.Error())
	}
	callable, ok := goja.AssertFunction(fnVal)
	if !ok {
		return m.f.FromException(TypeValueException, "Bad argument: call expects a function")
	}

	argvObj, err := m.engineObject(argv)
	if err != nil {
		return m.f.FromException(TypeValueException, err.Error())
	}
	length := int(argvObj.Get("length").ToInteger())
	args := make([]goja.Value, length)
	for i := 0; i < length; i++ {
		args[i] = argvObj.Get(fmt.Sprintf("%d", i))
	}

	var thisArg goja.Value = goja.Undefined()
	if this != nil && this.Type() != TypeUndefined {
		thisArg = toEngineArg(m.rt, this)
	}

	result, callErr := callable(thisArg, args...)
	if callErr != nil {
		return m.classifyCallError(callErr)
	}
	v, verr := m.f.FromAny(result)
	if verr != nil {
		return m.f.FromException(TypeExecuteException, verr.Error())
	}
	return v
}

func (m *manipulator) classifyCallError(err error) *Value {
	if _, ok := err.(*goja.InterruptedError); ok {
		return m.f.FromException(TypeTerminatedException, "execution was terminated")
	}
	return m.f.FromException(TypeExecuteException, summarizeRuntimeError(err))
}

// toEngineArg converts one of our Values back into a goja.Value for
// passing into the engine. Engine-backed Values already carry their
// goja.Value; primitives are rebuilt from their inline payload.
func toEngineArg(rt *goja.Runtime, v *Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	if v.engine != nil {
		return v.engine
	}
	switch v.Type() {
	case TypeNull:
		return goja.Null()
	case TypeUndefined:
		return goja.Undefined()
	case TypeBool:
		return rt.ToValue(v.Bool())
	case TypeInteger:
		return rt.ToValue(v.Int64())
	case TypeDouble:
		return rt.ToValue(v.Float64())
	case TypeString:
		return rt.ToValue(v.String())
	default:
		return goja.Undefined()
	}
}
