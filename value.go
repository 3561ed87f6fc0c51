package jsengine

import (
	"errors"
	"fmt"
	"math"

	"github.com/dop251/goja"
)

// Value is the core's wrapper around either an inline primitive or a
// pinned engine object. It is owned solely by the Registry; the
// client only ever holds the raw HandlePtr returned at publish time.
//
// The handle field is embedded by value so that its address is the
// Value's handle identity: &v.handle never changes for the lifetime
// of v, satisfying the "Handle identity = address of the embedded
// ValueHandle" invariant.
type Value struct {
	handle ValueHandle

	// engine is the persistent engine-side value for engine-backed
	// types (object, array, function, promise, symbol, array buffers,
	// dates produced from script evaluation). nil for values built
	// purely from client-supplied bytes/numbers off the owner thread.
	engine goja.Value

	// bufOffset/bufLen locate the backing bytes for array-buffer
	// Values; they alias engine memory and are only valid while engine
	// (the persistent handle) is alive, per the aliasing invariant.
	bufOffset int
	bufLen    int
}

// Valuer is implemented by anything that can be treated as a Value:
// Value itself and the thin wrapper types below.
type Valuer interface {
	value() *Value
}

func (v *Value) value() *Value { return v }

// Handle returns the client-visible identity for this Value. Calling
// code must go through a Context's Registry to keep the mapping
// consistent; Handle on its own does not publish anything.
func (v *Value) Handle() HandlePtr { return v.handle.Addr() }

// Type reports the closed-set tag this Value carries.
func (v *Value) Type() TypeTag { return v.handle.Tag }

// IsException reports whether this Value represents one of the error
// tags rather than a real JS value.
func (v *Value) IsException() bool { return v.handle.Tag.IsException() }

// Int64 returns the inline integer payload. Only meaningful when
// Type() == TypeInteger.
func (v *Value) Int64() int64 { return v.handle.asInt64 }

// Float64 returns the inline double payload. Meaningful for
// TypeDouble and TypeDate (epoch milliseconds).
func (v *Value) Float64() float64 { return v.handle.asFloat64 }

// Bool returns the inline boolean payload.
func (v *Value) Bool() bool { return v.handle.asInt64 != 0 }

// String returns the inline UTF-8 string payload, or the detail
// string for an exception-tagged Value.
func (v *Value) String() string { return string(v.handle.bytes) }

// Describe renders a human-readable "tag(payload)" summary, the way a
// CLI or log line wants to show a Value without caring which union
// member is live.
func (v *Value) Describe() string { return v.handle.String() }

// Bytes returns the raw backing bytes for array-buffer Values. The
// slice aliases engine memory and is only safe to dereference on the
// owner thread.
func (v *Value) Bytes() []byte { return v.handle.bytes }

// GoValue returns the underlying engine value for engine-backed
// Values. Callers MUST be executing on the Isolate Manager's owner
// thread; this is the seam every Operation Module uses to reach into
// goja.
func (v *Value) GoValue() goja.Value { return v.engine }

// AsObject casts the Value to an Object wrapper. Returns an error if
// the Value is not object-shaped.
func (v *Value) AsObject() (*Object, error) {
	switch v.handle.Tag {
	case TypeObject, TypeArray, TypeFunction, TypePromise, TypeArrayBuffer,
		TypeSharedArrayBuffer, TypeArrayBufferView:
		return &Object{Value: v}, nil
	}
	return nil, fmt.Errorf("jsengine: value of type %s is not an Object", v.handle.Tag)
}

// AsFunction casts the Value to a Function wrapper.
func (v *Value) AsFunction() (*Function, error) {
	if v.handle.Tag != TypeFunction {
		return nil, fmt.Errorf("jsengine: value of type %s is not a Function", v.handle.Tag)
	}
	return &Function{Object{Value: v}}, nil
}

// AsArray casts the Value to an Array wrapper.
func (v *Value) AsArray() (*Array, error) {
	if v.handle.Tag != TypeArray {
		return nil, fmt.Errorf("jsengine: value of type %s is not an Array", v.handle.Tag)
	}
	return &Array{Object{Value: v}}, nil
}

// AsPromise casts the Value to a Promise wrapper.
func (v *Value) AsPromise() (*Promise, error) {
	if v.handle.Tag != TypePromise {
		return nil, fmt.Errorf("jsengine: value of type %s is not a Promise", v.handle.Tag)
	}
	return &Promise{Object{Value: v}}, nil
}

// Object is a JavaScript object (ECMA-262, 4.3.3), or any of its
// subtypes (array, function, promise, ...).
type Object struct{ *Value }

// Array is a JavaScript Array object, a subtype of Object.
type Array struct{ Object }

// Function is a JavaScript function, a subtype of Object.
type Function struct{ Object }

// Promise is a JavaScript Promise, a subtype of Object.
type Promise struct{ Object }

// errNaN and errInf make float round-trip checks easy to special-case
// in tests without importing math in every test file.
var (
	errNaN = errors.New("jsengine: NaN")
	errInf = errors.New("jsengine: Inf")
)

func classifyFloat(f float64) error {
	if math.IsNaN(f) {
		return errNaN
	}
	if math.IsInf(f, 0) {
		return errInf
	}
	return nil
}
