package jsengine

import (
	"fmt"
	"math"

	"github.com/dop251/goja"
)

// Factory manufactures Values. Every constructor returns a strong
// reference that the caller is expected to hand to a Registry via
// Remember; the Factory itself never publishes anything.
//
// Engine-backed constructions (FromEngineValue, FromAny) must run on
// the Isolate Manager's owner thread, since they read out of goja
// state (strings, array buffer backing stores, property names).
// Client-originated primitive constructors (FromBool, FromInt, ...)
// may run on any thread.
type Factory struct {
	rt *goja.Runtime
}

// NewFactory builds a Factory bound to rt. rt is only ever touched by
// the engine-backed constructors, and only when called on the owner
// thread.
func NewFactory(rt *goja.Runtime) *Factory {
	return &Factory{rt: rt}
}

// FromBool builds a primitive boolean Value.
func (f *Factory) FromBool(b bool) *Value {
	var i int64
	if b {
		i = 1
	}
	return &Value{handle: ValueHandle{Tag: TypeBool, asInt64: i}}
}

// FromInt builds a primitive integer Value.
func (f *Factory) FromInt(i int64) *Value {
	return &Value{handle: ValueHandle{Tag: TypeInteger, asInt64: i}}
}

// FromDouble builds a primitive double Value.
func (f *Factory) FromDouble(d float64) *Value {
	return &Value{handle: ValueHandle{Tag: TypeDouble, asFloat64: d}}
}

// FromString builds a primitive string Value from client-supplied
// UTF-8 bytes. A defensive copy is taken so the inline bytes stay
// immutable for the life of the Value, independent of
// what the caller does with its own buffer afterwards.
func (f *Factory) FromString(s string) *Value {
	buf := make([]byte, len(s))
	copy(buf, s)
	return &Value{handle: ValueHandle{Tag: TypeString, bytes: buf}}
}

// FromNull builds the `null` singleton-shaped Value.
func (f *Factory) FromNull() *Value {
	return &Value{handle: ValueHandle{Tag: TypeNull}}
}

// FromUndefined builds the `undefined` singleton-shaped Value.
func (f *Factory) FromUndefined() *Value {
	return &Value{handle: ValueHandle{Tag: TypeUndefined}}
}

// FromException builds an error-tagged Value carrying a UTF-8 detail
// summary.
func (f *Factory) FromException(tag TypeTag, detail string) *Value {
	if !tag.IsException() {
		panic(fmt.Sprintf("jsengine: FromException called with non-exception tag %s", tag))
	}
	buf := make([]byte, len(detail))
	copy(buf, detail)
	return &Value{handle: ValueHandle{Tag: tag, bytes: buf}}
}

// FromEngineValue pins gv with the given, already-determined tag. Must
// run on the owner thread.
func (f *Factory) FromEngineValue(gv goja.Value, tag TypeTag) (*Value, error) {
	switch tag {
	case TypeString:
		s := gv.String()
		buf := make([]byte, len(s))
		copy(buf, s)
		return &Value{handle: ValueHandle{Tag: TypeString, bytes: buf}}, nil

	case TypeInteger:
		return &Value{handle: ValueHandle{Tag: TypeInteger, asInt64: gv.ToInteger()}}, nil

	case TypeDouble:
		d := gv.ToFloat()
		return &Value{handle: ValueHandle{Tag: TypeDouble, asFloat64: d}, engine: gv}, nil

	case TypeBool:
		var i int64
		if gv.ToBoolean() {
			i = 1
		}
		return &Value{handle: ValueHandle{Tag: TypeBool, asInt64: i}}, nil

	case TypeDate:
		// goja represents Date as an object whose ToFloat() (via
		// valueOf) yields epoch milliseconds.
		ms := gv.ToFloat()
		return &Value{handle: ValueHandle{Tag: TypeDate, asFloat64: ms}, engine: gv}, nil

	case TypeNull:
		return &Value{handle: ValueHandle{Tag: TypeNull}, engine: gv}, nil

	case TypeUndefined:
		return &Value{handle: ValueHandle{Tag: TypeUndefined}, engine: gv}, nil

	case TypeArray, TypeObject, TypeFunction, TypePromise, TypeSymbol:
		return &Value{handle: ValueHandle{Tag: tag}, engine: gv}, nil

	case TypeArrayBuffer, TypeSharedArrayBuffer:
		obj := gv.ToObject(f.rt)
		ab, ok := obj.Export().(goja.ArrayBuffer)
		if !ok {
			return nil, fmt.Errorf("jsengine: FromEngineValue: %s object did not export as goja.ArrayBuffer", tag)
		}
		buf := ab.Bytes()
		return &Value{
			handle:    ValueHandle{Tag: tag, bytes: buf},
			engine:    gv,
			bufOffset: 0,
			bufLen:    len(buf),
		}, nil

	case TypeArrayBufferView:
		obj := gv.ToObject(f.rt)
		// Typed arrays and DataView expose their backing ArrayBuffer via
		// the "buffer" property; byteOffset/byteLength locate this
		// view's window into it, so Bytes() aliases the same storage a
		// script sees through the view rather than the whole buffer.
		bufferVal := obj.Get("buffer")
		var view []byte
		offset, length := 0, 0
		if bufferVal != nil {
			if ab, ok := bufferVal.Export().(goja.ArrayBuffer); ok {
				backing := ab.Bytes()
				offset = int(obj.Get("byteOffset").ToInteger())
				length = int(obj.Get("byteLength").ToInteger())
				if offset >= 0 && length >= 0 && offset+length <= len(backing) {
					view = backing[offset : offset+length]
				}
			}
		}
		return &Value{
			handle:    ValueHandle{Tag: tag, bytes: view},
			engine:    gv,
			bufOffset: offset,
			bufLen:    length,
		}, nil

	default:
		return nil, fmt.Errorf("jsengine: FromEngineValue: unsupported tag %s", tag)
	}
}

// FromAny infers the tag for an arbitrary engine value by querying its
// type in a fixed, load-bearing order: many engine objects
// answer "yes" to more than one predicate, so specific checks must run
// before general ones.
func (f *Factory) FromAny(gv goja.Value) (*Value, error) {
	if gv == nil || goja.IsUndefined(gv) {
		return f.FromEngineValue(gv, TypeUndefined)
	}
	if goja.IsNull(gv) {
		return f.FromEngineValue(gv, TypeNull)
	}

	if _, ok := goja.AssertFunction(gv); ok {
		return f.FromEngineValue(gv, TypeFunction)
	}

	if _, ok := gv.(*goja.Symbol); ok {
		return f.FromEngineValue(gv, TypeSymbol)
	}

	if obj, ok := gv.(*goja.Object); ok {
		switch obj.ClassName() {
		case "Promise":
			return f.FromEngineValue(gv, TypePromise)
		case "Array":
			return f.FromEngineValue(gv, TypeArray)
		case "Date":
			return f.FromEngineValue(gv, TypeDate)
		case "ArrayBuffer":
			return f.FromEngineValue(gv, TypeArrayBuffer)
		case "SharedArrayBuffer":
			return f.FromEngineValue(gv, TypeSharedArrayBuffer)
		case "Int8Array", "Uint8Array", "Uint8ClampedArray", "Int16Array",
			"Uint16Array", "Int32Array", "Uint32Array", "Float32Array",
			"Float64Array", "BigInt64Array", "BigUint64Array", "DataView":
			return f.FromEngineValue(gv, TypeArrayBufferView)
		}
	}

	if looksNumeric(gv) {
		f64 := gv.ToFloat()
		if f64 == math.Trunc(f64) && !math.IsInf(f64, 0) {
			return f.FromEngineValue(gv, TypeInteger)
		}
		return f.FromEngineValue(gv, TypeDouble)
	}

	if isBooleanValue(gv) {
		return f.FromEngineValue(gv, TypeBool)
	}

	if _, ok := gv.(*goja.Object); ok {
		return f.FromEngineValue(gv, TypeObject)
	}

	if gv.ExportType() != nil && gv.ExportType().Kind().String() == "string" {
		return f.FromEngineValue(gv, TypeString)
	}

	// Anything that matched none of the predicates above is invalid.
	return &Value{handle: ValueHandle{Tag: TypeInvalid}, engine: gv}, nil
}

func looksNumeric(gv goja.Value) bool {
	switch gv.ExportType().Kind().String() {
	case "float64", "float32", "int", "int8", "int16", "int32", "int64",
		"uint", "uint8", "uint16", "uint32", "uint64":
		return true
	}
	return false
}

func isBooleanValue(gv goja.Value) bool {
	return gv.ExportType() != nil && gv.ExportType().Kind().String() == "bool"
}

