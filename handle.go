package jsengine

import "fmt"

// TypeTag is the closed set of value kinds that can cross the client
// boundary on a ValueHandle. Ordering is the closed set's own listing
// order with TypeInvalid as the zero value; it is unrelated to the
// factory's type inference order in factory.go. Do not reorder without
// checking that callers don't depend on numeric values.
type TypeTag uint8

const (
	TypeInvalid TypeTag = iota
	TypeNull
	TypeUndefined
	TypeBool
	TypeInteger
	TypeDouble
	TypeString
	TypeDate
	TypeSymbol
	TypeArray
	TypeObject
	TypeFunction
	TypePromise
	TypeArrayBuffer
	TypeSharedArrayBuffer
	TypeArrayBufferView

	// Error tags. A Value carrying one of these never represents a
	// successfully produced JS value; the string payload carries a
	// human-readable summary of what went wrong.
	TypeParseException
	TypeExecuteException
	TypeOOMException
	TypeTimeoutException
	TypeTerminatedException
	TypeValueException
	TypeKeyException
)

func (t TypeTag) String() string {
	switch t {
	case TypeNull:
		return "null"
	case TypeUndefined:
		return "undefined"
	case TypeBool:
		return "bool"
	case TypeInteger:
		return "integer"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeDate:
		return "date"
	case TypeSymbol:
		return "symbol"
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	case TypeFunction:
		return "function"
	case TypePromise:
		return "promise"
	case TypeArrayBuffer:
		return "array_buffer"
	case TypeSharedArrayBuffer:
		return "shared_array_buffer"
	case TypeArrayBufferView:
		return "array_buffer_view"
	case TypeParseException:
		return "parse_exception"
	case TypeExecuteException:
		return "execute_exception"
	case TypeOOMException:
		return "oom_exception"
	case TypeTimeoutException:
		return "timeout_exception"
	case TypeTerminatedException:
		return "terminated_exception"
	case TypeValueException:
		return "value_exception"
	case TypeKeyException:
		return "key_exception"
	default:
		return "invalid"
	}
}

// IsException reports whether the tag identifies one of the error
// variants rather than a normal JS value.
func (t TypeTag) IsException() bool {
	return t >= TypeParseException
}

// payloadKind selects which field of the ValueHandle payload union is
// live. Kept as a distinct concept from TypeTag because several
// TypeTags (array, object, function, promise, ...) all share
// payloadNone: their data lives in the engine value, not the union.
type payloadKind uint8

const (
	payloadNone payloadKind = iota
	payloadInt64
	payloadFloat64
	payloadBytes
)

func kindFor(t TypeTag) payloadKind {
	switch t {
	case TypeInteger:
		return payloadInt64
	case TypeDouble, TypeDate:
		return payloadFloat64
	case TypeString, TypeArrayBuffer, TypeSharedArrayBuffer, TypeArrayBufferView,
		TypeParseException, TypeExecuteException, TypeOOMException,
		TypeTimeoutException, TypeTerminatedException, TypeValueException, TypeKeyException:
		return payloadBytes
	case TypeBool:
		return payloadInt64
	default:
		return payloadNone
	}
}

// ValueHandle is the fixed-layout record returned to the client. Its
// own address is the handle identity (Invariant: "Handle identity =
// address of the embedded ValueHandle"); callers must never copy a
// *ValueHandle by value across the boundary once published, only pass
// the pointer.
type ValueHandle struct {
	Tag TypeTag

	// payload union. Exactly one of these is meaningful, selected by
	// kindFor(Tag).
	asInt64   int64
	asFloat64 float64
	bytes     []byte // owns the inline UTF-8 / error-detail bytes
}

// Addr returns the stable identity of this handle: its own address.
func (h *ValueHandle) Addr() HandlePtr {
	return HandlePtr(h)
}

// HandlePtr is the client-visible, opaque identity of a Value. It is
// NOT an ownership token — the Registry holds the only
// strong reference; a HandlePtr going out of scope on the client side
// does nothing by itself. The client must call FreeValue explicitly.
type HandlePtr = *ValueHandle

func (h *ValueHandle) String() string {
	switch kindFor(h.Tag) {
	case payloadInt64:
		return fmt.Sprintf("%s(%d)", h.Tag, h.asInt64)
	case payloadFloat64:
		return fmt.Sprintf("%s(%g)", h.Tag, h.asFloat64)
	case payloadBytes:
		return fmt.Sprintf("%s(%q)", h.Tag, string(h.bytes))
	default:
		return h.Tag.String()
	}
}
