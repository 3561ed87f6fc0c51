package jsengine

import (
	"testing"

	"github.com/dop251/goja"
)

func TestFactoryPrimitives(t *testing.T) {
	t.Parallel()

	f := NewFactory(goja.New())

	tests := []struct {
		name string
		val  *Value
		tag  TypeTag
	}{
		{"bool true", f.FromBool(true), TypeBool},
		{"bool false", f.FromBool(false), TypeBool},
		{"int", f.FromInt(42), TypeInteger},
		{"double", f.FromDouble(4321.125), TypeDouble},
		{"string", f.FromString("foobar"), TypeString},
		{"empty string", f.FromString(""), TypeString},
		{"null", f.FromNull(), TypeNull},
		{"undefined", f.FromUndefined(), TypeUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.val.Type(); got != tt.tag {
				t.Errorf("Type() = %s, want %s", got, tt.tag)
			}
			if tt.val.IsException() {
				t.Errorf("expected a non-exception Value")
			}
		})
	}
}

func TestFactoryStringIsolatedFromCallerBuffer(t *testing.T) {
	t.Parallel()

	f := NewFactory(goja.New())
	buf := []byte("hello")
	v := f.FromString(string(buf))
	buf[0] = 'H'

	if got := v.String(); got != "hello" {
		t.Errorf("String() = %q, want %q; Value aliased caller's buffer", got, "hello")
	}
}

func TestFactoryFromExceptionRequiresExceptionTag(t *testing.T) {
	t.Parallel()

	f := NewFactory(goja.New())

	defer func() {
		if recover() == nil {
			t.Error("expected panic when building an exception Value from a non-exception tag")
		}
	}()
	f.FromException(TypeBool, "nope")
}

func TestFactoryFromExceptionTags(t *testing.T) {
	t.Parallel()

	f := NewFactory(goja.New())
	tags := []TypeTag{
		TypeParseException, TypeExecuteException, TypeOOMException,
		TypeTimeoutException, TypeTerminatedException, TypeValueException,
		TypeKeyException,
	}
	for _, tag := range tags {
		v := f.FromException(tag, "detail")
		if !v.IsException() {
			t.Errorf("%s: expected IsException() == true", tag)
		}
		if v.String() != "detail" {
			t.Errorf("%s: String() = %q, want %q", tag, v.String(), "detail")
		}
	}
}

func TestHandleIdentityIsStable(t *testing.T) {
	t.Parallel()

	f := NewFactory(goja.New())
	v := f.FromInt(7)

	h1 := v.Handle()
	h2 := v.Handle()
	if h1 != h2 {
		t.Errorf("Handle() returned different pointers across calls")
	}
	if h1 != HandlePtr(&v.handle) {
		t.Errorf("Handle() did not return the address of the embedded ValueHandle")
	}
}

// TestFactoryFromAnyTypeInferenceOrder exercises the load-bearing
// order checks must run in: values that satisfy more than one
// predicate (a function is also an object; a Promise answers to the
// generic object branch too) must resolve to the more specific tag.
func TestFactoryFromAnyTypeInferenceOrder(t *testing.T) {
	t.Parallel()

	rt := goja.New()
	f := NewFactory(rt)

	tests := []struct {
		name string
		expr string
		tag  TypeTag
	}{
		{"object literal", `({a:1})`, TypeObject},
		{"array literal", `[1,2,3]`, TypeArray},
		{"function expr", `(function(){})`, TypeFunction},
		{"arrow fn", `(() => 1)`, TypeFunction},
		{"promise", `Promise.resolve(1)`, TypePromise},
		{"date", `new Date(0)`, TypeDate},
		{"integer literal", `1`, TypeInteger},
		{"negative integer", `-1`, TypeInteger},
		{"double literal", `4321.125`, TypeDouble},
		{"bool true", `true`, TypeBool},
		{"bool false", `false`, TypeBool},
		{"string literal", `"hi"`, TypeString},
		{"null literal", `null`, TypeNull},
		{"undefined literal", `undefined`, TypeUndefined},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, err := goja.Compile("<test>", tt.expr, false)
			if err != nil {
				t.Fatalf("compile %q: %v", tt.expr, err)
			}
			result, err := rt.RunProgram(prog)
			if err != nil {
				t.Fatalf("run %q: %v", tt.expr, err)
			}
			v, err := f.FromAny(result)
			if err != nil {
				t.Fatalf("FromAny(%q): %v", tt.expr, err)
			}
			if v.Type() != tt.tag {
				t.Errorf("FromAny(%q).Type() = %s, want %s", tt.expr, v.Type(), tt.tag)
			}
		})
	}
}

func TestRegistryRememberForgetLookup(t *testing.T) {
	t.Parallel()

	f := NewFactory(goja.New())
	r := NewRegistry()

	v := f.FromString("hi")
	h := r.Remember(v)

	got := r.Lookup(h)
	if got != v {
		t.Fatalf("Lookup(%v) = %v, want %v", h, got, v)
	}
	if n := r.Count(); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}

	r.Forget(h)
	if got := r.Lookup(h); got != nil {
		t.Error("expected Lookup to fail after Forget")
	}
	if n := r.Count(); n != 0 {
		t.Errorf("Count() = %d after Forget, want 0", n)
	}
}

// TestFactoryArrayBufferAliasesEngineMemory exercises the aliasing
// invariant directly: Value.Bytes() for an array-buffer Value must
// observe mutations made through the engine afterwards, not a
// snapshot taken at FromAny time.
func TestFactoryArrayBufferAliasesEngineMemory(t *testing.T) {
	t.Parallel()

	rt := goja.New()
	f := NewFactory(rt)

	setup, err := goja.Compile("<test>",
		`globalThis.buf = new ArrayBuffer(4); globalThis.view = new Uint8Array(buf); view[0] = 1; buf`, false)
	if err != nil {
		t.Fatal(err)
	}
	result, err := rt.RunProgram(setup)
	if err != nil {
		t.Fatal(err)
	}

	v, err := f.FromAny(result)
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	if v.Type() != TypeArrayBuffer {
		t.Fatalf("Type() = %s, want array_buffer", v.Type())
	}
	if got := v.Bytes(); len(got) != 4 || got[0] != 1 {
		t.Fatalf("Bytes() = %v, want [1 0 0 0]", got)
	}

	mutate, err := goja.Compile("<test>", `view[1] = 42`, false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rt.RunProgram(mutate); err != nil {
		t.Fatal(err)
	}

	if got := v.Bytes(); got[1] != 42 {
		t.Fatalf("Bytes()[1] = %d after engine-side mutation, want 42 (Value must alias engine memory, not copy it)", got[1])
	}
}

// TestFactoryArrayBufferViewWindowsIntoBuffer confirms a typed array's
// Bytes() reflects its byteOffset/byteLength window into the backing
// buffer rather than the whole buffer's bytes.
func TestFactoryArrayBufferViewWindowsIntoBuffer(t *testing.T) {
	t.Parallel()

	rt := goja.New()
	f := NewFactory(rt)

	prog, err := goja.Compile("<test>",
		`const buf = new ArrayBuffer(8); const view = new Uint8Array(buf, 2, 4); view[0] = 9; view`, false)
	if err != nil {
		t.Fatal(err)
	}
	result, err := rt.RunProgram(prog)
	if err != nil {
		t.Fatal(err)
	}

	v, err := f.FromAny(result)
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	if v.Type() != TypeArrayBufferView {
		t.Fatalf("Type() = %s, want array_buffer_view", v.Type())
	}
	if got := v.Bytes(); len(got) != 4 || got[0] != 9 {
		t.Fatalf("Bytes() = %v, want len 4 starting with 9", got)
	}
}

func TestRegistryLookupUnknownHandle(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	stray := &ValueHandle{Tag: TypeInteger}
	if got := r.Lookup(stray); got != nil {
		t.Error("expected Lookup to fail for a handle the Registry never remembered")
	}
}
