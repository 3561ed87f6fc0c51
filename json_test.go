package jsengine

import (
	"testing"

	"github.com/dop251/goja"
)

func TestJSONParse(t *testing.T) {
	t.Parallel()

	im := NewIsolate(IsolateOptions{})
	defer im.Stop()

	fut := Submit(im, func(rt *goja.Runtime) (*Value, error) {
		m := newManipulator(rt, im.Factory())
		return m.JSONParse(im.Factory().FromString(`{"a":1,"b":"foo"}`)), nil
	})
	v, err := fut.Get()
	if err != nil {
		t.Fatalf("unexpected future error: %v", err)
	}
	if v.IsException() {
		t.Fatalf("expected a parsed object, got %s", v.Type())
	}
	if v.Type() != TypeObject {
		t.Errorf("expected object, got %s", v.Type())
	}
}

func TestJSONParseInvalid(t *testing.T) {
	t.Parallel()

	im := NewIsolate(IsolateOptions{})
	defer im.Stop()

	fut := Submit(im, func(rt *goja.Runtime) (*Value, error) {
		m := newManipulator(rt, im.Factory())
		return m.JSONParse(im.Factory().FromString(`{`)), nil
	})
	v, err := fut.Get()
	if err != nil {
		t.Fatalf("unexpected future error: %v", err)
	}
	if !v.IsException() {
		t.Errorf("expected an exception-tagged Value, got %s", v.Type())
	}
}

func TestJSONStringify(t *testing.T) {
	t.Parallel()

	im := NewIsolate(IsolateOptions{})
	defer im.Stop()

	fut := Submit(im, func(rt *goja.Runtime) (*Value, error) {
		m := newManipulator(rt, im.Factory())
		parsed := m.JSONParse(im.Factory().FromString(`{"a":1,"b":"foo"}`))
		return m.JSONStringify(parsed), nil
	})
	v, err := fut.Get()
	if err != nil {
		t.Fatalf("unexpected future error: %v", err)
	}
	if v.IsException() {
		t.Fatalf("expected a string, got exception %s", v.String())
	}
	if got, want := v.String(), `{"a":1,"b":"foo"}`; got != want {
		t.Errorf("JSONStringify() = %q, want %q", got, want)
	}
}
