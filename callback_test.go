package jsengine

import "testing"

// S5: make_js_callback(K) installed as globalThis.cb; eval("cb(1,'x')")
// delivers a callback with callback_id=K and an argv array Value whose
// elements re-hydrate to integer 1 and string "x".
func TestContextJSCallbackRoundTrip(t *testing.T) {
	caller, ch := newRecordingCaller()
	id := MakeContext(testConfig(), testLogger(), caller)
	defer FreeContext(id)
	ctx, _ := Lookup(id)

	const callbackID CallbackID = 42
	cbHandle := ctx.MakeJSCallback(callbackID)
	cb, ok := ctx.ValueAt(cbHandle)
	if !ok || cb.Type() != TypeFunction {
		t.Fatalf("MakeJSCallback: got %v, want function", cb)
	}

	// Bind the callback into the global object the same way a client
	// would: set_object_item on the global, then eval a script that
	// invokes it.
	globalHandle := ctx.GlobalObject()
	setResult := ctx.SetObjectItem(globalHandle, "cb", cbHandle)
	if sv, ok := ctx.ValueAt(setResult); !ok || sv.IsException() {
		t.Fatalf("binding cb on globalThis failed: %v", sv)
	}

	code := ctx.NewStringValue("cb(1,'x')")
	ctx.Eval(code, 1)

	first := awaitDelivery(t, ch)
	var argv *Value
	switch first.id {
	case callbackID:
		argv = first.v
	case 1:
		second := awaitDelivery(t, ch)
		argv = second.v
	default:
		t.Fatalf("unexpected callback id %d", first.id)
	}

	if argv.Type() != TypeArray {
		t.Fatalf("argv type = %s, want array", argv.Type())
	}

	elem0 := ctx.GetObjectItem(argv.Handle(), "0")
	v0, ok := ctx.ValueAt(elem0)
	if !ok || v0.Type() != TypeInteger || v0.Int64() != 1 {
		t.Fatalf("argv[0] = %v, want integer(1)", v0)
	}

	elem1 := ctx.GetObjectItem(argv.Handle(), "1")
	v1, ok := ctx.ValueAt(elem1)
	if !ok || v1.Type() != TypeString || v1.String() != "x" {
		t.Fatalf("argv[1] = %v, want string(\"x\")", v1)
	}
}
