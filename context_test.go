package jsengine

import (
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type delivery struct {
	id CallbackID
	v  *Value
}

func newRecordingCaller() (Caller, chan delivery) {
	ch := make(chan delivery, 16)
	return func(id CallbackID, v *Value) {
		ch <- delivery{id, v}
	}, ch
}

func testConfig() RuntimeConfig {
	cfg := DefaultRuntimeConfig()
	cfg.SoftHeapLimitBytes = 0
	cfg.HardHeapLimitBytes = 0
	return cfg
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func awaitDelivery(t *testing.T, ch chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback delivery")
		return delivery{}
	}
}

// S1: eval("1 + 2") -> integer 3.
func TestContextEvalArithmetic(t *testing.T) {
	caller, ch := newRecordingCaller()
	id := MakeContext(testConfig(), testLogger(), caller)
	defer FreeContext(id)
	ctx, _ := Lookup(id)

	code := ctx.NewStringValue("1 + 2")
	ctx.Eval(code, 1)

	d := awaitDelivery(t, ch)
	if d.v.Type() != TypeInteger || d.v.Int64() != 3 {
		t.Fatalf("got %s, want integer(3)", d.v.Describe())
	}
}

// S2: eval("throw new Error('boom')") -> execute_exception mentioning "boom".
func TestContextEvalThrow(t *testing.T) {
	caller, ch := newRecordingCaller()
	id := MakeContext(testConfig(), testLogger(), caller)
	defer FreeContext(id)
	ctx, _ := Lookup(id)

	code := ctx.NewStringValue("throw new Error('boom')")
	ctx.Eval(code, 1)

	d := awaitDelivery(t, ch)
	if d.v.Type() != TypeExecuteException {
		t.Fatalf("got tag %s, want execute_exception", d.v.Type())
	}
	if !strings.Contains(d.v.String(), "boom") {
		t.Fatalf("detail %q does not mention boom", d.v.String())
	}
}

// S3: a busy loop canceled mid-flight resolves as terminated_exception.
func TestContextEvalCancel(t *testing.T) {
	caller, ch := newRecordingCaller()
	id := MakeContext(testConfig(), testLogger(), caller)
	defer FreeContext(id)
	ctx, _ := Lookup(id)

	code := ctx.NewStringValue("while(true){}")
	taskID := ctx.Eval(code, 1)

	time.Sleep(50 * time.Millisecond)
	ctx.CancelTask(taskID)

	d := awaitDelivery(t, ch)
	if d.v.Type() != TypeTerminatedException {
		t.Fatalf("got tag %s, want terminated_exception", d.v.Type())
	}
}

// S4: set_hard_memory_limit then a non-returning allocation loop ->
// oom_exception. The loop body never returns control to the owner
// thread, so this exercises the Monitor's background sampler rather
// than the task-boundary hook: without it, this eval would just run
// the test process out of memory instead of resolving.
func TestContextEvalHardMemoryLimit(t *testing.T) {
	caller, ch := newRecordingCaller()
	cfg := testConfig()
	cfg.MemorySampleIntervalMillis = 2
	id := MakeContext(cfg, testLogger(), caller)
	defer FreeContext(id)
	ctx, _ := Lookup(id)

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	ctx.SetHardMemoryLimit(stats.HeapAlloc + 4*1024*1024)

	code := ctx.NewStringValue("let a=[]; while(true) a.push(new Array(1e5).fill(0))")
	ctx.Eval(code, 1)

	select {
	case d := <-ch:
		if d.v.Type() != TypeOOMException {
			t.Fatalf("got tag %s, want oom_exception", d.v.Type())
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for hard memory limit to terminate eval")
	}
}

// S6: eval("({a:1,b:2})") then get_object_item both present and absent keys.
func TestContextObjectGetItem(t *testing.T) {
	caller, ch := newRecordingCaller()
	id := MakeContext(testConfig(), testLogger(), caller)
	defer FreeContext(id)
	ctx, _ := Lookup(id)

	code := ctx.NewStringValue("({a:1,b:2})")
	ctx.Eval(code, 1)
	obj := awaitDelivery(t, ch).v

	gotA := ctx.GetObjectItem(obj.Handle(), "a")
	va, ok := ctx.ValueAt(gotA)
	if !ok || va.Type() != TypeInteger || va.Int64() != 1 {
		t.Fatalf("get a: got %v", va)
	}

	gotC := ctx.GetObjectItem(obj.Handle(), "c")
	vc, ok := ctx.ValueAt(gotC)
	if !ok || vc.Type() != TypeKeyException {
		t.Fatalf("get c: got %v, want key_exception", vc)
	}
}

// S7: eval("[10,20,30]"), splice_array(a,1,1,99) removes [20], leaves [10,99,30].
func TestContextArraySplice(t *testing.T) {
	caller, ch := newRecordingCaller()
	id := MakeContext(testConfig(), testLogger(), caller)
	defer FreeContext(id)
	ctx, _ := Lookup(id)

	code := ctx.NewStringValue("globalThis.a = [10,20,30]; a")
	ctx.Eval(code, 1)
	arr := awaitDelivery(t, ch).v

	ninety9 := ctx.registry.Remember(ctx.factory.FromInt(99))

	removed := ctx.SpliceArray(arr.Handle(), 1, 1, ninety9)
	removedVal, ok := ctx.ValueAt(removed)
	if !ok || removedVal.Type() != TypeArray {
		t.Fatalf("splice result: got %v, want array", removedVal)
	}

	code2 := ctx.NewStringValue("JSON.stringify(a)")
	ctx.Eval(code2, 2)
	d := awaitDelivery(t, ch)
	if d.v.Type() != TypeString || d.v.String() != `[10,99,30]` {
		t.Fatalf("got %q, want [10,99,30]", d.v.String())
	}
}

// ContextCount/FreeContext lifecycle: a freed context is no longer
// lookup-able and no longer contributes to ContextCount.
func TestContextLifecycle(t *testing.T) {
	before := ContextCount()
	caller, _ := newRecordingCaller()
	id := MakeContext(testConfig(), testLogger(), caller)
	if ContextCount() != before+1 {
		t.Fatalf("ContextCount = %d, want %d", ContextCount(), before+1)
	}

	FreeContext(id)
	if ContextCount() != before {
		t.Fatalf("ContextCount after free = %d, want %d", ContextCount(), before)
	}
	if _, ok := Lookup(id); ok {
		t.Fatal("Lookup succeeded after FreeContext")
	}

	// A repeated free is a silent no-op.
	FreeContext(id)
}

// A bad handle on a sync operation synthesizes a value_exception
// rather than panicking.
func TestContextBadHandle(t *testing.T) {
	caller, _ := newRecordingCaller()
	id := MakeContext(testConfig(), testLogger(), caller)
	defer FreeContext(id)
	ctx, _ := Lookup(id)

	got := ctx.GetObjectItem(nil, "a")
	v, ok := ctx.ValueAt(got)
	if !ok || v.Type() != TypeValueException {
		t.Fatalf("got %v, want value_exception", v)
	}
}

