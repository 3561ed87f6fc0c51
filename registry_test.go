package jsengine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PopScope forgets exactly the handles Remembered since the matching
// PushScope, leaving earlier entries untouched.
func TestRegistryScopeForgetsOnlyWhatItOpened(t *testing.T) {
	r := NewRegistry()
	f := &Factory{}

	outer := r.Remember(f.FromInt(1))

	depth := r.PushScope()
	inner1 := r.Remember(f.FromInt(2))
	inner2 := r.Remember(f.FromInt(3))
	r.PopScope(depth)

	assert.NotNil(t, r.Lookup(outer), "outer handle was forgotten by an unrelated scope pop")
	assert.Nil(t, r.Lookup(inner1), "scoped handle survived PopScope")
	assert.Nil(t, r.Lookup(inner2), "scoped handle survived PopScope")
}

// Nested scopes unwind in LIFO order; popping out of order panics.
func TestRegistryScopeMustPopInOrder(t *testing.T) {
	r := NewRegistry()
	outerDepth := r.PushScope()
	_ = r.PushScope()

	assert.Panics(t, func() { r.PopScope(outerDepth) })
}

// Remember/Forget/Lookup are safe under concurrent access from many
// goroutines, as the client may release handles from any thread.
func TestRegistryConcurrentUse(t *testing.T) {
	r := NewRegistry()
	f := &Factory{}

	const n = 200
	handles := make([]HandlePtr, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			handles[i] = r.Remember(f.FromInt(int64(i)))
		}()
	}
	wg.Wait()

	require.Equal(t, n, r.Count())

	wg.Add(n)
	for i := 0; i < n; i++ {
		h := handles[i]
		go func() {
			defer wg.Done()
			r.Forget(h)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count())
}
