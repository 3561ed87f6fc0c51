package jsengine

import "sync"

// Registry maps handle addresses to the Value that owns them. It is
// the only strong reference to a Value; the client only ever holds
// the raw HandlePtr, which is not itself an ownership token.
//
// Internally synchronized so lookups/inserts can originate from any
// thread (the client may release a handle from whichever goroutine it
// likes), but the Values it holds must still only be mutated on the
// Isolate Manager's owner thread.
type Registry struct {
	mu    sync.RWMutex
	byPtr map[HandlePtr]*Value

	// scopes supports Checkpoint/PushScope/PopScope: a stack of
	// "everything remembered since this point" sets, adapted from the
	// upstream Context.WithTemporaryValues push/pop value scope
	// pattern so a batch of intermediate Values produced while
	// composing an operation can be discarded together instead of
	// leaking until Context teardown.
	scopes [][]HandlePtr
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byPtr: make(map[HandlePtr]*Value)}
}

// Remember inserts v keyed by the address of its embedded ValueHandle
// and returns that address as the client-facing handle.
func (r *Registry) Remember(v *Value) HandlePtr {
	h := v.Handle()
	r.mu.Lock()
	r.byPtr[h] = v
	if n := len(r.scopes); n > 0 {
		r.scopes[n-1] = append(r.scopes[n-1], h)
	}
	r.mu.Unlock()
	return h
}

// PushScope opens a new temporary-value scope and returns its depth,
// which must be passed back to the matching PopScope.
func (r *Registry) PushScope() int {
	r.mu.Lock()
	r.scopes = append(r.scopes, nil)
	depth := len(r.scopes)
	r.mu.Unlock()
	return depth
}

// PopScope closes the scope at depth, forgetting every Value
// Remembered since the matching PushScope. Panics if depth is not the
// currently open scope, mirroring the upstream "scope is not current"
// guard — scopes must nest properly.
func (r *Registry) PopScope(depth int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if depth != len(r.scopes) {
		panic("jsengine: improper PopScope: scope is not current")
	}
	handles := r.scopes[depth-1]
	r.scopes = r.scopes[:depth-1]
	for _, h := range handles {
		delete(r.byPtr, h)
	}
}

// Forget erases the entry for h. Returns silently if h is absent, per
// spec: a repeated or unknown free is not an error at this layer
// (higher layers may choose to report value_exception back to a
// confused client, but the Registry itself stays quiet).
func (r *Registry) Forget(h HandlePtr) {
	r.mu.Lock()
	delete(r.byPtr, h)
	r.mu.Unlock()
}

// Lookup returns the Value for h, or nil if it is not (or no longer)
// registered.
func (r *Registry) Lookup(h HandlePtr) *Value {
	if h == nil {
		return nil
	}
	r.mu.RLock()
	v := r.byPtr[h]
	r.mu.RUnlock()
	return v
}

// Count returns the number of live entries. Backs the value_count
// diagnostic.
func (r *Registry) Count() int {
	r.mu.RLock()
	n := len(r.byPtr)
	r.mu.RUnlock()
	return n
}

// Drain removes and returns every remaining Value. Used only during
// Context teardown, after all owner-thread activity has ceased, so
// that no pending handle release can outlive the isolate.
func (r *Registry) Drain() []*Value {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Value, 0, len(r.byPtr))
	for _, v := range r.byPtr {
		out = append(out, v)
	}
	r.byPtr = make(map[HandlePtr]*Value)
	return out
}
