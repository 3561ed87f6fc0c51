package jsengine

import "sync"

// Collector decouples handle destruction from the owner thread while
// still freeing engine-owned state only there. Any thread may call
// Collect; the actual release bodies always run on the Isolate
// Manager's owner thread, batched.
//
// Modeled as an explicit batching collector rather than relying on
// any ambient finalization, because engine-owned objects (persistent
// handles, callback-id registrations, typed-array aliases) must never
// be released from an arbitrary goroutine.
type Collector struct {
	im *Isolate

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []func()
	inFlight bool
}

// NewCollector builds a Collector that drains onto im.
func NewCollector(im *Isolate) *Collector {
	c := &Collector{im: im}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Collect enqueues release to run on the owner thread. Reentrant: may
// be called from inside a task body already running on the owner
// thread, in which case the batch is simply drained on a later pass
// through the owner loop rather than immediately — calling Collect
// never blocks on the owner thread finishing anything.
func (c *Collector) Collect(release func()) {
	c.mu.Lock()
	c.pending = append(c.pending, release)
	startBatch := !c.inFlight
	if startBatch {
		c.inFlight = true
	}
	c.mu.Unlock()

	if startBatch {
		c.im.enqueue(c.drainBatch)
	}
}

// drainBatch runs on the owner thread. It swaps out the pending
// vector, runs every release body, then rechecks: if more arrived
// while it was running, it resubmits itself; otherwise it clears
// inFlight and wakes anyone waiting in Close.
func (c *Collector) drainBatch() {
	c.mu.Lock()
	batch := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, release := range batch {
		release()
	}

	c.mu.Lock()
	if len(c.pending) > 0 {
		c.mu.Unlock()
		c.im.enqueue(c.drainBatch)
		return
	}
	c.inFlight = false
	c.cond.Broadcast()
	c.mu.Unlock()
}

// Close blocks until no batch is in flight. Call during Context
// teardown, after StopJavaScript but before the Isolate itself is
// stopped, so no pending release can outlive the owner thread.
func (c *Collector) Close() {
	c.mu.Lock()
	for c.inFlight {
		c.cond.Wait()
	}
	c.mu.Unlock()
}
