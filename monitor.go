package jsengine

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// PressureLevel mirrors the engine's memory-pressure hinting API.
type PressureLevel int

const (
	PressureNone PressureLevel = iota
	PressureModerate
)

// Monitor enforces process-policy memory limits on one Isolate. Two
// independent samplers feed it: the owner-thread boundary hook (the
// nearest analog a pure-Go engine has to the original design's GC
// epilogue callback, which read V8's used_heap_size on every garbage
// collection) catches pressure between short tasks, and a background
// ticker samples on a wall-clock cadence so a single long-running
// script — one task body that never returns control to the owner
// loop — still gets its hard limit enforced instead of running the
// process out of memory before the boundary hook ever fires.
type Monitor struct {
	im *Isolate

	soft atomic.Uint64
	hard atomic.Uint64

	softReached atomic.Bool
	hardReached atomic.Bool

	sampleInterval time.Duration
	stopSampler    chan struct{}
	samplerDone    chan struct{}
	closeOnce      sync.Once

	log zerolog.Logger
}

// NewMonitor builds a Monitor that can terminate work running on im
// and starts its background sampler. interval bounds how often the
// sampler wakes; <= 0 selects a conservative default.
func NewMonitor(im *Isolate, log zerolog.Logger, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	m := &Monitor{
		im:             im,
		log:            log,
		sampleInterval: interval,
		stopSampler:    make(chan struct{}),
		samplerDone:    make(chan struct{}),
	}
	im.setBoundaryHook(m.checkpoint)
	go m.sampleLoop()
	return m
}

// sampleLoop runs on its own goroutine, independent of the owner
// thread's task cadence, so a hard-limit breach is caught even while
// the owner thread is stuck running a single non-returning task body.
// checkpoint's only owner-thread action (TerminateRunning) is
// documented safe to call from any goroutine, which is what makes
// sampling off the owner thread sound.
func (m *Monitor) sampleLoop() {
	defer close(m.samplerDone)
	ticker := time.NewTicker(m.sampleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopSampler:
			return
		case <-ticker.C:
			m.checkpoint()
		}
	}
}

// Close stops the background sampler. Safe to call more than once;
// must be called during Context teardown so the goroutine doesn't
// outlive its Isolate.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.stopSampler)
		<-m.samplerDone
	})
}

// SetSoftLimit sets the soft byte threshold. 0 disables it.
func (m *Monitor) SetSoftLimit(bytes uint64) { m.soft.Store(bytes) }

// SetHardLimit sets the hard byte threshold. 0 disables it.
func (m *Monitor) SetHardLimit(bytes uint64) { m.hard.Store(bytes) }

// IsSoftReached reports the last-observed soft-limit state.
func (m *Monitor) IsSoftReached() bool { return m.softReached.Load() }

// IsHardReached reports the last-observed hard-limit state.
func (m *Monitor) IsHardReached() bool { return m.hardReached.Load() }

// ApplyLowMemoryNotification forwards a low-memory hint to the
// runtime. goja has no isolate-level equivalent of V8's
// LowMemoryNotification, so this is realized as an immediate GC plus
// a request to return freed pages to the OS — the closest stdlib
// analog to "hint the engine to reclaim memory now".
func (m *Monitor) ApplyLowMemoryNotification() {
	runtime.GC()
	debug.FreeOSMemory()
}

// checkpoint judges accumulated heap pressure against the configured
// thresholds and terminates the running script on a hard breach. It is
// invoked from two places: the Isolate's owner loop, as a boundary
// hook run after every task body (playing the role of a GC epilogue
// callback), and sampleLoop's ticker, independent of task boundaries.
func (m *Monitor) checkpoint() {
	soft := m.soft.Load()
	hard := m.hard.Load()
	if soft == 0 && hard == 0 {
		return
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	used := stats.HeapAlloc

	if soft > 0 && used > soft {
		if !m.softReached.Swap(true) {
			m.log.Warn().Uint64("used", used).Uint64("soft_limit", soft).Msg("jsengine: soft memory limit reached")
		}
	} else {
		m.softReached.Store(false)
	}

	if hard > 0 && used > hard {
		if !m.hardReached.Swap(true) {
			m.log.Error().Uint64("used", used).Uint64("hard_limit", hard).Msg("jsengine: hard memory limit reached, terminating")
		}
		m.im.TerminateRunning()
	} else {
		m.hardReached.Store(false)
	}
}
