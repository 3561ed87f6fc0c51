package jsengine

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the prometheus collectors a Context's lifetime
// exercises: heap pressure (from the Memory Monitor) and task
// throughput (from the Task Manager). Scoped down from the teacher's
// process-wide metrics registry to what this runtime itself produces;
// an embedding process registers Collectors() with its own registry
// rather than owning a package-global one, since a process may run
// more than one Context.
type Metrics struct {
	heapUsedBytes  prometheus.Gauge
	heapLimitBytes prometheus.Gauge
	softReached    prometheus.Gauge
	hardReached    prometheus.Gauge

	tasksScheduled *prometheus.CounterVec
	tasksInFlight  prometheus.Gauge
	valuesLive     prometheus.Gauge
}

// NewMetrics builds a Metrics set under namespace (e.g. "jsengine").
// Call Collectors and register the result with whatever
// *prometheus.Registry the embedding process uses.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		heapUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heap_used_bytes",
			Help:      "Last-sampled Go heap bytes in use by the owner isolate.",
		}),
		heapLimitBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heap_hard_limit_bytes",
			Help:      "Configured hard heap limit in bytes, 0 if disabled.",
		}),
		softReached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heap_soft_limit_reached",
			Help:      "1 if the soft heap limit is currently exceeded, else 0.",
		}),
		hardReached: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heap_hard_limit_reached",
			Help:      "1 if the hard heap limit is currently exceeded, else 0.",
		}),
		tasksScheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_scheduled_total",
			Help:      "Total tasks reaching a terminal state, by outcome.",
		}, []string{"outcome"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Tasks currently scheduled but not yet terminal.",
		}),
		valuesLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "values_live",
			Help:      "Number of Values currently held by the Registry.",
		}),
	}
}

// Collectors returns every collector for registration with a
// *prometheus.Registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.heapUsedBytes, m.heapLimitBytes, m.softReached, m.hardReached,
		m.tasksScheduled, m.tasksInFlight, m.valuesLive,
	}
}

// ObserveHeap records the Monitor's current view of heap pressure.
func (m *Metrics) ObserveHeap(mon *Monitor, stats HeapStatistics) {
	m.heapUsedBytes.Set(float64(stats.UsedHeapSize))
	m.heapLimitBytes.Set(float64(mon.hard.Load()))
	m.softReached.Set(boolToFloat(mon.IsSoftReached()))
	m.hardReached.Set(boolToFloat(mon.IsHardReached()))
}

// RecordTaskCompleted increments the "completed" outcome counter.
func (m *Metrics) RecordTaskCompleted() { m.tasksScheduled.WithLabelValues("completed").Inc() }

// RecordTaskCanceled increments the "canceled" outcome counter.
func (m *Metrics) RecordTaskCanceled() { m.tasksScheduled.WithLabelValues("canceled").Inc() }

// SetTasksInFlight publishes the current in-flight task count.
func (m *Metrics) SetTasksInFlight(n int) { m.tasksInFlight.Set(float64(n)) }

// SetValuesLive publishes the current Registry size.
func (m *Metrics) SetValuesLive(n int) { m.valuesLive.Set(float64(n)) }

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
