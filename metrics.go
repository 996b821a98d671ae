package mthread

import (
	"sync/atomic"
	"time"
)

// WaitLatencyBuckets defines the dispatch-wait latency histogram buckets
// in nanoseconds (time between uthread_create and first Dispatch),
// logarithmically spaced from 10us to 1s.
var WaitLatencyBuckets = []uint64{
	10_000,      // 10us
	100_000,     // 100us
	1_000_000,   // 1ms
	10_000_000,  // 10ms
	100_000_000, // 100ms
	1_000_000_000, // 1s
}

const numWaitBuckets = 6

// Metrics tracks scheduler-level operational statistics: dispatch,
// preemption, replenishment, and tick counts, plus dispatch-wait latency.
type Metrics struct {
	Dispatches    atomic.Uint64
	Preemptions   atomic.Uint64
	Replenishes   atomic.Uint64
	Ticks         atomic.Uint64
	UnderToOver   atomic.Uint64
	OverToUnder   atomic.Uint64

	TotalWaitNs atomic.Uint64
	WaitSamples atomic.Uint64
	WaitBuckets [numWaitBuckets]atomic.Uint64

	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics returns a freshly started Metrics.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

func (m *Metrics) recordWait(waitNs uint64) {
	m.TotalWaitNs.Add(waitNs)
	m.WaitSamples.Add(1)
	for i, bucket := range WaitLatencyBuckets {
		if waitNs <= bucket {
			m.WaitBuckets[i].Add(1)
		}
	}
}

// ObserveDispatch satisfies internal/interfaces.Observer.
func (m *Metrics) ObserveDispatch(cpu int, group int, waitNs uint64) {
	m.Dispatches.Add(1)
	m.recordWait(waitNs)
}

// ObservePreempt satisfies internal/interfaces.Observer.
func (m *Metrics) ObservePreempt(cpu int, group int, runNs uint64) {
	m.Preemptions.Add(1)
}

// ObserveReplenish satisfies internal/interfaces.Observer.
func (m *Metrics) ObserveReplenish(count int) {
	m.Replenishes.Add(uint64(count))
}

// ObserveTick satisfies internal/interfaces.Observer.
func (m *Metrics) ObserveTick(cpu int, isMaster bool) {
	m.Ticks.Add(1)
}

// ObserveCreditTransition satisfies internal/interfaces.Observer.
func (m *Metrics) ObserveCreditTransition(toOver bool) {
	if toOver {
		m.UnderToOver.Add(1)
	} else {
		m.OverToUnder.Add(1)
	}
}

// Stop marks the app as having shut down.
func (m *Metrics) Stop() { m.StopTime.Store(time.Now().UnixNano()) }

// MetricsSnapshot is a point-in-time, non-atomic copy of Metrics for
// reporting.
type MetricsSnapshot struct {
	Dispatches  uint64
	Preemptions uint64
	Replenishes uint64
	Ticks       uint64
	UnderToOver uint64
	OverToUnder uint64

	AvgWaitNs        uint64
	WaitHistogram    [numWaitBuckets]uint64
	UptimeNs         uint64
	DispatchesPerSec float64
}

// Snapshot takes a point-in-time copy of the metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Dispatches:  m.Dispatches.Load(),
		Preemptions: m.Preemptions.Load(),
		Replenishes: m.Replenishes.Load(),
		Ticks:       m.Ticks.Load(),
		UnderToOver: m.UnderToOver.Load(),
		OverToUnder: m.OverToUnder.Load(),
	}

	if samples := m.WaitSamples.Load(); samples > 0 {
		snap.AvgWaitNs = m.TotalWaitNs.Load() / samples
	}
	for i := range m.WaitBuckets {
		snap.WaitHistogram[i] = m.WaitBuckets[i].Load()
	}

	start := m.StartTime.Load()
	stop := m.StopTime.Load()
	if stop > 0 {
		snap.UptimeNs = uint64(stop - start)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - start)
	}
	if snap.UptimeNs > 0 {
		snap.DispatchesPerSec = float64(snap.Dispatches) / (float64(snap.UptimeNs) / 1e9)
	}
	return snap
}
