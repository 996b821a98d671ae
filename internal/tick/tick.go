// Package tick implements the signal-driven preemption protocol: a timer
// fires on one CPU (the master), whose handler runs replenishment (credit
// policy only), relays a reschedule to every peer k-thread, then schedules
// itself.
package tick

import (
	"sync/atomic"
	"time"

	"github.com/tgranlund/mthread/internal/interfaces"
	"github.com/tgranlund/mthread/internal/kthread"
	"github.com/tgranlund/mthread/internal/policy"
	"github.com/tgranlund/mthread/internal/runqueue"
)

// watchdogMultiplier and fallbackWatchdogInterval bound the stall
// watchdog: if every k-thread goes idle simultaneously and the master tick
// happens to be masked or lost, progress would otherwise depend entirely on
// the next timer fire. A periodic check against a recorded last-seen
// timestamp, not a signal of its own.
const (
	watchdogMultiplier       = 5
	fallbackWatchdogInterval = time.Second
)

// Source is the external-facility interface this package plays the
// "kernel facility" role around: something that can be armed with a
// period and that delivers a tick per firing.
type Source interface {
	// Arm starts the interval timer at the given period.
	Arm(period time.Duration) error

	// Ticks returns the channel one value is sent on per timer firing.
	Ticks() <-chan struct{}

	// Close stops the timer and releases any OS resources.
	Close() error
}

// Master drives the preemption protocol on top of a Source: every tick it
// (optionally) replenishes credit across every live k-thread's runqueue,
// relays a wake to every peer, then runs its own Schedule.
type Master struct {
	Source          Source
	Policy          policy.Policy
	Self            *kthread.KThread
	Peers           []*kthread.KThread
	AllRunqueues    func() []*runqueue.Runqueue
	ReplenishPeriod int

	obs interfaces.Observer
	log interfaces.Logger

	interval time.Duration
	lastTick atomic.Int64

	tickCount int64
	stopCh    chan struct{}
}

// SetInterval records the configured tick period, used only to size the
// stall watchdog's check cadence. Optional; a Master that never has this
// called falls back to a fixed watchdog cadence.
func (m *Master) SetInterval(d time.Duration) { m.interval = d }

func (m *Master) watchdogInterval() time.Duration {
	if m.interval <= 0 {
		return fallbackWatchdogInterval
	}
	return m.interval * watchdogMultiplier
}

// NewMaster constructs a Master. ReplenishPeriod <= 0 disables periodic
// replenishment (meaningless for the priority policy anyway, since its
// Replenish is a no-op).
func NewMaster(src Source, pol policy.Policy, self *kthread.KThread, peers []*kthread.KThread, allRunqueues func() []*runqueue.Runqueue, replenishPeriod int, log interfaces.Logger, obs interfaces.Observer) *Master {
	return &Master{
		Source:          src,
		Policy:          pol,
		Self:            self,
		Peers:           peers,
		AllRunqueues:    allRunqueues,
		ReplenishPeriod: replenishPeriod,
		log:             log,
		obs:             obs,
		stopCh:          make(chan struct{}),
	}
}

// Run consumes ticks from Source until Stop is called. Meant to be run in
// its own goroutine; this goroutine plays the role of the SIGVTALRM
// handler, except it is never literally interrupting another thread's
// instruction stream.
func (m *Master) Run() {
	ticks := m.Source.Ticks()
	m.lastTick.Store(time.Now().UnixNano())

	watchdog := time.NewTicker(m.watchdogInterval())
	defer watchdog.Stop()

	for {
		select {
		case <-ticks:
			m.lastTick.Store(time.Now().UnixNano())
			m.onTick()
		case <-watchdog.C:
			m.checkStall()
		case <-m.stopCh:
			return
		}
	}
}

// checkStall forces a tick if none has landed within watchdogInterval,
// self-healing a masked or lost timer signal: under the credit policy (no
// eager idle pick), that would otherwise stall every k-thread indefinitely.
func (m *Master) checkStall() {
	last := time.Unix(0, m.lastTick.Load())
	if time.Since(last) < m.watchdogInterval() {
		return
	}
	if m.log != nil {
		m.log.Printf("tick watchdog: no tick observed in %s on master cpu=%d, forcing schedule", time.Since(last), m.Self.CPUID)
	}
	m.lastTick.Store(time.Now().UnixNano())
	m.onTick()
}

func (m *Master) onTick() {
	m.tickCount++
	if m.log != nil {
		m.log.Debugf("tick %d on master cpu=%d", m.tickCount, m.Self.CPUID)
	}
	if m.obs != nil {
		m.obs.ObserveTick(m.Self.CPUID, true)
	}

	if m.ReplenishPeriod > 0 && m.tickCount%int64(m.ReplenishPeriod) == 0 && m.AllRunqueues != nil {
		m.Policy.Replenish(m.AllRunqueues(), m.obs)
		if m.obs != nil {
			m.obs.ObserveReplenish(len(m.AllRunqueues()))
		}
	}

	for _, p := range m.Peers {
		relay(p)
	}

	m.Self.Schedule()
}

// relay wakes peer's scheduler loop, reinterpreting a directed SIGUSR1 as
// a channel send. A full buffer means peer already has a pending wake it
// has not consumed yet, which is fine: one relay is enough to cause one
// Schedule call, and peer's own loop additionally polls relayCh every
// iteration.
func relay(p *kthread.KThread) {
	if !p.Live() {
		return
	}
	if tgkillRelayEnabled() && p.OSTid != 0 {
		// Best-effort literal substrate kept for parity with a directed
		// signal; the channel send below is the path this repo relies on
		// for correctness.
		_ = tgkillRelay(p.OSTid)
	}
	select {
	case p.RelayCh() <- struct{}{}:
	default:
	}
}

// Stop halts the tick consumer loop and closes the underlying Source.
func (m *Master) Stop() error {
	close(m.stopCh)
	return m.Source.Close()
}
