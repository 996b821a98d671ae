// Package policy implements the two interchangeable schedulers: a
// static-priority picker and a proportional-share credit scheduler with
// UNDER/OVER states and periodic replenishment.
package policy

import (
	"github.com/tgranlund/mthread/internal/constants"
	"github.com/tgranlund/mthread/internal/interfaces"
	"github.com/tgranlund/mthread/internal/runqueue"
	"github.com/tgranlund/mthread/internal/uthread"
)

// Policy is the scheduling strategy a k-thread's loop and signal handlers
// drive. Implementations must be safe to call with
// the runqueue's own lock held by the caller; they do not lock internally.
type Policy interface {
	// Name identifies the policy for logging/metrics.
	Name() string

	// Pick returns the next u-thread to run from rq, or nil if rq is
	// empty. Requires rq.Lock held.
	Pick(rq *runqueue.Runqueue) *uthread.UThread

	// OnPreempt re-inserts the u-thread that was RUNNING at the moment
	// of preemption back into rq, applying whatever bookkeeping the
	// policy requires (credit decrement, reclassification). obs may be
	// nil. Requires rq.Lock held.
	OnPreempt(rq *runqueue.Runqueue, u *uthread.UThread, obs interfaces.Observer)

	// Replenish performs the policy's periodic maintenance pass across
	// every live k-thread's runqueue (a no-op for the priority policy).
	// Called by the master tick handler every ReplenishPeriod ticks;
	// acquires each rq's lock itself since it must cross CPUs. obs may
	// be nil.
	Replenish(rqs []*runqueue.Runqueue, obs interfaces.Observer)

	// EagerPick reports whether a k-thread's scheduler loop should call
	// Pick on every iteration rather than wait for a signal: true under
	// priority, false under credit.
	EagerPick() bool
}

// Priority implements the static-priority policy: pick_best_by_priority,
// all u-threads in UNDER, group id is the priority bias.
type Priority struct{}

func (Priority) Name() string { return "priority" }

func (Priority) Pick(rq *runqueue.Runqueue) *uthread.UThread {
	e := rq.PickBestByPriority()
	if e == nil {
		return nil
	}
	return e.(*uthread.UThread)
}

func (Priority) OnPreempt(rq *runqueue.Runqueue, u *uthread.UThread, obs interfaces.Observer) {
	u.SetClass(uthread.Under)
	rq.Add(runqueue.Under, u)
}

func (Priority) Replenish([]*runqueue.Runqueue, interfaces.Observer) {}

func (Priority) EagerPick() bool { return true }

// Credit implements the proportional-share credit policy.
type Credit struct {
	// TickCost, ReplenishAllotment let tests exercise non-default tuning
	// without touching internal/constants; zero values fall back to the
	// package defaults.
	TickCost           int64
	ReplenishAllotment int64
}

func (Credit) Name() string { return "credit" }

func (c Credit) tickCost() int64 {
	if c.TickCost != 0 {
		return c.TickCost
	}
	return constants.TickCost
}

func (c Credit) replenishAllotment() int64 {
	if c.ReplenishAllotment != 0 {
		return c.ReplenishAllotment
	}
	return constants.ReplenishAllotment
}

// Pick returns the best active UNDER u-thread, else active OVER, else
// swaps active/expired and retries (implemented by
// runqueue.PickBestWithSwap).
func (c Credit) Pick(rq *runqueue.Runqueue) *uthread.UThread {
	e := rq.PickBestWithSwap()
	if e == nil {
		return nil
	}
	return e.(*uthread.UThread)
}

// OnPreempt decrements the outgoing u-thread's credits by the per-tick
// cost (Open Question Resolution 4: decrement happens here, at
// uthread_schedule time, not in the signal handler proper). If credits
// drop to <= 0 it reclassifies OVER and goes to the expired runqueue;
// otherwise it stays UNDER and goes to the tail of the active runqueue.
func (c Credit) OnPreempt(rq *runqueue.Runqueue, u *uthread.UThread, obs interfaces.Observer) {
	remaining := u.AddCredits(-c.tickCost())
	if remaining <= 0 {
		u.SetClass(uthread.Over)
		rq.AddExpired(runqueue.Over, u)
		if obs != nil {
			obs.ObserveCreditTransition(true)
		}
		return
	}
	u.SetClass(uthread.Under)
	rq.Add(runqueue.Under, u)
}

// Replenish gives every OVER u-thread sitting in each rq's expired
// runqueue a fresh credit allotment, reclassifies it UNDER, and moves it
// to that rq's active runqueue. Acquires each rq's lock
// itself.
func (c Credit) Replenish(rqs []*runqueue.Runqueue, obs interfaces.Observer) {
	allotment := c.replenishAllotment()
	for _, rq := range rqs {
		rq.Lock.Lock()
		drained := rq.DrainExpiredOver()
		for _, e := range drained {
			u := e.(*uthread.UThread)
			u.SetCredits(allotment)
			u.SetClass(uthread.Under)
			rq.Add(runqueue.Under, u)
			if obs != nil {
				obs.ObserveCreditTransition(false)
			}
		}
		rq.Lock.Unlock()
	}
}

func (Credit) EagerPick() bool { return false }
