// Package kthread implements the pinned kernel-thread worker: it owns one
// runqueue and runs the scheduler loop.
package kthread

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tgranlund/mthread/internal/constants"
	"github.com/tgranlund/mthread/internal/interfaces"
	"github.com/tgranlund/mthread/internal/policy"
	"github.com/tgranlund/mthread/internal/runqueue"
	"github.com/tgranlund/mthread/internal/uthread"
)

// ShutdownSignal reports the global "all u-threads drained" condition:
// total-created > 0 and current live == 0. It is computed at the App
// level, across every CPU's runqueue, so each k-thread's loop is handed a
// narrow read-only view rather than the whole App to avoid an import
// cycle.
type ShutdownSignal interface {
	Done() bool
}

// KThread is a pinned kernel-thread worker: CPU id, OS thread id, the
// policy it runs, its own runqueue, and the currently dispatched u-thread
// if any.
type KThread struct {
	CPUID  int
	OSTid  int
	Policy policy.Policy
	RQ     *runqueue.Runqueue

	log interfaces.Logger
	obs interfaces.Observer

	current atomic.Pointer[uthread.UThread]
	done    atomic.Bool
	live    atomic.Bool

	// relayCh delivers the peer-relay wake the tick protocol sends this
	// k-thread when another CPU's master tick fires (Open Question
	// Resolution 2: a channel stands in for the directed SIGUSR1).
	relayCh chan struct{}
}

// New constructs a k-thread for cpu, not yet running.
func New(cpu int, pol policy.Policy, log interfaces.Logger, obs interfaces.Observer) *KThread {
	return &KThread{
		CPUID:   cpu,
		Policy:  pol,
		RQ:      runqueue.New(),
		log:     log,
		obs:     obs,
		relayCh: make(chan struct{}, 1),
	}
}

// MarkLiveForTest marks a k-thread live without running its startup
// sequence, for tests (internal/placement, scenario tests) that need a
// live k-thread but do not want to pin an OS thread.
func (k *KThread) MarkLiveForTest() { k.live.Store(true) }

// Live reports whether this k-thread has completed its startup sequence
// (recorded its OS id, pinned itself, marked itself live) and has
// not yet exited its scheduler loop. internal/placement only targets live
// k-threads.
func (k *KThread) Live() bool { return k.live.Load() && !k.done.Load() }

// Done reports whether this k-thread's scheduler loop has exited and it
// has set its DONE flag.
func (k *KThread) Done() bool { return k.done.Load() }

// RelayCh returns the channel internal/tick sends on to wake this
// k-thread for a peer-relayed reschedule.
func (k *KThread) RelayCh() chan<- struct{} { return k.relayCh }

// Occupancy returns the number of u-threads this k-thread currently
// accounts for: everything resident in its runqueue plus the one
// currently RUNNING, if any.
func (k *KThread) Occupancy() int {
	n := k.RQ.Len()
	if k.current.Load() != nil {
		n++
	}
	return n
}

// Run pins the calling OS thread to cpu and enters the scheduler loop. It
// is meant to be the entire body of a goroutine started with
// runtime.LockOSThread semantics; ready is signaled once this k-thread has
// published itself, mirroring app init's "yield until every k-thread has
// published itself".
func (k *KThread) Run(shutdown ShutdownSignal, ready *sync.WaitGroup) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	k.OSTid = unix.Gettid()

	var mask unix.CPUSet
	mask.Set(k.CPUID)
	if err := unix.SchedSetaffinity(0, &mask); err != nil {
		if k.log != nil {
			k.log.Printf("kthread cpu=%d: SchedSetaffinity failed: %v", k.CPUID, err)
		}
		return err
	}

	k.live.Store(true)
	if ready != nil {
		ready.Done()
	}
	if k.log != nil {
		k.log.Debugf("kthread cpu=%d tid=%d: pinned, entering scheduler loop", k.CPUID, k.OSTid)
	}

	k.loop(shutdown)

	k.done.Store(true)
	return nil
}

// loop is the scheduler loop: spin while the global shutdown condition is
// false, drain a just-finished u-thread's completion (standing in for
// "reached via longjmp from a finished u-thread, continue to next
// iteration"), consume a pending peer relay, and — under the priority
// policy only — eagerly pick when idle so a newly placed u-thread does not
// wait for the next timer tick.
func (k *KThread) loop(shutdown ShutdownSignal) {
	for !shutdown.Done() {
		if cur := k.current.Load(); cur != nil {
			select {
			case <-cur.Done():
				k.clearFinished(cur)
			default:
			}
		}

		select {
		case <-k.relayCh:
			k.Schedule()
		default:
		}

		if k.Policy.EagerPick() && k.current.Load() == nil {
			k.Schedule()
		}

		// Stands in for a busy loop that spins on a pause instruction: a
		// short sleep rather than a tight spin, since Go offers no
		// portable pause hint and a true busy-spin would pin a whole
		// CPU per idle k-thread.
		time.Sleep(constants.ReadyPollInterval)
	}
}

func (k *KThread) clearFinished(cur *uthread.UThread) {
	if !k.current.CompareAndSwap(cur, nil) {
		return
	}
	cur.RecordRun(time.Since(cur.DispatchedAt))
	if k.obs != nil {
		k.obs.ObservePreempt(k.CPUID, cur.GroupID, cur.RunNs.Load())
	}
	uthread.Put(cur)
}

// Schedule implements uthread_schedule(pick): with the runqueue lock
// held, requeue the previously RUNNING u-thread if it has not finished,
// pick the best candidate, and dispatch it; if nothing is runnable this
// CPU goes idle.
func (k *KThread) Schedule() {
	k.RQ.Lock.Lock()
	defer k.RQ.Lock.Unlock()

	if cur := k.current.Load(); cur != nil {
		if cur.State() != uthread.StateDone {
			cur.RecordRun(time.Since(cur.DispatchedAt))
			cur.Preempt()
			k.Policy.OnPreempt(k.RQ, cur, k.obs)
		} else if k.current.CompareAndSwap(cur, nil) {
			cur.RecordRun(time.Since(cur.DispatchedAt))
			if k.obs != nil {
				k.obs.ObservePreempt(k.CPUID, cur.GroupID, cur.RunNs.Load())
			}
			uthread.Put(cur)
		}
	}

	picked := k.Policy.Pick(k.RQ)
	if picked == nil {
		k.current.Store(nil)
		return
	}

	waitNs := time.Since(picked.CreatedAt).Nanoseconds()
	k.current.Store(picked)
	picked.Dispatch(k.CPUID)
	if k.obs != nil {
		k.obs.ObserveDispatch(k.CPUID, picked.GroupID, uint64(waitNs))
	}
}

// Enqueue adds a freshly created u-thread directly to this k-thread's
// active runqueue (used by internal/placement's FindTarget destination).
func (k *KThread) Enqueue(u *uthread.UThread) {
	k.RQ.Lock.Lock()
	defer k.RQ.Lock.Unlock()
	class := runqueue.Under
	if u.Class() == uthread.Over {
		class = runqueue.Over
	}
	k.RQ.Add(class, u)
}
