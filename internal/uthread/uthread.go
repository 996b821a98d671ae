// Package uthread implements the u-thread execution unit and its context
// switch: a u-thread is a goroutine that is cooperatively parked and
// resumed by its owning k-thread through a rendezvous channel, standing in
// for the save/restore of raw register state and the stack-swap a native
// implementation would need. The suspend/resume rendezvous itself is
// grounded on the blockChan technique in the retrieved toysched example.
package uthread

import (
	"sync/atomic"
	"time"
)

// State is a u-thread's position in its lifecycle.
type State int32

const (
	StateInit State = iota
	StateRunnable
	StateRunning
	StateDone
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunnable:
		return "RUNNABLE"
	case StateRunning:
		return "RUNNING"
	case StateDone:
		return "DONE"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Class is the credit-state priority class. Defined
// again here (rather than imported from internal/runqueue) to keep
// uthread free of a dependency on the runqueue package; internal/policy
// and internal/runqueue both know how to translate between the two.
type Class int32

const (
	Under Class = iota
	Over
)

// EntryFunc is a u-thread's body. It receives the UThread so it can poll
// Checkpoint at voluntary-looking points inside a long-running loop; the
// core itself offers no voluntary yield, but a spin workload
// has to give the preemption substrate somewhere to observe state without
// literally halting mid-instruction (see Checkpoint).
type EntryFunc func(u *UThread)

// UThread is the execution unit multiplexed over a k-thread.
type UThread struct {
	ID      uint64
	GroupID int
	Entry   EntryFunc

	state   atomic.Int32
	class   atomic.Int32
	credits atomic.Int64

	// preempt is set by the owning k-thread's scheduler when this
	// u-thread is being switched out; Checkpoint observes it and parks.
	preempt atomic.Bool

	HomeCPU int
	LastCPU int

	CreatedAt    time.Time
	DispatchedAt time.Time
	RunNs        atomic.Int64

	resumeCh chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
}

// Group satisfies internal/runqueue.Entry.
func (u *UThread) Group() int { return u.GroupID }

// New constructs a u-thread in state INIT, matching uthread_create's
// pre-enqueue allocation. credits is ignored by the priority
// policy and meaningful only under the credit policy.
func New(id uint64, group int, entry EntryFunc, credits int64) *UThread {
	u := &UThread{
		ID:        id,
		GroupID:   group,
		Entry:     entry,
		CreatedAt: time.Now(),
		resumeCh:  make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
	}
	u.state.Store(int32(StateInit))
	cls := Under
	if credits <= 0 {
		cls = Over
	}
	u.class.Store(int32(cls))
	u.credits.Store(credits)
	return u
}

// reset restores a pooled UThread to a freshly-created state so it can be
// reused for a new uthread_create call without a fresh allocation
// (grounded on internal/queue/pool.go's GetBuffer/PutBuffer pooling; see
// Get/Put in pool.go).
func (u *UThread) reset(id uint64, group int, entry EntryFunc, credits int64) {
	u.ID = id
	u.GroupID = group
	u.Entry = entry
	u.CreatedAt = time.Now()
	u.DispatchedAt = time.Time{}
	u.HomeCPU = 0
	u.LastCPU = 0
	u.RunNs.Store(0)
	u.preempt.Store(false)
	u.started.Store(false)
	u.state.Store(int32(StateInit))
	cls := Under
	if credits <= 0 {
		cls = Over
	}
	u.class.Store(int32(cls))
	u.credits.Store(credits)
	// Drain any stale signal left from a previous life; doneCh is
	// replaced rather than drained since it is closed on finish. A
	// UThread fresh from the pool's New has no resumeCh yet.
	if u.resumeCh == nil {
		u.resumeCh = make(chan struct{}, 1)
	}
	select {
	case <-u.resumeCh:
	default:
	}
	u.doneCh = make(chan struct{})
}

// State returns the current lifecycle state.
func (u *UThread) State() State { return State(u.state.Load()) }

// Class returns the current priority class.
func (u *UThread) Class() Class { return Class(u.class.Load()) }

// SetClass reclassifies the u-thread (credit policy UNDER/OVER transition).
func (u *UThread) SetClass(c Class) { u.class.Store(int32(c)) }

// Credits returns the current credit balance (meaningless under the
// priority policy).
func (u *UThread) Credits() int64 { return u.credits.Load() }

// AddCredits adjusts the credit balance by delta (may be negative) and
// returns the new balance; used by internal/policy for the per-tick
// decrement.
func (u *UThread) AddCredits(delta int64) int64 { return u.credits.Add(delta) }

// SetCredits sets the credit balance to an absolute value; used by
// internal/policy's replenishment pass, which gives a reclassified
// u-thread a fresh default credit allotment.
func (u *UThread) SetCredits(v int64) { u.credits.Store(v) }

func (u *UThread) setState(s State) { u.state.Store(int32(s)) }

// start launches the u-thread's goroutine the first time it is dispatched.
// The goroutine blocks immediately on resumeCh (the trampoline's first
// act, matching how a redispatched u-thread resumes at a small
// trampoline rather than the top of its entry function), runs
// Entry once released, then marks DONE and unwinds — there is no second
// call into Entry; re-dispatch after a preemption resumes inside Entry at
// its last Checkpoint, not at the top.
func (u *UThread) start() {
	if !u.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		<-u.resumeCh
		if u.Entry != nil {
			u.Entry(u)
		}
		u.setState(StateDone)
		close(u.doneCh)
	}()
}

// Dispatch marks the u-thread RUNNING and context-switches into it: on
// first dispatch this starts its goroutine; on redispatch after a
// preemption it simply clears the preempt flag and releases the
// goroutine from whatever Checkpoint call parked it. Dispatch does not
// block: if a resume signal is already pending, no second one is queued.
// The caller (the k-thread scheduler loop) learns the u-thread has
// finished via Done.
func (u *UThread) Dispatch(cpu int) {
	u.LastCPU = cpu
	u.DispatchedAt = time.Now()
	u.setState(StateRunning)
	u.preempt.Store(false)
	u.start()
	select {
	case u.resumeCh <- struct{}{}:
	default:
	}
}

// Preempt requests that the u-thread give up the CPU at its next
// Checkpoint. It does not itself block; the caller still needs to wait
// for acknowledgement (via Done, or by re-picking once the goroutine has
// parked) exactly the way a preempting signal handler re-inserts the
// previously RUNNING u-thread into the runqueue without waiting for it to
// literally stop (the goroutine may still be mid-Checkpoint for a moment;
// it is not re-dispatched again until Dispatch is called, so this is
// safe).
func (u *UThread) Preempt() {
	if u.State() == StateRunning {
		u.setState(StateRunnable)
	}
	u.preempt.Store(true)
}

// Checkpoint is the only suspension point inside a u-thread's entry
// function: a u-thread is suspended only by the preemption protocol, never
// by an external cancellation signal. A spin workload calls this periodically; it is a cheap
// atomic load on the fast path and only blocks when a preemption has been
// requested. Returns false if the u-thread has been cancelled and should
// return immediately.
func (u *UThread) Checkpoint() bool {
	if u.preempt.Load() {
		<-u.resumeCh
	}
	return u.State() != StateCancelled
}

// Done returns a channel closed once the u-thread's entry function has
// returned and it has transitioned to DONE.
func (u *UThread) Done() <-chan struct{} { return u.doneCh }

// RecordRun adds d to the wall-clock time this u-thread has spent
// RUNNING. Called by internal/kthread at every preemption and at DONE, so
// RunNs accumulates across every quantum this u-thread was dispatched for;
// read by Observer.ObservePreempt and by the credit-ratio scenario test.
func (u *UThread) RecordRun(d time.Duration) { u.RunNs.Add(d.Nanoseconds()) }
