// Package spinlock implements a non-sleeping mutual-exclusion lock safe to
// take from code that runs on the same goroutine/thread path as a signal
// handler: every lock in this scheduler is a spinlock because it may be
// taken from that context. sync.Mutex is unsuitable here: its slow path
// parks the goroutine on the runtime's semaphore implementation, which is
// documented as unsafe to rely on from a context that must not block on
// another lock holder that is itself inside a signal handler.
//
// The CAS-loop-over-a-packed-state-word technique is the same one the
// retrieved ilock.Mutex example uses for its IS/IX/S/X accounting, reduced
// here to the simplest two-state (free/held) case.
package spinlock

import (
	"runtime"
	"sync/atomic"
)

const (
	free uint32 = 0
	held uint32 = 1
)

// Spinlock is a test-and-test-and-set spinlock that yields via
// runtime.Gosched after every 64 failed attempts. Zero value is unlocked.
type Spinlock struct {
	state uint32
}

// Lock spins until the lock is acquired.
func (s *Spinlock) Lock() {
	spins := 0
	for {
		if atomic.LoadUint32(&s.state) == free && atomic.CompareAndSwapUint32(&s.state, free, held) {
			return
		}
		spins++
		if spins > 64 {
			runtime.Gosched()
			spins = 0
		}
	}
}

// TryLock attempts to acquire the lock without blocking.
func (s *Spinlock) TryLock() bool {
	return atomic.CompareAndSwapUint32(&s.state, free, held)
}

// Unlock releases the lock. Unlocking a lock not held by the caller is a
// programming error and is left undefined, same as an unsynchronized
// sync.Mutex.Unlock misuse.
func (s *Spinlock) Unlock() {
	atomic.StoreUint32(&s.state, free)
}
