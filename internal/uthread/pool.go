package uthread

import "sync"

// Pool recycles *UThread values so uthread_create does not allocate on
// every call once steady state is reached. Grounded on
// internal/queue/pool.go's sync.Pool-backed buffer pool; there is only
// one size class here (a UThread is a fixed-size struct, not a variable-
// length buffer) so the bucketing that pool.go does by byte size collapses
// to a single global pool.
var globalPool = sync.Pool{
	New: func() any { return &UThread{} },
}

// Get returns a *UThread reset to a freshly created state, either newly
// allocated or recycled from a previously finished u-thread.
func Get(id uint64, group int, entry EntryFunc, credits int64) *UThread {
	u := globalPool.Get().(*UThread)
	u.reset(id, group, entry, credits)
	return u
}

// Put returns a finished u-thread's struct to the pool. The caller must
// not touch u again afterward; only call this once u.Done() has fired.
func Put(u *UThread) {
	globalPool.Put(u)
}
