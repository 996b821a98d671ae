// Package runqueue implements the per-k-thread container of runnable
// u-threads: a pair of priority arrays (active, expired), each split into
// the UNDER/OVER priority classes, each class an array of per-group FIFO
// sequences plus a group-occupancy bitmap.
package runqueue

import (
	"fmt"

	"github.com/tgranlund/mthread/internal/assert"
	"github.com/tgranlund/mthread/internal/constants"
	"github.com/tgranlund/mthread/internal/spinlock"
)

// Class is a priority class. UNDER has credits remaining (or is the only
// class used by the priority policy); OVER is credit-depleted.
type Class int

const (
	Under Class = iota
	Over
	numClasses
)

// Entry is the runqueue's view of a u-thread: anything with a stable group
// id that can sit in a FIFO bucket. internal/uthread.UThread implements
// this; kept as an interface here (rather than importing internal/uthread)
// so runqueue has no dependency on the u-thread execution machinery, only
// its placement key.
type Entry interface {
	Group() int
}

// bucket is a single (class, group) FIFO sequence. Entries only ever
// leave from the head (popHead: the one the k-thread is about to
// dispatch, or a replenishment drain), so a plain slice with a head index
// is simplest.
type bucket struct {
	items []Entry
	head  int
}

func (b *bucket) empty() bool { return b.head >= len(b.items) }

func (b *bucket) pushTail(e Entry) {
	if b.head > 0 && b.head == len(b.items) {
		b.items = b.items[:0]
		b.head = 0
	}
	b.items = append(b.items, e)
}

func (b *bucket) popHead() Entry {
	if b.empty() {
		return nil
	}
	e := b.items[b.head]
	b.items[b.head] = nil
	b.head++
	return e
}

// priorityArray is one of {active, expired}: numClasses classes, each
// MaxGroups FIFO buckets plus a bitmap of which buckets are non-empty.
type priorityArray struct {
	buckets [numClasses][constants.MaxGroups]bucket
	bitmap  [numClasses]uint64
}

func (pa *priorityArray) add(class Class, e Entry) {
	g := e.Group()
	pa.buckets[class][g].pushTail(e)
	pa.bitmap[class] |= 1 << uint(g)
	assert.Invariant(!pa.buckets[class][g].empty(), fmt.Sprintf("add: bucket class=%d group=%d empty after push", class, g))
	assert.Invariant(pa.bitmap[class]&(1<<uint(g)) != 0, fmt.Sprintf("add: bitmap bit class=%d group=%d not set after push", class, g))
}

// lowestSetGroup returns the lowest-index non-empty group for class, or -1.
func (pa *priorityArray) lowestSetGroup(class Class) int {
	word := pa.bitmap[class]
	if word == 0 {
		return -1
	}
	return trailingZeros64(word)
}

func (pa *priorityArray) popBest(class Class) Entry {
	g := pa.lowestSetGroup(class)
	if g < 0 {
		return nil
	}
	b := &pa.buckets[class][g]
	assert.Invariant(!b.empty(), fmt.Sprintf("popBest: bitmap bit class=%d group=%d set but bucket empty", class, g))
	e := b.popHead()
	if b.empty() {
		pa.bitmap[class] &^= 1 << uint(g)
	}
	assert.Invariant(b.empty() == (pa.bitmap[class]&(1<<uint(g)) == 0), fmt.Sprintf("popBest: bitmap/bucket mismatch class=%d group=%d", class, g))
	return e
}

func (pa *priorityArray) empty() bool {
	return pa.bitmap[Under] == 0 && pa.bitmap[Over] == 0
}

func trailingZeros64(x uint64) int {
	n := 0
	for x&1 == 0 {
		x >>= 1
		n++
	}
	return n
}

// Runqueue is a per-k-thread container of runnable u-threads, guarded by a
// single spinlock: one spinlock per runqueue, never one per bucket or one
// shared across CPUs.
type Runqueue struct {
	Lock    spinlock.Spinlock
	active  priorityArray
	expired priorityArray
	size    int
}

// New returns an empty runqueue.
func New() *Runqueue {
	return &Runqueue{}
}

// Add inserts e at the tail of the (class, group) sequence in the active
// array. Requires the runqueue lock held by the caller.
func (rq *Runqueue) Add(class Class, e Entry) {
	rq.active.add(class, e)
	rq.size++
}

// AddExpired is Add but targets the expired array; used by the credit
// policy when a u-thread transitions UNDER->OVER on preemption, re-inserting
// it into the expired runqueue.
func (rq *Runqueue) AddExpired(class Class, e Entry) {
	rq.expired.add(class, e)
	rq.size++
}

// PickBestByPriority scans UNDER first, then OVER, in the active array;
// within a class the lowest-index non-empty group wins and its head u-thread
// is returned. Returns nil if active is empty. Requires the lock held.
func (rq *Runqueue) PickBestByPriority() Entry {
	if e := rq.active.popBest(Under); e != nil {
		rq.size--
		return e
	}
	if e := rq.active.popBest(Over); e != nil {
		rq.size--
		return e
	}
	return nil
}

// PickBestWithSwap implements the credit policy's full pick contract: best
// from active; if active is empty and expired is not, swap and retry;
// otherwise nil. Requires the lock held.
func (rq *Runqueue) PickBestWithSwap() Entry {
	if e := rq.PickBestByPriority(); e != nil {
		return e
	}
	if rq.active.empty() && !rq.expired.empty() {
		rq.SwapActiveExpired()
		return rq.PickBestByPriority()
	}
	return nil
}

// SwapActiveExpired atomically exchanges the active and expired priority
// arrays. Requires the lock held.
func (rq *Runqueue) SwapActiveExpired() {
	rq.active, rq.expired = rq.expired, rq.active
}

// Len returns the number of u-threads currently resident in this runqueue
// (active + expired), used by shutdown and invariant bookkeeping.
func (rq *Runqueue) Len() int {
	return rq.size
}

// DrainExpiredOver removes every entry currently sitting in the expired
// array's OVER class, across all groups, and returns them in group-
// ascending order. Used by the credit policy's replenishment pass: the
// caller reclassifies each entry UNDER and re-adds it to the active array.
// Requires the lock held.
func (rq *Runqueue) DrainExpiredOver() []Entry {
	var out []Entry
	for g := 0; g < constants.MaxGroups; g++ {
		b := &rq.expired.buckets[Over][g]
		for !b.empty() {
			out = append(out, b.popHead())
		}
		assert.Invariant(b.empty(), fmt.Sprintf("DrainExpiredOver: bucket group=%d not drained", g))
	}
	rq.expired.bitmap[Over] = 0
	rq.size -= len(out)
	return out
}

// ActiveBitmapForTest and ExpiredBitmapForTest expose the occupancy
// bitmaps for invariant property tests; not part of the scheduling API.
func (rq *Runqueue) ActiveBitmapForTest(class Class) uint64  { return rq.active.bitmap[class] }
func (rq *Runqueue) ExpiredBitmapForTest(class Class) uint64 { return rq.expired.bitmap[class] }
