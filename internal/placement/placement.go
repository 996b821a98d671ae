// Package placement implements find_target: choosing which
// k-thread hosts a newly created u-thread.
package placement

import (
	"github.com/tgranlund/mthread/internal/constants"
	"github.com/tgranlund/mthread/internal/kthread"
	"github.com/tgranlund/mthread/internal/spinlock"
)

// Cursor is the per-group "last k-thread that received a u-thread of this
// group" table, part of the shared scheduler info, guarded by its own
// Lock.
type Cursor struct {
	Lock spinlock.Spinlock
	last [constants.MaxGroups]int
}

// NewCursor returns a cursor with every group's last-target initialized
// to -1 so the first placement for any group starts at CPU 0.
func NewCursor() *Cursor {
	c := &Cursor{}
	for i := range c.last {
		c.last[i] = -1
	}
	return c
}

// FindTarget picks the destination k-thread for a new u-thread of group
// g, round-robin over live, biased by the per-group cursor: read
// last[g], advance by one modulo len(live), skip empty/dead
// slots, store back. live is indexed by CPU id; a nil or non-live entry
// at a given CPU id is skipped. Returns nil if no k-thread in live is
// live (a fatal placement error).
func (c *Cursor) FindTarget(group int, live []*kthread.KThread) *kthread.KThread {
	c.Lock.Lock()
	defer c.Lock.Unlock()

	n := len(live)
	if n == 0 {
		return nil
	}

	start := c.last[group]
	for i := 1; i <= n; i++ {
		idx := (start + i) % n
		if idx < 0 {
			idx += n
		}
		k := live[idx]
		if k == nil || !k.Live() {
			continue
		}
		c.last[group] = idx
		return k
	}
	return nil
}
