package uthread

import (
	"testing"
	"time"
)

func TestLifecycleRunsToCompletion(t *testing.T) {
	ran := false
	u := New(1, 0, func(u *UThread) { ran = true }, 0)
	if u.State() != StateInit {
		t.Fatalf("new u-thread state = %v, want INIT", u.State())
	}

	u.Dispatch(0)

	select {
	case <-u.Done():
	case <-time.After(time.Second):
		t.Fatal("u-thread never reported done")
	}

	if !ran {
		t.Fatal("entry function never ran")
	}
	if u.State() != StateDone {
		t.Fatalf("state after entry return = %v, want DONE", u.State())
	}
}

func TestCheckpointParksUntilRedispatch(t *testing.T) {
	reachedCheckpoint := make(chan struct{})
	resumedPastCheckpoint := make(chan struct{})
	preempted := make(chan struct{})

	u := New(2, 0, func(u *UThread) {
		close(reachedCheckpoint)
		// Call Checkpoint only once the preemption has been requested.
		<-preempted
		u.Checkpoint()
		close(resumedPastCheckpoint)
	}, 0)

	u.Dispatch(0)
	<-reachedCheckpoint

	u.Preempt()
	close(preempted)

	select {
	case <-resumedPastCheckpoint:
		t.Fatal("entry progressed past Checkpoint before redispatch")
	case <-time.After(50 * time.Millisecond):
	}

	if u.State() != StateRunnable {
		t.Fatalf("state after preempt = %v, want RUNNABLE", u.State())
	}

	u.Dispatch(1)

	select {
	case <-resumedPastCheckpoint:
	case <-time.After(time.Second):
		t.Fatal("entry never resumed past Checkpoint after redispatch")
	}
	<-u.Done()
	if u.LastCPU != 1 {
		t.Fatalf("LastCPU = %d, want 1", u.LastCPU)
	}
}

func TestClassFollowsInitialCredits(t *testing.T) {
	over := New(3, 0, func(*UThread) {}, 0)
	if over.Class() != Over {
		t.Fatalf("zero-credit u-thread class = %v, want OVER", over.Class())
	}
	under := New(4, 0, func(*UThread) {}, 100)
	if under.Class() != Under {
		t.Fatalf("positive-credit u-thread class = %v, want UNDER", under.Class())
	}
}

func TestPoolResetClearsState(t *testing.T) {
	u := Get(5, 2, func(*UThread) {}, 50)
	u.Dispatch(0)
	<-u.Done()
	Put(u)

	u2 := Get(6, 3, func(*UThread) {}, 0)
	if u2.State() != StateInit {
		t.Fatalf("recycled u-thread state = %v, want INIT", u2.State())
	}
	if u2.ID != 6 || u2.GroupID != 3 {
		t.Fatalf("recycled u-thread fields not reset: id=%d group=%d", u2.ID, u2.GroupID)
	}
}
