package mthread

// This file collects small deterministic workloads and helpers for
// scenario tests: a handful of canned u-thread bodies a test can hand to
// CreateUThread without having to hand-write a Checkpoint loop each time.

// SpinWorkload returns an EntryFunc that checkpoints n times, standing in
// for a CPU-bound u-thread the preemption protocol has something to
// interrupt. It returns early if Checkpoint reports the u-thread should
// stop.
func SpinWorkload(n int) EntryFunc {
	return func(h *Handle) {
		for i := 0; i < n; i++ {
			if !h.Checkpoint() {
				return
			}
		}
	}
}

// ImmediateWorkload returns an EntryFunc that completes without ever
// checkpointing, for scenarios where a u-thread finishes immediately.
func ImmediateWorkload() EntryFunc {
	return func(*Handle) {}
}

// RelayWorkload returns an EntryFunc that checkpoints n times, then sends
// its u-thread id on done, for scenario tests that need to observe when a
// u-thread finished. Like SpinWorkload, it returns early (without
// sending) if Checkpoint reports the u-thread should stop.
func RelayWorkload(n int, done chan<- uint64) EntryFunc {
	return func(h *Handle) {
		for i := 0; i < n; i++ {
			if !h.Checkpoint() {
				return
			}
		}
		done <- h.ID()
	}
}
