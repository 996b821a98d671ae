// Package constants holds the tuning knobs for the scheduler core: the
// per-tick credit decrement, the replenishment period, and the default
// credit allotment are all configurable constants here rather than baked
// into the policy logic.
package constants

import "time"

// Topology limits: compile-time constants sized to the host.
const (
	// MaxKThreads bounds the number of k-thread contexts. Nothing in this
	// module reads it; New caps the k-thread count at MaxCores.
	MaxKThreads = 256

	// MaxCores bounds the find_target round-robin cursor's modulus.
	MaxCores = 256

	// MaxGroups bounds uthread_create's group_id parameter.
	MaxGroups = 64
)

// Credit policy constants.
const (
	// DefaultCredit100, DefaultCredit75, DefaultCredit50, DefaultCredit25
	// are the credit allotments uthread_create accepts under the credit
	// policy; any positive value is accepted, these are just the
	// conventional tiers (the demo command uses the same four values).
	DefaultCredit100 = 100
	DefaultCredit75  = 75
	DefaultCredit50  = 50
	DefaultCredit25  = 25

	// TickCost is how many credits a preemption removes from the u-thread
	// that was RUNNING when the tick landed.
	TickCost = 10

	// ReplenishPeriod is how many master ticks elapse between credit
	// replenishment passes.
	ReplenishPeriod = 10

	// ReplenishAllotment is the credit balance an OVER u-thread is given
	// when replenishment moves it back to UNDER.
	ReplenishAllotment = DefaultCredit100
)

// Timer/signal protocol constants.
const (
	// TickInterval is the period of the interval virtual timer armed on
	// the master k-thread.
	TickInterval = 10 * time.Millisecond

	// ReadyPollInterval is how long a k-thread's scheduler loop sleeps
	// between iterations. App init does not poll: it waits on a
	// sync.WaitGroup that every k-thread signals once live.
	ReadyPollInterval = 100 * time.Microsecond

	// ReadyTimeout bounds how long app init waits for k-thread readiness
	// before treating it as a fatal init error.
	ReadyTimeout = 5 * time.Second

	// ShutdownPollInterval is how often app_exit polls current_uthreads
	// and the per-k-thread DONE flags while draining.
	ShutdownPollInterval = 200 * time.Microsecond
)
