package mthread

import (
	"time"

	"github.com/tgranlund/mthread/internal/constants"
	"github.com/tgranlund/mthread/internal/interfaces"
	"github.com/tgranlund/mthread/internal/tick"
)

// PolicyKind selects one of the two interchangeable schedulers this
// package offers.
type PolicyKind int

const (
	PolicyPriority PolicyKind = iota
	PolicyCredit
)

func (k PolicyKind) String() string {
	if k == PolicyCredit {
		return "credit"
	}
	return "priority"
}

// Options configures a new App: the init parameters plus the ambient
// tuning knobs. Start from DefaultOptions; New fills a zero TickInterval
// or ReadyTimeout with its default, while a zero ReplenishPeriod disables
// replenishment.
type Options struct {
	Policy PolicyKind

	// NumCPUs bounds how many k-threads are spawned; 0 means
	// runtime.NumCPU(), capped at internal/constants.MaxCores.
	NumCPUs int

	TickInterval time.Duration

	// ReplenishPeriod is the number of master ticks between credit
	// replenishment passes; 0 or less disables replenishment.
	// DefaultOptions sets it to internal/constants.ReplenishPeriod.
	ReplenishPeriod int

	Logger   interfaces.Logger
	Observer interfaces.Observer

	ReadyTimeout time.Duration

	// TickSource overrides the default RealSource timer, for tests that
	// need deterministic, manually-fired ticks (internal/tick.NewStub).
	TickSource tick.Source
}

// DefaultOptions returns the conventional configuration: priority
// policy, one k-thread per host CPU, and the tick/replenish constants
// from internal/constants.
func DefaultOptions() *Options {
	return &Options{
		Policy:          PolicyPriority,
		TickInterval:    constants.TickInterval,
		ReplenishPeriod: constants.ReplenishPeriod,
		ReadyTimeout:    constants.ReadyTimeout,
	}
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		return DefaultOptions()
	}
	cp := *o
	if cp.TickInterval <= 0 {
		cp.TickInterval = constants.TickInterval
	}
	if cp.ReadyTimeout <= 0 {
		cp.ReadyTimeout = constants.ReadyTimeout
	}
	return &cp
}
