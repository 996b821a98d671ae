// Package mthread is an M:N user-level threading library: many
// lightweight u-threads multiplexed over a pinned k-thread per logical
// CPU, under a preemptive, signal-driven scheduler with two
// interchangeable policies (static priority and proportional-share
// credit).
package mthread

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tgranlund/mthread/internal/constants"
	"github.com/tgranlund/mthread/internal/interfaces"
	"github.com/tgranlund/mthread/internal/kthread"
	"github.com/tgranlund/mthread/internal/placement"
	"github.com/tgranlund/mthread/internal/policy"
	"github.com/tgranlund/mthread/internal/runqueue"
	"github.com/tgranlund/mthread/internal/tick"
	"github.com/tgranlund/mthread/internal/uthread"
)

// Handle is the public face of a running u-thread, handed to its entry
// function. It wraps internal/uthread.UThread so the scheduler's
// execution-unit type never has to be named outside this module.
type Handle struct {
	u *uthread.UThread
}

// Checkpoint is the only suspension point available inside a u-thread's
// entry function: a workload that loops should call this periodically so
// the preemption protocol has somewhere to interrupt it. Returns false if
// the u-thread should stop running.
func (h *Handle) Checkpoint() bool { return h.u.Checkpoint() }

// ID returns the u-thread's unique id.
func (h *Handle) ID() uint64 { return h.u.ID }

// Group returns the u-thread's group id.
func (h *Handle) Group() int { return h.u.GroupID }

// EntryFunc is a u-thread's body.
type EntryFunc func(h *Handle)

// App is the scheduler core: one k-thread per CPU, a shared placement
// cursor, and the tick/relay protocol tying them together.
type App struct {
	opts    *Options
	policy  policy.Policy
	log     interfaces.Logger
	obs     interfaces.Observer
	Metrics *Metrics

	kthreads []*kthread.KThread
	cursor   *placement.Cursor
	master   *tick.Master

	totalCreated atomic.Uint64
	nextID       atomic.Uint64
}

// shutdownView adapts App to internal/kthread.ShutdownSignal: the global
// "total-created > 0 and current live == 0" condition every k-thread's
// loop polls. This condition is evaluated uniformly by every k-thread, not
// just re-entered on CPU0 when Exit is called, because every k-thread here
// runs its scheduler loop in its own goroutine for the app's entire
// lifetime (there is no portable way to "re-enter" a loop on a specific OS
// thread only when Exit is called). A caller that wants the scheduler to
// keep running across gaps in u-thread creation must ensure at least one
// u-thread is always live.
type shutdownView struct{ app *App }

func (s shutdownView) Done() bool {
	if s.app.totalCreated.Load() == 0 {
		return false
	}
	return s.app.currentLive() == 0
}

// New initializes the scheduler core: one k-thread per CPU, installs the
// timer source, and blocks until every k-thread has published itself.
func New(opts *Options) (*App, error) {
	o := opts.withDefaults()

	var pol policy.Policy
	if o.Policy == PolicyCredit {
		pol = policy.Credit{}
	} else {
		pol = policy.Priority{}
	}

	numCPUs := o.NumCPUs
	if numCPUs <= 0 {
		numCPUs = runtime.NumCPU()
	}
	if numCPUs > constants.MaxCores {
		numCPUs = constants.MaxCores
	}
	if numCPUs < 1 {
		numCPUs = 1
	}

	metrics := NewMetrics()
	obs := o.Observer
	if obs == nil {
		obs = metrics
	}

	app := &App{
		opts:    o,
		policy:  pol,
		log:     o.Logger,
		obs:     obs,
		Metrics: metrics,
		cursor:  placement.NewCursor(),
	}

	app.kthreads = make([]*kthread.KThread, numCPUs)
	for i := 0; i < numCPUs; i++ {
		app.kthreads[i] = kthread.New(i, pol, o.Logger, obs)
	}

	var ready sync.WaitGroup
	ready.Add(numCPUs)
	shutdown := shutdownView{app: app}
	for _, k := range app.kthreads {
		k := k
		go func() {
			if err := k.Run(shutdown, &ready); err != nil && app.log != nil {
				app.log.Printf("kthread cpu=%d failed to start: %v", k.CPUID, err)
			}
		}()
	}

	if !waitWithTimeout(&ready, o.ReadyTimeout) {
		return nil, NewError("app_init", ErrCodeNoLiveKThread, "timed out waiting for k-threads to publish")
	}

	src := o.TickSource
	if src == nil {
		src = tick.NewReal()
	}
	if err := src.Arm(o.TickInterval); err != nil {
		return nil, WrapError("app_init", ErrCodeTimerArmFailed, err)
	}

	peers := append([]*kthread.KThread(nil), app.kthreads[1:]...)
	app.master = tick.NewMaster(src, pol, app.kthreads[0], peers, app.allRunqueues, o.ReplenishPeriod, o.Logger, obs)
	app.master.SetInterval(o.TickInterval)
	go app.master.Run()

	if app.log != nil {
		app.log.Printf("app_init: %d k-threads live, policy=%s", numCPUs, o.Policy)
	}
	return app, nil
}

func (app *App) allRunqueues() []*runqueue.Runqueue {
	rqs := make([]*runqueue.Runqueue, len(app.kthreads))
	for i, k := range app.kthreads {
		rqs[i] = k.RQ
	}
	return rqs
}

func (app *App) currentLive() int {
	n := 0
	for _, k := range app.kthreads {
		n += k.Occupancy()
	}
	return n
}

// CreateUThread enqueues a new u-thread and returns its id. group must be
// in [0, MaxGroups); credits is ignored under the priority policy.
// Placement failure (no live k-thread) is a fatal error, returned here
// rather than panicked.
func (app *App) CreateUThread(entry EntryFunc, group int, credits int64) (uint64, error) {
	if group < 0 || group >= constants.MaxGroups {
		return 0, NewGroupError("uthread_create", -1, group, ErrCodeInvalidGroup, "group id out of range")
	}

	target := app.cursor.FindTarget(group, app.kthreads)
	if target == nil {
		return 0, NewGroupError("uthread_create", -1, group, ErrCodeNoLiveKThread, "no live k-thread to host u-thread")
	}

	id := app.nextID.Add(1)
	u := uthread.Get(id, group, func(u *uthread.UThread) { entry(&Handle{u: u}) }, credits)
	u.HomeCPU = target.CPUID
	if app.opts.Policy != PolicyCredit {
		u.SetClass(uthread.Under)
	}

	target.Enqueue(u)
	app.totalCreated.Add(1)
	return id, nil
}

// Exit blocks until every created u-thread has completed, bounded by
// ctx, then tears down the timer source.
func (app *App) Exit(ctx context.Context) error {
	for {
		allDone := true
		for _, k := range app.kthreads {
			if !k.Done() {
				allDone = false
				break
			}
		}
		if allDone {
			break
		}
		select {
		case <-ctx.Done():
			return WrapError("app_exit", ErrCodeShutdown, ctx.Err())
		case <-time.After(constants.ShutdownPollInterval):
		}
	}

	if live := app.currentLive(); live != 0 {
		return NewError("app_exit", ErrCodeShutdown, "k-threads drained with u-threads still resident")
	}

	app.Metrics.Stop()
	return app.master.Stop()
}

// CurrentUThreads returns the live u-thread count across every CPU.
func (app *App) CurrentUThreads() int { return app.currentLive() }

// TotalCreated returns the cumulative number of u-threads created over
// this App's lifetime.
func (app *App) TotalCreated() uint64 { return app.totalCreated.Load() }

func waitWithTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
