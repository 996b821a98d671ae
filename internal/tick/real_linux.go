//go:build linux

package tick

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// RealSource arms a real interval virtual timer and turns SIGVTALRM
// deliveries into tick channel sends. Go's signal runtime delivers
// SIGVTALRM to an arbitrary M, not to the one specific OS thread that
// happens to be the k-thread holding the timer — this is the one part of
// the protocol where that limitation is unavoidable even on Linux, since
// only Setitimer's arming thread receives ITIMER_VIRTUAL in the kernel
// semantics this models, and os/signal cannot be restricted to a single M.
type RealSource struct {
	sigCh chan os.Signal
	tickC chan struct{}

	closeOnce sync.Once
	doneCh    chan struct{}
}

// NewReal constructs a RealSource. Call Arm to actually start the timer.
func NewReal() *RealSource {
	return &RealSource{
		sigCh:  make(chan os.Signal, 4),
		tickC:  make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
}

func (r *RealSource) Arm(period time.Duration) error {
	signal.Notify(r.sigCh, unix.SIGVTALRM)
	go r.pump()

	it := unix.Itimerval{
		Interval: unix.NsecToTimeval(period.Nanoseconds()),
		Value:    unix.NsecToTimeval(period.Nanoseconds()),
	}
	if err := unix.Setitimer(unix.ITIMER_VIRTUAL, &it, nil); err != nil {
		return fmt.Errorf("tick: Setitimer: %w", err)
	}
	return nil
}

func (r *RealSource) pump() {
	for {
		select {
		case <-r.sigCh:
			select {
			case r.tickC <- struct{}{}:
			default:
			}
		case <-r.doneCh:
			return
		}
	}
}

func (r *RealSource) Ticks() <-chan struct{} { return r.tickC }

func (r *RealSource) Close() error {
	r.closeOnce.Do(func() {
		signal.Stop(r.sigCh)
		var disarm unix.Itimerval
		_ = unix.Setitimer(unix.ITIMER_VIRTUAL, &disarm, nil)
		close(r.doneCh)
	})
	return nil
}

// tgkillRelayEnabled gates the literal directed-signal relay path: off by
// default because targeting a specific OS thread id from Go is racy
// against the runtime's own thread reuse once that tid's goroutine has
// returned LockOSThread, so the channel-based relay in Master.relay is the
// path actually exercised in this repo. Set MTHREAD_TGKILL=1 to exercise
// the literal substrate.
func tgkillRelayEnabled() bool {
	return os.Getenv("MTHREAD_TGKILL") == "1"
}

// tgkillRelay sends SIGUSR1 directly to OS thread tid via tgkill, a
// literal per-thread-directed delivery. Only called when
// tgkillRelayEnabled.
func tgkillRelay(tid int) error {
	return unix.Tgkill(os.Getpid(), tid, unix.SIGUSR1)
}
