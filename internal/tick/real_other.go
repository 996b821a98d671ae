//go:build !linux

package tick

import (
	"fmt"
	"time"
)

// NewReal is unavailable off Linux: there is no portable ITIMER_VIRTUAL /
// SIGVTALRM equivalent to arm. Callers should fall back to NewStub, or a
// future platform-specific Source, outside this package.
func NewReal() *unsupportedSource { return &unsupportedSource{} }

type unsupportedSource struct{}

func (*unsupportedSource) Arm(time.Duration) error {
	return fmt.Errorf("tick: RealSource not supported on this platform")
}
func (*unsupportedSource) Ticks() <-chan struct{} { return nil }
func (*unsupportedSource) Close() error           { return nil }

func tgkillRelayEnabled() bool        { return false }
func tgkillRelay(tid int) error       { return fmt.Errorf("tick: tgkill not supported on this platform") }
