package tick

import (
	"testing"
	"time"

	"github.com/tgranlund/mthread/internal/policy"
	"github.com/tgranlund/mthread/internal/runqueue"
	"github.com/tgranlund/mthread/internal/uthread"

	"github.com/tgranlund/mthread/internal/kthread"
)

func TestMasterRelaysToPeersOnEachTick(t *testing.T) {
	src := NewStub()
	_ = src.Arm(10 * time.Millisecond)

	self := kthread.New(0, policy.Priority{}, nil, nil)
	self.MarkLiveForTest()
	peer := kthread.New(1, policy.Priority{}, nil, nil)
	peer.MarkLiveForTest()

	m := NewMaster(src, policy.Priority{}, self, []*kthread.KThread{peer}, nil, 0, nil, nil)
	go m.Run()
	defer m.Stop()

	src.Fire()

	select {
	case <-peer.RelayCh():
	case <-time.After(time.Second):
		t.Fatal("peer never received relay after master tick")
	}
}

func TestMasterReplenishesEveryPeriod(t *testing.T) {
	src := NewStub()
	_ = src.Arm(10 * time.Millisecond)

	self := kthread.New(0, policy.Credit{TickCost: 10, ReplenishAllotment: 100}, nil, nil)
	self.MarkLiveForTest()

	u := uthread.New(1, 0, nil, 10)
	self.RQ.Lock.Lock()
	self.RQ.AddExpired(runqueue.Over, u)
	self.RQ.Lock.Unlock()
	u.SetClass(uthread.Over)

	allRQs := func() []*runqueue.Runqueue { return []*runqueue.Runqueue{self.RQ} }

	m := NewMaster(src, policy.Credit{TickCost: 10, ReplenishAllotment: 100}, self, nil, allRQs, 2, nil, nil)
	go m.Run()
	defer m.Stop()

	src.Fire()
	// Fire drops a tick while the previous one is still pending, so wait
	// for the master to take the first before firing the second.
	for len(src.Ticks()) > 0 {
		time.Sleep(time.Millisecond)
	}
	src.Fire()

	deadline := time.After(time.Second)
	for {
		if u.Class() == uthread.Under && u.Credits() == 100 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("u-thread was never replenished after two ticks")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestMasterWatchdogForcesScheduleWhenSourceStalls(t *testing.T) {
	src := NewStub()
	_ = src.Arm(10 * time.Millisecond)

	self := kthread.New(0, policy.Priority{}, nil, nil)
	self.MarkLiveForTest()
	peer := kthread.New(1, policy.Priority{}, nil, nil)
	peer.MarkLiveForTest()

	m := NewMaster(src, policy.Priority{}, self, []*kthread.KThread{peer}, nil, 0, nil, nil)
	m.SetInterval(2 * time.Millisecond)
	go m.Run()
	defer m.Stop()

	// No call to src.Fire(): the watchdog alone must relay to peer within
	// a few multiples of the (tiny) configured interval.
	select {
	case <-peer.RelayCh():
	case <-time.After(time.Second):
		t.Fatal("watchdog never forced a relay after the source stalled")
	}
}

func TestStubSourceNoOpBeforeArm(t *testing.T) {
	src := NewStub()
	src.Fire()
	select {
	case <-src.Ticks():
		t.Fatal("expected no tick before Arm")
	case <-time.After(20 * time.Millisecond):
	}
}
