package runqueue

import "testing"

type testEntry struct {
	id    int
	group int
}

func (e *testEntry) Group() int { return e.group }

func TestAddRemoveFIFOWithinBucket(t *testing.T) {
	rq := New()
	a := &testEntry{id: 1, group: 0}
	b := &testEntry{id: 2, group: 0}
	rq.Add(Under, a)
	rq.Add(Under, b)

	got := rq.PickBestByPriority()
	if got != Entry(a) {
		t.Fatalf("expected a picked first (FIFO), got %v", got)
	}
	got = rq.PickBestByPriority()
	if got != Entry(b) {
		t.Fatalf("expected b picked second (FIFO), got %v", got)
	}
	if rq.PickBestByPriority() != nil {
		t.Fatal("expected empty runqueue after draining both entries")
	}
}

func TestBitmapSetIffNonEmpty(t *testing.T) {
	rq := New()
	if rq.ActiveBitmapForTest(Under) != 0 {
		t.Fatal("bitmap should start clear")
	}
	e := &testEntry{id: 1, group: 5}
	rq.Add(Under, e)
	if rq.ActiveBitmapForTest(Under)&(1<<5) == 0 {
		t.Fatal("bitmap bit for group 5 should be set after add")
	}
	rq.PickBestByPriority()
	if rq.ActiveBitmapForTest(Under) != 0 {
		t.Fatal("bitmap bit should clear once the bucket empties")
	}
}

func TestGroupIDAscendingTieBreak(t *testing.T) {
	rq := New()
	g3 := &testEntry{id: 1, group: 3}
	g0 := &testEntry{id: 2, group: 0}
	g1 := &testEntry{id: 3, group: 1}
	rq.Add(Under, g3)
	rq.Add(Under, g0)
	rq.Add(Under, g1)

	order := []Entry{rq.PickBestByPriority(), rq.PickBestByPriority(), rq.PickBestByPriority()}
	want := []Entry{g0, g1, g3}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("pick order[%d] = %v, want %v (lowest group id first)", i, order[i], want[i])
		}
	}
}

func TestUnderBeforeOver(t *testing.T) {
	rq := New()
	over := &testEntry{id: 1, group: 0}
	under := &testEntry{id: 2, group: 1}
	rq.Add(Over, over)
	rq.Add(Under, under)

	if rq.PickBestByPriority() != Entry(under) {
		t.Fatal("expected UNDER class scanned before OVER")
	}
	if rq.PickBestByPriority() != Entry(over) {
		t.Fatal("expected OVER entry still pickable after UNDER drains")
	}
}

func TestSwapActiveExpired(t *testing.T) {
	rq := New()
	e := &testEntry{id: 1, group: 0}
	rq.AddExpired(Under, e)

	if rq.PickBestByPriority() != nil {
		t.Fatal("active array should be empty before swap")
	}
	if rq.PickBestWithSwap() != Entry(e) {
		t.Fatal("expected PickBestWithSwap to swap in the expired entry")
	}
}

func TestLenTracksResidentEntries(t *testing.T) {
	rq := New()
	if rq.Len() != 0 {
		t.Fatal("new runqueue should be empty")
	}
	rq.Add(Under, &testEntry{id: 1, group: 0})
	rq.Add(Over, &testEntry{id: 2, group: 1})
	if rq.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rq.Len())
	}
	rq.PickBestByPriority()
	if rq.Len() != 1 {
		t.Fatalf("Len() = %d after one pick, want 1", rq.Len())
	}
}
