package spinlock

import (
	"sync"
	"testing"
)

func TestSpinlockMutualExclusion(t *testing.T) {
	var lk Spinlock
	var counter int
	var wg sync.WaitGroup

	const goroutines = 50
	const iterations = 200

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				lk.Lock()
				counter++
				lk.Unlock()
			}
		}()
	}
	wg.Wait()

	if counter != goroutines*iterations {
		t.Fatalf("counter = %d, want %d (lost updates under contention)", counter, goroutines*iterations)
	}
}

func TestSpinlockTryLock(t *testing.T) {
	var lk Spinlock
	if !lk.TryLock() {
		t.Fatal("TryLock on free lock should succeed")
	}
	if lk.TryLock() {
		t.Fatal("TryLock on held lock should fail")
	}
	lk.Unlock()
	if !lk.TryLock() {
		t.Fatal("TryLock after Unlock should succeed")
	}
}
