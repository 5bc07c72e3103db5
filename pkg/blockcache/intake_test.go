package blockcache

import (
	"sync"
	"testing"
	"time"
)

func Test_BlockIntake_Drains_In_Arrival_Order(t *testing.T) {
	t.Parallel()

	var q blockIntake

	blocks := []*Block{newBlock(1), newBlock(2), newBlock(3)}
	for _, bl := range blocks {
		q.push(bl)
	}

	got := q.drain()
	if len(got) != 3 {
		t.Fatalf("drained %d blocks, want 3", len(got))
	}

	for i, bl := range blocks {
		if got[i] != bl {
			t.Fatalf("position %d holds bnr %d, want %d", i, got[i].bnr, bl.bnr)
		}

		if bl.submitNext != nil {
			t.Fatal("drain must reset intake links")
		}
	}

	if q.drain() != nil {
		t.Fatal("second drain of an empty intake must return nil")
	}
}

func Test_BlockIntake_Concurrent_Pushers_All_Arrive(t *testing.T) {
	t.Parallel()

	var q blockIntake

	const pushers = 8
	const each = 100

	var wg sync.WaitGroup

	wg.Add(pushers)
	for p := 0; p < pushers; p++ {
		go func(p int) {
			defer wg.Done()

			for i := 0; i < each; i++ {
				q.push(newBlock(uint64(p*each + i)))
			}
		}(p)
	}

	wg.Wait()

	seen := make(map[uint64]bool)
	for _, bl := range q.drain() {
		if seen[bl.bnr] {
			t.Fatalf("bnr %d drained twice", bl.bnr)
		}

		seen[bl.bnr] = true
	}

	if len(seen) != pushers*each {
		t.Fatalf("drained %d blocks, want %d", len(seen), pushers*each)
	}
}

func Test_WaitQueue_Wake_Releases_All_Waiters(t *testing.T) {
	t.Parallel()

	var (
		q    waitQueue
		mu   sync.Mutex
		cond bool
	)

	check := func() bool {
		mu.Lock()
		defer mu.Unlock()

		return cond
	}

	const waiters = 4

	done := make(chan struct{}, waiters)

	for i := 0; i < waiters; i++ {
		go func() {
			q.waitFor(check)
			done <- struct{}{}
		}()
	}

	select {
	case <-done:
		t.Fatal("waiter returned before the condition held")
	case <-time.After(20 * time.Millisecond):
	}

	mu.Lock()
	cond = true
	mu.Unlock()
	q.wake()

	deadline := time.After(5 * time.Second)
	for i := 0; i < waiters; i++ {
		select {
		case <-done:
		case <-deadline:
			t.Fatal("waiter did not wake")
		}
	}
}

func Test_WaitQueue_Condition_Checked_Before_Parking(t *testing.T) {
	t.Parallel()

	var q waitQueue

	// Nobody will ever wake; an already-true condition must return
	// immediately.
	finished := make(chan struct{})

	go func() {
		q.waitFor(func() bool { return true })
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("waitFor parked despite a true condition")
	}
}
