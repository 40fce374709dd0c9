package payonce

import (
	"sync"
	"testing"
	"time"
)

func TestPacer_AlternatesByParity(t *testing.T) {
	var slept []time.Duration
	p := NewPacer(5*time.Second, WithSleepFunc(func(d time.Duration) {
		slept = append(slept, d)
	}))

	// Even-indexed invocations sleep, starting with the first.
	waits := make([]time.Duration, 0, 4)
	for i := 0; i < 4; i++ {
		waits = append(waits, p.Pace())
	}

	expected := []time.Duration{5 * time.Second, 0, 5 * time.Second, 0}
	for i, want := range expected {
		if waits[i] != want {
			t.Errorf("Invocation %d: expected wait %v, got %v", i, want, waits[i])
		}
	}
	if len(slept) != 2 {
		t.Errorf("Expected 2 sleeps, got %d", len(slept))
	}
	if p.Calls() != 4 {
		t.Errorf("Expected 4 recorded calls, got %d", p.Calls())
	}
}

func TestPacer_ZeroDelayNeverSleeps(t *testing.T) {
	p := NewPacer(0, WithSleepFunc(func(time.Duration) {
		t.Error("Pacer with zero delay must not sleep")
	}))

	for i := 0; i < 3; i++ {
		if waited := p.Pace(); waited != 0 {
			t.Errorf("Expected zero wait, got %v", waited)
		}
	}
}

func TestPacer_ConcurrentCountsEveryInvocation(t *testing.T) {
	var mu sync.Mutex
	sleeps := 0
	p := NewPacer(time.Millisecond, WithSleepFunc(func(time.Duration) {
		mu.Lock()
		sleeps++
		mu.Unlock()
	}))

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Pace()
		}()
	}
	wg.Wait()

	if p.Calls() != 100 {
		t.Errorf("Expected 100 calls, got %d", p.Calls())
	}
	// Counter slots are claimed atomically, so exactly half are even.
	if sleeps != 50 {
		t.Errorf("Expected 50 sleeps, got %d", sleeps)
	}
}
