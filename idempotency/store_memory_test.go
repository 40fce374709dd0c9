package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestInMemoryStore_CheckAndMark_Processed(t *testing.T) {
	store := NewInMemoryStore(0)
	ctx := context.Background()
	token := "token-1"

	// First call should claim the token
	status, done, err := store.CheckAndMark(ctx, token)
	if err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if status != StatusClaimed {
		t.Errorf("Expected StatusClaimed, got %v", status)
	}
	if done != nil {
		t.Error("Expected nil done channel for a fresh claim")
	}

	// Complete the payment
	if err := store.Complete(ctx, token); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	// Second call should see the processed token
	status, _, err = store.CheckAndMark(ctx, token)
	if err != nil {
		t.Fatalf("CheckAndMark: %v", err)
	}
	if status != StatusProcessed {
		t.Errorf("Expected StatusProcessed, got %v", status)
	}
}

func TestInMemoryStore_CheckAndMark_InFlight(t *testing.T) {
	store := NewInMemoryStore(0)
	ctx := context.Background()
	token := "inflight-test"

	status1, _, _ := store.CheckAndMark(ctx, token)
	if status1 != StatusClaimed {
		t.Errorf("Expected StatusClaimed, got %v", status1)
	}

	// Later calls should see the claim
	status2, done2, _ := store.CheckAndMark(ctx, token)
	if status2 != StatusInFlight {
		t.Errorf("Expected StatusInFlight, got %v", status2)
	}
	if done2 == nil {
		t.Error("Expected a wait channel for an in-flight token")
	}

	status3, done3, _ := store.CheckAndMark(ctx, token)
	if status3 != StatusInFlight {
		t.Errorf("Expected StatusInFlight, got %v", status3)
	}
	if done2 != done3 {
		t.Error("Expected the same wait channel for the same in-flight token")
	}
}

func TestInMemoryStore_Fail_AllowsRetry(t *testing.T) {
	store := NewInMemoryStore(0)
	ctx := context.Background()
	token := "fail-test"

	status, _, _ := store.CheckAndMark(ctx, token)
	if status != StatusClaimed {
		t.Fatalf("Expected StatusClaimed, got %v", status)
	}

	if err := store.Fail(ctx, token); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	// The token should be claimable again, not processed
	status, _, _ = store.CheckAndMark(ctx, token)
	if status != StatusClaimed {
		t.Errorf("Expected StatusClaimed after fail (retry allowed), got %v", status)
	}
}

func TestInMemoryStore_IsProcessed(t *testing.T) {
	store := NewInMemoryStore(0)
	ctx := context.Background()

	processed, err := store.IsProcessed(ctx, "unknown")
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if processed {
		t.Error("Unknown token reported processed")
	}

	// An in-flight claim does not count as processed
	store.CheckAndMark(ctx, "claimed")
	if processed, _ := store.IsProcessed(ctx, "claimed"); processed {
		t.Error("In-flight token reported processed")
	}

	if err := store.MarkProcessed(ctx, "done"); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	if processed, _ := store.IsProcessed(ctx, "done"); !processed {
		t.Error("Marked token not reported processed")
	}

	// Marking again is a no-op
	if err := store.MarkProcessed(ctx, "done"); err != nil {
		t.Fatalf("MarkProcessed (second): %v", err)
	}
	if processed, _ := store.IsProcessed(ctx, "done"); !processed {
		t.Error("Token lost after repeated MarkProcessed")
	}
}

func TestInMemoryStore_TTLExpiry(t *testing.T) {
	store := NewInMemoryStore(time.Minute)
	now := time.Now()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	token := "expiry-test"

	store.CheckAndMark(ctx, token)
	store.Complete(ctx, token)

	// Inside the window the token stays processed
	now = now.Add(30 * time.Second)
	if processed, _ := store.IsProcessed(ctx, token); !processed {
		t.Error("Token expired before its TTL")
	}

	// Past the window it is forgotten and claimable again
	now = now.Add(31 * time.Second)
	if processed, _ := store.IsProcessed(ctx, token); processed {
		t.Error("Token still processed after TTL")
	}
	status, _, _ := store.CheckAndMark(ctx, token)
	if status != StatusClaimed {
		t.Errorf("Expected StatusClaimed after expiry, got %v", status)
	}
}

func TestInMemoryStore_ZeroTTLKeepsForever(t *testing.T) {
	store := NewInMemoryStore(0)
	now := time.Now()
	store.now = func() time.Time { return now }

	ctx := context.Background()
	token := "forever-test"

	store.MarkProcessed(ctx, token)

	now = now.Add(1000 * time.Hour)
	if processed, _ := store.IsProcessed(ctx, token); !processed {
		t.Error("Zero-TTL token expired")
	}
}

func TestInMemoryStore_Wait_Resolved(t *testing.T) {
	store := NewInMemoryStore(0)
	ctx := context.Background()
	token := "wait-test"

	// First request claims the token
	store.CheckAndMark(ctx, token)
	_, done, _ := store.CheckAndMark(ctx, token)

	var wg sync.WaitGroup
	var waitErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		waitErr = store.Wait(ctx, token, done)
	}()

	// Give the waiter time to start
	time.Sleep(10 * time.Millisecond)

	store.Complete(ctx, token)
	wg.Wait()

	if waitErr != nil {
		t.Errorf("Expected no error, got %v", waitErr)
	}

	// After waking, a re-check sees the processed token
	status, _, _ := store.CheckAndMark(ctx, token)
	if status != StatusProcessed {
		t.Errorf("Expected StatusProcessed after wait, got %v", status)
	}
}

func TestInMemoryStore_Wait_ContextCancelled(t *testing.T) {
	store := NewInMemoryStore(0)
	token := "cancel-test"

	store.CheckAndMark(context.Background(), token)
	_, done, _ := store.CheckAndMark(context.Background(), token)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var waitErr error

	wg.Add(1)
	go func() {
		defer wg.Done()
		waitErr = store.Wait(ctx, token, done)
	}()

	// Give the waiter time to start
	time.Sleep(10 * time.Millisecond)

	cancel()
	wg.Wait()

	if waitErr != context.Canceled {
		t.Errorf("Expected context.Canceled, got %v", waitErr)
	}

	// Clean up the claim
	store.Fail(context.Background(), token)
}

func TestInMemoryStore_ConcurrentWaiters(t *testing.T) {
	store := NewInMemoryStore(0)
	ctx := context.Background()
	token := "concurrent-test"

	status, _, _ := store.CheckAndMark(ctx, token)
	if status != StatusClaimed {
		t.Fatalf("Expected StatusClaimed, got %v", status)
	}

	var wg sync.WaitGroup
	statuses := make([]Status, 3)
	errs := make([]error, 3)

	// Start 3 goroutines that wait for the claim to resolve
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			st, done, err := store.CheckAndMark(ctx, token)
			if err != nil || st != StatusInFlight {
				statuses[idx], errs[idx] = st, err
				return
			}
			if err := store.Wait(ctx, token, done); err != nil {
				errs[idx] = err
				return
			}
			statuses[idx], _, errs[idx] = store.CheckAndMark(ctx, token)
		}(i)
	}

	// Give waiters time to start
	time.Sleep(10 * time.Millisecond)

	store.Complete(ctx, token)
	wg.Wait()

	// All should observe the processed token
	for i := 0; i < 3; i++ {
		if errs[i] != nil {
			t.Errorf("Goroutine %d got error: %v", i, errs[i])
			continue
		}
		if statuses[i] != StatusProcessed {
			t.Errorf("Goroutine %d got status %v, want StatusProcessed", i, statuses[i])
		}
	}
}

func TestInMemoryStore_AtomicCheckAndMark(t *testing.T) {
	store := NewInMemoryStore(0)
	ctx := context.Background()
	token := "atomic-test"

	var wg sync.WaitGroup
	claimedCount := 0
	inFlightCount := 0
	var mu sync.Mutex

	// Launch 10 goroutines simultaneously
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, _, _ := store.CheckAndMark(ctx, token)
			mu.Lock()
			if status == StatusClaimed {
				claimedCount++
			} else if status == StatusInFlight {
				inFlightCount++
			}
			mu.Unlock()
		}()
	}

	wg.Wait()

	// Exactly one should own the claim
	if claimedCount != 1 {
		t.Errorf("Expected exactly 1 claim, got %d", claimedCount)
	}

	// Rest should have seen it in-flight
	if inFlightCount != 9 {
		t.Errorf("Expected 9 InFlight, got %d", inFlightCount)
	}
}
