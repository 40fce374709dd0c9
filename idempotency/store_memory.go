package idempotency

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore provides an in-memory implementation of Store.
//
// This implementation is suitable for single-instance deployments where
// token state doesn't need to be shared across processes. For distributed
// deployments (load-balanced clusters, etc.), use RedisStore or implement
// Store with another shared backend.
//
// Features:
//   - Thread-safe with mutex protection
//   - Optional TTL for processed tokens (zero keeps them forever)
//   - In-flight claim tracking with wait channels
//   - Lazy cleanup of expired entries
type InMemoryStore struct {
	mu        sync.Mutex
	processed map[string]time.Time
	inFlight  map[string]chan struct{}
	ttl       time.Duration
	now       func() time.Time
}

// NewInMemoryStore creates a new in-memory token store.
//
// The TTL bounds how long processed tokens are remembered. A zero TTL keeps
// them for the lifetime of the process, which matches the deduplication
// window clients expect from a payment service; set a positive TTL only when
// memory growth is a concern and tokens are known to be short-lived.
func NewInMemoryStore(ttl time.Duration) *InMemoryStore {
	return &InMemoryStore{
		processed: make(map[string]time.Time),
		inFlight:  make(map[string]chan struct{}),
		ttl:       ttl,
		now:       time.Now,
	}
}

// IsProcessed reports whether a completed payment holds the token.
func (s *InMemoryStore) IsProcessed(ctx context.Context, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	markedAt, ok := s.processed[token]
	if !ok {
		return false, nil
	}
	if s.expiredLocked(markedAt) {
		delete(s.processed, token)
		return false, nil
	}
	return true, nil
}

// MarkProcessed records the token as processed. Safe to call repeatedly.
func (s *InMemoryStore) MarkProcessed(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed[token] = s.now()
	return nil
}

// CheckAndMark atomically checks the store and claims the token if it is unknown.
//
// Returns:
//   - StatusProcessed if a completed payment holds the token
//   - StatusInFlight + wait channel if another request owns the claim
//   - StatusClaimed if this request now owns the claim
func (s *InMemoryStore) CheckAndMark(ctx context.Context, token string) (Status, <-chan struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Check for a completed payment first
	if markedAt, ok := s.processed[token]; ok {
		if !s.expiredLocked(markedAt) {
			return StatusProcessed, nil, nil
		}
		// Expired - clean it up
		delete(s.processed, token)
	}

	// Check for an in-flight claim
	if done, ok := s.inFlight[token]; ok {
		return StatusInFlight, done, nil
	}

	// Claim the token
	s.inFlight[token] = make(chan struct{})
	return StatusClaimed, nil, nil
}

// Wait blocks until the claim owner resolves the token or the context is
// cancelled. The outcome is learned by calling CheckAndMark again.
func (s *InMemoryStore) Wait(ctx context.Context, token string, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Complete marks the claimed token as processed, releases the claim,
// and wakes any waiting goroutines.
func (s *InMemoryStore) Complete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.processed[token] = s.now()

	if done, ok := s.inFlight[token]; ok {
		delete(s.inFlight, token)
		close(done)
	}

	// Lazy cleanup of expired entries
	s.cleanupExpiredLocked()
	return nil
}

// Fail releases the claim without marking the token processed,
// waking waiters so they can claim it themselves.
func (s *InMemoryStore) Fail(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if done, ok := s.inFlight[token]; ok {
		delete(s.inFlight, token)
		close(done)
	}
	return nil
}

// expiredLocked reports whether a processed marker is past its TTL.
// A zero TTL never expires. Must be called with the lock held.
func (s *InMemoryStore) expiredLocked(markedAt time.Time) bool {
	return s.ttl > 0 && s.now().Sub(markedAt) >= s.ttl
}

// cleanupExpiredLocked removes expired entries. Must be called with the lock held.
func (s *InMemoryStore) cleanupExpiredLocked() {
	if s.ttl <= 0 {
		return
	}
	for token, markedAt := range s.processed {
		if s.expiredLocked(markedAt) {
			delete(s.processed, token)
		}
	}
}

// Ensure InMemoryStore implements Store
var _ Store = (*InMemoryStore)(nil)
