package idempotency

import (
	"context"
	"errors"
)

// ErrStoreUnavailable wraps backend failures (connection refused, timeouts)
// so callers can distinguish infrastructure trouble from payment errors.
var ErrStoreUnavailable = errors.New("idempotency store unavailable")

// Status represents the result of checking the store for a token.
type Status int

const (
	// StatusClaimed means no prior record existed and the caller now owns
	// the token. The caller must finish with Complete or Fail.
	StatusClaimed Status = iota
	// StatusProcessed means a completed payment already holds this token.
	StatusProcessed
	// StatusInFlight means another request is currently applying a payment
	// with this token.
	StatusInFlight
)

// String returns a human-readable name for logging.
func (s Status) String() string {
	switch s {
	case StatusClaimed:
		return "claimed"
	case StatusProcessed:
		return "processed"
	case StatusInFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}

// Store defines the interface for idempotency token storage.
// Implementations must be safe for concurrent use.
//
// The interface is designed to support both in-memory and distributed
// backends (Redis, database, etc.) for different deployment scenarios.
type Store interface {
	// IsProcessed reports whether a completed payment holds the token.
	// In-flight claims do not count as processed.
	IsProcessed(ctx context.Context, token string) (bool, error)

	// MarkProcessed records the token as processed without the claim
	// protocol. Marking an already-processed token is a no-op.
	MarkProcessed(ctx context.Context, token string) error

	// CheckAndMark atomically checks the store and claims the token if it
	// is unknown.
	//
	// Returns:
	//   - StatusProcessed: a completed payment holds the token, do not apply
	//   - StatusInFlight + done: another request owns the claim, wait on it
	//   - StatusClaimed: this request owns the claim and should proceed
	//
	// The done channel is non-nil only for StatusInFlight and only for
	// backends that can signal in-process; pass it to Wait either way.
	CheckAndMark(ctx context.Context, token string) (Status, <-chan struct{}, error)

	// Wait blocks until the in-flight claim on the token is resolved or the
	// context is cancelled. After a nil return the caller must call
	// CheckAndMark again to learn the outcome: the claim owner may have
	// completed (token now processed) or failed (token free again).
	Wait(ctx context.Context, token string, done <-chan struct{}) error

	// Complete marks the claimed token as processed and releases the claim,
	// waking any waiters.
	Complete(ctx context.Context, token string) error

	// Fail releases the claim without marking the token processed, waking
	// any waiters. The token may be claimed again.
	Fail(ctx context.Context, token string) error
}
