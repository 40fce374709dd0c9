// Package idempotency provides payment deduplication keyed by
// client-supplied idempotency tokens.
//
// # Overview
//
// This package implements exactly-once semantics for the payment service's
// MakePayment operation. Clients that time out and retry a request resend
// the same idempotency token; the wrapper recognizes the token and suppresses
// the duplicate charge instead of debiting the account a second time.
//
// # Why a Wrapper?
//
// The core payment service is deliberately unprotected so the two behaviors
// can be run side by side: the bare service double-charges on retry, the
// wrapped service does not. Keeping deduplication in a wrapper also lets
// deployments choose the token store that matches their topology.
//
// # Usage
//
// Basic usage with the default in-memory store:
//
//	svc := payonce.NewService(ledger)
//
//	// Wrap with idempotency (opt-in)
//	protected := idempotency.Wrap(svc)
//
// Bounded deduplication window:
//
//	protected := idempotency.Wrap(svc,
//	    idempotency.WithTTL(24 * time.Hour),
//	)
//
// Shared backend (e.g. Redis) for multi-instance deployments:
//
//	store := idempotency.NewRedisStore(redisClient, 0)
//	protected := idempotency.Wrap(svc,
//	    idempotency.WithStore(store),
//	)
//
// # How It Works
//
//  1. On MakePayment, the store atomically checks the token and claims it
//     if unknown
//  2. If processed: return an already-processed response without touching
//     the ledger
//  3. If in-flight: wait for the owning request to resolve, then check again
//  4. Otherwise: apply the payment, then mark the token processed
//
// Failed payments release the claim without marking the token, allowing
// legitimate retries.
package idempotency
