package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix    = "payonce:idempotency:v1:"
	redisPendingValue = "__pending__"
	redisDoneValue    = "processed"

	defaultClaimTTL     = 30 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

// RedisStore implements Store on top of Redis, for deployments where the
// deduplication window must be shared across processes.
//
// Claims are taken with SETNX using a short claim TTL so that a crashed
// process cannot leave a token locked forever. Completion overwrites the
// claim with a processed marker carrying the configured token TTL.
//
// Redis cannot deliver in-process wake-ups, so Wait polls the key.
type RedisStore struct {
	client       *redis.Client
	ttl          time.Duration
	claimTTL     time.Duration
	pollInterval time.Duration
}

// NewRedisStore creates a Redis-backed token store.
//
// The TTL bounds how long processed tokens are remembered; zero keeps them
// until Redis itself evicts them.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client:       client,
		ttl:          ttl,
		claimTTL:     defaultClaimTTL,
		pollInterval: defaultPollInterval,
	}
}

func redisKey(token string) string {
	return redisKeyPrefix + token
}

func redisErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, err)
}

// IsProcessed reports whether a completed payment holds the token.
// A pending claim does not count as processed.
func (s *RedisStore) IsProcessed(ctx context.Context, token string) (bool, error) {
	val, err := s.client.Get(ctx, redisKey(token)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, redisErr("get", err)
	}
	return val == redisDoneValue, nil
}

// MarkProcessed records the token as processed. Safe to call repeatedly.
func (s *RedisStore) MarkProcessed(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, redisKey(token), redisDoneValue, s.ttl).Err(); err != nil {
		return redisErr("set", err)
	}
	return nil
}

// CheckAndMark atomically checks the store and claims the token if it is unknown.
// The returned channel is always nil; Wait polls instead.
func (s *RedisStore) CheckAndMark(ctx context.Context, token string) (Status, <-chan struct{}, error) {
	key := redisKey(token)

	claimed, err := s.client.SetNX(ctx, key, redisPendingValue, s.claimTTL).Result()
	if err != nil {
		return StatusClaimed, nil, redisErr("setnx", err)
	}
	if claimed {
		return StatusClaimed, nil, nil
	}

	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		// The holder released the claim between our SETNX and GET.
		// Report in-flight; the caller will wait briefly and re-check.
		return StatusInFlight, nil, nil
	}
	if err != nil {
		return StatusClaimed, nil, redisErr("get", err)
	}
	if val == redisPendingValue {
		return StatusInFlight, nil, nil
	}
	return StatusProcessed, nil, nil
}

// Wait polls the token until the pending claim is resolved or the context
// is cancelled. The done channel is ignored.
func (s *RedisStore) Wait(ctx context.Context, token string, done <-chan struct{}) error {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		val, err := s.client.Get(ctx, redisKey(token)).Result()
		if err == redis.Nil {
			// Claim released without completing; the token is free again.
			return nil
		}
		if err != nil {
			return redisErr("get", err)
		}
		if val != redisPendingValue {
			return nil
		}
	}
}

// Complete overwrites the claim with a processed marker carrying the token TTL.
func (s *RedisStore) Complete(ctx context.Context, token string) error {
	if err := s.client.Set(ctx, redisKey(token), redisDoneValue, s.ttl).Err(); err != nil {
		return redisErr("set", err)
	}
	return nil
}

// Fail deletes the claim so the token can be retried.
func (s *RedisStore) Fail(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, redisKey(token)).Err(); err != nil {
		return redisErr("del", err)
	}
	return nil
}

// Ensure RedisStore implements Store
var _ Store = (*RedisStore)(nil)
