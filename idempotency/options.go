package idempotency

import (
	"time"

	"github.com/sirupsen/logrus"
)

// config holds the configuration for an idempotent Service.
type config struct {
	ttl   time.Duration
	store Store
	log   *logrus.Logger
}

// Option configures an idempotent Service.
type Option func(*config)

// WithTTL bounds how long processed tokens are remembered.
//
// Only applies when using the default InMemoryStore. If WithStore is also
// specified, this option is ignored (configure TTL on your custom store
// instead).
//
// Default: zero, meaning tokens are kept for the lifetime of the store.
func WithTTL(ttl time.Duration) Option {
	return func(c *config) {
		c.ttl = ttl
	}
}

// WithStore sets a custom Store implementation.
//
// Use this for distributed backends like Redis. When specified, WithTTL is
// ignored (configure TTL on your store).
//
// Example:
//
//	store := idempotency.NewRedisStore(redisClient, 0)
//	protected := idempotency.Wrap(svc,
//	    idempotency.WithStore(store),
//	)
func WithStore(store Store) Option {
	return func(c *config) {
		c.store = store
	}
}

// WithLogger sets the structured logger. The default discards everything.
func WithLogger(log *logrus.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}
