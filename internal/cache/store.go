package cache

import (
	"context"
	"time"
)

// Store is the shared key/value surface behind rate limiting and the
// pending-invite stash. Implementations must be safe for concurrent use.
type Store interface {
	// IncrementWithTTL bumps the counter stored at key, starting a fresh
	// window when the previous one has lapsed. It returns the new count and
	// the time remaining in the current window.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)

	// Set writes value under key. A ttl of zero or less stores the value
	// without an expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get reads the value stored under key. The boolean reports whether a
	// live entry was found; lapsed entries read as absent.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
