// Package cache provides a small key-value store with expiry and glob
// invalidation, used to memoize derived views such as the tools stats.
// The store is strictly advisory: every caller must stay correct when the
// backing store is unreachable, only losing the performance benefit.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned by write operations when the backing store
// cannot be reached. Get never returns it; an unreachable store reads as
// a miss.
var ErrUnavailable = errors.New("cache: store unavailable")

// Store is the caching contract.
//
// Contract:
//   - Get unmarshals the cached value into dest and reports whether the
//     key was present. A broken or unreachable store is a miss, not an
//     error, so (false, nil) is the common degraded result.
//   - Set serializes value and stores it with the given TTL.
//   - ClearPattern removes every key matching a glob-style pattern, e.g.
//     "tools:*".
//   - Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	ClearPattern(ctx context.Context, pattern string) error
}
