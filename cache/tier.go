package cache

import "context"

// Tier is a single cache storage level. The layer composes a mandatory
// memory tier with an optional distributed tier behind this interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Atomicity: Set replaces the whole entry; readers never observe a
//   partially written entry.
// - Expiry: Get must not return expired entries.
type Tier interface {
	// Get retrieves an entry. Returns (zero, false, nil) on miss.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set stores an entry, replacing any previous one.
	Set(ctx context.Context, key string, entry Entry) error

	// Delete removes an entry. Idempotent - no error on miss.
	Delete(ctx context.Context, key string) error
}
