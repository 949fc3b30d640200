package cache

import "errors"

// Sentinel errors for cache operations.
var (
	// ErrInvalidKey is returned for empty keys or keys with control characters.
	ErrInvalidKey = errors.New("cache: key is invalid")

	// ErrKeyTooLong is returned when a key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("cache: key exceeds max length")

	// ErrEntryTooLarge is returned when a single value exceeds the configured
	// max entry size. The entry is rejected, never cached.
	ErrEntryTooLarge = errors.New("cache: entry exceeds max size")

	// ErrCorruptEntry indicates an entry failed validation and was purged.
	ErrCorruptEntry = errors.New("cache: entry is corrupt")

	// ErrClosed is returned after the layer has been shut down.
	ErrClosed = errors.New("cache: layer is closed")
)
