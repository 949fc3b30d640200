// Package cache provides a tiered, behavior-modulated cache.
//
// It combines a bounded in-memory tier with an optional distributed tier,
// soft-TTL staleness with singleflight background refresh, and
// reward/penalty modulation of entry priority and TTL on write.
package cache
