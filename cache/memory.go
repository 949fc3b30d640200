package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

const defaultShards = 16

// MemoryTierConfig configures the in-memory tier.
type MemoryTierConfig struct {
	// MaxEntries bounds the number of entries held. On overflow the most
	// expensive-for-value entries are evicted first.
	// Default: 4096
	MaxEntries int

	// MaxEntrySize is the largest single value accepted, in bytes.
	// Oversized writes are rejected with ErrEntryTooLarge.
	// Default: 1 MiB
	MaxEntrySize int

	// Shards is the number of key-hash lock shards.
	// Default: 16
	Shards int

	// OnEvict is called with each evicted key, for metrics/audit.
	OnEvict func(key string)
}

type memoryShard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// MemoryTier is a bounded in-memory cache tier with priority-weighted
// eviction. Mutations are serialized per key-hash shard; no reader ever
// observes a partially written entry.
type MemoryTier struct {
	config MemoryTierConfig
	shards []*memoryShard

	// evictMu serializes capacity enforcement so concurrent inserts do not
	// race to evict the same victims.
	evictMu sync.Mutex
}

// NewMemoryTier creates a new in-memory tier.
func NewMemoryTier(config MemoryTierConfig) *MemoryTier {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 4096
	}
	if config.MaxEntrySize <= 0 {
		config.MaxEntrySize = 1 << 20
	}
	if config.Shards <= 0 {
		config.Shards = defaultShards
	}

	shards := make([]*memoryShard, config.Shards)
	for i := range shards {
		shards[i] = &memoryShard{entries: make(map[string]Entry)}
	}
	return &MemoryTier{config: config, shards: shards}
}

func (t *MemoryTier) shard(key string) *memoryShard {
	return t.shards[shardIndex(key, len(t.shards))]
}

// Get retrieves an entry. Expired entries are removed lazily and reported
// as a miss.
func (t *MemoryTier) Get(_ context.Context, key string) (Entry, bool, error) {
	s := t.shard(key)
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return Entry{}, false, nil
	}
	if entry.FreshnessAt(time.Now()) == Expired {
		s.mu.Lock()
		// Re-check: a concurrent Set may have replaced the entry.
		if cur, still := s.entries[key]; still && cur.Meta.CreatedAt.Equal(entry.Meta.CreatedAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set stores an entry, replacing any previous one, then enforces capacity.
func (t *MemoryTier) Set(_ context.Context, key string, entry Entry) error {
	if entry.Size() > t.config.MaxEntrySize {
		return ErrEntryTooLarge
	}
	if entry.Corrupt() {
		return ErrCorruptEntry
	}

	s := t.shard(key)
	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()

	if over := t.Len() - t.config.MaxEntries; over > 0 {
		t.Evict(over)
	}
	return nil
}

// Delete removes an entry. Idempotent - no error on miss.
func (t *MemoryTier) Delete(_ context.Context, key string) error {
	s := t.shard(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len returns the current entry count.
func (t *MemoryTier) Len() int {
	n := 0
	for _, s := range t.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

type evictCandidate struct {
	key       string
	cost      float64
	createdAt time.Time
}

// Evict removes up to n entries ordered by cost = size/(priority+epsilon)
// descending, ties broken by oldest creation time. It returns the evicted
// keys for metrics/audit.
func (t *MemoryTier) Evict(n int) []string {
	if n <= 0 {
		return nil
	}

	t.evictMu.Lock()
	defer t.evictMu.Unlock()

	candidates := make([]evictCandidate, 0, 64)
	for _, s := range t.shards {
		s.mu.RLock()
		for key, entry := range s.entries {
			candidates = append(candidates, evictCandidate{
				key:       key,
				cost:      entry.Cost(),
				createdAt: entry.Meta.CreatedAt,
			})
		}
		s.mu.RUnlock()
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].cost != candidates[j].cost {
			return candidates[i].cost > candidates[j].cost
		}
		return candidates[i].createdAt.Before(candidates[j].createdAt)
	})

	if n > len(candidates) {
		n = len(candidates)
	}

	evicted := make([]string, 0, n)
	for _, c := range candidates[:n] {
		s := t.shard(c.key)
		s.mu.Lock()
		if _, ok := s.entries[c.key]; ok {
			delete(s.entries, c.key)
			evicted = append(evicted, c.key)
		}
		s.mu.Unlock()
	}

	if t.config.OnEvict != nil {
		for _, key := range evicted {
			t.config.OnEvict(key)
		}
	}
	return evicted
}

// Guardrail unconditionally removes corrupt or oversized entries regardless
// of priority. It returns the purged keys.
func (t *MemoryTier) Guardrail() []string {
	var purged []string
	for _, s := range t.shards {
		s.mu.Lock()
		for key, entry := range s.entries {
			if entry.Corrupt() || entry.Size() > t.config.MaxEntrySize {
				delete(s.entries, key)
				purged = append(purged, key)
			}
		}
		s.mu.Unlock()
	}
	return purged
}

// Ensure MemoryTier implements Tier
var _ Tier = (*MemoryTier)(nil)
