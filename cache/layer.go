package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/repguard/observe"
)

// LayerConfig configures the tiered cache facade.
type LayerConfig struct {
	// Memory configures the mandatory local tier.
	Memory MemoryTierConfig

	// Remote is the optional distributed tier. When present, writes go to
	// it before the local tier (distributed-then-local) so other instances
	// observe the write at least as soon as the local reader does.
	Remote Tier

	// Loader is the origin fetch used on true miss and background refresh.
	// Without a loader, misses simply report Hit=false and entries are
	// never refreshed.
	Loader Loader

	// DefaultTTL is used when Set is called with no TTL.
	// Default: 5 minutes
	DefaultTTL time.Duration

	// MaxTTL clamps TTLs after modulation. Zero means no maximum.
	MaxTTL time.Duration

	// SoftTTLFraction positions the staleness threshold as a fraction of
	// TTL. Past it (but within TTL) values are served stale while a
	// background refresh runs.
	// Default: 0.8
	SoftTTLFraction float64

	// SchemaVersion is stamped on every entry written by this layer.
	SchemaVersion int

	// LocalFirstWrites reverses the write ordering to local-then-distributed.
	LocalFirstWrites bool

	// Refresh configures the refresh coordinator.
	Refresh CoordinatorConfig

	// OnRefreshFailure is invoked when a background refresh's origin fetch
	// fails. The last-good stale value keeps being served regardless;
	// callers typically record a diagnostic here.
	OnRefreshFailure func(key string, err error)

	// Logger defaults to a no-op logger.
	Logger observe.Logger

	// Metrics defaults to no-op instruments.
	Metrics *observe.Metrics
}

// SetOptions carries per-write cache directives.
type SetOptions struct {
	// TTL overrides the layer's DefaultTTL. Zero means use the default.
	TTL time.Duration

	// Priority is the base eviction priority in [0,1] before modulation.
	Priority float64

	// Reward and Penalty modulate priority and TTL per the behavioral
	// modulation tables.
	Reward  RewardLevel
	Penalty PenaltyLevel

	// Provenance is an opaque origin tag stored with the entry.
	Provenance string
}

// Result is the outcome of a Get.
type Result struct {
	Value []byte
	Hit   bool
	Stale bool
}

// Layer is the tiered cache facade: a bounded memory tier, an optional
// distributed tier, and singleflight background refresh of stale entries.
type Layer struct {
	config  LayerConfig
	memory  *MemoryTier
	remote  Tier
	coord   *Coordinator
	logger  observe.Logger
	metrics *observe.Metrics
	closed  atomic.Bool
}

// NewLayer creates a tiered cache layer.
func NewLayer(config LayerConfig) *Layer {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.SoftTTLFraction <= 0 || config.SoftTTLFraction > 1 {
		config.SoftTTLFraction = 0.8
	}
	if config.Logger == nil {
		config.Logger = observe.Nop()
	}
	if config.Metrics == nil {
		config.Metrics = observe.NopMetrics()
	}

	metrics := config.Metrics
	userOnEvict := config.Memory.OnEvict
	config.Memory.OnEvict = func(key string) {
		observe.Add(context.Background(), metrics.Evictions, 1)
		if userOnEvict != nil {
			userOnEvict(key)
		}
	}

	memory := NewMemoryTier(config.Memory)
	l := &Layer{
		config:  config,
		memory:  memory,
		remote:  config.Remote,
		coord:   NewCoordinator(config.Refresh),
		logger:  config.Logger,
		metrics: config.Metrics,
	}
	return l
}

// Set stores a value after applying reward/penalty modulation to its
// priority and TTL. Oversized values are rejected with ErrEntryTooLarge
// and never cached.
func (l *Layer) Set(ctx context.Context, key string, value []byte, opts SetOptions) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if len(value) > l.memory.config.MaxEntrySize {
		return ErrEntryTooLarge
	}

	entry := l.buildEntry(value, opts)
	return l.store(ctx, key, entry)
}

// Get retrieves a value. Fresh hits return immediately. Stale hits (past
// soft TTL, within TTL) return the stale value immediately and enqueue a
// non-blocking background refresh. True misses invoke the origin loader
// synchronously and populate both tiers.
func (l *Layer) Get(ctx context.Context, key string) (Result, error) {
	if l.closed.Load() {
		return Result{}, ErrClosed
	}
	if err := ValidateKey(key); err != nil {
		return Result{}, err
	}
	now := time.Now()

	if entry, ok, _ := l.memory.Get(ctx, key); ok {
		return l.serve(ctx, key, entry, now), nil
	}

	if l.remote != nil {
		entry, ok, err := l.remote.Get(ctx, key)
		if err != nil {
			l.logger.Warn(ctx, "distributed tier read failed",
				observe.F("key", key), observe.F("error", err.Error()))
		}
		if ok {
			// Populate the local tier so the next read is a memory hit.
			if err := l.memory.Set(ctx, key, entry); err != nil {
				l.logger.Warn(ctx, "local populate failed",
					observe.F("key", key), observe.F("error", err.Error()))
			}
			return l.serve(ctx, key, entry, now), nil
		}
	}

	observe.Add(ctx, l.metrics.CacheMisses, 1)
	if l.config.Loader == nil {
		return Result{}, nil
	}

	value, err := l.coord.Load(ctx, key, l.config.Loader)
	if err != nil {
		return Result{}, fmt.Errorf("cache: origin load %q: %w", key, err)
	}
	entry := l.buildEntry(value, SetOptions{})
	if err := l.store(ctx, key, entry); err != nil {
		l.logger.Warn(ctx, "populate after miss failed",
			observe.F("key", key), observe.F("error", err.Error()))
	}
	return Result{Value: value, Hit: false}, nil
}

// Purge removes a key from every tier and cancels any in-flight refresh.
// The cancelled refresh's result is discarded; no tier is left partially
// updated.
func (l *Layer) Purge(ctx context.Context, key string) error {
	l.coord.Cancel(key)
	if l.remote != nil {
		if err := l.remote.Delete(ctx, key); err != nil {
			return err
		}
	}
	return l.memory.Delete(ctx, key)
}

// Guardrail purges corrupt or oversized entries from the memory tier and
// returns the purged keys.
func (l *Layer) Guardrail() []string {
	return l.memory.Guardrail()
}

// Memory exposes the local tier for inspection.
func (l *Layer) Memory() *MemoryTier {
	return l.memory
}

// Close cancels all background refreshes and waits for them to finish.
func (l *Layer) Close() {
	if l.closed.Swap(true) {
		return
	}
	l.coord.Close()
}

func (l *Layer) serve(ctx context.Context, key string, entry Entry, now time.Time) Result {
	switch entry.FreshnessAt(now) {
	case Stale:
		observe.Add(ctx, l.metrics.CacheHits, 1)
		observe.Add(ctx, l.metrics.StaleServes, 1)
		l.scheduleRefresh(key, entry.Meta)
		return Result{Value: entry.Value, Hit: true, Stale: true}
	default:
		observe.Add(ctx, l.metrics.CacheHits, 1)
		return Result{Value: entry.Value, Hit: true}
	}
}

func (l *Layer) scheduleRefresh(key string, old Meta) {
	if l.config.Loader == nil {
		return
	}
	l.coord.Schedule(key, l.config.Loader, func(value []byte, err error) {
		ctx := context.Background()
		if err != nil {
			// Keep serving the last-good value; never evict on refresh
			// failure alone.
			observe.Add(ctx, l.metrics.RefreshFailures, 1)
			l.logger.Warn(ctx, "background refresh failed",
				observe.F("key", key),
				observe.F("error", err.Error()),
				observe.F("next_attempt", l.coord.NextAttempt(key).Format(time.RFC3339)))
			if l.config.OnRefreshFailure != nil {
				l.config.OnRefreshFailure(key, err)
			}
			return
		}

		refreshed := Entry{
			Value: value,
			Meta: Meta{
				CreatedAt:     time.Now(),
				TTL:           old.TTL,
				SoftTTL:       old.SoftTTL,
				Priority:      old.Priority,
				Reward:        old.Reward,
				Penalty:       old.Penalty,
				SchemaVersion: old.SchemaVersion,
				Provenance:    old.Provenance,
			},
		}
		if err := l.store(ctx, key, refreshed); err != nil {
			l.logger.Warn(ctx, "refresh store failed",
				observe.F("key", key), observe.F("error", err.Error()))
			return
		}
		observe.Add(ctx, l.metrics.Refreshes, 1)
	})
}

func (l *Layer) buildEntry(value []byte, opts SetOptions) Entry {
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = l.config.DefaultTTL
	}
	meta := Meta{
		CreatedAt:     time.Now(),
		TTL:           ttl,
		SoftTTL:       time.Duration(float64(ttl) * l.config.SoftTTLFraction),
		Priority:      opts.Priority,
		Reward:        opts.Reward,
		Penalty:       opts.Penalty,
		SchemaVersion: l.config.SchemaVersion,
		Provenance:    opts.Provenance,
	}.Modulate()

	if l.config.MaxTTL > 0 && meta.TTL > l.config.MaxTTL {
		frac := float64(meta.SoftTTL) / float64(meta.TTL)
		meta.TTL = l.config.MaxTTL
		meta.SoftTTL = time.Duration(float64(meta.TTL) * frac)
	}
	return Entry{Value: value, Meta: meta}
}

// store writes to the distributed tier first (unless configured otherwise)
// and then the local tier. Distributed failures are logged, not fatal: the
// local tier remains authoritative for this instance.
func (l *Layer) store(ctx context.Context, key string, entry Entry) error {
	writeRemote := func() {
		if l.remote == nil {
			return
		}
		if err := l.remote.Set(ctx, key, entry); err != nil {
			l.logger.Warn(ctx, "distributed tier write failed",
				observe.F("key", key), observe.F("error", err.Error()))
		}
	}

	if !l.config.LocalFirstWrites {
		writeRemote()
	}
	if err := l.memory.Set(ctx, key, entry); err != nil {
		return err
	}
	if l.config.LocalFirstWrites {
		writeRemote()
	}
	return nil
}
