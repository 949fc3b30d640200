package cache

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader is the caller-supplied origin fetch, invoked on a true miss or a
// scheduled background refresh.
type Loader func(ctx context.Context, key string) ([]byte, error)

// CoordinatorConfig configures refresh scheduling and failure backoff.
type CoordinatorConfig struct {
	// InitialDelay is the backoff after the first failed refresh.
	// Default: 500ms
	InitialDelay time.Duration

	// MaxDelay caps the backoff between refresh attempts.
	// Default: 5 minutes
	MaxDelay time.Duration

	// Jitter adds up to 25% randomness to backoff delays to prevent
	// synchronized retries.
	// Default: true (disable with JitterOff)
	JitterOff bool
}

type refreshBackoff struct {
	attempts  int
	notBefore time.Time
}

// Coordinator collapses concurrent loads for the same key into a single
// origin call and runs cancellable background refreshes with exponential
// backoff on failure.
type Coordinator struct {
	config CoordinatorConfig
	group  singleflight.Group

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	backoff map[string]refreshBackoff
	closed  bool

	wg sync.WaitGroup

	baseCtx   context.Context
	cancelAll context.CancelFunc
}

// NewCoordinator creates a refresh coordinator.
func NewCoordinator(config CoordinatorConfig) *Coordinator {
	if config.InitialDelay <= 0 {
		config.InitialDelay = 500 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		config:    config,
		cancels:   make(map[string]context.CancelFunc),
		backoff:   make(map[string]refreshBackoff),
		baseCtx:   ctx,
		cancelAll: cancel,
	}
}

// Load performs a synchronous singleflight origin fetch. Concurrent callers
// for the same key share one loader invocation and receive the same value
// or the same error.
func (c *Coordinator) Load(ctx context.Context, key string, loader Loader) ([]byte, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		return loader(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Schedule starts a background refresh for key unless one is already in
// flight, the key is inside its failure backoff window, or the coordinator
// is closed. onDone receives the refreshed value or the loader error; it is
// not called when the refresh was cancelled mid-flight (the result is
// discarded). Returns true if a refresh was started.
func (c *Coordinator) Schedule(key string, loader Loader, onDone func(value []byte, err error)) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	if _, inflight := c.cancels[key]; inflight {
		c.mu.Unlock()
		return false
	}
	if b, ok := c.backoff[key]; ok && time.Now().Before(b.notBefore) {
		c.mu.Unlock()
		return false
	}

	ctx, cancel := context.WithCancel(c.baseCtx)
	c.cancels[key] = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer cancel()

		v, err, _ := c.group.Do(key, func() (any, error) {
			return loader(ctx, key)
		})

		c.mu.Lock()
		delete(c.cancels, key)
		cancelled := ctx.Err() != nil
		if err != nil && !cancelled {
			b := c.backoff[key]
			b.attempts++
			b.notBefore = time.Now().Add(c.delay(b.attempts))
			c.backoff[key] = b
		} else if err == nil {
			delete(c.backoff, key)
		}
		c.mu.Unlock()

		if cancelled {
			return
		}
		if err != nil {
			onDone(nil, err)
			return
		}
		onDone(v.([]byte), nil)
	}()
	return true
}

// Cancel aborts any in-flight refresh for key and clears its backoff state.
// Used on explicit key purge.
func (c *Coordinator) Cancel(key string) {
	c.mu.Lock()
	cancel, ok := c.cancels[key]
	delete(c.backoff, key)
	c.mu.Unlock()
	if ok {
		cancel()
	}
}

// NextAttempt returns when the next refresh for key is permitted. The zero
// time means the key is not in backoff.
func (c *Coordinator) NextAttempt(key string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff[key].notBefore
}

// Close cancels all in-flight refreshes and waits for them to finish.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancelAll()
	c.wg.Wait()
}

// delay computes the exponential backoff for the given attempt count,
// capped at MaxDelay, with up to 25% jitter.
func (c *Coordinator) delay(attempts int) time.Duration {
	multiplier := math.Pow(2, float64(attempts-1))
	delay := time.Duration(float64(c.config.InitialDelay) * multiplier)
	if delay > c.config.MaxDelay || delay <= 0 {
		delay = c.config.MaxDelay
	}
	if quarter := delay / 4; !c.config.JitterOff && quarter > 0 {
		// #nosec G404 -- jitter is non-cryptographic timing variance.
		delay += time.Duration(rand.Int64N(int64(quarter)))
	}
	return delay
}
