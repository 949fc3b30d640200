package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCoordinator_Load_Singleflight(t *testing.T) {
	coord := NewCoordinator(CoordinatorConfig{})
	defer coord.Close()

	const workers = 20
	var calls atomic.Int32
	release := make(chan struct{})
	loader := func(ctx context.Context, key string) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("shared"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Load(context.Background(), "k", loader)
		}(i)
	}

	// Let every worker reach the in-flight call before it resolves.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("loader called %d times, want 1", got)
	}
	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Errorf("worker %d error = %v", i, errs[i])
		}
		if string(results[i]) != "shared" {
			t.Errorf("worker %d value = %q, want %q", i, results[i], "shared")
		}
	}
}

func TestCoordinator_Load_SharedError(t *testing.T) {
	coord := NewCoordinator(CoordinatorConfig{})
	defer coord.Close()

	const workers = 5
	loadErr := errors.New("origin down")
	release := make(chan struct{})
	loader := func(ctx context.Context, key string) ([]byte, error) {
		<-release
		return nil, loadErr
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = coord.Load(context.Background(), "k", loader)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := 0; i < workers; i++ {
		if !errors.Is(errs[i], loadErr) {
			t.Errorf("worker %d error = %v, want %v", i, errs[i], loadErr)
		}
	}
}

func TestCoordinator_Schedule_Dedupes(t *testing.T) {
	coord := NewCoordinator(CoordinatorConfig{})
	defer coord.Close()

	release := make(chan struct{})
	loader := func(ctx context.Context, key string) ([]byte, error) {
		<-release
		return []byte("v"), nil
	}

	done := make(chan struct{})
	if !coord.Schedule("k", loader, func([]byte, error) { close(done) }) {
		t.Fatal("first Schedule() = false, want true")
	}
	if coord.Schedule("k", loader, func([]byte, error) {}) {
		t.Error("second Schedule() while in flight = true, want false")
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("refresh did not complete")
	}
}

func TestCoordinator_Schedule_BackoffGate(t *testing.T) {
	coord := NewCoordinator(CoordinatorConfig{InitialDelay: time.Minute, JitterOff: true})
	defer coord.Close()

	failing := func(ctx context.Context, key string) ([]byte, error) {
		return nil, errors.New("origin down")
	}

	done := make(chan error, 1)
	coord.Schedule("k", failing, func(_ []byte, err error) { done <- err })
	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected loader error")
		}
	case <-time.After(time.Second):
		t.Fatal("refresh did not complete")
	}

	if next := coord.NextAttempt("k"); !next.After(time.Now()) {
		t.Errorf("NextAttempt() = %v, want in the future", next)
	}
	if coord.Schedule("k", failing, func([]byte, error) {}) {
		t.Error("Schedule() during backoff window = true, want false")
	}
}

func TestCoordinator_Cancel_DiscardsResult(t *testing.T) {
	coord := NewCoordinator(CoordinatorConfig{})
	defer coord.Close()

	started := make(chan struct{})
	loader := func(ctx context.Context, key string) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}

	var delivered atomic.Bool
	coord.Schedule("k", loader, func([]byte, error) { delivered.Store(true) })

	<-started
	coord.Cancel("k")

	// Give the goroutine time to observe cancellation.
	time.Sleep(50 * time.Millisecond)
	if delivered.Load() {
		t.Error("cancelled refresh delivered its result")
	}
	if !coord.NextAttempt("k").IsZero() {
		t.Error("Cancel() left backoff state behind")
	}
}

func TestCoordinator_Close_Waits(t *testing.T) {
	coord := NewCoordinator(CoordinatorConfig{})

	loader := func(ctx context.Context, key string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	coord.Schedule("k", loader, func([]byte, error) {})

	finished := make(chan struct{})
	go func() {
		coord.Close()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Close() did not return")
	}

	if coord.Schedule("k", loader, func([]byte, error) {}) {
		t.Error("Schedule() after Close() = true, want false")
	}
}

func TestCoordinator_BackoffGrowth(t *testing.T) {
	coord := NewCoordinator(CoordinatorConfig{
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		JitterOff:    true,
	})
	defer coord.Close()

	tests := []struct {
		attempts int
		want     time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // capped
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := coord.delay(tt.attempts); got != tt.want {
			t.Errorf("delay(%d) = %v, want %v", tt.attempts, got, tt.want)
		}
	}
}

func TestCoordinator_TinyDelayJitter(t *testing.T) {
	// Delays under 4ns leave no room for jitter; they must come back
	// unmodified instead of panicking on a zero jitter bound.
	coord := NewCoordinator(CoordinatorConfig{
		InitialDelay: time.Nanosecond,
		MaxDelay:     time.Second,
	})
	defer coord.Close()

	for attempts := 1; attempts <= 2; attempts++ {
		if got := coord.delay(attempts); got <= 0 {
			t.Errorf("delay(%d) = %v, want positive", attempts, got)
		}
	}
}
