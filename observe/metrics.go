package observe

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the OpenTelemetry instruments shared by the cache, diag,
// and gate packages. Construct with NewMetrics to export, or NopMetrics
// for silent instruments.
type Metrics struct {
	CacheHits       metric.Int64Counter
	CacheMisses     metric.Int64Counter
	StaleServes     metric.Int64Counter
	Refreshes       metric.Int64Counter
	RefreshFailures metric.Int64Counter
	Evictions       metric.Int64Counter

	Evaluations metric.Int64Counter
	Blocks      metric.Int64Counter

	Diagnostics metric.Int64Counter
}

// NewMetrics creates the instrument set on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	counters := []struct {
		inst *metric.Int64Counter
		name string
		desc string
	}{
		{&m.CacheHits, "repguard.cache.hits", "Cache reads served from a tier"},
		{&m.CacheMisses, "repguard.cache.misses", "Cache reads that reached the origin"},
		{&m.StaleServes, "repguard.cache.stale_serves", "Stale values served while a refresh ran"},
		{&m.Refreshes, "repguard.cache.refreshes", "Background refreshes completed"},
		{&m.RefreshFailures, "repguard.cache.refresh_failures", "Background refreshes that failed"},
		{&m.Evictions, "repguard.cache.evictions", "Entries evicted from the memory tier"},
		{&m.Evaluations, "repguard.gate.evaluations", "Action gate evaluations performed"},
		{&m.Blocks, "repguard.gate.blocks", "Action gate evaluations that blocked"},
		{&m.Diagnostics, "repguard.diag.diagnostics", "Diagnostics recorded"},
	}
	for _, c := range counters {
		*c.inst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("observe: create counter %s: %w", c.name, err)
		}
	}
	return m, nil
}

// NopMetrics returns an instrument set on the no-op meter. It never fails.
func NopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("repguard"))
	return m
}

// Add is a nil-safe counter increment with optional attributes.
func Add(ctx context.Context, counter metric.Int64Counter, n int64, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, n, metric.WithAttributes(attrs...))
}
