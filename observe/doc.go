// Package observe provides the logging and metrics primitives used across
// the cache, diag, and gate packages.
//
// It is a pure instrumentation library: structured JSON logging to a
// writer, and OpenTelemetry metric instruments with a no-op default so
// library consumers never pay for telemetry they did not wire.
package observe
