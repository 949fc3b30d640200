// Package gate decides whether a sensitive operation is allowed for an
// entity based on time-windowed behavioral metrics.
//
// Blocking and unblocking use asymmetric thresholds: every unblock
// criterion is configured at least as strict as its block counterpart, so
// an entity cannot flap across the boundary. Evaluation errors fail
// closed. Every decision is appended to an immutable audit log.
package gate
