// Package diag detects cache-directory and configuration health issues and
// proposes typed remediation actions.
//
// Remediation is a closed set of action types dispatched through a fixed
// handler table; there is no generic execute path and inputs are never
// passed to a dynamic evaluator. Every handler is idempotent, so a retried
// apply after a crash is safe.
package diag
