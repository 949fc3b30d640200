package diag

import "errors"

// Sentinel errors for diagnostic operations.
var (
	// ErrInvalidInput is returned when a path or name contains null bytes,
	// control characters, or is otherwise unusable.
	ErrInvalidInput = errors.New("diag: input is invalid")

	// ErrNotAutoApplicable is returned when Apply is called on a solution
	// that is not marked both auto-applicable and safe.
	ErrNotAutoApplicable = errors.New("diag: solution is not auto-applicable")

	// ErrUnknownAction is returned for an action type outside the closed set.
	ErrUnknownAction = errors.New("diag: unknown action type")

	// ErrMissingParam is returned when a handler's required parameter is absent.
	ErrMissingParam = errors.New("diag: missing action parameter")

	// ErrVerifyFailed is returned when a handler's post-apply verification
	// did not confirm the expected end state.
	ErrVerifyFailed = errors.New("diag: post-apply verification failed")
)
