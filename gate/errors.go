package gate

import "errors"

// Sentinel errors for gating operations.
var (
	// ErrPolicyInvalid is returned at registration when a policy's unblock
	// thresholds are not at least as strict as its block thresholds.
	ErrPolicyInvalid = errors.New("gate: policy violates hysteresis invariant")

	// ErrPolicyNotFound indicates no policy is registered for an action type.
	ErrPolicyNotFound = errors.New("gate: no policy for action type")

	// ErrInvalidToken is returned when an authority token fails verification.
	ErrInvalidToken = errors.New("gate: authority token is invalid")

	// ErrNoHold is returned when releasing a hold that does not exist.
	ErrNoHold = errors.New("gate: no manual hold present")
)
