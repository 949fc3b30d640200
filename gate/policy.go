package gate

import (
	"fmt"
	"sync"
	"time"
)

// BlockThresholds are the conditions that move an entity into the blocked
// state. Any single triggered condition blocks.
type BlockThresholds struct {
	// MinReputation blocks entities whose reputation is below it.
	MinReputation float64 `json:"min_reputation"`

	// MaxPenalty blocks entities at or above this penalty level.
	MaxPenalty PenaltyLevel `json:"max_penalty_level"`

	// MaxViolationRate blocks entities violating faster than this
	// (events per minute).
	MaxViolationRate float64 `json:"max_violation_rate"`

	// ViolationCooldown blocks entities whose last violation is more
	// recent than this.
	ViolationCooldown time.Duration `json:"violation_cooldown"`
}

// UnblockThresholds are the criteria that must ALL be met before a blocked
// entity is allowed again. Each is configured at least as strict as its
// block counterpart, forming the hysteresis band.
type UnblockThresholds struct {
	// MinReputation the entity must have regained.
	MinReputation float64 `json:"min_reputation"`

	// RequiredPenalty the entity must have returned to. Always clean.
	RequiredPenalty PenaltyLevel `json:"required_penalty_level"`

	// MinViolationFree is how long the entity must have gone without a
	// violation.
	MinViolationFree time.Duration `json:"min_violation_free_duration"`

	// MinPositiveActions the entity must have accumulated.
	MinPositiveActions int `json:"min_positive_actions"`
}

// Policy is the static per-action-type gating configuration.
type Policy struct {
	ActionType string            `json:"action_type"`
	Block      BlockThresholds   `json:"block"`
	Unblock    UnblockThresholds `json:"unblock"`
}

// Validate enforces the hysteresis invariant: every unblock threshold is
// at least as strict as its block counterpart, so an entity cannot
// oscillate across the boundary.
func (p Policy) Validate() error {
	if p.ActionType == "" {
		return fmt.Errorf("%w: empty action type", ErrPolicyInvalid)
	}
	if p.Block.MinReputation < 0 || p.Block.MinReputation > 1 {
		return fmt.Errorf("%w: block min_reputation %v outside [0,1]", ErrPolicyInvalid, p.Block.MinReputation)
	}
	if p.Block.MaxPenalty < PenaltyWarned || p.Block.MaxPenalty > PenaltyBanned {
		return fmt.Errorf("%w: block max_penalty_level must be warned, fined, or banned", ErrPolicyInvalid)
	}
	if p.Unblock.MinReputation < p.Block.MinReputation || p.Unblock.MinReputation > 1 {
		return fmt.Errorf("%w: unblock min_reputation %v laxer than block %v",
			ErrPolicyInvalid, p.Unblock.MinReputation, p.Block.MinReputation)
	}
	if p.Unblock.RequiredPenalty != PenaltyClean {
		return fmt.Errorf("%w: unblock requires penalty %v, must be clean",
			ErrPolicyInvalid, p.Unblock.RequiredPenalty)
	}
	if p.Unblock.MinViolationFree < p.Block.ViolationCooldown {
		return fmt.Errorf("%w: unblock violation-free window %v shorter than block cooldown %v",
			ErrPolicyInvalid, p.Unblock.MinViolationFree, p.Block.ViolationCooldown)
	}
	if p.Unblock.MinPositiveActions < 1 {
		return fmt.Errorf("%w: unblock min_positive_actions must be at least 1", ErrPolicyInvalid)
	}
	if p.Block.MaxViolationRate < 0 {
		return fmt.Errorf("%w: block max_violation_rate is negative", ErrPolicyInvalid)
	}
	return nil
}

// PolicyRegistry holds the registered policies keyed by action type.
// Registration rejects policies that violate the hysteresis invariant.
type PolicyRegistry struct {
	mu       sync.RWMutex
	policies map[string]Policy
}

// NewPolicyRegistry creates an empty policy registry.
func NewPolicyRegistry() *PolicyRegistry {
	return &PolicyRegistry{policies: make(map[string]Policy)}
}

// Register validates and stores a policy. A policy violating the
// hysteresis invariant is rejected.
func (r *PolicyRegistry) Register(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.policies[p.ActionType] = p
	r.mu.Unlock()
	return nil
}

// Lookup returns the policy for an action type.
func (r *PolicyRegistry) Lookup(actionType string) (Policy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.policies[actionType]
	return p, ok
}

// ActionTypes returns the registered action types.
func (r *PolicyRegistry) ActionTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.policies))
	for t := range r.policies {
		out = append(out, t)
	}
	return out
}
