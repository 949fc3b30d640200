package gate

import (
	"context"
	"time"
)

// PenaltyLevel is the behavioral penalty standing of an entity, ordered
// from clean to banned.
type PenaltyLevel int

const (
	PenaltyClean PenaltyLevel = iota
	PenaltyWarned
	PenaltyFined
	PenaltyBanned
)

// String returns the string representation of the penalty level.
func (p PenaltyLevel) String() string {
	switch p {
	case PenaltyWarned:
		return "warned"
	case PenaltyFined:
		return "fined"
	case PenaltyBanned:
		return "banned"
	default:
		return "clean"
	}
}

// ParsePenaltyLevel parses a string penalty level. Unknown strings map to
// PenaltyClean.
func ParsePenaltyLevel(s string) PenaltyLevel {
	switch s {
	case "warned":
		return PenaltyWarned
	case "fined":
		return PenaltyFined
	case "banned":
		return PenaltyBanned
	default:
		return PenaltyClean
	}
}

// EntityState is the read-only behavioral snapshot consumed from the
// external registry. The gate never mutates it or caches a copy beyond a
// single evaluation.
type EntityState struct {
	EntityID            string       `json:"entity_id"`
	Reputation          float64      `json:"reputation"`
	Penalty             PenaltyLevel `json:"penalty_level"`
	ViolationRate       float64      `json:"violation_rate"` // events per minute
	LastViolationAt     *time.Time   `json:"last_violation_at,omitempty"`
	PositiveActionCount int          `json:"positive_action_count"`
	CleanSince          *time.Time   `json:"clean_since,omitempty"`
}

// valid reports whether the snapshot is structurally usable. A malformed
// snapshot makes the evaluation fail closed.
func (s EntityState) valid() bool {
	return s.EntityID != "" &&
		s.Reputation >= 0 && s.Reputation <= 1 &&
		s.ViolationRate >= 0 &&
		s.Penalty >= PenaltyClean && s.Penalty <= PenaltyBanned &&
		s.PositiveActionCount >= 0
}

// Registry is the external behavioral registry the gate consumes entity
// state from.
type Registry interface {
	GetEntityState(ctx context.Context, entityID string) (EntityState, error)
}
