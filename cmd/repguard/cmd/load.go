package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/jonwraymond/repguard/gate"
)

// policyFile is the on-disk policy format. Durations are strings in Go
// duration syntax ("24h", "90m") and penalty levels are their names.
type policyFile struct {
	Policies []policyEntry `json:"policies"`
}

type policyEntry struct {
	ActionType string `json:"action_type"`
	Block      struct {
		MinReputation     float64 `json:"min_reputation"`
		MaxPenalty        string  `json:"max_penalty_level"`
		MaxViolationRate  float64 `json:"max_violation_rate"`
		ViolationCooldown string  `json:"violation_cooldown"`
	} `json:"block"`
	Unblock struct {
		MinReputation      float64 `json:"min_reputation"`
		MinViolationFree   string  `json:"min_violation_free_duration"`
		MinPositiveActions int     `json:"min_positive_actions"`
	} `json:"unblock"`
}

func loadPolicies() (*gate.PolicyRegistry, error) {
	if policiesPath == "" {
		return nil, fmt.Errorf("--policies is required")
	}
	data, err := os.ReadFile(policiesPath)
	if err != nil {
		return nil, fmt.Errorf("read policies: %w", err)
	}
	var file policyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse policies: %w", err)
	}

	reg := gate.NewPolicyRegistry()
	for _, e := range file.Policies {
		cooldown, err := parseDuration(e.Block.ViolationCooldown)
		if err != nil {
			return nil, fmt.Errorf("policy %s: violation_cooldown: %w", e.ActionType, err)
		}
		violationFree, err := parseDuration(e.Unblock.MinViolationFree)
		if err != nil {
			return nil, fmt.Errorf("policy %s: min_violation_free_duration: %w", e.ActionType, err)
		}
		p := gate.Policy{
			ActionType: e.ActionType,
			Block: gate.BlockThresholds{
				MinReputation:     e.Block.MinReputation,
				MaxPenalty:        gate.ParsePenaltyLevel(e.Block.MaxPenalty),
				MaxViolationRate:  e.Block.MaxViolationRate,
				ViolationCooldown: cooldown,
			},
			Unblock: gate.UnblockThresholds{
				MinReputation:      e.Unblock.MinReputation,
				RequiredPenalty:    gate.PenaltyClean,
				MinViolationFree:   violationFree,
				MinPositiveActions: e.Unblock.MinPositiveActions,
			},
		}
		if err := reg.Register(p); err != nil {
			return nil, fmt.Errorf("policy %s: %w", e.ActionType, err)
		}
	}
	return reg, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// snapshotRegistry is a file-backed behavioral registry: a JSON snapshot
// mapping entity IDs to their state, loaded once per invocation.
type snapshotRegistry struct {
	states map[string]gate.EntityState
}

func loadEntities() (*snapshotRegistry, error) {
	if entitiesPath == "" {
		return nil, fmt.Errorf("--entities is required")
	}
	data, err := os.ReadFile(entitiesPath)
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	var states []gate.EntityState
	if err := json.Unmarshal(data, &states); err != nil {
		return nil, fmt.Errorf("parse entities: %w", err)
	}
	reg := &snapshotRegistry{states: make(map[string]gate.EntityState, len(states))}
	for _, s := range states {
		reg.states[s.EntityID] = s
	}
	return reg, nil
}

func (r *snapshotRegistry) GetEntityState(_ context.Context, entityID string) (gate.EntityState, error) {
	s, ok := r.states[entityID]
	if !ok {
		return gate.EntityState{}, fmt.Errorf("entity %q not in snapshot", entityID)
	}
	return s, nil
}

var _ gate.Registry = (*snapshotRegistry)(nil)

// newBlocker assembles a gate from the --policies and --audit flags. The
// returned cleanup closes the audit sink, if any. verifier may be nil when
// no manual override is being performed.
func newBlocker(verifier *gate.TokenVerifier) (*gate.Blocker, func(), error) {
	policies, err := loadPolicies()
	if err != nil {
		return nil, nil, err
	}

	var audit *gate.AuditLog
	cleanup := func() {}
	if auditPath != "" {
		f, err := gate.OpenAuditFile(auditPath)
		if err != nil {
			return nil, nil, err
		}
		audit = gate.NewAuditLog(f)
		cleanup = func() { _ = f.Close() }
	}

	b := gate.NewBlocker(gate.BlockerConfig{
		Policies: policies,
		Audit:    audit,
		Verifier: verifier,
		Logger:   newLogger(),
	})
	return b, cleanup, nil
}
