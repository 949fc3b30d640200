package gate

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/jonwraymond/repguard/observe"
)

// BlockerConfig configures the action gate.
type BlockerConfig struct {
	// Policies is the registry of per-action-type thresholds. A nil
	// registry means no policies, so every evaluation fails closed.
	Policies *PolicyRegistry

	// Audit receives every evaluation. Defaults to a fresh in-memory log.
	Audit *AuditLog

	// Verifier validates manual-override tokens. Without one, manual
	// hold/release is unavailable.
	Verifier *TokenVerifier

	// AllowUnregistered restores allow-by-default for action types with no
	// registered policy. Off by default: unknown action types fail closed.
	AllowUnregistered bool

	// Logger defaults to a no-op logger.
	Logger observe.Logger

	// Metrics defaults to no-op instruments.
	Metrics *observe.Metrics
}

type holdKey struct {
	entityID   string
	actionType string
}

type holdRecord struct {
	actor  string
	reason string
}

// Blocker evaluates entity state against block policies to allow or block
// sensitive operations. It is stateless between calls except for the
// append-only audit log and any active manual holds.
type Blocker struct {
	config   BlockerConfig
	policies *PolicyRegistry
	audit    *AuditLog

	mu    sync.Mutex
	holds map[holdKey]holdRecord
}

// NewBlocker creates an action gate.
func NewBlocker(config BlockerConfig) *Blocker {
	if config.Policies == nil {
		config.Policies = NewPolicyRegistry()
	}
	if config.Audit == nil {
		config.Audit = NewAuditLog(nil)
	}
	if config.Logger == nil {
		config.Logger = observe.Nop()
	}
	if config.Metrics == nil {
		config.Metrics = observe.NopMetrics()
	}
	return &Blocker{
		config:   config,
		policies: config.Policies,
		audit:    config.Audit,
		holds:    make(map[holdKey]holdRecord),
	}
}

// Audit exposes the underlying audit log.
func (b *Blocker) Audit() *AuditLog {
	return b.audit
}

// Policies exposes the policy registry.
func (b *Blocker) Policies() *PolicyRegistry {
	return b.policies
}

// Evaluate decides whether actionType is allowed for the entity described
// by state. The decision is derived fresh on every call (plus the prior
// audit record for hysteresis), appended to the audit log, and returned.
// Any internal evaluation error fails closed: blocked with
// SUSPICIOUS_PATTERN, never silently allowed.
func (b *Blocker) Evaluate(ctx context.Context, state EntityState, actionType string) (ev Evaluation) {
	defer func() {
		if r := recover(); r != nil {
			b.config.Logger.Error(ctx, "evaluation panicked, failing closed",
				observe.F("entity", state.EntityID),
				observe.F("action", actionType))
			ev = b.record(ctx, newEvaluation(state.EntityID, actionType, true,
				[]ReasonCode{ReasonSuspiciousPattern}, nil))
		}
	}()
	return b.record(ctx, b.decide(state, actionType))
}

func (b *Blocker) record(ctx context.Context, ev Evaluation) Evaluation {
	ev = b.audit.Append(ev)

	attrs := attribute.String("action_type", ev.ActionType)
	observe.Add(ctx, b.config.Metrics.Evaluations, 1, attrs)
	if ev.Blocked {
		observe.Add(ctx, b.config.Metrics.Blocks, 1, attrs)
		b.config.Logger.Info(ctx, "action blocked",
			observe.F("entity", ev.EntityID),
			observe.F("action", ev.ActionType),
			observe.F("reasons", ev.Reasons))
	}
	return ev
}

func (b *Blocker) decide(state EntityState, actionType string) Evaluation {
	// Malformed input fails closed.
	if actionType == "" || !state.valid() {
		return newEvaluation(state.EntityID, actionType, true,
			[]ReasonCode{ReasonSuspiciousPattern}, nil)
	}

	// A manual hold is an authority override: it blocks regardless of
	// whether a policy is registered for the action type.
	b.mu.Lock()
	_, held := b.holds[holdKey{state.EntityID, actionType}]
	b.mu.Unlock()

	policy, ok := b.policies.Lookup(actionType)
	if !ok {
		if held {
			return newEvaluation(state.EntityID, actionType, true,
				[]ReasonCode{ReasonManualHold}, nil)
		}
		if b.config.AllowUnregistered {
			return newEvaluation(state.EntityID, actionType, false, nil, nil)
		}
		// Unknown action type fails closed.
		return newEvaluation(state.EntityID, actionType, true,
			[]ReasonCode{ReasonSuspiciousPattern}, nil)
	}

	now := time.Now()
	var reasons []ReasonCode

	if state.Reputation < policy.Block.MinReputation {
		reasons = append(reasons, ReasonLowReputation)
	}
	if state.Penalty >= policy.Block.MaxPenalty {
		reasons = append(reasons, ReasonPenaltyActive)
	}
	if state.ViolationRate > policy.Block.MaxViolationRate {
		reasons = append(reasons, ReasonHighViolationRate)
	}
	if policy.Block.ViolationCooldown > 0 && state.LastViolationAt != nil &&
		now.Sub(*state.LastViolationAt) < policy.Block.ViolationCooldown {
		reasons = append(reasons, ReasonRecentViolation)
	}

	if held {
		reasons = append(reasons, ReasonManualHold)
	}

	blocked := len(reasons) > 0
	var progress map[string]float64

	if !blocked {
		// Hysteresis: a previously blocked entity stays blocked until
		// every unblock criterion reaches 1.0. The original grounds
		// persist on the record until fully cleared.
		if prior, found := b.audit.Last(state.EntityID, actionType); found && prior.Blocked {
			progress = unblockProgress(state, policy.Unblock, now)
			if !allComplete(progress) {
				blocked = true
				reasons = prior.Reasons
			}
		}
	}
	if blocked && progress == nil {
		progress = unblockProgress(state, policy.Unblock, now)
	}
	if !blocked {
		progress = nil
	}

	return newEvaluation(state.EntityID, actionType, blocked, reasons, progress)
}

// unblockProgress computes each unblock criterion's normalized progress.
// Unblocking requires every value to reach 1.0 - a logical AND, never an
// average.
func unblockProgress(state EntityState, u UnblockThresholds, now time.Time) map[string]float64 {
	p := make(map[string]float64, 4)

	if u.MinReputation <= 0 {
		p[CriterionReputation] = 1
	} else {
		p[CriterionReputation] = clamp01(state.Reputation / u.MinReputation)
	}

	p[CriterionPenaltyClean] = clamp01(1 - float64(state.Penalty)/float64(PenaltyBanned))

	switch {
	case u.MinViolationFree <= 0, state.LastViolationAt == nil:
		p[CriterionViolationFree] = 1
	default:
		p[CriterionViolationFree] = clamp01(
			float64(now.Sub(*state.LastViolationAt)) / float64(u.MinViolationFree))
	}

	if u.MinPositiveActions <= 0 {
		p[CriterionPositiveActions] = 1
	} else {
		p[CriterionPositiveActions] = clamp01(
			float64(state.PositiveActionCount) / float64(u.MinPositiveActions))
	}
	return p
}

func allComplete(progress map[string]float64) bool {
	for _, v := range progress {
		if v < 1 {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ManualHold places a designated-authority hold on (entity, action type).
// The token must verify; the hold and its acting identity are audited.
func (b *Blocker) ManualHold(ctx context.Context, token, entityID, actionType, reason string) (Evaluation, error) {
	identity, err := b.verify(token)
	if err != nil {
		return Evaluation{}, err
	}

	b.mu.Lock()
	b.holds[holdKey{entityID, actionType}] = holdRecord{actor: identity.Subject, reason: reason}
	b.mu.Unlock()

	ev := newOverrideEvaluation(entityID, actionType, true, identity.Subject, reason)
	ev = b.audit.Append(ev)
	b.config.Logger.Info(ctx, "manual hold placed",
		observe.F("entity", entityID),
		observe.F("action", actionType),
		observe.F("actor", identity.Subject))
	return ev, nil
}

// ManualRelease lifts a manual hold. The release is an authority override:
// it is audited with the acting identity and clears the hysteresis carry.
func (b *Blocker) ManualRelease(ctx context.Context, token, entityID, actionType, reason string) (Evaluation, error) {
	identity, err := b.verify(token)
	if err != nil {
		return Evaluation{}, err
	}

	b.mu.Lock()
	_, held := b.holds[holdKey{entityID, actionType}]
	delete(b.holds, holdKey{entityID, actionType})
	b.mu.Unlock()
	if !held {
		return Evaluation{}, ErrNoHold
	}

	ev := newOverrideEvaluation(entityID, actionType, false, identity.Subject, reason)
	ev = b.audit.Append(ev)
	b.config.Logger.Info(ctx, "manual hold released",
		observe.F("entity", entityID),
		observe.F("action", actionType),
		observe.F("actor", identity.Subject))
	return ev, nil
}

func (b *Blocker) verify(token string) (Identity, error) {
	if b.config.Verifier == nil {
		return Identity{}, ErrInvalidToken
	}
	return b.config.Verifier.Verify(token)
}
