package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ReasonCode identifies why an evaluation blocked.
type ReasonCode string

const (
	ReasonLowReputation     ReasonCode = "LOW_REPUTATION"
	ReasonPenaltyActive     ReasonCode = "PENALTY_ACTIVE"
	ReasonHighViolationRate ReasonCode = "HIGH_VIOLATION_RATE"
	ReasonRecentViolation   ReasonCode = "RECENT_VIOLATION"
	ReasonSuspiciousPattern ReasonCode = "SUSPICIOUS_PATTERN"
	ReasonManualHold        ReasonCode = "MANUAL_HOLD"
)

// Unblock progress criterion names.
const (
	CriterionReputation      = "reputation"
	CriterionPenaltyClean    = "penalty_clean"
	CriterionViolationFree   = "violation_free"
	CriterionPositiveActions = "positive_actions"
)

// Evaluation is one immutable gate decision. It is appended to the audit
// log and never mutated afterwards.
type Evaluation struct {
	EvaluationID string    `json:"evaluation_id"`
	Sequence     uint64    `json:"sequence"`
	Timestamp    time.Time `json:"timestamp"`
	EntityID     string    `json:"entity_id"`
	ActionType   string    `json:"action_type"`
	Blocked      bool      `json:"is_blocked"`

	// Reasons is the set of triggered block conditions, sorted for
	// deterministic hashing.
	Reasons []ReasonCode `json:"reasons,omitempty"`

	// UnblockProgress maps each unblock criterion to its normalized 0..1
	// progress. Present only while blocked.
	UnblockProgress map[string]float64 `json:"unblock_progress,omitempty"`

	// Actor and Note are set on manual hold/release records.
	Actor string `json:"actor,omitempty"`
	Note  string `json:"note,omitempty"`

	IntegrityHash string `json:"integrity_hash"`
}

// newEvaluation builds an evaluation with its ID, timestamp, and integrity
// hash set. Reasons are deduplicated and sorted.
func newEvaluation(entityID, actionType string, blocked bool, reasons []ReasonCode, progress map[string]float64) Evaluation {
	ev := Evaluation{
		EvaluationID:    uuid.NewString(),
		Timestamp:       time.Now().UTC(),
		EntityID:        entityID,
		ActionType:      actionType,
		Blocked:         blocked,
		Reasons:         normalizeReasons(reasons),
		UnblockProgress: progress,
	}
	ev.IntegrityHash = ev.computeHash()
	return ev
}

// newOverrideEvaluation builds a manual hold/release audit record carrying
// the acting identity and reason.
func newOverrideEvaluation(entityID, actionType string, blocked bool, actor, note string) Evaluation {
	ev := Evaluation{
		EvaluationID: uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		EntityID:     entityID,
		ActionType:   actionType,
		Blocked:      blocked,
		Actor:        actor,
		Note:         note,
	}
	if blocked {
		ev.Reasons = []ReasonCode{ReasonManualHold}
	}
	ev.IntegrityHash = ev.computeHash()
	return ev
}

func normalizeReasons(reasons []ReasonCode) []ReasonCode {
	if len(reasons) == 0 {
		return nil
	}
	seen := make(map[ReasonCode]struct{}, len(reasons))
	out := make([]ReasonCode, 0, len(reasons))
	for _, r := range reasons {
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasReason reports whether the evaluation carries the given reason code.
func (e Evaluation) HasReason(code ReasonCode) bool {
	for _, r := range e.Reasons {
		if r == code {
			return true
		}
	}
	return false
}

func (e Evaluation) computeHash() string {
	reasons := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		reasons[i] = string(r)
	}

	criteria := make([]string, 0, len(e.UnblockProgress))
	for k, v := range e.UnblockProgress {
		criteria = append(criteria, fmt.Sprintf("%s=%.6f", k, v))
	}
	sort.Strings(criteria)

	payload := fmt.Sprintf("%s|%s|%s|%s|%t|%s|%s|%s|%s",
		e.EvaluationID,
		e.Timestamp.Format(time.RFC3339Nano),
		e.EntityID,
		e.ActionType,
		e.Blocked,
		strings.Join(reasons, ","),
		strings.Join(criteria, ","),
		e.Actor,
		e.Note)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the hash and compares it to the stored one.
func (e Evaluation) VerifyIntegrity() bool {
	return e.IntegrityHash == e.computeHash()
}
