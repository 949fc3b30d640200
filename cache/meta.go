package cache

import (
	"math"
	"time"
)

// scaleTTL multiplies a duration by a factor, rounding to the nearest
// nanosecond so factor tables like x0.7 land on exact values.
func scaleTTL(d time.Duration, factor float64) time.Duration {
	return time.Duration(math.Round(float64(d) * factor))
}

// priorityEpsilon keeps the eviction cost function defined at priority 0.
const priorityEpsilon = 0.01

// RewardLevel is a discrete positive behavioral classification attached to
// a write. Higher levels boost entry priority and stretch TTL.
type RewardLevel int

const (
	RewardNone RewardLevel = iota
	RewardAcknowledged
	RewardRewarded
	RewardPromoted
)

// String returns the string representation of the reward level.
func (r RewardLevel) String() string {
	switch r {
	case RewardAcknowledged:
		return "acknowledged"
	case RewardRewarded:
		return "rewarded"
	case RewardPromoted:
		return "promoted"
	default:
		return "none"
	}
}

// ParseRewardLevel parses a string reward level. Unknown strings map to
// RewardNone.
func ParseRewardLevel(s string) RewardLevel {
	switch s {
	case "acknowledged":
		return RewardAcknowledged
	case "rewarded":
		return RewardRewarded
	case "promoted":
		return RewardPromoted
	default:
		return RewardNone
	}
}

// PenaltyLevel is a discrete negative behavioral classification attached to
// a write. Higher levels cut entry priority and shrink TTL.
type PenaltyLevel int

const (
	PenaltyNone PenaltyLevel = iota
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
		return "none"
	}
}

// ParsePenaltyLevel parses a string penalty level. Unknown strings map to
// PenaltyNone.
func ParsePenaltyLevel(s string) PenaltyLevel {
	switch s {
	case "warned":
		return PenaltyWarned
	case "fined":
		return PenaltyFined
	case "banned":
		return PenaltyBanned
	default:
		return PenaltyNone
	}
}

// Modulation tables. Rewards boost priority and stretch TTL; penalties cut
// priority and shrink TTL. Results are clamped by Modulate.
var (
	rewardPriorityBoost = map[RewardLevel]float64{
		RewardAcknowledged: 0.1,
		RewardRewarded:     0.2,
		RewardPromoted:     0.3,
	}
	rewardTTLFactor = map[RewardLevel]float64{
		RewardAcknowledged: 1.1,
		RewardRewarded:     1.3,
		RewardPromoted:     1.5,
	}
	penaltyPriorityCut = map[PenaltyLevel]float64{
		PenaltyWarned: 0.1,
		PenaltyFined:  0.3,
		PenaltyBanned: 0.5,
	}
	penaltyTTLFactor = map[PenaltyLevel]float64{
		PenaltyWarned: 0.9,
		PenaltyFined:  0.7,
		PenaltyBanned: 0.5,
	}
)

// Meta holds per-entry cache metadata. Meta is an immutable value type:
// refresh replaces the whole entry, it never mutates fields in place.
type Meta struct {
	CreatedAt     time.Time     `json:"created_at"`
	TTL           time.Duration `json:"ttl"`
	SoftTTL       time.Duration `json:"soft_ttl"`
	Priority      float64       `json:"priority"`
	Reward        RewardLevel   `json:"reward,omitempty"`
	Penalty       PenaltyLevel  `json:"penalty,omitempty"`
	SchemaVersion int           `json:"schema_version"`
	Provenance    string        `json:"provenance,omitempty"`
}

// Modulate applies the reward/penalty tables to priority and TTL and clamps
// the result so that 0 <= priority <= 1 and TTL > 0. SoftTTL is rescaled to
// keep its original proportion of TTL and never exceeds TTL.
func (m Meta) Modulate() Meta {
	softFrac := 1.0
	if m.TTL > 0 {
		softFrac = float64(m.SoftTTL) / float64(m.TTL)
	}

	if boost, ok := rewardPriorityBoost[m.Reward]; ok {
		m.Priority += boost
		m.TTL = scaleTTL(m.TTL, rewardTTLFactor[m.Reward])
	}
	if cut, ok := penaltyPriorityCut[m.Penalty]; ok {
		m.Priority -= cut
		m.TTL = scaleTTL(m.TTL, penaltyTTLFactor[m.Penalty])
	}

	if m.Priority < 0 {
		m.Priority = 0
	}
	if m.Priority > 1 {
		m.Priority = 1
	}
	if m.TTL <= 0 {
		m.TTL = time.Second
	}

	m.SoftTTL = scaleTTL(m.TTL, softFrac)
	if m.SoftTTL > m.TTL {
		m.SoftTTL = m.TTL
	}
	if m.SoftTTL <= 0 {
		m.SoftTTL = m.TTL
	}
	return m
}

// Valid reports whether the metadata satisfies the entry invariants.
func (m Meta) Valid() bool {
	return m.TTL > 0 && m.SoftTTL > 0 && m.SoftTTL <= m.TTL &&
		m.Priority >= 0 && m.Priority <= 1 && !m.CreatedAt.IsZero()
}

// Freshness describes the lifecycle position of an entry at some instant.
type Freshness int

const (
	// Fresh means the entry is within its soft TTL.
	Fresh Freshness = iota
	// Stale means the entry is past its soft TTL but within its TTL.
	// Stale entries are served while a background refresh runs.
	Stale
	// Expired means the entry is past its TTL and unusable.
	Expired
)

// String returns the string representation of the freshness state.
func (f Freshness) String() string {
	switch f {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Expired:
		return "expired"
	default:
		return "unknown"
	}
}

// Entry is a cached value plus its metadata. Entries are replaced
// wholesale on refresh, never partially mutated.
type Entry struct {
	Value []byte `json:"value"`
	Meta  Meta   `json:"meta"`
}

// FreshnessAt returns the entry's freshness at the given instant.
func (e Entry) FreshnessAt(now time.Time) Freshness {
	age := now.Sub(e.Meta.CreatedAt)
	switch {
	case age < e.Meta.SoftTTL:
		return Fresh
	case age < e.Meta.TTL:
		return Stale
	default:
		return Expired
	}
}

// Size returns the entry's value size in bytes.
func (e Entry) Size() int {
	return len(e.Value)
}

// Cost is the eviction weight: larger, lower-priority entries evict first.
func (e Entry) Cost() float64 {
	return float64(e.Size()) / (e.Meta.Priority + priorityEpsilon)
}

// Corrupt reports whether the entry violates its structural invariants and
// should be removed by the guardrail purge.
func (e Entry) Corrupt() bool {
	return e.Value == nil || !e.Meta.Valid()
}
