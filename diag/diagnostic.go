package diag

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Severity classifies how serious a diagnostic is.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// String returns the string representation of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// MarshalJSON encodes the severity as its string form.
func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON decodes a string severity.
func (s *Severity) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"warning"`:
		*s = SeverityWarning
	case `"error"`:
		*s = SeverityError
	case `"critical"`:
		*s = SeverityCritical
	default:
		*s = SeverityInfo
	}
	return nil
}

// Trigger records what kind of caller produced a diagnostic.
type Trigger string

const (
	TriggerCLI      Trigger = "cli"
	TriggerAPI      Trigger = "api"
	TriggerInternal Trigger = "internal"
	TriggerScript   Trigger = "script"
)

// Category identifies the class of issue a diagnostic describes.
type Category string

const (
	CategoryPathNotFound      Category = "path_not_found"
	CategoryPathNotDir        Category = "path_not_dir"
	CategoryPathNotWritable   Category = "path_not_writable"
	CategoryPathNotNormalized Category = "path_not_normalized"
	CategoryConfigMissing     Category = "config_missing"
	CategoryStructureInvalid  Category = "structure_invalid"
	CategoryCacheCorrupt      Category = "cache_corrupt"
	CategoryRefreshFailure    Category = "refresh_failure"
)

// Diagnostic is a single detected issue. Diagnostics are immutable once
// created; resolution happens by applying a Solution, never by editing the
// record.
type Diagnostic struct {
	Category    Category  `json:"category"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message"`
	TriggeredBy Trigger   `json:"triggered_by"`
	CallerID    string    `json:"caller_id,omitempty"`
	Target      string    `json:"target,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// IntegrityHash covers the provenance fields above (except Target)
	// for tamper detection.
	IntegrityHash string `json:"integrity_hash"`
}

// New creates a diagnostic with its timestamp and integrity hash set.
func New(category Category, severity Severity, message string, trigger Trigger, callerID string) Diagnostic {
	d := Diagnostic{
		Category:    category,
		Severity:    severity,
		Message:     message,
		TriggeredBy: trigger,
		CallerID:    callerID,
		Timestamp:   time.Now().UTC(),
	}
	d.IntegrityHash = d.computeHash()
	return d
}

func (d Diagnostic) computeHash() string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s",
		d.Category, d.Severity, d.Message, d.TriggeredBy, d.CallerID,
		d.Timestamp.Format(time.RFC3339Nano))
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// VerifyIntegrity recomputes the hash and compares it to the stored one.
func (d Diagnostic) VerifyIntegrity() bool {
	return d.IntegrityHash == d.computeHash()
}
