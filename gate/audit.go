package gate

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// AuditLog is the append-only record of gate decisions, ordered by a
// monotonically increasing sequence per (entity, action type). Entries are
// never reordered or rewritten; the optional sink receives each entry as
// one newline-delimited JSON record.
type AuditLog struct {
	mu      sync.Mutex
	seq     uint64
	entries map[string][]Evaluation // keyed by entity ID
	sink    io.Writer
}

// NewAuditLog creates an in-memory audit log. sink may be nil.
func NewAuditLog(sink io.Writer) *AuditLog {
	return &AuditLog{entries: make(map[string][]Evaluation), sink: sink}
}

// OpenAuditFile opens (creating if needed) an append-only NDJSON audit
// file for use as a sink.
func OpenAuditFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("gate: open audit file: %w", err)
	}
	return f, nil
}

// Append assigns the next sequence number and stores the evaluation. The
// stored record is immutable from this point on.
func (l *AuditLog) Append(ev Evaluation) Evaluation {
	l.mu.Lock()
	l.seq++
	ev.Sequence = l.seq
	l.entries[ev.EntityID] = append(l.entries[ev.EntityID], ev)

	if l.sink != nil {
		// Written under the lock so sink order matches sequence order.
		// Sink write failures do not affect the in-memory log.
		if line, err := json.Marshal(ev); err == nil {
			_, _ = l.sink.Write(append(line, '\n'))
		}
	}
	l.mu.Unlock()
	return ev
}

// Entries returns up to limit most recent evaluations for an entity,
// oldest first. limit <= 0 returns all of them.
func (l *AuditLog) Entries(entityID string, limit int) []Evaluation {
	l.mu.Lock()
	defer l.mu.Unlock()

	all := l.entries[entityID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]Evaluation, len(all))
	copy(out, all)
	return out
}

// Last returns the most recent evaluation for (entity, action type), if any.
func (l *AuditLog) Last(entityID, actionType string) (Evaluation, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	all := l.entries[entityID]
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ActionType == actionType {
			return all[i], true
		}
	}
	return Evaluation{}, false
}
