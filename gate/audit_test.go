package gate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestAuditLog_AppendAndEntries(t *testing.T) {
	log := NewAuditLog(nil)

	for i := 0; i < 4; i++ {
		log.Append(newEvaluation("e1", "payment", false, nil, nil))
	}
	log.Append(newEvaluation("e2", "payment", true, []ReasonCode{ReasonLowReputation}, nil))

	entries := log.Entries("e1", 0)
	if len(entries) != 4 {
		t.Fatalf("Entries(e1) = %d, want 4", len(entries))
	}
	for i, e := range entries {
		if e.Sequence != uint64(i+1) {
			t.Errorf("entry %d sequence = %d, want %d", i, e.Sequence, i+1)
		}
	}
	if e := log.Entries("e2", 0); len(e) != 1 || e[0].Sequence != 5 {
		t.Errorf("Entries(e2) = %+v, want single entry with sequence 5", e)
	}

	// Limit keeps the most recent entries, still oldest-first.
	tail := log.Entries("e1", 2)
	if len(tail) != 2 || tail[0].Sequence != 3 || tail[1].Sequence != 4 {
		t.Errorf("Entries(e1, 2) sequences = %v", []uint64{tail[0].Sequence, tail[1].Sequence})
	}
}

func TestAuditLog_Last(t *testing.T) {
	log := NewAuditLog(nil)
	log.Append(newEvaluation("e1", "payment", true, []ReasonCode{ReasonPenaltyActive}, nil))
	log.Append(newEvaluation("e1", "transfer", false, nil, nil))
	log.Append(newEvaluation("e1", "payment", false, nil, nil))

	last, ok := log.Last("e1", "payment")
	if !ok || last.Blocked || last.Sequence != 3 {
		t.Errorf("Last(e1, payment) = %+v, ok=%v", last, ok)
	}
	if _, ok := log.Last("e1", "refund"); ok {
		t.Error("Last() found an entry for an action type never evaluated")
	}
	if _, ok := log.Last("ghost", "payment"); ok {
		t.Error("Last() found an entry for an unknown entity")
	}
}

func TestAuditLog_SinkWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewAuditLog(&buf)

	log.Append(newEvaluation("e1", "payment", true, []ReasonCode{ReasonLowReputation}, nil))
	log.Append(newEvaluation("e1", "payment", false, nil, nil))

	var seqs []uint64
	sc := bufio.NewScanner(&buf)
	for sc.Scan() {
		var ev Evaluation
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("sink line is not valid JSON: %v", err)
		}
		if !ev.VerifyIntegrity() {
			t.Errorf("persisted entry %s fails integrity verification", ev.EvaluationID)
		}
		seqs = append(seqs, ev.Sequence)
	}
	if len(seqs) != 2 || seqs[0] != 1 || seqs[1] != 2 {
		t.Errorf("sink sequences = %v, want [1 2]", seqs)
	}
}

func TestAuditLog_ConcurrentAppend(t *testing.T) {
	log := NewAuditLog(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				log.Append(newEvaluation("e1", "payment", false, nil, nil))
			}
		}()
	}
	wg.Wait()

	entries := log.Entries("e1", 0)
	if len(entries) != 200 {
		t.Fatalf("entries = %d, want 200", len(entries))
	}
	seen := make(map[uint64]bool, len(entries))
	for _, e := range entries {
		if seen[e.Sequence] {
			t.Fatalf("duplicate sequence %d", e.Sequence)
		}
		seen[e.Sequence] = true
	}
}

func TestOpenAuditFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.ndjson")

	f, err := OpenAuditFile(path)
	if err != nil {
		t.Fatalf("OpenAuditFile: %v", err)
	}
	log := NewAuditLog(f)
	log.Append(newEvaluation("e1", "payment", false, nil, nil))
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopening appends instead of truncating.
	f, err = OpenAuditFile(path)
	if err != nil {
		t.Fatalf("OpenAuditFile reopen: %v", err)
	}
	log = NewAuditLog(f)
	log.Append(newEvaluation("e1", "payment", false, nil, nil))
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if lines := bytes.Count(data, []byte("\n")); lines != 2 {
		t.Errorf("audit file lines = %d, want 2", lines)
	}
}
