package diag

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestDiagnostic_IntegrityHash(t *testing.T) {
	d := New(CategoryPathNotFound, SeverityError, "path missing", TriggerCLI, "tester")

	if d.IntegrityHash == "" {
		t.Fatal("integrity hash not set")
	}
	if !d.VerifyIntegrity() {
		t.Error("freshly created diagnostic does not verify")
	}

	tampered := d
	tampered.Message = "path missing (edited)"
	if tampered.VerifyIntegrity() {
		t.Error("tampered diagnostic still verifies")
	}

	tampered = d
	tampered.Severity = SeverityInfo
	if tampered.VerifyIntegrity() {
		t.Error("severity tampering not detected")
	}
}

func TestSeverity_String(t *testing.T) {
	tests := []struct {
		severity Severity
		want     string
	}{
		{SeverityInfo, "info"},
		{SeverityWarning, "warning"},
		{SeverityError, "error"},
		{SeverityCritical, "critical"},
	}
	for _, tt := range tests {
		if got := tt.severity.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSeverity_JSONRoundTrip(t *testing.T) {
	d := New(CategoryConfigMissing, SeverityCritical, "m", TriggerAPI, "c")

	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"severity":"critical"`) {
		t.Errorf("severity not encoded as string: %s", data)
	}

	var back Diagnostic
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Severity != SeverityCritical {
		t.Errorf("Severity = %v after round trip", back.Severity)
	}
	if !back.VerifyIntegrity() {
		t.Error("round-tripped diagnostic does not verify")
	}
}

func TestActionType_ClosedSet(t *testing.T) {
	valid := []ActionType{
		ActionMkdir, ActionPathUpdate, ActionPathResolve, ActionPathNormalize,
		ActionCacheClear, ActionConfigCreate, ActionStructureVerify,
	}
	for _, a := range valid {
		if !a.Valid() {
			t.Errorf("%s reported invalid", a)
		}
	}
	for _, a := range []ActionType{"EXEC", "SHELL", "mkdir", ""} {
		if a.Valid() {
			t.Errorf("%q reported valid, want rejection", a)
		}
	}
}

func TestNDJSONSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewNDJSONSink(&buf)

	for i := 0; i < 2; i++ {
		if err := sink.Write(New(CategoryRefreshFailure, SeverityWarning, "m", TriggerInternal, "c")); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("sink wrote %d lines, want 2", len(lines))
	}
	for _, line := range lines {
		var d Diagnostic
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			t.Errorf("line is not valid JSON: %v", err)
		}
	}
}
