package diag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestEngine_Diagnose_MissingDirRepair(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "cache")

	found, err := engine.Diagnose(ctx, target, TriggerCLI, "tester")
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("Diagnose() returned %d diagnostics, want 1", len(found))
	}
	d := found[0]
	if d.Category != CategoryPathNotFound {
		t.Errorf("Category = %v, want path_not_found", d.Category)
	}
	if !d.VerifyIntegrity() {
		t.Error("diagnostic integrity hash does not verify")
	}

	solutions := engine.ProposeSolutions(d)
	if len(solutions) != 1 {
		t.Fatalf("ProposeSolutions() returned %d, want 1", len(solutions))
	}
	s := solutions[0]
	if s.Action == nil || s.Action.Type != ActionMkdir || !s.Action.SafeToApply {
		t.Fatalf("solution action = %+v, want safe MKDIR", s.Action)
	}

	if err := engine.Apply(ctx, s); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	info, err := os.Stat(target)
	if err != nil || !info.IsDir() {
		t.Fatalf("directory not created: %v", err)
	}

	// Repaired: a second diagnose finds nothing.
	found, err = engine.Diagnose(ctx, target, TriggerCLI, "tester")
	if err != nil {
		t.Fatalf("second Diagnose() error = %v", err)
	}
	if len(found) != 0 {
		t.Errorf("second Diagnose() = %v, want empty", found)
	}
}

func TestEngine_Apply_Idempotent(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	ctx := context.Background()
	target := filepath.Join(t.TempDir(), "cache")

	s := Solution{
		CanAutoApply: true,
		Action: &AutoApplyAction{
			Type:        ActionMkdir,
			Params:      map[string]string{"path": target},
			SafeToApply: true,
		},
	}

	if err := engine.Apply(ctx, s); err != nil {
		t.Fatalf("first Apply() error = %v", err)
	}
	if err := engine.Apply(ctx, s); err != nil {
		t.Fatalf("repeated Apply() error = %v, want no-op", err)
	}
}

func TestEngine_Apply_Refusals(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	ctx := context.Background()

	tests := []struct {
		name    string
		s       Solution
		wantErr error
	}{
		{
			"not auto-applicable",
			Solution{CanAutoApply: false, Action: &AutoApplyAction{Type: ActionMkdir, SafeToApply: true}},
			ErrNotAutoApplicable,
		},
		{
			"not safe",
			Solution{CanAutoApply: true, Action: &AutoApplyAction{Type: ActionMkdir, SafeToApply: false}},
			ErrNotAutoApplicable,
		},
		{
			"no action",
			Solution{CanAutoApply: true},
			ErrNotAutoApplicable,
		},
		{
			"unknown action type",
			Solution{CanAutoApply: true, Action: &AutoApplyAction{Type: "EXEC", SafeToApply: true}},
			ErrUnknownAction,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := engine.Apply(ctx, tt.s); !errors.Is(err, tt.wantErr) {
				t.Errorf("Apply() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEngine_Diagnose_RejectsHostileInput(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	ctx := context.Background()

	tests := []string{
		"",
		"   ",
		"path\x00with/nul",
		"path\nwith/newline",
		string(make([]byte, maxTargetLength+1)),
	}
	for _, target := range tests {
		if _, err := engine.Diagnose(ctx, target, TriggerAPI, "t"); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Diagnose(%q) error = %v, want ErrInvalidInput", target, err)
		}
	}
}

func TestEngine_Diagnose_ConfigMissing(t *testing.T) {
	dir := t.TempDir()
	engine := NewEngine(EngineConfig{ConfigFileName: "repguard.json"})
	ctx := context.Background()

	found, err := engine.Diagnose(ctx, dir, TriggerCLI, "tester")
	if err != nil {
		t.Fatalf("Diagnose() error = %v", err)
	}
	if len(found) != 1 || found[0].Category != CategoryConfigMissing {
		t.Fatalf("Diagnose() = %+v, want one config_missing", found)
	}

	solutions := engine.ProposeSolutions(found[0])
	if len(solutions) != 1 || solutions[0].Action.Type != ActionConfigCreate {
		t.Fatalf("ProposeSolutions() = %+v, want CONFIG_CREATE", solutions)
	}
	if err := engine.Apply(ctx, solutions[0]); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "repguard.json"))
	if err != nil {
		t.Fatalf("config not created: %v", err)
	}
	if string(content) != "{}\n" {
		t.Errorf("config content = %q, want default", content)
	}

	// Idempotent: existing config is left alone.
	if err := os.WriteFile(filepath.Join(dir, "repguard.json"), []byte(`{"keep":"me"}`), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := engine.Apply(ctx, solutions[0]); err != nil {
		t.Fatalf("repeated Apply() error = %v", err)
	}
	content, _ = os.ReadFile(filepath.Join(dir, "repguard.json"))
	if string(content) != `{"keep":"me"}` {
		t.Errorf("repeated apply rewrote an existing config: %q", content)
	}
}

func TestEngine_CacheClear(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	ctx := context.Background()
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("f%d", i)), []byte("x"), 0o640); err != nil {
			t.Fatal(err)
		}
	}

	s := Solution{
		CanAutoApply: true,
		Action: &AutoApplyAction{
			Type:        ActionCacheClear,
			Params:      map[string]string{"path": dir},
			SafeToApply: true,
		},
	}
	if err := engine.Apply(ctx, s); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("cache dir not cleared: %d entries remain", len(entries))
	}

	// Clearing an already-empty (or absent) dir is a no-op.
	if err := engine.Apply(ctx, s); err != nil {
		t.Fatalf("repeated Apply() error = %v", err)
	}
	s.Action.Params["path"] = filepath.Join(dir, "never-existed")
	if err := engine.Apply(ctx, s); err != nil {
		t.Fatalf("Apply() on missing dir error = %v", err)
	}
}

func TestEngine_PathUpdate(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	ctx := context.Background()
	cfg := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(cfg, []byte(`{"cache_dir":"/old"}`), 0o640); err != nil {
		t.Fatal(err)
	}

	s := Solution{
		CanAutoApply: true,
		Action: &AutoApplyAction{
			Type: ActionPathUpdate,
			Params: map[string]string{
				"config": cfg,
				"key":    "cache_dir",
				"path":   "/new/cache",
			},
			SafeToApply: true,
		},
	}
	if err := engine.Apply(ctx, s); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	// Same end state on retry.
	if err := engine.Apply(ctx, s); err != nil {
		t.Fatalf("repeated Apply() error = %v", err)
	}

	raw, _ := os.ReadFile(cfg)
	if want := `"cache_dir":"/new/cache"`; !strings.Contains(string(raw), want) {
		t.Errorf("config = %s, want %s", raw, want)
	}
}

func TestEngine_StructureVerify(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	ctx := context.Background()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "entries"), 0o750); err != nil {
		t.Fatal(err)
	}

	s := Solution{
		CanAutoApply: true,
		Action: &AutoApplyAction{
			Type: ActionStructureVerify,
			Params: map[string]string{
				"path":    dir,
				"entries": "entries",
			},
			SafeToApply: true,
		},
	}
	if err := engine.Apply(ctx, s); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	s.Action.Params["entries"] = "entries, missing-part"
	if err := engine.Apply(ctx, s); !errors.Is(err, ErrVerifyFailed) {
		t.Errorf("Apply() with missing entry error = %v, want ErrVerifyFailed", err)
	}
}

func TestEngine_BoundedHistoryFIFO(t *testing.T) {
	const capN = 5
	engine := NewEngine(EngineConfig{HistorySize: capN})
	ctx := context.Background()

	for i := 0; i < capN+1; i++ {
		d := New(CategoryRefreshFailure, SeverityWarning,
			fmt.Sprintf("event %d", i), TriggerInternal, "test")
		engine.Record(ctx, d)
	}

	history := engine.History()
	if len(history) != capN {
		t.Fatalf("History() length = %d, want %d", len(history), capN)
	}
	if history[0].Message != "event 1" {
		t.Errorf("oldest retained = %q, want %q (event 0 evicted first)", history[0].Message, "event 1")
	}
	if history[capN-1].Message != fmt.Sprintf("event %d", capN) {
		t.Errorf("newest retained = %q", history[capN-1].Message)
	}
}

func TestEngine_ConcurrentRecordAndHistory(t *testing.T) {
	engine := NewEngine(EngineConfig{HistorySize: 32})
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				engine.Record(ctx, New(CategoryRefreshFailure, SeverityInfo,
					fmt.Sprintf("w%d-%d", w, i), TriggerInternal, "test"))
				_ = engine.History()
			}
		}(w)
	}
	wg.Wait()

	if got := len(engine.History()); got != 32 {
		t.Errorf("History() length = %d, want full ring of 32", got)
	}
}

func TestEngine_RecordRefreshFailure(t *testing.T) {
	engine := NewEngine(EngineConfig{})
	engine.RecordRefreshFailure("entity:1", errors.New("origin down"))

	history := engine.History()
	if len(history) != 1 {
		t.Fatalf("History() length = %d, want 1", len(history))
	}
	d := history[0]
	if d.Category != CategoryRefreshFailure || d.TriggeredBy != TriggerInternal {
		t.Errorf("recorded = %+v", d)
	}
	if !d.VerifyIntegrity() {
		t.Error("integrity hash does not verify")
	}
}
