package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jonwraymond/repguard/observe"
)

const maxTargetLength = 4096

// EngineConfig configures the diagnostic engine.
type EngineConfig struct {
	// HistorySize bounds the diagnostic ring buffer. Insertion beyond
	// capacity drops the oldest entry.
	// Default: 256
	HistorySize int

	// ConfigFileName, when set, is a config file expected inside every
	// diagnosed directory; its absence produces a config_missing
	// diagnostic with a CONFIG_CREATE solution.
	ConfigFileName string

	// DefaultConfig is the content CONFIG_CREATE writes.
	// Default: "{}\n"
	DefaultConfig string

	// Sink, when set, receives every recorded diagnostic as one
	// newline-delimited JSON record. Append-only.
	Sink Sink

	// Logger defaults to a no-op logger.
	Logger observe.Logger

	// Metrics defaults to no-op instruments.
	Metrics *observe.Metrics
}

type handlerFunc func(ctx context.Context, params map[string]string) error

// Engine detects structural and cache-health issues and applies typed
// remediation actions. All public methods are safe for concurrent use.
type Engine struct {
	config   EngineConfig
	handlers map[ActionType]handlerFunc

	mu      sync.Mutex
	history []Diagnostic
	head    int
	count   int
}

// NewEngine creates a diagnostic engine.
func NewEngine(config EngineConfig) *Engine {
	if config.HistorySize <= 0 {
		config.HistorySize = 256
	}
	if config.DefaultConfig == "" {
		config.DefaultConfig = "{}\n"
	}
	if config.Logger == nil {
		config.Logger = observe.Nop()
	}
	if config.Metrics == nil {
		config.Metrics = observe.NopMetrics()
	}

	e := &Engine{
		config:  config,
		history: make([]Diagnostic, config.HistorySize),
	}
	// Fixed dispatch table. There is deliberately no entry that evaluates
	// caller-supplied code.
	e.handlers = map[ActionType]handlerFunc{
		ActionMkdir:           e.applyMkdir,
		ActionPathUpdate:      e.applyPathUpdate,
		ActionPathResolve:     e.applyPathResolve,
		ActionPathNormalize:   e.applyPathNormalize,
		ActionCacheClear:      e.applyCacheClear,
		ActionConfigCreate:    e.applyConfigCreate,
		ActionStructureVerify: e.applyStructureVerify,
	}
	return e
}

// sanitize rejects paths with null bytes or control characters before any
// filesystem lookup.
func sanitize(target string) error {
	if target == "" || strings.TrimSpace(target) == "" {
		return ErrInvalidInput
	}
	if len(target) > maxTargetLength {
		return ErrInvalidInput
	}
	for _, r := range target {
		if r < 0x20 || r == 0x7f {
			return ErrInvalidInput
		}
	}
	return nil
}

// Diagnose validates target and checks it for structural issues. Every
// finding is recorded in the bounded history (and the sink, if any) and
// returned. A healthy target yields an empty list.
func (e *Engine) Diagnose(ctx context.Context, target string, trigger Trigger, callerID string) ([]Diagnostic, error) {
	if err := sanitize(target); err != nil {
		return nil, err
	}

	var found []Diagnostic
	report := func(category Category, severity Severity, format string, args ...any) {
		d := New(category, severity, fmt.Sprintf(format, args...), trigger, callerID)
		d.Target = target
		found = append(found, d)
	}

	if clean := filepath.Clean(target); clean != target {
		report(CategoryPathNotNormalized, SeverityInfo,
			"path %q is not in normalized form (%q)", target, clean)
	}

	info, err := os.Stat(target)
	switch {
	case os.IsNotExist(err):
		report(CategoryPathNotFound, SeverityError, "path %q does not exist", target)
	case err != nil:
		report(CategoryStructureInvalid, SeverityError, "path %q cannot be inspected: %v", target, err)
	case !info.IsDir():
		report(CategoryPathNotDir, SeverityError, "path %q exists but is not a directory", target)
	default:
		if !e.writable(target) {
			report(CategoryPathNotWritable, SeverityWarning, "directory %q is not writable", target)
		}
		if e.config.ConfigFileName != "" {
			cfg := filepath.Join(target, e.config.ConfigFileName)
			if _, err := os.Stat(cfg); os.IsNotExist(err) {
				report(CategoryConfigMissing, SeverityWarning, "config file %q is missing", cfg)
			}
		}
	}

	for _, d := range found {
		e.Record(ctx, d)
	}
	return found, nil
}

// writable probes the directory with a short-lived file rather than
// trusting permission bits.
func (e *Engine) writable(dir string) bool {
	f, err := os.CreateTemp(dir, ".diagprobe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}

// ProposeSolutions maps a diagnostic's category to zero or more candidate
// fixes, each carrying at most one action from the closed set.
func (e *Engine) ProposeSolutions(d Diagnostic) []Solution {
	switch d.Category {
	case CategoryPathNotFound:
		return []Solution{{
			Description:  fmt.Sprintf("create directory %q", d.Target),
			Confidence:   0.95,
			CanAutoApply: true,
			Action: &AutoApplyAction{
				Type:        ActionMkdir,
				Params:      map[string]string{"path": d.Target},
				SafeToApply: true,
			},
		}}
	case CategoryPathNotNormalized:
		return []Solution{{
			Description:  fmt.Sprintf("normalize path %q", d.Target),
			Confidence:   0.9,
			CanAutoApply: true,
			Action: &AutoApplyAction{
				Type:        ActionPathNormalize,
				Params:      map[string]string{"path": d.Target},
				SafeToApply: true,
			},
		}}
	case CategoryConfigMissing:
		path := d.Target
		if e.config.ConfigFileName != "" {
			path = filepath.Join(d.Target, e.config.ConfigFileName)
		}
		return []Solution{{
			Description:  fmt.Sprintf("create default config %q", path),
			Confidence:   0.9,
			CanAutoApply: true,
			Action: &AutoApplyAction{
				Type: ActionConfigCreate,
				Params: map[string]string{
					"path":    path,
					"content": e.config.DefaultConfig,
				},
				SafeToApply: true,
			},
		}}
	case CategoryCacheCorrupt:
		// Clearing cached data is recoverable but destructive; it needs an
		// explicit safety opt-in before Apply will run it.
		return []Solution{{
			Description:  fmt.Sprintf("clear cache contents under %q", d.Target),
			Confidence:   0.7,
			CanAutoApply: true,
			Action: &AutoApplyAction{
				Type:        ActionCacheClear,
				Params:      map[string]string{"path": d.Target},
				SafeToApply: false,
			},
		}}
	case CategoryPathNotDir, CategoryStructureInvalid:
		return []Solution{{
			Description:  fmt.Sprintf("inspect structure at %q and move the conflicting entry aside", d.Target),
			Confidence:   0.5,
			CanAutoApply: false,
		}}
	default:
		return nil
	}
}

// Apply runs a solution's action through the fixed handler table. It is
// permitted only for solutions marked both auto-applicable and safe.
func (e *Engine) Apply(ctx context.Context, s Solution) error {
	if !s.CanAutoApply || s.Action == nil || !s.Action.SafeToApply {
		return ErrNotAutoApplicable
	}
	if !s.Action.Type.Valid() {
		return ErrUnknownAction
	}
	handler, ok := e.handlers[s.Action.Type]
	if !ok {
		return ErrUnknownAction
	}
	if err := handler(ctx, s.Action.Params); err != nil {
		return fmt.Errorf("diag: apply %s: %w", s.Action.Type, err)
	}
	e.config.Logger.Info(ctx, "remediation applied",
		observe.F("action", string(s.Action.Type)))
	return nil
}

// Record appends a diagnostic to the bounded history and the sink, if any.
// Beyond capacity the oldest entry is silently dropped.
func (e *Engine) Record(ctx context.Context, d Diagnostic) {
	e.mu.Lock()
	idx := (e.head + e.count) % len(e.history)
	if e.count == len(e.history) {
		e.head = (e.head + 1) % len(e.history)
		idx = (e.head + e.count - 1) % len(e.history)
	} else {
		e.count++
	}
	e.history[idx] = d
	e.mu.Unlock()

	observe.Add(ctx, e.config.Metrics.Diagnostics, 1)
	e.config.Logger.Debug(ctx, "diagnostic recorded",
		observe.F("category", string(d.Category)),
		observe.F("severity", d.Severity.String()))

	if e.config.Sink != nil {
		if err := e.config.Sink.Write(d); err != nil {
			e.config.Logger.Warn(ctx, "diagnostic sink write failed",
				observe.F("error", err.Error()))
		}
	}
}

// RecordRefreshFailure is the hook point for the cache layer's refresh
// failure reports.
func (e *Engine) RecordRefreshFailure(key string, err error) {
	d := New(CategoryRefreshFailure, SeverityWarning,
		fmt.Sprintf("background refresh failed for %q: %v", key, err),
		TriggerInternal, "cache")
	d.Target = key
	e.Record(context.Background(), d)
}

// History returns a snapshot of retained diagnostics, oldest first.
func (e *Engine) History() []Diagnostic {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Diagnostic, 0, e.count)
	for i := 0; i < e.count; i++ {
		out = append(out, e.history[(e.head+i)%len(e.history)])
	}
	return out
}

// Handlers. Each one is idempotent and verifies its own end state before
// reporting success; none leaves a partial filesystem mutation behind.

func requireParam(params map[string]string, name string) (string, error) {
	v, ok := params[name]
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingParam, name)
	}
	if err := sanitize(v); err != nil {
		return "", err
	}
	return v, nil
}

func (e *Engine) applyMkdir(_ context.Context, params map[string]string) error {
	path, err := requireParam(params, "path")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return ErrVerifyFailed
	}
	return nil
}

func (e *Engine) applyPathUpdate(_ context.Context, params map[string]string) error {
	cfgPath, err := requireParam(params, "config")
	if err != nil {
		return err
	}
	key, err := requireParam(params, "key")
	if err != nil {
		return err
	}
	value, err := requireParam(params, "path")
	if err != nil {
		return err
	}

	doc := make(map[string]any)
	if raw, err := os.ReadFile(cfgPath); err == nil {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return fmt.Errorf("config is not valid JSON: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return err
	}
	doc[key] = value

	if err := writeFileAtomic(cfgPath, mustJSON(doc)); err != nil {
		return err
	}

	// Self-verify by re-reading.
	raw, err := os.ReadFile(cfgPath)
	if err != nil {
		return ErrVerifyFailed
	}
	check := make(map[string]any)
	if err := json.Unmarshal(raw, &check); err != nil || check[key] != value {
		return ErrVerifyFailed
	}
	return nil
}

func (e *Engine) applyPathResolve(_ context.Context, params map[string]string) error {
	path, err := requireParam(params, "path")
	if err != nil {
		return err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := filepath.EvalSymlinks(abs); err != nil {
		return err
	}
	return nil
}

func (e *Engine) applyPathNormalize(_ context.Context, params map[string]string) error {
	path, err := requireParam(params, "path")
	if err != nil {
		return err
	}
	if _, err := filepath.Abs(filepath.Clean(path)); err != nil {
		return err
	}
	return nil
}

func (e *Engine) applyCacheClear(_ context.Context, params map[string]string) error {
	path, err := requireParam(params, "path")
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(path)
	if os.IsNotExist(err) {
		// Nothing to clear.
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(path, entry.Name())); err != nil {
			return err
		}
	}
	remaining, err := os.ReadDir(path)
	if err != nil || len(remaining) != 0 {
		return ErrVerifyFailed
	}
	return nil
}

func (e *Engine) applyConfigCreate(_ context.Context, params map[string]string) error {
	path, err := requireParam(params, "path")
	if err != nil {
		return err
	}
	content := params["content"]
	if content == "" {
		content = e.config.DefaultConfig
	}
	if _, err := os.Stat(path); err == nil {
		// Already present: creating again is a no-op, not an error.
		return nil
	}
	if err := writeFileAtomic(path, []byte(content)); err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		return ErrVerifyFailed
	}
	return nil
}

func (e *Engine) applyStructureVerify(_ context.Context, params map[string]string) error {
	path, err := requireParam(params, "path")
	if err != nil {
		return err
	}
	var missing []string
	for _, name := range strings.Split(params["entries"], ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(path, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrVerifyFailed, strings.Join(missing, ", "))
	}
	return nil
}

// writeFileAtomic writes via a temp file and rename so readers never see a
// partial config.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".diagtmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// map[string]any with string values cannot fail to marshal.
		panic(err)
	}
	return append(data, '\n')
}
