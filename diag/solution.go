package diag

// ActionType is a member of the closed remediation action set. Actions are
// dispatched through a fixed handler table keyed by this type; an action is
// never an executable string.
type ActionType string

const (
	ActionMkdir           ActionType = "MKDIR"
	ActionPathUpdate      ActionType = "PATH_UPDATE"
	ActionPathResolve     ActionType = "PATH_RESOLVE"
	ActionPathNormalize   ActionType = "PATH_NORMALIZE"
	ActionCacheClear      ActionType = "CACHE_CLEAR"
	ActionConfigCreate    ActionType = "CONFIG_CREATE"
	ActionStructureVerify ActionType = "STRUCTURE_VERIFY"
)

// Valid reports membership in the closed action set.
func (a ActionType) Valid() bool {
	switch a {
	case ActionMkdir, ActionPathUpdate, ActionPathResolve, ActionPathNormalize,
		ActionCacheClear, ActionConfigCreate, ActionStructureVerify:
		return true
	default:
		return false
	}
}

// AutoApplyAction is a typed, parameterized remediation step.
type AutoApplyAction struct {
	Type ActionType `json:"type"`

	// Params are the handler's typed string parameters (paths, keys,
	// file content). Handlers validate their own required params.
	Params map[string]string `json:"params,omitempty"`

	// SafeToApply marks actions with no destructive side effects. Apply
	// refuses actions without it.
	SafeToApply bool `json:"safe_to_apply"`
}

// Solution is a candidate fix for a diagnostic.
type Solution struct {
	Description  string           `json:"description"`
	Confidence   float64          `json:"confidence"`
	CanAutoApply bool             `json:"can_auto_apply"`
	Action       *AutoApplyAction `json:"action,omitempty"`
}
