package policy

// ExecutionMode controls whether an operation runs immediately or is
// gated behind user confirmation. The string values are part of the
// payload protocol shared with the UI and the agent prompt.
type ExecutionMode string

const (
	ModeAuto          ExecutionMode = "auto"
	ModeConfirmBefore ExecutionMode = "confirm_before_execution"
	ModeConfirmAfter  ExecutionMode = "confirm_after_execution"
)

// AutoExecute values for operations that compute their mode from input.
const (
	AutoExecuteRunGetsOnly = "run_gets_only"
	AutoExecuteNever       = "never"
)

// UserPolicy is a workspace user's stored override for one operation.
// The zero value means "no override".
type UserPolicy struct {
	Mode        ExecutionMode `json:"mode,omitempty"`
	AutoExecute string        `json:"autoExecute,omitempty"`
}

// Overrides maps operation name to the user's stored policy for it.
type Overrides map[string]UserPolicy

// For returns the user's policy for an operation. Nil-safe.
func (o Overrides) For(operation string) UserPolicy {
	if o == nil {
		return UserPolicy{}
	}
	return o[operation]
}

// Policy is the static, registered-at-startup execution policy for one
// operation.
type Policy struct {
	DefaultMode ExecutionMode

	// UserModeOptions is the subset of modes a user may override to.
	// An override outside this set is ignored.
	UserModeOptions []ExecutionMode

	// ComputeMode, when set, derives the mode from the concrete input
	// about to be sent. A non-empty return value takes precedence over
	// both the user's override and DefaultMode: content-based gating
	// is not user-overridable.
	ComputeMode func(input map[string]any, user UserPolicy) ExecutionMode

	// PendingOutput, when set, builds the awaiting-confirmation payload
	// shown to the user instead of the default descriptor.
	PendingOutput func(input map[string]any) map[string]any
}

// Effective resolves the mode for one invocation.
//
// Precedence: ComputeMode output > user override (if within
// UserModeOptions) > DefaultMode > auto.
func (p Policy) Effective(input map[string]any, user UserPolicy) ExecutionMode {
	if p.ComputeMode != nil {
		if m := p.ComputeMode(input, user); m != "" {
			return m
		}
	}
	if user.Mode != "" && p.allowsUserMode(user.Mode) {
		return user.Mode
	}
	if p.DefaultMode != "" {
		return p.DefaultMode
	}
	return ModeAuto
}

func (p Policy) allowsUserMode(m ExecutionMode) bool {
	for _, opt := range p.UserModeOptions {
		if opt == m {
			return true
		}
	}
	return false
}

// Table maps operation name to its registered policy.
type Table map[string]Policy

// EffectiveMode resolves the execution mode for an operation by name.
// Unknown operations are not gated: the table fails open to auto.
func (t Table) EffectiveMode(operation string, input map[string]any, overrides Overrides) ExecutionMode {
	p, ok := t[operation]
	if !ok {
		return ModeAuto
	}
	return p.Effective(input, overrides.For(operation))
}
