package refs

// TargetRef identifies the tool an operation acts on: either an
// in-flight draft or a saved tool, never both, never neither.
type TargetRef struct {
	DraftID string
	ToolID  string
}

// TargetFromInput reads draftId/toolId fields from a raw input payload.
func TargetFromInput(input map[string]any) TargetRef {
	ref := TargetRef{}
	if v, ok := input["draftId"].(string); ok {
		ref.DraftID = v
	}
	if v, ok := input["toolId"].(string); ok {
		ref.ToolID = v
	}
	return ref
}

// TargetRefError is a validation failure on a TargetRef.
type TargetRefError struct {
	msg        string
	suggestion string
}

func (e *TargetRefError) Error() string      { return e.msg }
func (e *TargetRefError) Suggestion() string { return e.suggestion }

// Validate enforces exactly-one-of draftId/toolId.
func (r TargetRef) Validate() error {
	switch {
	case r.DraftID == "" && r.ToolID == "":
		return &TargetRefError{
			msg:        "either draftId or toolId is required",
			suggestion: "pass the draftId returned by build_tool, or a saved tool's toolId",
		}
	case r.DraftID != "" && r.ToolID != "":
		return &TargetRefError{
			msg:        "draftId and toolId are mutually exclusive",
			suggestion: "pass only the identifier of the tool you want to act on",
		}
	}
	return nil
}

// IsDraft reports whether the reference points at a draft.
func (r TargetRef) IsDraft() bool {
	return r.DraftID != ""
}
