package ops

import (
	"context"
	"fmt"

	"github.com/superglue-ai/agent-runtime/internal/client"
	"github.com/superglue-ai/agent-runtime/internal/confirm"
	"github.com/superglue-ai/agent-runtime/internal/policy"
	"github.com/superglue-ai/agent-runtime/internal/refs"
	"github.com/superglue-ai/agent-runtime/internal/registry"
	"github.com/superglue-ai/agent-runtime/internal/session"
)

// BuildTool generates a draft tool config from an instruction, or seeds
// a fix draft from a saved tool. Drafts live in the session until saved.
func BuildTool() *registry.Operation {
	return &registry.Operation{
		Name:        "build_tool",
		Description: "Build a new draft tool from a natural-language instruction, or start a fix draft from a saved tool.",
		Category:    registry.CategoryBuilding,
		Personas:    []registry.Persona{registry.PersonaBuilder},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"instruction"},
			"properties": map[string]any{
				"instruction": map[string]any{"type": "string"},
				"systemIds":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				"payload":     map[string]any{"type": "object"},
				"toolId":      map[string]any{"type": "string"},
				"failure":     map[string]any{"type": "string"},
			},
		},
		Policy:  policy.Policy{DefaultMode: policy.ModeAuto},
		Execute: buildToolExec,
	}
}

func buildToolExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	instruction := stringField(input, "instruction")
	systemIDs := stringSliceField(input, "systemIds")
	payload := mapField(input, "payload")

	var (
		cfg     *client.ToolConfig
		draftID string
		err     error
	)
	if toolID := stringField(input, "toolId"); toolID != "" {
		sess.Log(fmt.Sprintf("starting fix draft for tool %s", toolID))
		cfg, err = sess.Client.GetTool(ctx, toolID)
		if err != nil {
			return nil, err
		}
		if failure := stringField(input, "failure"); failure != "" {
			cfg, err = sess.Client.FixTool(ctx, cfg, failure)
			if err != nil {
				return nil, err
			}
		}
		draftID = session.FixDraftID(toolID)
	} else {
		sess.Log("building tool from instruction")
		cfg, err = sess.Client.BuildTool(ctx, instruction, systemIDs, payload)
		if err != nil {
			return nil, err
		}
		draftID = session.NewDraftID()
	}

	draft := &session.Draft{
		ID:          draftID,
		Config:      *cfg,
		SystemIDs:   systemIDs,
		Instruction: instruction,
	}
	if sess.Drafts != nil {
		if err := sess.Drafts.Put(ctx, sess.SessionID, draft); err != nil {
			return nil, fmt.Errorf("store draft: %w", err)
		}
	}

	return map[string]any{
		"success": true,
		"draftId": draftID,
		"config":  toMap(cfg),
		"message": "draft built; test it with run_tool, then persist it with save_tool",
	}, nil
}

// RunTool executes a draft or saved tool with a payload. Auto by
// default; users can require confirmation before every run.
func RunTool() *registry.Operation {
	return &registry.Operation{
		Name:        "run_tool",
		Description: "Execute a draft or saved tool with the given payload.",
		Category:    registry.CategoryExecution,
		Personas:    []registry.Persona{registry.PersonaBuilder},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"draftId": map[string]any{"type": "string"},
				"toolId":  map[string]any{"type": "string"},
				"payload": map[string]any{"type": "object"},
			},
		},
		Policy: policy.Policy{
			DefaultMode:     policy.ModeAuto,
			UserModeOptions: []policy.ExecutionMode{policy.ModeAuto, policy.ModeConfirmBefore},
		},
		Execute: runToolExec,
		Confirm: &execHandler{exec: runToolExec},
	}
}

func runToolExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	ref := refs.TargetFromInput(input)
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	cfg, err := resolveConfig(ctx, sess, ref)
	if err != nil {
		return nil, err
	}

	sess.Log(fmt.Sprintf("running tool %s", cfg.ID))
	run, err := sess.Client.RunTool(ctx, cfg, mapField(input, "payload"))
	if err != nil {
		return nil, err
	}

	out := toMap(run)
	out["success"] = run.Status == client.RunSuccess
	if run.Status != client.RunSuccess && ref.IsDraft() {
		out["suggestion"] = "inspect stepResults, then rebuild the draft with build_tool passing the failure"
	}
	return out, nil
}

// resolveConfig loads the config a target reference points at.
func resolveConfig(ctx context.Context, sess *session.Context, ref refs.TargetRef) (*client.ToolConfig, error) {
	if ref.IsDraft() {
		d, err := sess.ResolveDraft(ctx, ref.DraftID)
		if err != nil {
			return nil, err
		}
		cfg := d.Config
		return &cfg, nil
	}
	return sess.Client.GetTool(ctx, ref.ToolID)
}

// EditTool proposes changes to a draft or saved tool. The changes are
// computed immediately but held for review; the user may approve all,
// decline, or approve a subset.
func EditTool() *registry.Operation {
	return &registry.Operation{
		Name:        "edit_tool",
		Description: "Propose changes to a draft or saved tool for user review.",
		Category:    registry.CategoryBuilding,
		Personas:    []registry.Persona{registry.PersonaBuilder},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"changes"},
			"properties": map[string]any{
				"draftId": map[string]any{"type": "string"},
				"toolId":  map[string]any{"type": "string"},
				"changes": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []any{"path"},
						"properties": map[string]any{
							"id":      map[string]any{"type": "string"},
							"path":    map[string]any{"type": "string"},
							"after":   map[string]any{},
							"summary": map[string]any{"type": "string"},
						},
					},
				},
			},
		},
		Policy:  policy.Policy{DefaultMode: policy.ModeConfirmAfter},
		Execute: editToolExec,
		Confirm: &editToolHandler{},
	}
}

func editToolExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	ref := refs.TargetFromInput(input)
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	var changes []confirm.Change
	if err := decodeField(input, "changes", &changes); err != nil {
		return nil, err
	}

	cfg, err := resolveConfig(ctx, sess, ref)
	if err != nil {
		return nil, err
	}
	cfgMap := toMap(cfg)

	for i := range changes {
		if changes[i].ID == "" {
			changes[i].ID = fmt.Sprintf("change_%d", i+1)
		}
		changes[i].Before = getPath(cfgMap, changes[i].Path)
	}

	return map[string]any{
		"success":         true,
		"target":          targetMap(ref),
		"proposedChanges": changes,
		"summary":         confirm.DescribeChanges(changes),
	}, nil
}

func targetMap(ref refs.TargetRef) map[string]any {
	out := map[string]any{}
	if ref.DraftID != "" {
		out["draftId"] = ref.DraftID
	}
	if ref.ToolID != "" {
		out["toolId"] = ref.ToolID
	}
	return out
}

// editToolHandler finalizes a held edit_tool proposal. Partial approval
// applies only the selected changes; the rest are reported back as
// rejected.
type editToolHandler struct{}

func (h *editToolHandler) States() []confirm.State {
	return []confirm.State{confirm.StateConfirmed, confirm.StateDeclined, confirm.StatePartial}
}

func (h *editToolHandler) Finalize(ctx context.Context, sess *session.Context, input, prior map[string]any, act confirm.Action) (map[string]any, confirm.Status, error) {
	proposed, err := confirm.DecodeChanges(prior, "proposedChanges")
	if err != nil {
		return nil, confirm.StatusCompleted, err
	}

	approved, rejected := proposed, []confirm.Change(nil)
	if act.State == confirm.StatePartial {
		approved, rejected = confirm.SplitChanges(proposed, act.ApprovedIDs)
	}

	target, _ := prior["target"].(map[string]any)
	if target == nil {
		target = input
	}
	ref := refs.TargetFromInput(target)
	if err := ref.Validate(); err != nil {
		return nil, confirm.StatusCompleted, err
	}

	cfg, err := resolveConfig(ctx, sess, ref)
	if err != nil {
		return nil, confirm.StatusCompleted, err
	}
	updated := confirm.ApplyChanges(toMap(cfg), approved)

	var next client.ToolConfig
	if err := decodeField(map[string]any{"config": updated}, "config", &next); err != nil {
		return nil, confirm.StatusCompleted, err
	}

	if ref.IsDraft() {
		d, err := sess.ResolveDraft(ctx, ref.DraftID)
		if err != nil {
			return nil, confirm.StatusCompleted, err
		}
		d.Config = next
		if sess.Drafts != nil {
			if err := sess.Drafts.Put(ctx, sess.SessionID, d); err != nil {
				return nil, confirm.StatusCompleted, fmt.Errorf("store draft: %w", err)
			}
		}
	} else {
		if _, err := sess.Client.UpsertTool(ctx, &next); err != nil {
			return nil, confirm.StatusCompleted, err
		}
	}

	out := map[string]any{
		"success":         true,
		"target":          target,
		"appliedChanges":  approved,
		"rejectedChanges": rejected,
		"summary":         confirm.DescribeChanges(approved),
		"config":          updated,
	}
	// Top-level draftId keeps the edited config recoverable from
	// conversation history after the store entry expires.
	if ref.IsDraft() {
		out["draftId"] = ref.DraftID
	}
	return out, confirm.StatusCompleted, nil
}

// SaveTool persists a draft as a saved tool. Gated before execution by
// default since it is a durable write.
func SaveTool() *registry.Operation {
	return &registry.Operation{
		Name:        "save_tool",
		Description: "Persist a draft tool under a stable tool id.",
		Category:    registry.CategoryBuilding,
		Personas:    []registry.Persona{registry.PersonaBuilder},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"draftId", "id"},
			"properties": map[string]any{
				"draftId": map[string]any{"type": "string"},
				"id":      map[string]any{"type": "string"},
				"name":    map[string]any{"type": "string"},
			},
		},
		Policy: policy.Policy{
			DefaultMode:     policy.ModeConfirmBefore,
			UserModeOptions: []policy.ExecutionMode{policy.ModeAuto, policy.ModeConfirmBefore},
		},
		Execute: saveToolExec,
		Confirm: &execHandler{exec: saveToolExec},
	}
}

func saveToolExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	draftID := stringField(input, "draftId")
	d, err := sess.ResolveDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}

	cfg := d.Config
	cfg.ID = stringField(input, "id")
	if name := stringField(input, "name"); name != "" {
		cfg.Name = name
	}

	saved, err := sess.Client.UpsertTool(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	if sess.Drafts != nil {
		_ = sess.Drafts.Delete(ctx, sess.SessionID, draftID)
	}

	return map[string]any{
		"success": true,
		"toolId":  saved.ID,
		"config":  toMap(saved),
	}, nil
}

// DeleteTool removes a saved tool. Always confirmed before execution.
func DeleteTool() *registry.Operation {
	return &registry.Operation{
		Name:        "delete_tool",
		Description: "Delete a saved tool.",
		Category:    registry.CategoryBuilding,
		Personas:    []registry.Persona{registry.PersonaBuilder},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"toolId"},
			"properties": map[string]any{
				"toolId": map[string]any{"type": "string"},
			},
		},
		Policy:  policy.Policy{DefaultMode: policy.ModeConfirmBefore},
		Execute: deleteToolExec,
		Confirm: &execHandler{exec: deleteToolExec},
	}
}

func deleteToolExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	toolID := stringField(input, "toolId")
	if err := sess.Client.DeleteTool(ctx, toolID); err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"toolId":  toolID,
		"message": "tool deleted",
	}, nil
}

// FindTools looks saved tools up by id or free-text query.
func FindTools() *registry.Operation {
	return &registry.Operation{
		Name:        "find_tools",
		Description: "Find saved tools by id or query.",
		Category:    registry.CategoryContext,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"toolId": map[string]any{"type": "string"},
				"query":  map[string]any{"type": "string"},
				"limit":  map[string]any{"type": "integer"},
			},
		},
		Policy:  policy.Policy{DefaultMode: policy.ModeAuto},
		Execute: findToolsExec,
	}
}

func findToolsExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	if toolID := stringField(input, "toolId"); toolID != "" {
		cfg, err := sess.Client.GetTool(ctx, toolID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success": true,
			"tools":   []any{toMap(cfg)},
			"count":   1,
		}, nil
	}

	limit := intField(input, "limit")
	if limit <= 0 {
		limit = 20
	}
	tools, err := sess.Client.ListTools(ctx, stringField(input, "query"), limit)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(tools))
	for i := range tools {
		items = append(items, toMap(&tools[i]))
	}
	return map[string]any{
		"success": true,
		"tools":   items,
		"count":   len(items),
	}, nil
}
