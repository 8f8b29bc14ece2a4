package ops

import (
	"context"

	"github.com/superglue-ai/agent-runtime/internal/client"
	"github.com/superglue-ai/agent-runtime/internal/policy"
	"github.com/superglue-ai/agent-runtime/internal/registry"
	"github.com/superglue-ai/agent-runtime/internal/session"
)

// ExecuteStep runs one tool step in isolation, without a surrounding
// tool config. Used while iterating on a single call.
func ExecuteStep() *registry.Operation {
	return &registry.Operation{
		Name:        "execute_step",
		Description: "Execute a single tool step in isolation.",
		Category:    registry.CategoryExecution,
		Personas:    []registry.Persona{registry.PersonaBuilder},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"step"},
			"properties": map[string]any{
				"step": map[string]any{
					"type":     "object",
					"required": []any{"url", "method"},
					"properties": map[string]any{
						"id":          map[string]any{"type": "string"},
						"url":         map[string]any{"type": "string"},
						"method":      map[string]any{"type": "string"},
						"systemId":    map[string]any{"type": "string"},
						"headers":     map[string]any{"type": "object"},
						"queryParams": map[string]any{"type": "object"},
						"body":        map[string]any{"type": "string"},
					},
				},
				"payload": map[string]any{"type": "object"},
			},
		},
		Policy: policy.Policy{
			DefaultMode:     policy.ModeAuto,
			UserModeOptions: []policy.ExecutionMode{policy.ModeAuto, policy.ModeConfirmBefore},
		},
		Execute:           executeStepExec,
		Confirm:           &execHandler{exec: executeStepExec},
		StringifyFileRefs: true,
	}
}

func executeStepExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	var step client.ToolStep
	if err := decodeField(input, "step", &step); err != nil {
		return nil, err
	}

	res, err := sess.Client.ExecuteStep(ctx, &step, mapField(input, "payload"))
	if err != nil {
		return nil, err
	}

	out := toMap(res)
	out["success"] = res.Success
	return out, nil
}

// ListRuns pages through the run history of one tool or the workspace.
func ListRuns() *registry.Operation {
	return &registry.Operation{
		Name:        "list_runs",
		Description: "List past tool runs, newest first.",
		Category:    registry.CategoryExecution,
		Personas:    []registry.Persona{registry.PersonaBuilder},
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"toolId": map[string]any{"type": "string"},
				"status": map[string]any{
					"type": "string",
					"enum": []any{"running", "success", "failed", "aborted"},
				},
				"limit":  map[string]any{"type": "integer"},
				"cursor": map[string]any{"type": "string"},
			},
		},
		Policy:  policy.Policy{DefaultMode: policy.ModeAuto},
		Execute: listRunsExec,
	}
}

func listRunsExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	limit := intField(input, "limit")
	if limit <= 0 {
		limit = 20
	}

	page, err := sess.Client.ListRuns(ctx, stringField(input, "toolId"),
		client.RunStatus(stringField(input, "status")), limit, stringField(input, "cursor"))
	if err != nil {
		return nil, err
	}

	runs := make([]any, 0, len(page.Items))
	for i := range page.Items {
		runs = append(runs, toMap(&page.Items[i]))
	}
	out := map[string]any{
		"success": true,
		"runs":    runs,
		"total":   page.Total,
	}
	if page.NextCursor != "" {
		out["nextCursor"] = page.NextCursor
	}
	return out, nil
}

// CancelRun aborts an in-flight run. Gated before execution: killing a
// run another session is watching is not reversible.
func CancelRun() *registry.Operation {
	return &registry.Operation{
		Name:        "cancel_run",
		Description: "Cancel an in-flight tool run.",
		Category:    registry.CategoryExecution,
		Personas:    []registry.Persona{registry.PersonaBuilder},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"runId"},
			"properties": map[string]any{
				"runId": map[string]any{"type": "string"},
			},
		},
		Policy: policy.Policy{
			DefaultMode:     policy.ModeConfirmBefore,
			UserModeOptions: []policy.ExecutionMode{policy.ModeAuto, policy.ModeConfirmBefore},
		},
		Execute: cancelRunExec,
		Confirm: &execHandler{exec: cancelRunExec},
	}
}

func cancelRunExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	run, err := sess.Client.CancelRun(ctx, stringField(input, "runId"))
	if err != nil {
		return nil, err
	}
	out := toMap(run)
	out["success"] = run.Status == client.RunAborted
	return out, nil
}
