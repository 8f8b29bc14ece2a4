package ops

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/superglue-ai/agent-runtime/internal/client"
	"github.com/superglue-ai/agent-runtime/internal/confirm"
	"github.com/superglue-ai/agent-runtime/internal/policy"
	"github.com/superglue-ai/agent-runtime/internal/registry"
	"github.com/superglue-ai/agent-runtime/internal/session"
)

// systemPayload renders a system for operation output. Credential
// values never leave the backend; only the key names are reported.
func systemPayload(sys *client.System) map[string]any {
	out := toMap(sys)
	delete(out, "credentials")
	if len(sys.Credentials) > 0 {
		keys := make([]string, 0, len(sys.Credentials))
		for k := range sys.Credentials {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out["credentialKeys"] = keys
	}
	return out
}

// CreateSystem registers an external system. Confirmed before execution
// because the input carries credentials.
func CreateSystem() *registry.Operation {
	return &registry.Operation{
		Name:        "create_system",
		Description: "Register an external system with its endpoint and credentials.",
		Category:    registry.CategorySystems,
		Personas:    []registry.Persona{registry.PersonaSystems},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"id", "urlHost"},
			"properties": map[string]any{
				"id":            map[string]any{"type": "string"},
				"urlHost":       map[string]any{"type": "string"},
				"documentation": map[string]any{"type": "string"},
				"credentials":   map[string]any{"type": "object"},
				"metadata":      map[string]any{"type": "object"},
			},
		},
		Policy:  policy.Policy{DefaultMode: policy.ModeConfirmBefore},
		Execute: createSystemExec,
		Confirm: &execHandler{exec: createSystemExec},
	}
}

func createSystemExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	sys := &client.System{
		ID:            stringField(input, "id"),
		URLHost:       stringField(input, "urlHost"),
		Documentation: stringField(input, "documentation"),
		Credentials:   stringMapField(input, "credentials"),
		Metadata:      mapField(input, "metadata"),
	}

	saved, err := sess.Client.UpsertSystem(ctx, sys)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"success": true,
		"system":  systemPayload(saved),
	}, nil
}

// EditSystem proposes changes to a registered system, held for review
// with per-change approval like edit_tool.
func EditSystem() *registry.Operation {
	return &registry.Operation{
		Name:        "edit_system",
		Description: "Propose changes to a registered system for user review.",
		Category:    registry.CategorySystems,
		Personas:    []registry.Persona{registry.PersonaSystems},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"systemId", "changes"},
			"properties": map[string]any{
				"systemId": map[string]any{"type": "string"},
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
		Execute: editSystemExec,
		Confirm: &editSystemHandler{},
	}
}

func editSystemExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	systemID := stringField(input, "systemId")

	var changes []confirm.Change
	if err := decodeField(input, "changes", &changes); err != nil {
		return nil, err
	}

	sys, err := sess.Client.GetSystem(ctx, systemID)
	if err != nil {
		return nil, err
	}
	sysMap := toMap(sys)

	for i := range changes {
		if changes[i].ID == "" {
			changes[i].ID = fmt.Sprintf("change_%d", i+1)
		}
		// Never echo a credential value back as the before-image.
		if !strings.HasPrefix(changes[i].Path, "credentials") {
			changes[i].Before = getPath(sysMap, changes[i].Path)
		}
	}

	return map[string]any{
		"success":         true,
		"systemId":        systemID,
		"proposedChanges": changes,
		"summary":         confirm.DescribeChanges(changes),
	}, nil
}

type editSystemHandler struct{}

func (h *editSystemHandler) States() []confirm.State {
	return []confirm.State{confirm.StateConfirmed, confirm.StateDeclined, confirm.StatePartial}
}

func (h *editSystemHandler) Finalize(ctx context.Context, sess *session.Context, input, prior map[string]any, act confirm.Action) (map[string]any, confirm.Status, error) {
	proposed, err := confirm.DecodeChanges(prior, "proposedChanges")
	if err != nil {
		return nil, confirm.StatusCompleted, err
	}

	approved, rejected := proposed, []confirm.Change(nil)
	if act.State == confirm.StatePartial {
		approved, rejected = confirm.SplitChanges(proposed, act.ApprovedIDs)
	}

	systemID, _ := prior["systemId"].(string)
	if systemID == "" {
		systemID = stringField(input, "systemId")
	}

	sys, err := sess.Client.GetSystem(ctx, systemID)
	if err != nil {
		return nil, confirm.StatusCompleted, err
	}
	updated := confirm.ApplyChanges(toMap(sys), approved)

	var next client.System
	if err := decodeField(map[string]any{"system": updated}, "system", &next); err != nil {
		return nil, confirm.StatusCompleted, err
	}

	saved, err := sess.Client.UpsertSystem(ctx, &next)
	if err != nil {
		return nil, confirm.StatusCompleted, err
	}

	return map[string]any{
		"success":         true,
		"systemId":        systemID,
		"appliedChanges":  approved,
		"rejectedChanges": rejected,
		"summary":         confirm.DescribeChanges(approved),
		"system":          systemPayload(saved),
	}, confirm.StatusCompleted, nil
}

// DeleteSystem removes a registered system and its stored credentials.
func DeleteSystem() *registry.Operation {
	return &registry.Operation{
		Name:        "delete_system",
		Description: "Delete a registered system.",
		Category:    registry.CategorySystems,
		Personas:    []registry.Persona{registry.PersonaSystems},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"systemId"},
			"properties": map[string]any{
				"systemId": map[string]any{"type": "string"},
			},
		},
		Policy:  policy.Policy{DefaultMode: policy.ModeConfirmBefore},
		Execute: deleteSystemExec,
		Confirm: &execHandler{exec: deleteSystemExec},
	}
}

func deleteSystemExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	systemID := stringField(input, "systemId")
	if err := sess.Client.DeleteSystem(ctx, systemID); err != nil {
		return nil, err
	}
	return map[string]any{
		"success":  true,
		"systemId": systemID,
		"message":  "system deleted",
	}, nil
}

// FindSystems looks registered systems up by id or free-text query.
func FindSystems() *registry.Operation {
	return &registry.Operation{
		Name:        "find_systems",
		Description: "Find registered systems by id or query.",
		Category:    registry.CategoryContext,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"systemId": map[string]any{"type": "string"},
				"query":    map[string]any{"type": "string"},
				"limit":    map[string]any{"type": "integer"},
			},
		},
		Policy:  policy.Policy{DefaultMode: policy.ModeAuto},
		Execute: findSystemsExec,
	}
}

func findSystemsExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	if systemID := stringField(input, "systemId"); systemID != "" {
		sys, err := sess.Client.GetSystem(ctx, systemID)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"success": true,
			"systems": []any{systemPayload(sys)},
			"count":   1,
		}, nil
	}

	limit := intField(input, "limit")
	if limit <= 0 {
		limit = 20
	}
	systems, err := sess.Client.ListSystems(ctx, stringField(input, "query"), limit)
	if err != nil {
		return nil, err
	}
	items := make([]any, 0, len(systems))
	for i := range systems {
		items = append(items, systemPayload(&systems[i]))
	}
	return map[string]any{
		"success": true,
		"systems": items,
		"count":   len(items),
	}, nil
}

// CallSystem performs one ad-hoc request against a system's endpoint.
// GET requests may auto-execute under the run_gets_only user policy;
// everything else waits for confirmation.
func CallSystem() *registry.Operation {
	return &registry.Operation{
		Name:        "call_system",
		Description: "Make a single request against a registered system's endpoint.",
		Category:    registry.CategorySystems,
		Personas:    []registry.Persona{registry.PersonaSystems},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"url", "method"},
			"properties": map[string]any{
				"systemId":    map[string]any{"type": "string"},
				"url":         map[string]any{"type": "string"},
				"method":      map[string]any{"type": "string"},
				"headers":     map[string]any{"type": "object"},
				"queryParams": map[string]any{"type": "object"},
				"body":        map[string]any{"type": "string"},
			},
		},
		Policy: policy.Policy{
			DefaultMode:     policy.ModeConfirmBefore,
			UserModeOptions: []policy.ExecutionMode{policy.ModeAuto, policy.ModeConfirmBefore},
			ComputeMode:     callSystemMode,
			PendingOutput: func(input map[string]any) map[string]any {
				return map[string]any{"request": input}
			},
		},
		Execute:           callSystemExec,
		Confirm:           &execHandler{exec: callSystemExec, descriptorKey: "request"},
		StringifyFileRefs: true,
	}
}

// callSystemMode derives the execution mode from the request method:
// under run_gets_only, GETs run immediately and everything else is
// gated; under never, every call is gated. Otherwise the user's
// explicit mode choice (or the default) applies.
func callSystemMode(input map[string]any, user policy.UserPolicy) policy.ExecutionMode {
	switch user.AutoExecute {
	case policy.AutoExecuteNever:
		return policy.ModeConfirmBefore
	case policy.AutoExecuteRunGetsOnly:
		if strings.EqualFold(stringField(input, "method"), "GET") {
			return policy.ModeAuto
		}
		return policy.ModeConfirmBefore
	}
	return ""
}

func callSystemExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	req := &client.EndpointRequest{
		SystemID:    stringField(input, "systemId"),
		URL:         stringField(input, "url"),
		Method:      strings.ToUpper(stringField(input, "method")),
		Headers:     stringMapField(input, "headers"),
		QueryParams: mapField(input, "queryParams"),
		Body:        stringField(input, "body"),
	}

	sess.Log(fmt.Sprintf("%s %s", req.Method, req.URL))
	resp, err := sess.Client.CallEndpoint(ctx, req)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"success":    resp.StatusCode < 400,
		"statusCode": resp.StatusCode,
		"data":       resp.Data,
	}, nil
}
