package ops

import (
	"context"
	"fmt"

	"github.com/superglue-ai/agent-runtime/internal/confirm"
	"github.com/superglue-ai/agent-runtime/internal/policy"
	"github.com/superglue-ai/agent-runtime/internal/registry"
	"github.com/superglue-ai/agent-runtime/internal/session"
)

// ConnectOAuth starts an OAuth flow for a system. The executor only
// hands a pending descriptor to the UI; the browser flow finishes out
// of band and comes back as oauth_success or oauth_failure.
func ConnectOAuth() *registry.Operation {
	return &registry.Operation{
		Name:        "connect_oauth",
		Description: "Connect a system to its provider via OAuth.",
		Category:    registry.CategorySystems,
		Personas:    []registry.Persona{registry.PersonaSystems},
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"systemId"},
			"properties": map[string]any{
				"systemId": map[string]any{"type": "string"},
				"provider": map[string]any{"type": "string"},
				"scopes":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
		},
		Policy:  policy.Policy{DefaultMode: policy.ModeAuto},
		Execute: connectOAuthExec,
		Confirm: &oauthHandler{},
	}
}

func connectOAuthExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	systemID := stringField(input, "systemId")
	if _, err := sess.Client.GetSystem(ctx, systemID); err != nil {
		return nil, err
	}

	out := map[string]any{
		confirm.StateKey: string(confirm.StatePending),
		"systemId":       systemID,
		"message":        "complete the OAuth flow in the browser window",
	}
	if provider := stringField(input, "provider"); provider != "" {
		out["provider"] = provider
	}
	if scopes := stringSliceField(input, "scopes"); len(scopes) != 0 {
		out["scopes"] = scopes
	}
	return out, nil
}

// oauthHandler finalizes the browser flow's outcome. On success the
// token fields from the callback are merged into the system's stored
// credentials; the system is re-fetched first so concurrent credential
// edits are not clobbered.
type oauthHandler struct{}

func (h *oauthHandler) States() []confirm.State {
	return []confirm.State{confirm.StateOAuthSuccess, confirm.StateOAuthFailure, confirm.StateDeclined}
}

// tokenKeys are the callback payload fields persisted as credentials.
var tokenKeys = []string{"access_token", "refresh_token", "token_type", "expires_at"}

func (h *oauthHandler) Finalize(ctx context.Context, sess *session.Context, input, prior map[string]any, act confirm.Action) (map[string]any, confirm.Status, error) {
	systemID, _ := prior["systemId"].(string)
	if systemID == "" {
		systemID = stringField(input, "systemId")
	}

	if act.State == confirm.StateOAuthFailure {
		msg, _ := act.Payload["error"].(string)
		if msg == "" {
			msg = "the OAuth flow did not complete"
		}
		return map[string]any{
			"success":  false,
			"systemId": systemID,
			"error":    msg,
		}, confirm.StatusCompleted, nil
	}

	sys, err := sess.Client.GetSystem(ctx, systemID)
	if err != nil {
		return nil, confirm.StatusCompleted, err
	}

	creds := make(map[string]string, len(sys.Credentials)+len(tokenKeys))
	for k, v := range sys.Credentials {
		creds[k] = v
	}
	stored := 0
	for _, key := range tokenKeys {
		if v, ok := act.Payload[key].(string); ok && v != "" {
			creds[key] = v
			stored++
		}
	}
	if stored == 0 {
		return nil, confirm.StatusCompleted, fmt.Errorf("oauth callback for %s carried no token fields", systemID)
	}
	sys.Credentials = creds

	if _, err := sess.Client.UpsertSystem(ctx, sys); err != nil {
		return nil, confirm.StatusCompleted, err
	}

	return map[string]any{
		"success":  true,
		"systemId": systemID,
		"message":  "OAuth credentials stored",
	}, confirm.StatusCompleted, nil
}
