// Package confirm implements the confirmation state machine: it turns a
// user's decision on a pending operation into exactly one terminal
// output plus a continuation status for the agent loop.
package confirm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/superglue-ai/agent-runtime/internal/session"
)

// State is the confirmation lifecycle discriminant. The string values
// are a stable protocol: the UI and the next-turn prompt both branch on
// them.
type State string

const (
	StatePending      State = "pending"
	StateConfirmed    State = "confirmed"
	StateDeclined     State = "declined"
	StatePartial      State = "partial"
	StateOAuthSuccess State = "oauth_success"
	StateOAuthFailure State = "oauth_failure"
)

// StateKey is the discriminant field inside operation outputs.
const StateKey = "confirmationState"

// Status tells the message layer which canned follow-up to use.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusDeclined  Status = "declined"
)

// Action is the user's decision on a pending descriptor.
type Action struct {
	State State `json:"state"`

	// ApprovedIDs selects the accepted changes for partial approval.
	ApprovedIDs []string `json:"approvedIds,omitempty"`

	// Payload carries extra material from external flows, e.g. OAuth
	// token fields.
	Payload map[string]any `json:"payload,omitempty"`
}

// Handler finalizes a pending descriptor for one operation family.
// Finalize is only invoked for states the handler declares; declined is
// handled generically before any handler runs.
type Handler interface {
	// States returns the terminal states this operation supports.
	States() []State

	// Finalize produces the terminal output for the action. For
	// confirm-before operations the side-effecting call happens here
	// and nowhere else.
	Finalize(ctx context.Context, sess *session.Context, input, prior map[string]any, act Action) (map[string]any, Status, error)
}

// IsPending reports whether an output is an awaiting-confirmation
// descriptor.
func IsPending(output map[string]any) bool {
	state, ok := output[StateKey].(string)
	return ok && State(state) == StatePending
}

// Process resolves one pending descriptor into its terminal output.
//
// Contract:
//   - prior without a confirmationState field is not actually pending
//     and passes through unchanged as completed.
//   - declined short-circuits to a cancellation payload; the handler is
//     never invoked, so the side-effecting executor cannot run.
//   - any handler error becomes a structured failure payload; nothing
//     propagates to the caller as a Go error.
func Process(ctx context.Context, sess *session.Context, h Handler, input, prior map[string]any, act Action) (map[string]any, Status) {
	if prior == nil {
		return map[string]any{}, StatusCompleted
	}
	if _, ok := prior[StateKey]; !ok {
		return prior, StatusCompleted
	}

	if act.State == StateDeclined {
		return map[string]any{
			"success":   false,
			"cancelled": true,
			"message":   "the user declined this action",
			StateKey:    string(StateDeclined),
		}, StatusDeclined
	}

	if h == nil {
		// Operations without a handler (confirm-after gating of an
		// already-computed result): approving just finalizes the held
		// output.
		out := make(map[string]any, len(prior))
		for k, v := range prior {
			out[k] = v
		}
		state := act.State
		if state == "" {
			state = StateConfirmed
		}
		out[StateKey] = string(state)
		return out, StatusCompleted
	}

	if !supports(h, act.State) {
		return Failure(
			fmt.Errorf("confirmation state %q is not valid for this operation", act.State),
			"use one of the states this operation declared",
		), StatusCompleted
	}

	out, status, err := h.Finalize(ctx, sess, input, prior, act)
	if err != nil {
		return Failure(err, "inspect the error and retry the operation"), StatusCompleted
	}
	if out == nil {
		out = map[string]any{}
	}
	if _, ok := out[StateKey]; !ok {
		out[StateKey] = string(act.State)
	}
	return out, status
}

// ProcessRaw is Process for prior outputs that only exist as raw JSON
// (recovered from conversation history). Unparsable payloads pass
// through as an opaque completed result; malformed history must never
// crash the turn.
func ProcessRaw(ctx context.Context, sess *session.Context, h Handler, input map[string]any, rawPrior json.RawMessage, act Action) (map[string]any, Status) {
	if len(rawPrior) == 0 {
		return Process(ctx, sess, h, input, nil, act)
	}
	var prior map[string]any
	if err := json.Unmarshal(rawPrior, &prior); err != nil {
		return map[string]any{"result": string(rawPrior)}, StatusCompleted
	}
	return Process(ctx, sess, h, input, prior, act)
}

// Failure builds the structured failure payload every public entry
// point returns instead of raising.
func Failure(err error, suggestion string) map[string]any {
	out := map[string]any{
		"success": false,
		"error":   err.Error(),
	}
	type suggester interface{ Suggestion() string }
	if s, ok := err.(suggester); ok {
		out["suggestion"] = s.Suggestion()
	} else if suggestion != "" {
		out["suggestion"] = suggestion
	}
	return out
}

func supports(h Handler, s State) bool {
	for _, st := range h.States() {
		if st == s {
			return true
		}
	}
	return false
}
