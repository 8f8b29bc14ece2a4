package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/superglue-ai/agent-runtime/internal/confirm"
	"github.com/superglue-ai/agent-runtime/internal/policy"
	"github.com/superglue-ai/agent-runtime/internal/refs"
	"github.com/superglue-ai/agent-runtime/internal/session"
	"github.com/superglue-ai/agent-runtime/internal/storage"
)

// Result is the outcome of a dispatch or confirmation. Output is either
// a terminal payload or, when Pending is set, an awaiting-confirmation
// descriptor the UI renders.
type Result struct {
	RequestID string
	Output    map[string]any
	Pending   bool
	Status    confirm.Status
	Mode      policy.ExecutionMode
}

// Dispatch invokes one operation: resolve references, resolve the
// effective mode, then execute immediately or return a pending
// descriptor. Every failure is a structured payload; Dispatch never
// returns a Go error to the agent loop.
func (r *Registry) Dispatch(ctx context.Context, sess *session.Context, name string, input map[string]any, overrides policy.Overrides) Result {
	start := time.Now()
	requestID := uuid.New().String()

	// Zero-argument invocations arrive with no input at all; schemas
	// expect an object, not null.
	if input == nil {
		input = map[string]any{}
	}

	op, ok := r.ops[name]
	if !ok {
		out := confirm.Failure(
			fmt.Errorf("unknown operation %q", name),
			"call one of the registered operations",
		)
		r.writeEvent(sess, requestID, name, "", "", "failed", out, input, start)
		return Result{RequestID: requestID, Output: out, Status: confirm.StatusCompleted}
	}

	if err := r.validateInput(name, input); err != nil {
		out := confirm.Failure(err, "")
		r.writeEvent(sess, requestID, name, string(op.Category), "", "failed", out, input, start)
		return Result{RequestID: requestID, Output: out, Status: confirm.StatusCompleted}
	}

	resolvedAny, err := refs.ResolveFiles(input, sess.Files, refs.Options{StringifyObjects: op.StringifyFileRefs})
	if err != nil {
		out := confirm.Failure(err, "")
		if mf, ok := err.(*refs.MissingFilesError); ok {
			out["availableFiles"] = mf.Available
		}
		r.writeEvent(sess, requestID, name, string(op.Category), "", "failed", out, input, start)
		return Result{RequestID: requestID, Output: out, Status: confirm.StatusCompleted}
	}
	resolved := resolvedAny.(map[string]any)

	mode := op.Policy.Effective(resolved, overrides.For(name))

	if mode == policy.ModeConfirmBefore {
		out := r.pendingDescriptor(op, resolved)
		r.writeEvent(sess, requestID, name, string(op.Category), string(mode), "pending", out, input, start)
		return Result{RequestID: requestID, Output: out, Pending: true, Mode: mode}
	}

	out, execErr := op.Execute(ctx, sess, resolved)
	if execErr != nil {
		out = confirm.Failure(execErr, "inspect the error and retry with corrected input")
		r.writeEvent(sess, requestID, name, string(op.Category), string(mode), "failed", out, input, start)
		return Result{RequestID: requestID, Output: out, Status: confirm.StatusCompleted, Mode: mode}
	}
	if out == nil {
		out = map[string]any{}
	}

	if mode == policy.ModeConfirmAfter && !confirm.IsPending(out) {
		out[confirm.StateKey] = string(confirm.StatePending)
	}

	if confirm.IsPending(out) {
		r.writeEvent(sess, requestID, name, string(op.Category), string(mode), "pending", out, input, start)
		return Result{RequestID: requestID, Output: out, Pending: true, Mode: mode}
	}

	r.writeEvent(sess, requestID, name, string(op.Category), string(mode), "executed", out, input, start)
	return Result{RequestID: requestID, Output: out, Status: confirm.StatusCompleted, Mode: mode}
}

// Confirm resolves a previously returned pending descriptor with the
// user's action. The executor is only reached through the operation's
// confirmation handler; a decline never executes anything.
func (r *Registry) Confirm(ctx context.Context, sess *session.Context, name string, input, prior map[string]any, act confirm.Action) Result {
	start := time.Now()
	requestID := uuid.New().String()

	op, ok := r.ops[name]
	if !ok {
		out := confirm.Failure(
			fmt.Errorf("unknown operation %q", name),
			"call one of the registered operations",
		)
		r.writeEvent(sess, requestID, name, "", "", "failed", out, input, start)
		return Result{RequestID: requestID, Output: out, Status: confirm.StatusCompleted}
	}

	out, status := confirm.Process(ctx, sess, op.Confirm, input, prior, act)

	outcome := string(act.State)
	if status == confirm.StatusDeclined {
		outcome = "declined"
	}
	r.writeEvent(sess, requestID, name, string(op.Category), "", outcome, out, input, start)
	return Result{RequestID: requestID, Output: out, Status: status}
}

func (r *Registry) pendingDescriptor(op *Operation, resolved map[string]any) map[string]any {
	var out map[string]any
	if op.Policy.PendingOutput != nil {
		out = op.Policy.PendingOutput(resolved)
	}
	if out == nil {
		out = map[string]any{
			"operation": op.Name,
			"input":     resolved,
		}
	}
	out[confirm.StateKey] = string(confirm.StatePending)
	return out
}

func (r *Registry) writeEvent(sess *session.Context, requestID, operation, category, mode, outcome string, out, input map[string]any, start time.Time) {
	if r.writer == nil {
		return
	}

	inputJSON, err := json.Marshal(input)
	if err != nil {
		inputJSON = nil
	}

	event := &storage.OperationEvent{
		RequestID: requestID,
		Timestamp: time.Now(),
		Operation: operation,
		Category:  category,
		Mode:      mode,
		Outcome:   outcome,
		InputJSON: string(inputJSON),
		LatencyMs: float32(float64(time.Since(start)) / float64(time.Millisecond)),
		Source:    "agent",
	}
	if sess != nil {
		event.SessionID = sess.SessionID
		event.WorkspaceID = sess.WorkspaceID
	}
	if state, ok := out[confirm.StateKey].(string); ok {
		event.ConfirmationState = state
	}
	if msg, ok := out["error"].(string); ok {
		event.Error = msg
	}

	r.writer.Write(event)

	if r.logger != nil {
		r.logger.Debug("operation dispatched",
			zap.String("request_id", requestID),
			zap.String("operation", operation),
			zap.String("mode", mode),
			zap.String("outcome", outcome),
		)
	}
}
