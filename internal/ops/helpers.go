// Package ops defines the registered operations: their schemas,
// executors, policies and confirmation handlers.
package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/superglue-ai/agent-runtime/internal/confirm"
	"github.com/superglue-ai/agent-runtime/internal/session"
)

func stringField(input map[string]any, key string) string {
	v, _ := input[key].(string)
	return v
}

func intField(input map[string]any, key string) int {
	switch v := input[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func mapField(input map[string]any, key string) map[string]any {
	v, _ := input[key].(map[string]any)
	return v
}

func stringSliceField(input map[string]any, key string) []string {
	raw, ok := input[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, el := range raw {
		if s, ok := el.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func stringMapField(input map[string]any, key string) map[string]string {
	raw, ok := input[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

// decodeField unmarshals one input field into a typed value via a JSON
// round-trip.
func decodeField(input map[string]any, key string, out any) error {
	raw, ok := input[key]
	if !ok {
		return fmt.Errorf("missing field %q", key)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("decodeField %q: %w", key, err)
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("decodeField %q: %w", key, err)
	}
	return nil
}

// toMap converts a typed value to a generic payload map.
func toMap(v any) map[string]any {
	buf, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(buf, &out); err != nil {
		return nil
	}
	return out
}

// getPath reads a dotted path out of a nested payload. Numeric
// segments index into arrays.
func getPath(node map[string]any, path string) any {
	cur := any(node)
	for _, p := range strings.Split(path, ".") {
		switch c := cur.(type) {
		case map[string]any:
			cur = c[p]
		case []any:
			i, err := strconv.Atoi(p)
			if err != nil || i < 0 || i >= len(c) {
				return nil
			}
			cur = c[i]
		default:
			return nil
		}
	}
	return cur
}

// priorInput recovers the resolved input embedded in a pending
// descriptor under the given key, falling back to the caller-provided
// input.
func priorInput(prior map[string]any, key string, fallback map[string]any) map[string]any {
	if in, ok := prior[key].(map[string]any); ok {
		return in
	}
	return fallback
}

// execHandler is the generic confirmation handler for confirm-before
// operations whose approval simply runs the deferred executor against
// the input held in the pending descriptor.
type execHandler struct {
	exec func(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error)

	// descriptorKey names the field of the pending descriptor that holds
	// the resolved input. Defaults to "input".
	descriptorKey string
}

func (h *execHandler) States() []confirm.State {
	return []confirm.State{confirm.StateConfirmed, confirm.StateDeclined}
}

func (h *execHandler) Finalize(ctx context.Context, sess *session.Context, input, prior map[string]any, _ confirm.Action) (map[string]any, confirm.Status, error) {
	key := h.descriptorKey
	if key == "" {
		key = "input"
	}
	out, err := h.exec(ctx, sess, priorInput(prior, key, input))
	if err != nil {
		return nil, confirm.StatusCompleted, err
	}
	return out, confirm.StatusCompleted, nil
}
