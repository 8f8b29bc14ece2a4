package confirm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Change is one proposed edit inside a multi-change operation. Path is
// a dotted location in the target config; After is the proposed value.
type Change struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Before  any    `json:"before,omitempty"`
	After   any    `json:"after,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// DecodeChanges extracts a change list from a prior pending descriptor.
func DecodeChanges(prior map[string]any, key string) ([]Change, error) {
	raw, ok := prior[key]
	if !ok {
		return nil, fmt.Errorf("pending output has no %q field", key)
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("DecodeChanges: %w", err)
	}
	var changes []Change
	if err := json.Unmarshal(buf, &changes); err != nil {
		return nil, fmt.Errorf("DecodeChanges: %w", err)
	}
	return changes, nil
}

// SplitChanges partitions proposed changes by the user's selections.
// Order within each partition follows the proposal order.
func SplitChanges(proposed []Change, approvedIDs []string) (approved, rejected []Change) {
	selected := make(map[string]struct{}, len(approvedIDs))
	for _, id := range approvedIDs {
		selected[id] = struct{}{}
	}
	for _, ch := range proposed {
		if _, ok := selected[ch.ID]; ok {
			approved = append(approved, ch)
		} else {
			rejected = append(rejected, ch)
		}
	}
	return approved, rejected
}

// DescribeChanges renders a change list for the next-turn prompt.
func DescribeChanges(changes []Change) string {
	if len(changes) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(changes))
	for _, ch := range changes {
		if ch.Summary != "" {
			parts = append(parts, ch.Summary)
		} else {
			parts = append(parts, ch.Path)
		}
	}
	return strings.Join(parts, "; ")
}

// ApplyChanges returns a copy of config with each change's After value
// set at its dotted path. Intermediate objects are created as needed;
// the input map is not mutated.
func ApplyChanges(config map[string]any, changes []Change) map[string]any {
	out := deepCopy(config)
	for _, ch := range changes {
		if ch.Path == "" {
			continue
		}
		setPath(out, strings.Split(ch.Path, "."), ch.After)
	}
	return out
}

func setPath(node map[string]any, path []string, value any) {
	if len(path) == 1 {
		node[path[0]] = value
		return
	}
	switch child := node[path[0]].(type) {
	case map[string]any:
		setPath(child, path[1:], value)
	case []any:
		setSlicePath(child, path[1:], value)
	default:
		next := make(map[string]any)
		node[path[0]] = next
		setPath(next, path[1:], value)
	}
}

// setSlicePath indexes into an array segment. Paths addressing an
// element outside the array are dropped rather than resized.
func setSlicePath(list []any, path []string, value any) {
	i, err := strconv.Atoi(path[0])
	if err != nil || i < 0 || i >= len(list) {
		return
	}
	if len(path) == 1 {
		list[i] = value
		return
	}
	switch child := list[i].(type) {
	case map[string]any:
		setPath(child, path[1:], value)
	case []any:
		setSlicePath(child, path[1:], value)
	default:
		next := make(map[string]any)
		list[i] = next
		setPath(next, path[1:], value)
	}
}

func deepCopy(node map[string]any) map[string]any {
	out := make(map[string]any, len(node))
	for k, v := range node {
		switch child := v.(type) {
		case map[string]any:
			out[k] = deepCopy(child)
		case []any:
			cp := make([]any, len(child))
			for i, el := range child {
				if m, ok := el.(map[string]any); ok {
					cp[i] = deepCopy(m)
				} else {
					cp[i] = el
				}
			}
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
