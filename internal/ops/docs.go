package ops

import (
	"context"

	"github.com/superglue-ai/agent-runtime/internal/policy"
	"github.com/superglue-ai/agent-runtime/internal/registry"
	"github.com/superglue-ai/agent-runtime/internal/session"
)

// SearchDocumentation searches a system's indexed documentation.
func SearchDocumentation() *registry.Operation {
	return &registry.Operation{
		Name:        "search_documentation",
		Description: "Search a system's documentation for relevant passages.",
		Category:    registry.CategoryContext,
		InputSchema: map[string]any{
			"type":     "object",
			"required": []any{"systemId", "query"},
			"properties": map[string]any{
				"systemId": map[string]any{"type": "string"},
				"query":    map[string]any{"type": "string"},
			},
		},
		Policy:  policy.Policy{DefaultMode: policy.ModeAuto},
		Execute: searchDocumentationExec,
	}
}

func searchDocumentationExec(ctx context.Context, sess *session.Context, input map[string]any) (map[string]any, error) {
	hits, err := sess.Client.SearchDocumentation(ctx, stringField(input, "systemId"), stringField(input, "query"))
	if err != nil {
		return nil, err
	}

	matches := make([]any, 0, len(hits))
	for i := range hits {
		matches = append(matches, toMap(&hits[i]))
	}
	return map[string]any{
		"success": true,
		"matches": matches,
		"count":   len(matches),
	}, nil
}
