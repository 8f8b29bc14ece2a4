package server

import (
	"context"

	"github.com/superglue-ai/agent-runtime/internal/auth"
)

func contextWithWorkspace(ctx context.Context, ws *auth.WorkspaceContext) context.Context {
	return context.WithValue(ctx, workspaceKey, ws)
}

func workspaceFromContext(ctx context.Context) *auth.WorkspaceContext {
	ws, _ := ctx.Value(workspaceKey).(*auth.WorkspaceContext)
	return ws
}
