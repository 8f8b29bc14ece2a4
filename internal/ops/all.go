package ops

import "github.com/superglue-ai/agent-runtime/internal/registry"

// All returns every operation in registration order.
func All() []*registry.Operation {
	return []*registry.Operation{
		BuildTool(),
		RunTool(),
		EditTool(),
		SaveTool(),
		DeleteTool(),
		FindTools(),
		CreateSystem(),
		EditSystem(),
		DeleteSystem(),
		FindSystems(),
		CallSystem(),
		ConnectOAuth(),
		ExecuteStep(),
		ListRuns(),
		CancelRun(),
		SearchDocumentation(),
	}
}
