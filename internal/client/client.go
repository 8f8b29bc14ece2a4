package client

import (
	"context"
	"fmt"
)

// Client is the capability handle for the superglue backend. Every
// executor calls the backend through this interface; implementations
// own transport, auth and retries.
type Client interface {
	// BuildTool asks the backend to generate a tool config from a
	// natural-language instruction against the given systems.
	BuildTool(ctx context.Context, instruction string, systemIDs []string, payload map[string]any) (*ToolConfig, error)

	// FixTool asks the backend to repair a failing config given the
	// observed error.
	FixTool(ctx context.Context, config *ToolConfig, failure string) (*ToolConfig, error)

	// RunTool executes a config (draft or saved) with the given payload.
	RunTool(ctx context.Context, config *ToolConfig, payload map[string]any) (*Run, error)

	UpsertTool(ctx context.Context, config *ToolConfig) (*ToolConfig, error)
	GetTool(ctx context.Context, id string) (*ToolConfig, error)
	DeleteTool(ctx context.Context, id string) error
	ListTools(ctx context.Context, query string, limit int) ([]ToolConfig, error)

	UpsertSystem(ctx context.Context, system *System) (*System, error)
	GetSystem(ctx context.Context, id string) (*System, error)
	DeleteSystem(ctx context.Context, id string) error
	ListSystems(ctx context.Context, query string, limit int) ([]System, error)

	// CallEndpoint performs one ad-hoc request against a system's
	// endpoint. Credential placeholders in the request are substituted
	// server-side.
	CallEndpoint(ctx context.Context, req *EndpointRequest) (*EndpointResponse, error)

	// ExecuteStep runs a single tool step in isolation.
	ExecuteStep(ctx context.Context, step *ToolStep, payload map[string]any) (*StepResult, error)

	// ListRuns pages run history, optionally filtered by tool and
	// lifecycle status.
	ListRuns(ctx context.Context, toolID string, status RunStatus, limit int, cursor string) (*RunPage, error)

	// CancelRun aborts an in-flight run.
	CancelRun(ctx context.Context, runID string) (*Run, error)
	SearchDocumentation(ctx context.Context, systemID, query string) ([]DocHit, error)
}

// APIError is a structured failure from the backend.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("superglue api: %s (status %d)", e.Message, e.StatusCode)
}
