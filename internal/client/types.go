package client

import "time"

// ToolConfig is a multi-step integration definition: ordered call steps
// plus a final output transform and the input/output schemas.
type ToolConfig struct {
	ID              string         `json:"id"`
	Name            string         `json:"name,omitempty"`
	Version         string         `json:"version,omitempty"`
	Instruction     string         `json:"instruction,omitempty"`
	Steps           []ToolStep     `json:"steps"`
	InputSchema     map[string]any `json:"inputSchema,omitempty"`
	OutputSchema    map[string]any `json:"outputSchema,omitempty"`
	OutputTransform string         `json:"outputTransform,omitempty"`
	CreatedAt       time.Time      `json:"createdAt,omitzero"`
	UpdatedAt       time.Time      `json:"updatedAt,omitzero"`
}

// ToolStep is one call in a tool. URL carries the protocol: https://,
// postgres://, ftp:// and sftp:// are all valid targets. For non-HTTP
// protocols Method is POST and Body carries the query or operation.
type ToolStep struct {
	ID              string            `json:"id"`
	URL             string            `json:"url"`
	Method          string            `json:"method"`
	SystemID        string            `json:"systemId"`
	Headers         map[string]string `json:"headers,omitempty"`
	QueryParams     map[string]any    `json:"queryParams,omitempty"`
	Body            string            `json:"body,omitempty"`
	FailureBehavior string            `json:"failureBehavior,omitempty"`
}

// RunStatus is the lifecycle state of a tool run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunAborted RunStatus = "aborted"
)

// Run is one execution of a tool (saved or draft).
type Run struct {
	RunID       string         `json:"runId"`
	ToolID      string         `json:"toolId,omitempty"`
	Status      RunStatus      `json:"status"`
	Data        any            `json:"data,omitempty"`
	Error       string         `json:"error,omitempty"`
	StepResults []StepResult   `json:"stepResults,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartedAt   time.Time      `json:"startedAt,omitzero"`
	CompletedAt time.Time      `json:"completedAt,omitzero"`
}

// StepResult is the per-step outcome inside a run.
type StepResult struct {
	StepID  string `json:"stepId"`
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RunPage is a cursor-paginated slice of run history.
type RunPage struct {
	Items      []Run  `json:"items"`
	Total      int    `json:"total"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// System is a registered external endpoint plus its stored credentials.
// Credential values may be referenced from tool steps with
// <<{systemId}_{credentialKey}>> placeholders; those strings are
// substituted by the backend, never locally.
type System struct {
	ID            string            `json:"id"`
	URLHost       string            `json:"urlHost"`
	Documentation string            `json:"documentation,omitempty"`
	Credentials   map[string]string `json:"credentials,omitempty"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// EndpointRequest is a single ad-hoc call against a system's endpoint.
type EndpointRequest struct {
	SystemID    string            `json:"systemId"`
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	QueryParams map[string]any    `json:"queryParams,omitempty"`
	Body        string            `json:"body,omitempty"`
}

// EndpointResponse is the outcome of an ad-hoc endpoint call.
type EndpointResponse struct {
	StatusCode int               `json:"statusCode"`
	Headers    map[string]string `json:"headers,omitempty"`
	Data       any               `json:"data,omitempty"`
}

// DocHit is one documentation search match for a system.
type DocHit struct {
	SystemID string  `json:"systemId"`
	Title    string  `json:"title,omitempty"`
	Content  string  `json:"content"`
	Score    float64 `json:"score,omitempty"`
}
