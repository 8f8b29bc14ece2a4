// Package server exposes the operation registry over HTTP: listing per
// persona, dispatching invocations, and resolving confirmations.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/superglue-ai/agent-runtime/internal/auth"
	"github.com/superglue-ai/agent-runtime/internal/client"
	"github.com/superglue-ai/agent-runtime/internal/confirm"
	"github.com/superglue-ai/agent-runtime/internal/policy"
	"github.com/superglue-ai/agent-runtime/internal/registry"
	"github.com/superglue-ai/agent-runtime/internal/session"
)

// Server wires authentication, the registry and shared session state
// behind the HTTP API.
type Server struct {
	registry *registry.Registry
	auth     auth.Authenticator
	client   client.Client
	drafts   session.DraftStore
	logger   *zap.Logger
}

// Config holds the Server's dependencies.
type Config struct {
	Registry *registry.Registry
	Auth     auth.Authenticator
	Client   client.Client
	Drafts   session.DraftStore
	Logger   *zap.Logger
}

// New creates a Server.
func New(cfg Config) *Server {
	return &Server{
		registry: cfg.Registry,
		auth:     cfg.Auth,
		client:   cfg.Client,
		drafts:   cfg.Drafts,
		logger:   cfg.Logger,
	}
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(s.authMiddleware)
	v1.HandleFunc("/operations", s.handleListOperations).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{sessionId}/operations/{name}", s.handleDispatch).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{sessionId}/operations/{name}/confirmation", s.handleConfirm).Methods(http.MethodPost)
	return r
}

type contextKey struct{}

var workspaceKey contextKey

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "missing or malformed API key")
			return
		}
		ws, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.logger.Warn("authentication failed", zap.Error(err))
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		ctx := contextWithWorkspace(r.Context(), ws)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// operationView is the wire shape of one registry entry.
type operationView struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Category    string             `json:"category"`
	InputSchema map[string]any     `json:"inputSchema,omitempty"`
	Personas    []registry.Persona `json:"personas,omitempty"`
	DefaultMode string             `json:"defaultMode"`
	ModeOptions []string           `json:"modeOptions,omitempty"`
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	persona := registry.Persona(r.URL.Query().Get("persona"))
	ws := workspaceFromContext(r.Context())
	if persona == "" && ws != nil && ws.Persona != "" {
		persona = registry.Persona(ws.Persona)
	}

	ops := s.registry.ForPersona(persona)
	views := make([]operationView, 0, len(ops))
	for _, op := range ops {
		mode := op.Policy.DefaultMode
		if mode == "" {
			mode = policy.ModeAuto
		}
		options := make([]string, 0, len(op.Policy.UserModeOptions))
		for _, m := range op.Policy.UserModeOptions {
			options = append(options, string(m))
		}
		views = append(views, operationView{
			Name:        op.Name,
			Description: op.Description,
			Category:    string(op.Category),
			InputSchema: op.InputSchema,
			Personas:    op.Personas,
			DefaultMode: string(mode),
			ModeOptions: options,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": views})
}

// dispatchRequest is the body of an operation invocation.
type dispatchRequest struct {
	Input           map[string]any    `json:"input"`
	Files           map[string]any    `json:"files,omitempty"`
	Messages        []session.Message `json:"messages,omitempty"`
	PolicyOverrides policy.Overrides  `json:"policyOverrides,omitempty"`
}

// dispatchResponse mirrors registry.Result on the wire.
type dispatchResponse struct {
	RequestID string         `json:"requestId"`
	Output    map[string]any `json:"output"`
	Pending   bool           `json:"pending"`
	Status    string         `json:"status,omitempty"`
	Mode      string         `json:"mode,omitempty"`
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req dispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sess := s.buildSession(r, vars["sessionId"], &req)
	res := s.registry.Dispatch(r.Context(), sess, vars["name"], req.Input, req.PolicyOverrides)
	writeJSON(w, http.StatusOK, dispatchResponse{
		RequestID: res.RequestID,
		Output:    res.Output,
		Pending:   res.Pending,
		Status:    string(res.Status),
		Mode:      string(res.Mode),
	})
}

// confirmRequest is the body of a confirmation resolution.
type confirmRequest struct {
	Input           map[string]any    `json:"input,omitempty"`
	Prior           map[string]any    `json:"prior"`
	Action          confirm.Action    `json:"action"`
	Files           map[string]any    `json:"files,omitempty"`
	Messages        []session.Message `json:"messages,omitempty"`
	PolicyOverrides policy.Overrides  `json:"policyOverrides,omitempty"`
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	sess := s.buildSession(r, vars["sessionId"], &dispatchRequest{
		Files:    req.Files,
		Messages: req.Messages,
	})
	res := s.registry.Confirm(r.Context(), sess, vars["name"], req.Input, req.Prior, req.Action)
	writeJSON(w, http.StatusOK, dispatchResponse{
		RequestID: res.RequestID,
		Output:    res.Output,
		Pending:   res.Pending,
		Status:    string(res.Status),
	})
}

func (s *Server) buildSession(r *http.Request, sessionID string, req *dispatchRequest) *session.Context {
	sess := &session.Context{
		SessionID: sessionID,
		Files:     req.Files,
		Messages:  req.Messages,
		Client:    s.client,
		Drafts:    s.drafts,
		Logger:    s.logger,
	}
	if sess.Files == nil {
		sess.Files = map[string]any{}
	}
	if ws := workspaceFromContext(r.Context()); ws != nil {
		sess.WorkspaceID = ws.WorkspaceID
	}
	return sess
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
