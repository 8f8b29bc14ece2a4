package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/superglue-ai/agent-runtime/internal/auth"
	"github.com/superglue-ai/agent-runtime/internal/confirm"
	"github.com/superglue-ai/agent-runtime/internal/policy"
	"github.com/superglue-ai/agent-runtime/internal/registry"
	"github.com/superglue-ai/agent-runtime/internal/session"
)

func newTestServer(t *testing.T, ops ...*registry.Operation) *httptest.Server {
	t.Helper()
	reg := registry.New(nil, zap.NewNop())
	reg.MustRegister(ops...)

	srv := New(Config{
		Registry: reg,
		Auth:     auth.NewStaticAuthenticator(),
		Drafts:   session.NewMemoryDraftStore(0),
		Logger:   zap.NewNop(),
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer sg_test_key")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	return resp, decoded
}

func echoOp(name string, mode policy.ExecutionMode) *registry.Operation {
	return &registry.Operation{
		Name:     name,
		Category: registry.CategoryExecution,
		Policy:   policy.Policy{DefaultMode: mode},
		Execute: func(_ context.Context, _ *session.Context, input map[string]any) (map[string]any, error) {
			return map[string]any{"success": true, "echo": input}, nil
		},
	}
}

func TestHealthzSkipsAuth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
}

func TestMissingAPIKeyRejected(t *testing.T) {
	ts := newTestServer(t, echoOp("list_runs", policy.ModeAuto))
	resp, err := http.Get(ts.URL + "/v1/operations")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestListOperations_PersonaFilter(t *testing.T) {
	buildOp := echoOp("build_tool", policy.ModeAuto)
	buildOp.Personas = []registry.Persona{registry.PersonaBuilder}
	sysOp := echoOp("create_system", policy.ModeConfirmBefore)
	sysOp.Personas = []registry.Persona{registry.PersonaSystems}
	ts := newTestServer(t, buildOp, sysOp)

	_, body := doJSON(t, http.MethodGet, ts.URL+"/v1/operations?persona=builder", nil)
	ops, _ := body["operations"].([]any)
	if len(ops) != 1 {
		t.Fatalf("expected 1 builder operation, got %d", len(ops))
	}
	op := ops[0].(map[string]any)
	if op["name"] != "build_tool" || op["defaultMode"] != "auto" {
		t.Fatalf("unexpected operation view %v", op)
	}
}

func TestDispatch_AutoOperation(t *testing.T) {
	ts := newTestServer(t, echoOp("list_runs", policy.ModeAuto))

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/s1/operations/list_runs",
		map[string]any{"input": map[string]any{"toolId": "sync-users"}})

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["pending"] != false {
		t.Fatalf("expected non-pending, got %v", body)
	}
	out, _ := body["output"].(map[string]any)
	if out["success"] != true {
		t.Fatalf("unexpected output %v", out)
	}
	if body["requestId"] == "" {
		t.Fatal("expected a request id")
	}
}

func TestDispatch_OmittedInput(t *testing.T) {
	op := echoOp("find_tools", policy.ModeAuto)
	op.InputSchema = map[string]any{"type": "object"}
	ts := newTestServer(t, op)

	_, body := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/s1/operations/find_tools",
		map[string]any{})

	out, _ := body["output"].(map[string]any)
	if out["success"] != true {
		t.Fatalf("zero-argument invocation must succeed, got %v", body)
	}
}

func TestDispatch_ConfirmBeforeRoundTrip(t *testing.T) {
	executed := 0
	op := &registry.Operation{
		Name:     "delete_tool",
		Category: registry.CategoryBuilding,
		Policy:   policy.Policy{DefaultMode: policy.ModeConfirmBefore},
		Execute: func(_ context.Context, _ *session.Context, input map[string]any) (map[string]any, error) {
			executed++
			return map[string]any{"success": true, "toolId": input["toolId"]}, nil
		},
	}
	op.Confirm = &passthroughHandler{op: op}
	ts := newTestServer(t, op)

	input := map[string]any{"toolId": "sync-users"}
	_, body := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/s1/operations/delete_tool",
		map[string]any{"input": input})
	if body["pending"] != true {
		t.Fatalf("expected pending descriptor, got %v", body)
	}
	if executed != 0 {
		t.Fatal("executor ran before confirmation")
	}
	prior, _ := body["output"].(map[string]any)

	_, final := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/s1/operations/delete_tool/confirmation",
		map[string]any{
			"input":  input,
			"prior":  prior,
			"action": map[string]any{"state": "confirmed"},
		})
	out, _ := final["output"].(map[string]any)
	if out["success"] != true || out["toolId"] != "sync-users" {
		t.Fatalf("unexpected confirmed output %v", out)
	}
	if executed != 1 {
		t.Fatalf("expected exactly one execution, got %d", executed)
	}
}

func TestConfirm_Declined(t *testing.T) {
	op := echoOp("delete_tool", policy.ModeConfirmBefore)
	op.Confirm = &passthroughHandler{op: op}
	ts := newTestServer(t, op)

	_, body := doJSON(t, http.MethodPost, ts.URL+"/v1/sessions/s1/operations/delete_tool/confirmation",
		map[string]any{
			"prior":  map[string]any{"confirmationState": "pending", "input": map[string]any{}},
			"action": map[string]any{"state": "declined"},
		})
	if body["status"] != "declined" {
		t.Fatalf("expected declined status, got %v", body)
	}
	out, _ := body["output"].(map[string]any)
	if out["cancelled"] != true {
		t.Fatalf("expected cancellation payload, got %v", out)
	}
}

// passthroughHandler runs the operation's executor on approval.
type passthroughHandler struct {
	op *registry.Operation
}

func (h *passthroughHandler) States() []confirm.State {
	return []confirm.State{confirm.StateConfirmed, confirm.StateDeclined}
}

func (h *passthroughHandler) Finalize(ctx context.Context, sess *session.Context, input, prior map[string]any, _ confirm.Action) (map[string]any, confirm.Status, error) {
	if in, ok := prior["input"].(map[string]any); ok {
		input = in
	}
	out, err := h.op.Execute(ctx, sess, input)
	return out, confirm.StatusCompleted, err
}
