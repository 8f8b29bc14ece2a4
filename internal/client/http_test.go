package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*HTTPClient, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	c := NewHTTPClient(HTTPClientConfig{
		Endpoint: srv.URL,
		APIKey:   "sg_testkey1234",
	})
	return c, srv.Close
}

func TestHTTPClient_RunTool(t *testing.T) {
	var gotAuth string
	c, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.Method != http.MethodPost || r.URL.Path != "/tools/run" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		if _, ok := body["tool"]; !ok {
			t.Fatal("expected tool in request body")
		}
		_ = json.NewEncoder(w).Encode(Run{
			RunID:  "run-1",
			Status: RunSuccess,
			Data:   map[string]any{"count": float64(3)},
		})
	})
	defer cleanup()

	run, err := c.RunTool(context.Background(), &ToolConfig{ID: "draft_x"}, map[string]any{"q": "news"})
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != RunSuccess {
		t.Fatalf("expected success, got %s", run.Status)
	}
	if gotAuth != "Bearer sg_testkey1234" {
		t.Fatalf("expected bearer auth header, got %q", gotAuth)
	}
}

func TestHTTPClient_APIError(t *testing.T) {
	c, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "tool already running"})
	})
	defer cleanup()

	_, err := c.RunTool(context.Background(), &ToolConfig{ID: "t1"}, nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "tool already running" {
		t.Fatalf("unexpected message: %s", apiErr.Message)
	}
}

func TestHTTPClient_ListRunsQuery(t *testing.T) {
	c, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/runs" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("toolId") != "tool-9" || q.Get("limit") != "10" || q.Get("status") != "failed" {
			t.Fatalf("unexpected query: %s", r.URL.RawQuery)
		}
		_ = json.NewEncoder(w).Encode(RunPage{
			Items: []Run{{RunID: "r1", Status: RunFailed}},
			Total: 1,
		})
	})
	defer cleanup()

	page, err := c.ListRuns(context.Background(), "tool-9", RunFailed, 10, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page.Items) != 1 || page.Items[0].Status != RunFailed {
		t.Fatalf("unexpected page: %+v", page)
	}
}

func TestHTTPClient_CancelRun(t *testing.T) {
	c, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/runs/r1/cancel" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(Run{RunID: "r1", Status: RunAborted})
	})
	defer cleanup()

	run, err := c.CancelRun(context.Background(), "r1")
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != RunAborted {
		t.Fatalf("expected aborted run, got %+v", run)
	}
}

func TestHTTPClient_DeleteTool(t *testing.T) {
	c, cleanup := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/tools/tool-1" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	defer cleanup()

	if err := c.DeleteTool(context.Background(), "tool-1"); err != nil {
		t.Fatal(err)
	}
}
