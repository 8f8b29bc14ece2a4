package session

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/superglue-ai/agent-runtime/internal/client"
)

func TestMemoryDraftStore_PutGet(t *testing.T) {
	store := NewMemoryDraftStore(time.Minute)
	draft := &Draft{
		ID:     "draft_abc",
		Config: client.ToolConfig{ID: "draft_abc", Instruction: "fetch users"},
	}
	if err := store.Put(context.Background(), "sess-1", draft); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(context.Background(), "sess-1", "draft_abc")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.Config.Instruction != "fetch users" {
		t.Fatalf("unexpected draft: %+v", got)
	}

	// Other sessions must not see it.
	got, err = store.Get(context.Background(), "sess-2", "draft_abc")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected miss for other session")
	}
}

func TestMemoryDraftStore_TTLEviction(t *testing.T) {
	store := NewMemoryDraftStore(time.Nanosecond)
	if err := store.Put(context.Background(), "sess-1", &Draft{ID: "draft_x"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(time.Millisecond)

	got, err := store.Get(context.Background(), "sess-1", "draft_x")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected expired draft to be evicted")
	}
}

func toolOutput(t *testing.T, d Draft) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestResolveDraft_FromHistory(t *testing.T) {
	sess := &Context{
		SessionID: "sess-1",
		Messages: []Message{
			{Role: "user", Content: "build me a tool"},
			{
				Role: "assistant",
				ToolOutputs: []json.RawMessage{
					toolOutput(t, Draft{
						ID:     "draft_hist",
						Config: client.ToolConfig{ID: "draft_hist", Instruction: "list invoices"},
					}),
				},
			},
		},
	}

	d, err := sess.ResolveDraft(context.Background(), "draft_hist")
	if err != nil {
		t.Fatal(err)
	}
	if d.Config.Instruction != "list invoices" {
		t.Fatalf("unexpected draft: %+v", d)
	}
}

func TestResolveDraft_PrunedHistory(t *testing.T) {
	// The turn that produced the draft has been pruned: resolution must
	// fail with a typed error, not a panic or silent fallback.
	sess := &Context{
		SessionID: "sess-1",
		Messages:  []Message{{Role: "user", Content: "run it"}},
	}

	_, err := sess.ResolveDraft(context.Background(), "draft_gone")
	if err == nil {
		t.Fatal("expected error for pruned draft")
	}
	var nf *DraftNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected DraftNotFoundError, got %T", err)
	}
	if nf.Suggestion() == "" {
		t.Fatal("expected a recovery suggestion")
	}
}

func TestResolveDraft_StoreWinsOverHistory(t *testing.T) {
	store := NewMemoryDraftStore(time.Minute)
	_ = store.Put(context.Background(), "sess-1", &Draft{
		ID:     "draft_both",
		Config: client.ToolConfig{Instruction: "stored version"},
	})

	sess := &Context{
		SessionID: "sess-1",
		Drafts:    store,
		Messages: []Message{
			{
				Role: "assistant",
				ToolOutputs: []json.RawMessage{
					toolOutput(t, Draft{ID: "draft_both", Config: client.ToolConfig{Instruction: "history version"}}),
				},
			},
		},
	}

	d, err := sess.ResolveDraft(context.Background(), "draft_both")
	if err != nil {
		t.Fatal(err)
	}
	if d.Config.Instruction != "stored version" {
		t.Fatalf("expected store to win, got %q", d.Config.Instruction)
	}
}

func TestResolveDraft_MostRecentTurnWins(t *testing.T) {
	sess := &Context{
		SessionID: "sess-1",
		Messages: []Message{
			{
				Role: "assistant",
				ToolOutputs: []json.RawMessage{
					toolOutput(t, Draft{ID: "draft_v", Config: client.ToolConfig{Instruction: "v1"}}),
				},
			},
			{
				Role: "assistant",
				ToolOutputs: []json.RawMessage{
					toolOutput(t, Draft{ID: "draft_v", Config: client.ToolConfig{Instruction: "v2"}}),
				},
			},
		},
	}

	d, err := sess.ResolveDraft(context.Background(), "draft_v")
	if err != nil {
		t.Fatal(err)
	}
	if d.Config.Instruction != "v2" {
		t.Fatalf("expected latest revision, got %q", d.Config.Instruction)
	}
}

func TestResolveDraft_MalformedHistorySkipped(t *testing.T) {
	sess := &Context{
		SessionID: "sess-1",
		Messages: []Message{
			{
				Role:        "assistant",
				ToolOutputs: []json.RawMessage{json.RawMessage(`not json at all`)},
			},
		},
	}

	_, err := sess.ResolveDraft(context.Background(), "draft_x")
	var nf *DraftNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected DraftNotFoundError, got %v", err)
	}
}

func TestDraftIDs(t *testing.T) {
	id := NewDraftID()
	if !strings.HasPrefix(id, "draft_") {
		t.Fatalf("expected draft_ prefix, got %s", id)
	}
	fix := FixDraftID("tool-1")
	if !strings.HasPrefix(fix, "fix-tool-1-") {
		t.Fatalf("expected fix-tool-1- prefix, got %s", fix)
	}
}
