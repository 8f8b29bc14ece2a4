package refs

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestResolveFiles_ExactPlaceholderKeepsType(t *testing.T) {
	files := map[string]any{"a": map[string]any{"x": float64(1)}}
	resolved, err := ResolveFiles(map[string]any{"payload": "file::a"}, files, Options{})
	if err != nil {
		t.Fatal(err)
	}
	out := resolved.(map[string]any)
	obj, ok := out["payload"].(map[string]any)
	if !ok {
		t.Fatalf("expected object substitution, got %T", out["payload"])
	}
	if !reflect.DeepEqual(obj, files["a"]) {
		t.Fatalf("expected identity substitution, got %v", obj)
	}
}

func TestResolveFiles_ExactPlaceholderStringified(t *testing.T) {
	files := map[string]any{"a": map[string]any{"x": float64(1)}}
	resolved, err := ResolveFiles(map[string]any{"payload": "file::a"}, files, Options{StringifyObjects: true})
	if err != nil {
		t.Fatal(err)
	}
	s, ok := resolved.(map[string]any)["payload"].(string)
	if !ok {
		t.Fatal("expected string substitution")
	}
	var back map[string]any
	if err := json.Unmarshal([]byte(s), &back); err != nil {
		t.Fatalf("expected valid JSON, got %q", s)
	}
	if !strings.Contains(s, "\n") {
		t.Fatal("expected pretty-printed JSON")
	}
}

func TestResolveFiles_EmbeddedPlaceholdersJoin(t *testing.T) {
	files := map[string]any{
		"a": "first file",
		"b": "second file",
	}
	resolved, err := ResolveFiles(map[string]any{"q": "see file::a and file::b"}, files, Options{})
	if err != nil {
		t.Fatal(err)
	}
	got := resolved.(map[string]any)["q"].(string)
	// The surrounding literal text is discarded; contents are joined with
	// a blank line.
	if got != "first file\n\nsecond file" {
		t.Fatalf("unexpected join: %q", got)
	}
}

func TestResolveFiles_MissingKeysAggregated(t *testing.T) {
	_, err := ResolveFiles(map[string]any{"q": "see file::a and file::b"}, map[string]any{}, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	var mf *MissingFilesError
	if !errors.As(err, &mf) {
		t.Fatalf("expected MissingFilesError, got %T", err)
	}
	if len(mf.Missing) != 2 || mf.Missing[0] != "a" || mf.Missing[1] != "b" {
		t.Fatalf("expected both keys reported once, got %v", mf.Missing)
	}
}

func TestResolveFiles_MissingListsAvailable(t *testing.T) {
	files := map[string]any{"invoices": "...", "contacts": "..."}
	_, err := ResolveFiles(map[string]any{"q": "file::nope"}, files, Options{})
	var mf *MissingFilesError
	if !errors.As(err, &mf) {
		t.Fatalf("expected MissingFilesError, got %T", err)
	}
	if len(mf.Available) != 2 {
		t.Fatalf("expected available keys listed, got %v", mf.Available)
	}
	if mf.Suggestion() == "" {
		t.Fatal("expected suggestion")
	}
}

func TestResolveFiles_NestedStructures(t *testing.T) {
	files := map[string]any{"rows": []any{"r1", "r2"}}
	payload := map[string]any{
		"steps": []any{
			map[string]any{"body": "file::rows"},
			map[string]any{"body": "untouched"},
		},
	}
	resolved, err := ResolveFiles(payload, files, Options{})
	if err != nil {
		t.Fatal(err)
	}
	steps := resolved.(map[string]any)["steps"].([]any)
	if _, ok := steps[0].(map[string]any)["body"].([]any); !ok {
		t.Fatalf("expected array substitution, got %T", steps[0].(map[string]any)["body"])
	}
	if steps[1].(map[string]any)["body"] != "untouched" {
		t.Fatal("expected unrelated field preserved")
	}

	// Original payload must not be mutated.
	if payload["steps"].([]any)[0].(map[string]any)["body"] != "file::rows" {
		t.Fatal("original payload was mutated")
	}
}

func TestResolveFiles_KeyTerminators(t *testing.T) {
	files := map[string]any{"data": "D"}
	resolved, err := ResolveFiles(map[string]any{"q": `{"x": "file::data"}`}, files, Options{})
	if err != nil {
		t.Fatal(err)
	}
	// The quote terminates the key: "data" resolves, the JSON scaffolding
	// around it is discarded by the embedded-placeholder join.
	if got := resolved.(map[string]any)["q"].(string); got != "D" {
		t.Fatalf("unexpected resolution: %q", got)
	}
}

func TestResolveFiles_NoPlaceholders(t *testing.T) {
	payload := map[string]any{"q": "plain text", "n": float64(3)}
	resolved, err := ResolveFiles(payload, nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(resolved, payload) {
		t.Fatalf("expected passthrough, got %v", resolved)
	}
}
