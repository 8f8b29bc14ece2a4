package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		err    bool
	}{
		{name: "valid", header: "Bearer sg_live_abc123def456", want: "sg_live_abc123def456"},
		{name: "lowercase bearer", header: "bearer sg_live_abc123def456", want: "sg_live_abc123def456"},
		{name: "bare key", header: "sg_live_abc123def456", want: "sg_live_abc123def456"},
		{name: "missing header", header: "", err: true},
		{name: "wrong prefix", header: "Bearer tok_abc", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/v1/operations", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractBearerToken(r)
			if tt.err {
				if !errors.Is(err, ErrUnauthenticated) {
					t.Fatalf("expected ErrUnauthenticated, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStaticAuthenticator(t *testing.T) {
	a := NewStaticAuthenticator()

	ws, err := a.Authenticate(context.Background(), "sg_live_anything")
	if err != nil {
		t.Fatal(err)
	}
	if ws.WorkspaceID != "dev" {
		t.Fatalf("unexpected workspace %q", ws.WorkspaceID)
	}

	if _, err := a.Authenticate(context.Background(), "tok_nope"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

// mockWorkspaceStore returns a fixed row and counts lookups.
type mockWorkspaceStore struct {
	row     *workspaceRow
	err     error
	lookups int
}

func (m *mockWorkspaceStore) LookupByPrefix(_ context.Context, _ string) (*workspaceRow, error) {
	m.lookups++
	if m.err != nil {
		return nil, m.err
	}
	return m.row, nil
}

func hashKey(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(hash)
}

func TestPostgresAuthenticator_ValidKey(t *testing.T) {
	key := "sg_live_abc123def456"
	store := &mockWorkspaceStore{row: &workspaceRow{
		WorkspaceID: "ws-1",
		APIKeyHash:  hashKey(t, key),
		Persona:     "builder",
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	ws, err := a.Authenticate(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if ws.WorkspaceID != "ws-1" || ws.Persona != "builder" {
		t.Fatalf("unexpected workspace %+v", ws)
	}
}

func TestPostgresAuthenticator_WrongKey(t *testing.T) {
	store := &mockWorkspaceStore{row: &workspaceRow{
		WorkspaceID: "ws-1",
		APIKeyHash:  hashKey(t, "sg_live_correct_key"),
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	_, err := a.Authenticate(context.Background(), "sg_live_wrong_key_x")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestPostgresAuthenticator_ShortKey(t *testing.T) {
	a := NewPostgresAuthenticatorWithStore(&mockWorkspaceStore{}, time.Minute, zap.NewNop())
	_, err := a.Authenticate(context.Background(), "sg_x")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestPostgresAuthenticator_CacheSkipsSecondLookup(t *testing.T) {
	key := "sg_live_abc123def456"
	store := &mockWorkspaceStore{row: &workspaceRow{
		WorkspaceID: "ws-1",
		APIKeyHash:  hashKey(t, key),
	}}
	a := NewPostgresAuthenticatorWithStore(store, time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		if _, err := a.Authenticate(context.Background(), key); err != nil {
			t.Fatal(err)
		}
	}
	if store.lookups != 1 {
		t.Fatalf("expected 1 DB lookup, got %d", store.lookups)
	}
}

func TestAuthCache_StaleServesAndFlagsRefresh(t *testing.T) {
	c := NewAuthCache(-time.Second) // already expired on insert
	c.Set("key", &WorkspaceContext{WorkspaceID: "ws-1"})

	first := c.Get("key")
	if !first.Hit || !first.NeedsRefresh {
		t.Fatalf("expected stale hit needing refresh, got %+v", first)
	}
	second := c.Get("key")
	if !second.Hit || second.NeedsRefresh {
		t.Fatalf("refresh must be claimed exactly once, got %+v", second)
	}
}
