package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Authenticator validates an API key and returns the workspace it
// belongs to.
type Authenticator interface {
	Authenticate(ctx context.Context, apiKey string) (*WorkspaceContext, error)
}

// WorkspaceContext holds the authenticated workspace's identity and the
// persona its API key is scoped to.
type WorkspaceContext struct {
	WorkspaceID string
	Persona     string
}

// ErrUnauthenticated is returned when no valid credentials are found.
var ErrUnauthenticated = errors.New("unauthenticated")

// KeyPrefix is the required prefix of every API key.
const KeyPrefix = "sg_"

// ExtractBearerToken extracts an sg_ API key from the Authorization
// header.
func ExtractBearerToken(r *http.Request) (string, error) {
	token := r.Header.Get("Authorization")
	if token == "" {
		return "", ErrUnauthenticated
	}
	token = strings.TrimPrefix(token, "Bearer ")
	token = strings.TrimPrefix(token, "bearer ")
	if !strings.HasPrefix(token, KeyPrefix) {
		return "", ErrUnauthenticated
	}
	return token, nil
}
