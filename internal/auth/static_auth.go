package auth

import (
	"context"
	"strings"
)

// StaticAuthenticator is a development-only authenticator that accepts
// any sg_ key.
type StaticAuthenticator struct{}

func NewStaticAuthenticator() *StaticAuthenticator {
	return &StaticAuthenticator{}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, apiKey string) (*WorkspaceContext, error) {
	if !strings.HasPrefix(apiKey, KeyPrefix) {
		return nil, ErrUnauthenticated
	}
	return &WorkspaceContext{
		WorkspaceID: "dev",
	}, nil
}
