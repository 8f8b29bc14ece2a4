package auth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// keyPrefixLen is how many leading characters of an API key are stored
// in plaintext for lookup; the full key is only kept as a bcrypt hash.
const keyPrefixLen = 12

// WorkspaceStore abstracts DB queries for testability.
type WorkspaceStore interface {
	LookupByPrefix(ctx context.Context, prefix string) (*workspaceRow, error)
}

type workspaceRow struct {
	WorkspaceID string
	APIKeyHash  string
	Persona     string
}

// sqlWorkspaceStore is the real implementation using *sql.DB.
type sqlWorkspaceStore struct {
	db *sql.DB
}

func (s *sqlWorkspaceStore) LookupByPrefix(ctx context.Context, prefix string) (*workspaceRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT workspace_id, api_key_hash, persona
		FROM workspace_api_keys
		WHERE api_key_prefix = $1
	`, prefix)

	var r workspaceRow
	if err := row.Scan(&r.WorkspaceID, &r.APIKeyHash, &r.Persona); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresAuthenticator validates API keys against the
// workspace_api_keys table.
type PostgresAuthenticator struct {
	store  WorkspaceStore
	cache  *AuthCache
	logger *zap.Logger
}

// PostgresAuthConfig configures the PostgresAuthenticator.
type PostgresAuthConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewPostgresAuthenticator creates a new PostgresAuthenticator.
func NewPostgresAuthenticator(cfg PostgresAuthConfig) *PostgresAuthenticator {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  &sqlWorkspaceStore{db: cfg.DB},
		cache:  NewAuthCache(ttl),
		logger: cfg.Logger,
	}
}

// NewPostgresAuthenticatorWithStore creates an authenticator with a custom store (for testing).
func NewPostgresAuthenticatorWithStore(store WorkspaceStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresAuthenticator {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &PostgresAuthenticator{
		store:  store,
		cache:  NewAuthCache(cacheTTL),
		logger: logger,
	}
}

func (a *PostgresAuthenticator) Authenticate(ctx context.Context, apiKey string) (*WorkspaceContext, error) {
	cacheResult := a.cache.Get(apiKey)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go a.refreshInBackground(apiKey)
		}
		return cacheResult.Workspace, nil
	}

	// Cache miss — authenticate synchronously
	workspace, err := a.authenticateFromDB(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("Authenticate: %w", err)
	}

	a.cache.Set(apiKey, workspace)
	return workspace, nil
}

func (a *PostgresAuthenticator) authenticateFromDB(ctx context.Context, apiKey string) (*WorkspaceContext, error) {
	if len(apiKey) < keyPrefixLen {
		return nil, ErrUnauthenticated
	}
	prefix := apiKey[:keyPrefixLen]

	row, err := a.store.LookupByPrefix(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("authenticateFromDB: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.APIKeyHash), []byte(apiKey)); err != nil {
		return nil, ErrUnauthenticated
	}

	return &WorkspaceContext{
		WorkspaceID: row.WorkspaceID,
		Persona:     row.Persona,
	}, nil
}

func (a *PostgresAuthenticator) refreshInBackground(apiKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	workspace, err := a.authenticateFromDB(ctx, apiKey)
	if err != nil {
		a.logger.Warn("background auth refresh failed", zap.Error(err))
		return
	}
	a.cache.Set(apiKey, workspace)
}
