package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// draftRowStore abstracts DB queries for testability.
type draftRowStore interface {
	UpsertDraft(ctx context.Context, row *draftRow) error
	LookupDraft(ctx context.Context, sessionID, draftID string) (*draftRow, error)
	DeleteDraft(ctx context.Context, sessionID, draftID string) error
}

type draftRow struct {
	SessionID   string
	DraftID     string
	Config      string // JSONB as string
	SystemIDs   string // JSONB array as string
	Instruction sql.NullString
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// sqlDraftStore is the real implementation using *sql.DB.
type sqlDraftStore struct {
	db *sql.DB
}

func (s *sqlDraftStore) UpsertDraft(ctx context.Context, row *draftRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_drafts (session_id, draft_id, config, system_ids, instruction, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id, draft_id)
		DO UPDATE SET config = $3, system_ids = $4, instruction = $5, expires_at = $7
	`, row.SessionID, row.DraftID, row.Config, row.SystemIDs, row.Instruction, row.CreatedAt, row.ExpiresAt)
	return err
}

func (s *sqlDraftStore) LookupDraft(ctx context.Context, sessionID, draftID string) (*draftRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT session_id, draft_id, config, system_ids, instruction, created_at, expires_at
		FROM agent_drafts
		WHERE session_id = $1 AND draft_id = $2 AND expires_at > now()
	`, sessionID, draftID)

	var r draftRow
	if err := row.Scan(
		&r.SessionID, &r.DraftID, &r.Config, &r.SystemIDs,
		&r.Instruction, &r.CreatedAt, &r.ExpiresAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *sqlDraftStore) DeleteDraft(ctx context.Context, sessionID, draftID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM agent_drafts WHERE session_id = $1 AND draft_id = $2
	`, sessionID, draftID)
	return err
}

// PostgresDraftStore persists drafts in the agent_drafts table so a
// conversation can continue on any replica.
type PostgresDraftStore struct {
	store  draftRowStore
	ttl    time.Duration
	logger *zap.Logger
}

// PostgresDraftStoreConfig configures the PostgresDraftStore.
type PostgresDraftStoreConfig struct {
	DB     *sql.DB
	TTL    time.Duration
	Logger *zap.Logger
}

// NewPostgresDraftStore creates a new PostgresDraftStore.
func NewPostgresDraftStore(cfg PostgresDraftStoreConfig) *PostgresDraftStore {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 2 * time.Hour
	}
	return &PostgresDraftStore{
		store:  &sqlDraftStore{db: cfg.DB},
		ttl:    ttl,
		logger: cfg.Logger,
	}
}

// newPostgresDraftStoreWithStore creates a store with a custom row store (for testing).
func newPostgresDraftStoreWithStore(store draftRowStore, ttl time.Duration, logger *zap.Logger) *PostgresDraftStore {
	if ttl == 0 {
		ttl = 2 * time.Hour
	}
	return &PostgresDraftStore{store: store, ttl: ttl, logger: logger}
}

func (s *PostgresDraftStore) Put(ctx context.Context, sessionID string, draft *Draft) error {
	config, err := json.Marshal(draft.Config)
	if err != nil {
		return fmt.Errorf("Put: marshal config: %w", err)
	}
	systemIDs, err := json.Marshal(draft.SystemIDs)
	if err != nil {
		return fmt.Errorf("Put: marshal system ids: %w", err)
	}

	createdAt := draft.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	row := &draftRow{
		SessionID: sessionID,
		DraftID:   draft.ID,
		Config:    string(config),
		SystemIDs: string(systemIDs),
		CreatedAt: createdAt,
		ExpiresAt: time.Now().Add(s.ttl),
	}
	if draft.Instruction != "" {
		row.Instruction = sql.NullString{String: draft.Instruction, Valid: true}
	}

	if err := s.store.UpsertDraft(ctx, row); err != nil {
		return fmt.Errorf("Put: %w", err)
	}
	return nil
}

func (s *PostgresDraftStore) Get(ctx context.Context, sessionID, draftID string) (*Draft, error) {
	row, err := s.store.LookupDraft(ctx, sessionID, draftID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return parseDraftRow(row)
}

func (s *PostgresDraftStore) Delete(ctx context.Context, sessionID, draftID string) error {
	if err := s.store.DeleteDraft(ctx, sessionID, draftID); err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	return nil
}

func parseDraftRow(row *draftRow) (*Draft, error) {
	d := &Draft{
		ID:        row.DraftID,
		CreatedAt: row.CreatedAt,
	}
	if err := json.Unmarshal([]byte(row.Config), &d.Config); err != nil {
		return nil, fmt.Errorf("parseDraftRow: config: %w", err)
	}
	if row.SystemIDs != "" && row.SystemIDs != "[]" {
		if err := json.Unmarshal([]byte(row.SystemIDs), &d.SystemIDs); err != nil {
			return nil, fmt.Errorf("parseDraftRow: system_ids: %w", err)
		}
	}
	if row.Instruction.Valid {
		d.Instruction = row.Instruction.String
	}
	return d, nil
}
