package session

import (
	"context"
	"sync"
	"time"
)

// DraftStore keeps drafts keyed by session and draft ID. Entries are
// session-scoped and evicted by TTL; a miss returns (nil, nil).
type DraftStore interface {
	Put(ctx context.Context, sessionID string, draft *Draft) error
	Get(ctx context.Context, sessionID, draftID string) (*Draft, error)
	Delete(ctx context.Context, sessionID, draftID string) error
}

// MemoryDraftStore is an in-memory DraftStore with TTL eviction.
// Uses sync.Map for lock-free reads on the hot path; expired entries
// are dropped lazily on access and swept on Put.
type MemoryDraftStore struct {
	store sync.Map // map[string]*draftEntry
	ttl   time.Duration
}

type draftEntry struct {
	draft     *Draft
	expiresAt time.Time
}

// NewMemoryDraftStore creates a store with the given TTL.
func NewMemoryDraftStore(ttl time.Duration) *MemoryDraftStore {
	if ttl == 0 {
		ttl = 2 * time.Hour
	}
	return &MemoryDraftStore{ttl: ttl}
}

func draftKey(sessionID, draftID string) string {
	return sessionID + ":" + draftID
}

func (s *MemoryDraftStore) Put(_ context.Context, sessionID string, draft *Draft) error {
	s.sweep()
	s.store.Store(draftKey(sessionID, draft.ID), &draftEntry{
		draft:     draft,
		expiresAt: time.Now().Add(s.ttl),
	})
	return nil
}

func (s *MemoryDraftStore) Get(_ context.Context, sessionID, draftID string) (*Draft, error) {
	key := draftKey(sessionID, draftID)
	val, ok := s.store.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(*draftEntry)
	if time.Now().After(entry.expiresAt) {
		s.store.Delete(key)
		return nil, nil
	}
	return entry.draft, nil
}

func (s *MemoryDraftStore) Delete(_ context.Context, sessionID, draftID string) error {
	s.store.Delete(draftKey(sessionID, draftID))
	return nil
}

func (s *MemoryDraftStore) sweep() {
	now := time.Now()
	s.store.Range(func(key, val any) bool {
		if now.After(val.(*draftEntry).expiresAt) {
			s.store.Delete(key)
		}
		return true
	})
}
