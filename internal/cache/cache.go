package cache

import (
	"context"
	"sync"
	"time"
)

// Well-known snapshot keys flushed after dispatch/claim cycles.
const (
	KeyActiveMissions   = "active-missions"
	KeyNFTs             = "nfts"
	KeyProfile          = "profile"
	KeyLeaderboard      = "leaderboard"
	KeyArenaLeaderboard = "arena-leaderboard"
)

// MissionKeys is the invalidation set for a mission dispatch cycle.
var MissionKeys = []string{KeyActiveMissions, KeyNFTs, KeyProfile, KeyLeaderboard}

// ArenaKeys is the invalidation set for an arena cycle.
var ArenaKeys = []string{KeyActiveMissions, KeyNFTs, KeyProfile, KeyArenaLeaderboard}

type entry struct {
	value     any
	fetchedAt time.Time
}

// Store holds remote snapshots keyed by endpoint. Readers get the cached
// value until the key is invalidated, after which the next read re-fetches.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry
}

func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Get returns the cached value for key, if present.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Set stores a snapshot for key.
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry{value: value, fetchedAt: time.Now()}
}

// Invalidate drops the given keys so the next read hits the worker.
func (s *Store) Invalidate(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
}

// GetOrFetch returns the cached value or fetches and stores a fresh one.
func (s *Store) GetOrFetch(ctx context.Context, key string, fetch func(context.Context) (any, error)) (any, error) {
	if v, ok := s.Get(key); ok {
		return v, nil
	}
	v, err := fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.Set(key, v)
	return v, nil
}
