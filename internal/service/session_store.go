package service

import (
	"context"
	"slices"
	"sync"
)

type InMemorySessionStore struct {
	mu    sync.RWMutex
	store map[string]map[int64]struct{}
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		store: make(map[string]map[int64]struct{}),
	}
}

func (s *InMemorySessionStore) MarkValid(_ context.Context, userID string, issuedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.store[userID]
	if !ok {
		set = make(map[int64]struct{})
		s.store[userID] = set
	}
	set[issuedAt] = struct{}{}
	return nil
}

func (s *InMemorySessionStore) IsValid(_ context.Context, userID string, issuedAt int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.store[userID][issuedAt]
	return ok, nil
}

func (s *InMemorySessionStore) Revoke(_ context.Context, userID string, issuedAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.store[userID]
	if !ok {
		return nil
	}
	delete(set, issuedAt)
	if len(set) == 0 {
		delete(s.store, userID)
	}
	return nil
}

func (s *InMemorySessionStore) ListValid(_ context.Context, userID string) ([]int64, error) {
	s.mu.RLock()
	out := make([]int64, 0, len(s.store[userID]))
	for iat := range s.store[userID] {
		out = append(out, iat)
	}
	s.mu.RUnlock()
	slices.Sort(out)
	return out, nil
}

func (s *InMemorySessionStore) RevokeAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.store, userID)
	return nil
}
