package services

import (
	"context"
	"fmt"
	"sync"

	"solana_game_server/models"
)

// MemoryMatchStore keeps matches in process. Used for local development and tests.
type MemoryMatchStore struct {
	mu      sync.RWMutex
	matches map[string]models.MatchRecord
	users   map[string][]models.UserRecord
}

func NewMemoryMatchStore() *MemoryMatchStore {
	return &MemoryMatchStore{
		matches: make(map[string]models.MatchRecord),
		users:   make(map[string][]models.UserRecord),
	}
}

func (s *MemoryMatchStore) WriteMatchRecord(_ context.Context, kp models.KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.matches[kp.PublicKey] = models.MatchRecord{MatchPubKey: kp.PublicKey, SecretKey: kp.SecretKey}
	s.users[kp.PublicKey] = nil
	return nil
}

func (s *MemoryMatchStore) WriteUserRecord(_ context.Context, user models.UserRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[user.MatchPubKey]; !ok {
		return fmt.Errorf("write user %s: %w", user.UserPubKey, ErrMatchNotFound)
	}
	for _, u := range s.users[user.MatchPubKey] {
		if u.UserPubKey == user.UserPubKey {
			return nil
		}
	}
	s.users[user.MatchPubKey] = append(s.users[user.MatchPubKey], user)
	return nil
}

func (s *MemoryMatchStore) GetMatchRecord(_ context.Context, matchPubKey string) (models.MatchRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.matches[matchPubKey]
	if !ok {
		return models.MatchRecord{}, ErrMatchNotFound
	}
	return record, nil
}

func (s *MemoryMatchStore) GetUserRecords(_ context.Context, matchPubKey string) ([]models.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.matches[matchPubKey]; !ok {
		return nil, ErrMatchNotFound
	}
	users := make([]models.UserRecord, len(s.users[matchPubKey]))
	copy(users, s.users[matchPubKey])
	return users, nil
}

func (s *MemoryMatchStore) RemoveUserRecords(_ context.Context, args models.UpdateMatchArgs) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[args.MatchPubKey]; !ok {
		return ErrMatchNotFound
	}
	removed := make(map[string]struct{}, len(args.RemovedUsers))
	for _, u := range args.RemovedUsers {
		removed[u.UserPubKey] = struct{}{}
	}
	kept := s.users[args.MatchPubKey][:0:0]
	for _, u := range s.users[args.MatchPubKey] {
		if _, gone := removed[u.UserPubKey]; !gone {
			kept = append(kept, u)
		}
	}
	s.users[args.MatchPubKey] = kept
	return nil
}

func (s *MemoryMatchStore) RemoveMatch(_ context.Context, matchPubKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.matches, matchPubKey)
	delete(s.users, matchPubKey)
	return nil
}
