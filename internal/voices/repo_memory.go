package voices

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store useful for tests and local runs.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[string]VoiceProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: map[string]VoiceProfile{}}
}

func (s *MemoryStore) Insert(ctx context.Context, p VoiceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.profiles {
		if existing.AccountID == p.AccountID && existing.Name == p.Name {
			return ErrDuplicateName
		}
	}
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (VoiceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return VoiceProfile{}, ErrNotFound
	}
	return p, nil
}

func (s *MemoryStore) ListByAccount(ctx context.Context, accountID string) ([]VoiceProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VoiceProfile, 0)
	for _, p := range s.profiles {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	list, err := s.ListByAccount(ctx, accountID)
	return len(list), err
}

func (s *MemoryStore) Update(ctx context.Context, p VoiceProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.profiles[p.ID]
	if !ok || cur.AccountID != p.AccountID {
		return ErrNotFound
	}
	for id, existing := range s.profiles {
		if id != p.ID && existing.AccountID == p.AccountID && existing.Name == p.Name {
			return ErrDuplicateName
		}
	}
	p.WebhookSecret = cur.WebhookSecret
	p.CreatedAt = cur.CreatedAt
	s.profiles[p.ID] = p
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, accountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.profiles[id]
	if !ok || cur.AccountID != accountID {
		return ErrNotFound
	}
	delete(s.profiles, id)
	return nil
}
