package integrations

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Store for tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]Integration
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: map[string]Integration{}}
}

// clone detaches the callback field selection from the caller's copy.
func clone(i Integration) Integration {
	if i.Config.CallbackFields != nil {
		f := *i.Config.CallbackFields
		i.Config.CallbackFields = &f
	}
	return i
}

func (s *MemoryStore) Insert(ctx context.Context, i Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.items {
		if existing.AccountID == i.AccountID && existing.Name == i.Name {
			return ErrDuplicateName
		}
	}
	s.items[i.ID] = clone(i)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, accountID, id string) (Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.items[id]
	if !ok || i.AccountID != accountID {
		return Integration{}, ErrNotFound
	}
	return clone(i), nil
}

func (s *MemoryStore) ListByAccount(ctx context.Context, accountID string) ([]Integration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Integration, 0)
	for _, i := range s.items {
		if i.AccountID == accountID {
			out = append(out, clone(i))
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	list, err := s.ListByAccount(ctx, accountID)
	return len(list), err
}

func (s *MemoryStore) Update(ctx context.Context, i Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[i.ID]
	if !ok || cur.AccountID != i.AccountID {
		return ErrNotFound
	}
	for id, existing := range s.items {
		if id != i.ID && existing.AccountID == i.AccountID && existing.Name == i.Name {
			return ErrDuplicateName
		}
	}
	i.CreatedAt = cur.CreatedAt
	s.items[i.ID] = clone(i)
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, accountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[id]
	if !ok || cur.AccountID != accountID {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}
