package billing

import (
	"context"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu       sync.Mutex
	accounts map[string]Account
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{accounts: map[string]Account{}} }

func (r *MemoryRepo) Get(ctx context.Context, accountID string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return Account{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryRepo) FindBySubscription(ctx context.Context, subscriptionID string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if subscriptionID != "" && a.StripeSubscriptionID == subscriptionID {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (r *MemoryRepo) Create(ctx context.Context, a Account) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.accounts[a.ID]; ok {
		return existing, nil
	}
	r.accounts[a.ID] = a
	return a, nil
}

func (r *MemoryRepo) Save(ctx context.Context, a Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.ID]; !ok {
		return ErrNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	r.accounts[a.ID] = a
	return nil
}

func (r *MemoryRepo) Consume(ctx context.Context, accountID string) (Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return Account{}, ErrNotFound
	}
	a = a.consume()
	r.accounts[accountID] = a
	return a, nil
}
