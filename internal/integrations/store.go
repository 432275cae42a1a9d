package integrations

import "context"

// Store is the persistence contract for integrations. Every call is
// account scoped; no caller needs an integration without its account.
type Store interface {
	Insert(ctx context.Context, i Integration) error
	Get(ctx context.Context, accountID, id string) (Integration, error)
	ListByAccount(ctx context.Context, accountID string) ([]Integration, error)
	CountByAccount(ctx context.Context, accountID string) (int, error)
	Update(ctx context.Context, i Integration) error
	Delete(ctx context.Context, accountID, id string) error
}
