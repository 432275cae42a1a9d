package billing

import "context"

// Repository persists billing accounts. Implementations must apply Consume
// atomically so concurrent call starts never oversell the allowance.
type Repository interface {
	Get(ctx context.Context, accountID string) (Account, error)
	FindBySubscription(ctx context.Context, subscriptionID string) (Account, error)
	// Create inserts a if no account with the same id exists and returns the stored row.
	Create(ctx context.Context, a Account) (Account, error)
	Save(ctx context.Context, a Account) error
	Consume(ctx context.Context, accountID string) (Account, error)
}
