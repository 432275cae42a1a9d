package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"voice-agent-platform/pkg/utils"
)

// PostgresRepo persists accounts in the accounts table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const accountColumns = `id, business_name, tier, status, trial_calls_remaining, calls_this_period,
       stripe_customer_id, stripe_subscription_id, auto_renew, period_start, period_end,
       notification_preferences, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (Account, error) {
	var (
		a          Account
		start, end sql.NullTime
		prefs      []byte
	)
	err := row.Scan(
		&a.ID,
		&a.BusinessName,
		&a.Tier,
		&a.Status,
		&a.TrialCallsRemaining,
		&a.CallsThisPeriod,
		&a.StripeCustomerID,
		&a.StripeSubscriptionID,
		&a.AutoRenew,
		&start,
		&end,
		&prefs,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, err
	}
	a.Notifications = DefaultNotifications()
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &a.Notifications); err != nil {
			return Account{}, err
		}
	}
	if start.Valid {
		t := start.Time
		a.PeriodStart = &t
	}
	if end.Valid {
		t := end.Time
		a.PeriodEnd = &t
	}
	return a, nil
}

func (r *PostgresRepo) Get(ctx context.Context, accountID string) (Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, q, accountID))
}

func (r *PostgresRepo) FindBySubscription(ctx context.Context, subscriptionID string) (Account, error) {
	if subscriptionID == "" {
		return Account{}, ErrNotFound
	}
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE stripe_subscription_id = $1`
	return scanAccount(r.db.QueryRowContext(ctx, q, subscriptionID))
}

func (r *PostgresRepo) Create(ctx context.Context, a Account) (Account, error) {
	const q = `
INSERT INTO accounts (
  id, business_name, tier, status, trial_calls_remaining, calls_this_period,
  stripe_customer_id, stripe_subscription_id, auto_renew, period_start, period_end,
  notification_preferences, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (id) DO NOTHING
`
	prefs, err := json.Marshal(a.Notifications)
	if err != nil {
		return Account{}, err
	}
	_, err = r.db.ExecContext(ctx, q,
		a.ID,
		a.BusinessName,
		a.Tier,
		a.Status,
		a.TrialCallsRemaining,
		a.CallsThisPeriod,
		a.StripeCustomerID,
		a.StripeSubscriptionID,
		a.AutoRenew,
		a.PeriodStart,
		a.PeriodEnd,
		prefs,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		return Account{}, err
	}
	return r.Get(ctx, a.ID)
}

func (r *PostgresRepo) Save(ctx context.Context, a Account) error {
	const q = `
UPDATE accounts
SET business_name = $2, tier = $3, status = $4, trial_calls_remaining = $5, calls_this_period = $6,
    stripe_customer_id = $7, stripe_subscription_id = $8, auto_renew = $9,
    period_start = $10, period_end = $11, notification_preferences = $12, updated_at = now()
WHERE id = $1
`
	prefs, err := json.Marshal(a.Notifications)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, q,
		a.ID,
		a.BusinessName,
		a.Tier,
		a.Status,
		a.TrialCallsRemaining,
		a.CallsThisPeriod,
		a.StripeCustomerID,
		a.StripeSubscriptionID,
		a.AutoRenew,
		a.PeriodStart,
		a.PeriodEnd,
		prefs,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Consume locks the account row so concurrent starts serialize per account.
func (r *PostgresRepo) Consume(ctx context.Context, accountID string) (Account, error) {
	var out Account
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1 FOR UPDATE`
		a, err := scanAccount(tx.QueryRowContext(ctx, q, accountID))
		if err != nil {
			return err
		}
		a = a.consume()

		const upd = `
UPDATE accounts
SET trial_calls_remaining = $2, calls_this_period = $3, updated_at = now()
WHERE id = $1
`
		if _, err := tx.ExecContext(ctx, upd, a.ID, a.TrialCallsRemaining, a.CallsThisPeriod); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}
