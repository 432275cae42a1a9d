package integrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists integrations in the integrations table.
// Config is stored as JSONB since its shape depends on the kind.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const integrationColumns = `id, account_id, name, kind, status, config, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row rowScanner) (Integration, error) {
	var (
		i   Integration
		raw []byte
	)
	err := row.Scan(&i.ID, &i.AccountID, &i.Name, &i.Kind, &i.Status, &raw, &i.CreatedAt, &i.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Integration{}, ErrNotFound
	}
	if err != nil {
		return Integration{}, err
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &i.Config); err != nil {
			return Integration{}, err
		}
	}
	return i, nil
}

func (s *PostgresStore) Insert(ctx context.Context, i Integration) error {
	cfg, err := json.Marshal(i.Config)
	if err != nil {
		return err
	}
	const q = `
INSERT INTO integrations (id, account_id, name, kind, status, config, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
`
	_, err = s.db.ExecContext(ctx, q, i.ID, i.AccountID, i.Name, i.Kind, i.Status, cfg, i.CreatedAt, i.UpdatedAt)
	return mapWriteErr(err)
}

func (s *PostgresStore) Get(ctx context.Context, accountID, id string) (Integration, error) {
	q := `SELECT ` + integrationColumns + ` FROM integrations WHERE account_id = $1 AND id = $2`
	return scanIntegration(s.db.QueryRowContext(ctx, q, accountID, id))
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string) ([]Integration, error) {
	q := `SELECT ` + integrationColumns + ` FROM integrations WHERE account_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Integration, 0)
	for rows.Next() {
		i, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	const q = `SELECT COUNT(*) FROM integrations WHERE account_id = $1`
	var n int
	if err := s.db.QueryRowContext(ctx, q, accountID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) Update(ctx context.Context, i Integration) error {
	cfg, err := json.Marshal(i.Config)
	if err != nil {
		return err
	}
	const q = `
UPDATE integrations
SET name = $3, kind = $4, status = $5, config = $6, updated_at = $7
WHERE account_id = $1 AND id = $2
`
	res, err := s.db.ExecContext(ctx, q, i.AccountID, i.ID, i.Name, i.Kind, i.Status, cfg, i.UpdatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, accountID, id string) error {
	const q = `DELETE FROM integrations WHERE account_id = $1 AND id = $2`
	res, err := s.db.ExecContext(ctx, q, accountID, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateName
	}
	return err
}
