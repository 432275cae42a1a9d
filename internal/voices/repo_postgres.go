package voices

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresStore persists profiles in the voice_profiles table.
// It assumes UNIQUE (account_id, name); see internal/migrations.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const profileColumns = `id, account_id, name, source, speed, pitch, stability, voice_id,
       personality, context, webhook_secret, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (VoiceProfile, error) {
	var p VoiceProfile
	err := row.Scan(
		&p.ID,
		&p.AccountID,
		&p.Name,
		&p.Source,
		&p.Settings.Speed,
		&p.Settings.Pitch,
		&p.Settings.Stability,
		&p.VoiceID,
		&p.Personality,
		&p.Context,
		&p.WebhookSecret,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return VoiceProfile{}, ErrNotFound
	}
	return p, err
}

func (s *PostgresStore) Insert(ctx context.Context, p VoiceProfile) error {
	const q = `
INSERT INTO voice_profiles (
  id, account_id, name, source, speed, pitch, stability, voice_id,
  personality, context, webhook_secret, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)
`
	_, err := s.db.ExecContext(ctx, q,
		p.ID,
		p.AccountID,
		p.Name,
		p.Source,
		p.Settings.Speed,
		p.Settings.Pitch,
		p.Settings.Stability,
		p.VoiceID,
		p.Personality,
		p.Context,
		p.WebhookSecret,
		p.CreatedAt,
		p.UpdatedAt,
	)
	return mapWriteErr(err)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (VoiceProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM voice_profiles WHERE id = $1`
	return scanProfile(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) ListByAccount(ctx context.Context, accountID string) ([]VoiceProfile, error) {
	q := `SELECT ` + profileColumns + ` FROM voice_profiles WHERE account_id = $1 ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]VoiceProfile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountByAccount(ctx context.Context, accountID string) (int, error) {
	const q = `SELECT COUNT(*) FROM voice_profiles WHERE account_id = $1`
	var n int
	if err := s.db.QueryRowContext(ctx, q, accountID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Update rewrites mutable columns. webhook_secret and created_at are never touched.
func (s *PostgresStore) Update(ctx context.Context, p VoiceProfile) error {
	const q = `
UPDATE voice_profiles
SET name = $3, source = $4, speed = $5, pitch = $6, stability = $7, voice_id = $8,
    personality = $9, context = $10, updated_at = $11
WHERE account_id = $1 AND id = $2
`
	res, err := s.db.ExecContext(ctx, q,
		p.AccountID,
		p.ID,
		p.Name,
		p.Source,
		p.Settings.Speed,
		p.Settings.Pitch,
		p.Settings.Stability,
		p.VoiceID,
		p.Personality,
		p.Context,
		p.UpdatedAt,
	)
	if err != nil {
		return mapWriteErr(err)
	}
	return requireAffected(res)
}

func (s *PostgresStore) Delete(ctx context.Context, accountID, id string) error {
	const q = `DELETE FROM voice_profiles WHERE account_id = $1 AND id = $2`
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
