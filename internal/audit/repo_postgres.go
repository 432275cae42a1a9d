package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo writes to audit_events, an INSERT-only table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, account_id, type, actor_user_id, actor_role, ip_address,
  call_id, voice_agent_id, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10, '')::jsonb,$11
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.AccountID,
		e.Type,
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.CallID,
		e.VoiceAgentID,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func (r *PostgresRepo) ListByCall(ctx context.Context, accountID, callID string) ([]Event, error) {
	const q = `
SELECT id, account_id, type, actor_user_id, actor_role, ip_address,
       call_id, voice_agent_id, message, COALESCE(metadata::text, ''), created_at
FROM audit_events
WHERE account_id = $1 AND call_id = $2
ORDER BY created_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, accountID, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID,
			&e.AccountID,
			&e.Type,
			&e.ActorUserID,
			&e.ActorRole,
			&e.IPAddress,
			&e.CallID,
			&e.VoiceAgentID,
			&e.Message,
			&e.Metadata,
			&e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
