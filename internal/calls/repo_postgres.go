package calls

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// PostgresStore persists calls in the calls table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const callColumns = `id, account_id, phone_number, contact_name, property_address, voice_agent_id,
       status, outcome, start_time, end_time, duration, timezone, notes, transcription,
       recording_url, callback_url, metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row rowScanner) (Call, error) {
	var (
		c        Call
		endTime  sql.NullTime
		metadata []byte
	)
	err := row.Scan(
		&c.ID,
		&c.AccountID,
		&c.PhoneNumber,
		&c.ContactName,
		&c.PropertyAddress,
		&c.VoiceAgentID,
		&c.Status,
		&c.Outcome,
		&c.StartTime,
		&endTime,
		&c.Duration,
		&c.Timezone,
		&c.Notes,
		&c.Transcription,
		&c.RecordingURL,
		&c.CallbackURL,
		&metadata,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	if err != nil {
		return Call{}, err
	}
	if endTime.Valid {
		t := endTime.Time
		c.EndTime = &t
	}
	if len(metadata) > 0 && string(metadata) != "null" {
		c.Metadata = metadata
	}
	return c, nil
}

func (s *PostgresStore) Insert(ctx context.Context, c Call) (Call, error) {
	if c.AccountID == "" {
		return Call{}, ErrInvalidArgument
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	var metadata any
	if len(c.Metadata) > 0 {
		metadata = []byte(c.Metadata)
	}

	q := `
INSERT INTO calls (
  id, account_id, phone_number, contact_name, property_address, voice_agent_id,
  status, outcome, start_time, end_time, duration, timezone, notes, transcription,
  recording_url, callback_url, metadata, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,now(),now()
)
RETURNING ` + callColumns

	return scanCall(s.db.QueryRowContext(ctx, q,
		c.ID,
		c.AccountID,
		c.PhoneNumber,
		c.ContactName,
		c.PropertyAddress,
		c.VoiceAgentID,
		c.Status,
		c.Outcome,
		c.StartTime,
		c.EndTime,
		c.Duration,
		c.Timezone,
		c.Notes,
		c.Transcription,
		c.RecordingURL,
		c.CallbackURL,
		metadata,
	))
}

// Update builds a single UPDATE from the non-nil patch fields.
// Notes are appended in SQL so concurrent writers never lose an entry.
func (s *PostgresStore) Update(ctx context.Context, id string, p Patch) (Call, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if p.Status != nil {
		add("status = $%d", *p.Status)
	}
	if p.Outcome != nil {
		add("outcome = $%d", *p.Outcome)
	}
	if p.StartTime != nil {
		add("start_time = $%d", p.StartTime.UTC())
	}
	if p.EndTime != nil {
		add("end_time = $%d", p.EndTime.UTC())
	}
	if p.Duration != nil {
		add("duration = $%d", *p.Duration)
	}
	if p.ContactName != nil {
		add("contact_name = $%d", *p.ContactName)
	}
	if p.Timezone != nil {
		add("timezone = $%d", *p.Timezone)
	}
	if p.Transcription != nil {
		add("transcription = $%d", *p.Transcription)
	}
	if p.RecordingURL != nil {
		add("recording_url = $%d", *p.RecordingURL)
	}
	if p.AppendNote != nil {
		args = append(args, *p.AppendNote)
		n := len(args)
		sets = append(sets, fmt.Sprintf("notes = CASE WHEN notes = '' THEN $%d ELSE notes || E'\\n\\n' || $%d END", n, n))
	}

	where := "id = $1"
	if p.ExpectStatus != nil {
		args = append(args, *p.ExpectStatus)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}

	q := `UPDATE calls SET ` + strings.Join(sets, ", ") + ` WHERE ` + where + ` RETURNING ` + callColumns
	c, err := scanCall(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, ErrNotFound) && p.ExpectStatus != nil {
		// Distinguish a lost compare-and-set from a missing row.
		if _, getErr := s.Get(ctx, id); getErr == nil {
			return Call{}, ErrStatusConflict
		}
	}
	return c, err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	return scanCall(s.db.QueryRowContext(ctx, q, id))
}

func (s *PostgresStore) Query(ctx context.Context, f Filter) ([]Call, error) {
	var (
		conds []string
		args  []any
	)
	add := func(expr string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(expr, len(args)))
	}
	if f.AccountID != "" {
		add("account_id = $%d", f.AccountID)
	}
	if f.VoiceAgentID != "" {
		add("voice_agent_id = $%d", f.VoiceAgentID)
	}
	if len(f.Statuses) > 0 {
		ph := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			args = append(args, st)
			ph = append(ph, fmt.Sprintf("$%d", len(args)))
		}
		conds = append(conds, "status IN ("+strings.Join(ph, ",")+")")
	}
	if !f.From.IsZero() {
		add("start_time >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("start_time < $%d", f.To)
	}

	q := `SELECT ` + callColumns + ` FROM calls`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY start_time ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Call, 0)
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountOpenByVoiceAgent(ctx context.Context, voiceAgentID string) (int, error) {
	const q = `SELECT COUNT(*) FROM calls WHERE voice_agent_id = $1 AND status IN ('scheduled','in-progress')`
	var n int
	if err := s.db.QueryRowContext(ctx, q, voiceAgentID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
