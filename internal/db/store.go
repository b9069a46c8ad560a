package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/omnisense/dispatch/internal/models"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS call_records (
	id              TEXT PRIMARY KEY,
	call_number     INTEGER NOT NULL,
	caller_contact  TEXT NOT NULL DEFAULT '',
	emergency_type  TEXT NOT NULL,
	address         TEXT NOT NULL DEFAULT '',
	lat             DOUBLE PRECISION,
	lon             DOUBLE PRECISION,
	victim          JSONB,
	summary         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	assigned_to     TEXT NOT NULL DEFAULT '',
	severity_score  INTEGER NOT NULL,
	severity_level  TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	answered_at     TIMESTAMPTZ,
	completed_at    TIMESTAMPTZ,
	recorded_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS call_transcript_entries (
	call_id  TEXT NOT NULL REFERENCES call_records(id) ON DELETE CASCADE,
	seq      INTEGER NOT NULL,
	role     TEXT NOT NULL,
	text     TEXT NOT NULL,
	spoken_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (call_id, seq)
);
CREATE INDEX IF NOT EXISTS call_records_completed_idx ON call_records (completed_at DESC);
`

// Migrate creates the call record tables if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

// CallRecord is the durable summary of a terminated call.
type CallRecord struct {
	ID            string               `json:"id"`
	CallNumber    int                  `json:"call_number"`
	CallerContact string               `json:"caller_contact"`
	EmergencyType models.EmergencyType `json:"emergency_type"`
	Address       string               `json:"address"`
	Latitude      *float64             `json:"latitude,omitempty"`
	Longitude     *float64             `json:"longitude,omitempty"`
	Summary       string               `json:"summary"`
	Status        models.CallStatus    `json:"status"`
	AssignedTo    string               `json:"assigned_to"`
	SeverityScore int                  `json:"severity_score"`
	SeverityLevel models.SeverityLevel `json:"severity_level"`
	CreatedAt     time.Time            `json:"created_at"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	TranscriptLen int                  `json:"transcript_entries"`
}

// ArchiveCall upserts the call record and replaces its transcript.
func (s *Store) ArchiveCall(ctx context.Context, call models.Call) error {
	var lat, lon *float64
	if call.Location != nil {
		lat, lon = call.Location.Latitude, call.Location.Longitude
	}
	var victim []byte
	if call.Victim != nil {
		b, err := json.Marshal(call.Victim)
		if err != nil {
			return err
		}
		victim = b
	}

	return s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO call_records (id, call_number, caller_contact, emergency_type, address, lat, lon, victim, summary, status, assigned_to, severity_score, severity_level, created_at, answered_at, completed_at, recorded_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW())
			ON CONFLICT (id) DO UPDATE SET
				emergency_type = EXCLUDED.emergency_type,
				address = EXCLUDED.address,
				lat = EXCLUDED.lat,
				lon = EXCLUDED.lon,
				victim = EXCLUDED.victim,
				summary = EXCLUDED.summary,
				status = EXCLUDED.status,
				assigned_to = EXCLUDED.assigned_to,
				severity_score = EXCLUDED.severity_score,
				severity_level = EXCLUDED.severity_level,
				answered_at = EXCLUDED.answered_at,
				completed_at = EXCLUDED.completed_at,
				recorded_at = NOW()
		`, call.ID, call.CallNumber, call.CallerContact, string(call.EmergencyType), call.Address(), lat, lon, victim,
			call.Summary, string(call.Status), call.AssignedTo, call.SeverityScore, string(call.SeverityLevel),
			call.CreatedAt, call.AnsweredAt, call.CompletedAt)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM call_transcript_entries WHERE call_id = $1`, call.ID); err != nil {
			return err
		}
		if len(call.Transcript) == 0 {
			return nil
		}
		rows := make([][]any, 0, len(call.Transcript))
		for i, e := range call.Transcript {
			rows = append(rows, []any{call.ID, i, e.Role, e.Text, e.Timestamp})
		}
		_, err = tx.CopyFrom(ctx, pgx.Identifier{"call_transcript_entries"}, []string{"call_id", "seq", "role", "text", "spoken_at"}, pgx.CopyFromRows(rows))
		return err
	})
}

// RecentCallRecords lists records newest first.
func (s *Store) RecentCallRecords(ctx context.Context, limit int) ([]CallRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT r.id, r.call_number, r.caller_contact, r.emergency_type, r.address, r.lat, r.lon, r.summary, r.status,
			r.assigned_to, r.severity_score, r.severity_level, r.created_at, r.completed_at,
			(SELECT COUNT(*) FROM call_transcript_entries t WHERE t.call_id = r.id)
		FROM call_records r
		ORDER BY r.completed_at DESC NULLS LAST, r.created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CallRecord{}
	for rows.Next() {
		var rec CallRecord
		if err := rows.Scan(&rec.ID, &rec.CallNumber, &rec.CallerContact, &rec.EmergencyType, &rec.Address, &rec.Latitude, &rec.Longitude,
			&rec.Summary, &rec.Status, &rec.AssignedTo, &rec.SeverityScore, &rec.SeverityLevel, &rec.CreatedAt, &rec.CompletedAt,
			&rec.TranscriptLen); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CallTranscript returns the stored transcript of a call in spoken order.
func (s *Store) CallTranscript(ctx context.Context, callID string) ([]models.TranscriptEntry, error) {
	var exists bool
	if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM call_records WHERE id = $1)`, callID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	rows, err := s.Pool.Query(ctx, `SELECT role, text, spoken_at FROM call_transcript_entries WHERE call_id = $1 ORDER BY seq`, callID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.TranscriptEntry{}
	for rows.Next() {
		var e models.TranscriptEntry
		if err := rows.Scan(&e.Role, &e.Text, &e.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
