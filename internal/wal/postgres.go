package wal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Postgres stores WAL entries in an append-only table. Sequence comes from a
// BIGSERIAL so ordering holds across processes.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS wal_entries (
	sequence   BIGSERIAL PRIMARY KEY,
	id         TEXT NOT NULL UNIQUE,
	namespace  TEXT NOT NULL,
	saga_id    TEXT NOT NULL DEFAULT '',
	milestone  TEXT NOT NULL DEFAULT '',
	payload    JSONB,
	target     TEXT NOT NULL,
	lifecycle  JSONB NOT NULL,
	actor_id   TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_wal_entries_target ON wal_entries (target);
CREATE INDEX IF NOT EXISTS idx_wal_entries_saga ON wal_entries (saga_id);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

func (s *Postgres) Record(ctx context.Context, entry Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	lifecycle, err := json.Marshal(entry.Lifecycle)
	if err != nil {
		return "", fmt.Errorf("marshal lifecycle: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wal_entries (id, namespace, saga_id, milestone, payload, target, lifecycle, actor_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.Namespace, entry.SagaID, entry.Milestone, payload, entry.Target, lifecycle, entry.ActorID, entry.Timestamp)
	if err != nil {
		return "", fmt.Errorf("record wal entry: %w", err)
	}
	return entry.ID, nil
}

func (s *Postgres) ListByTarget(ctx context.Context, target string) ([]Entry, error) {
	return s.list(ctx, `SELECT sequence, id, namespace, saga_id, milestone, payload, target, lifecycle, actor_id, created_at
		FROM wal_entries WHERE target = $1 ORDER BY sequence`, target)
}

func (s *Postgres) ListBySaga(ctx context.Context, sagaID string) ([]Entry, error) {
	return s.list(ctx, `SELECT sequence, id, namespace, saga_id, milestone, payload, target, lifecycle, actor_id, created_at
		FROM wal_entries WHERE saga_id = $1 ORDER BY sequence`, sagaID)
}

func (s *Postgres) list(ctx context.Context, query string, arg any) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("list wal entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			payload   []byte
			lifecycle []byte
		)
		if err := rows.Scan(&e.Sequence, &e.ID, &e.Namespace, &e.SagaID, &e.Milestone,
			&payload, &e.Target, &lifecycle, &e.ActorID, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan wal entry: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("unmarshal payload: %w", err)
			}
		}
		if err := json.Unmarshal(lifecycle, &e.Lifecycle); err != nil {
			return nil, fmt.Errorf("unmarshal lifecycle: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
