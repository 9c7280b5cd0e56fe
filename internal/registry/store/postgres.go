package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"policybridge/internal/registry/models"
	"policybridge/pkg/platform/sentinel"
)

// Postgres stores each record as a JSONB document with denormalized columns
// for the lookups the registry serves. Execute serializes per-id mutations
// with SELECT ... FOR UPDATE inside a transaction.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Schema is applied on startup. The registry is append-only so there are no
// DELETE paths.
const Schema = `
CREATE TABLE IF NOT EXISTS policy_records (
	id                TEXT PRIMARY KEY,
	current_location  TEXT NOT NULL,
	current_system_id TEXT NOT NULL DEFAULT '',
	migration_status  TEXT NOT NULL,
	record            JSONB NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_policy_records_location ON policy_records (current_location);
`

// EnsureSchema creates the registry table if missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

func (s *Postgres) FindByID(ctx context.Context, id string) (*models.PolicyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT record FROM policy_records WHERE id = $1`, id)
	return scanRecord(row)
}

func (s *Postgres) RegisterEntry(ctx context.Context, id string, entry models.LocationEntry) (*models.PolicyRecord, error) {
	var out *models.PolicyRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rec, err := lockRecord(ctx, tx, id)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			rec = models.NewPolicyRecord(id, entry)
			if err := insertRecord(ctx, tx, rec); err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			rec.AppendLocation(entry)
			if err := updateRecord(ctx, tx, rec); err != nil {
				return err
			}
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *Postgres) Execute(ctx context.Context, id string,
	validate func(*models.PolicyRecord) error,
	mutate func(*models.PolicyRecord)) (*models.PolicyRecord, error) {

	var out *models.PolicyRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rec, err := lockRecord(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := validate(rec); err != nil {
			return err
		}
		mutate(rec)
		if err := updateRecord(ctx, tx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	return out, err
}

func (s *Postgres) ListByLocation(ctx context.Context, loc models.Location) ([]*models.PolicyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM policy_records WHERE current_location = $1 ORDER BY id`, string(loc))
	if err != nil {
		return nil, fmt.Errorf("list by location: %w", err)
	}
	return scanRecords(rows)
}

func (s *Postgres) ListByIDs(ctx context.Context, ids []string) ([]*models.PolicyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM policy_records WHERE id = ANY($1) ORDER BY id`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("list by ids: %w", err)
	}
	return scanRecords(rows)
}

func (s *Postgres) All(ctx context.Context) ([]*models.PolicyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM policy_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list all: %w", err)
	}
	return scanRecords(rows)
}

func (s *Postgres) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func lockRecord(ctx context.Context, tx *sql.Tx, id string) (*models.PolicyRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT record FROM policy_records WHERE id = $1 FOR UPDATE`, id)
	return scanRecord(row)
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec *models.PolicyRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO policy_records (id, current_location, current_system_id, migration_status, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, string(rec.CurrentLocation), rec.CurrentSystemID, string(rec.MigrationStatus), doc, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func updateRecord(ctx context.Context, tx *sql.Tx, rec *models.PolicyRecord) error {
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE policy_records
		SET current_location = $2, current_system_id = $3, migration_status = $4, record = $5, updated_at = $6
		WHERE id = $1`,
		rec.ID, string(rec.CurrentLocation), rec.CurrentSystemID, string(rec.MigrationStatus), doc, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.PolicyRecord, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	var rec models.PolicyRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*models.PolicyRecord, error) {
	defer rows.Close()
	var out []*models.PolicyRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
