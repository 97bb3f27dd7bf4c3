package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/rag-chatbot/internal/core/domain"
)

// IndexRecordRepository is the Postgres-backed index ledger: one row per
// content hash with the latest outcome of indexing it.
type IndexRecordRepository struct {
	db *sql.DB
}

func NewIndexRecordRepository(db *sql.DB) *IndexRecordRepository {
	return &IndexRecordRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *IndexRecordRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS index_records (
	content_hash TEXT PRIMARY KEY,
	locator TEXT NOT NULL,
	status TEXT NOT NULL,
	chunks INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_index_records_status ON index_records(status);
CREATE INDEX IF NOT EXISTS idx_index_records_updated_at ON index_records(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Upsert keeps created_at of the first run. A skipped run never downgrades
// a ready record; it only bumps updated_at.
func (r *IndexRecordRepository) Upsert(ctx context.Context, record domain.IndexRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO index_records (content_hash, locator, status, chunks, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (content_hash) DO UPDATE SET
	locator = CASE WHEN EXCLUDED.status = 'skipped' THEN index_records.locator ELSE EXCLUDED.locator END,
	status = CASE WHEN EXCLUDED.status = 'skipped' AND index_records.status = 'ready' THEN index_records.status ELSE EXCLUDED.status END,
	chunks = CASE WHEN EXCLUDED.status = 'skipped' THEN index_records.chunks ELSE EXCLUDED.chunks END,
	error_message = EXCLUDED.error_message,
	updated_at = EXCLUDED.updated_at
`,
		record.ContentHash, record.Locator, string(record.Status), record.Chunks, record.Error,
		record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert index record: %w", err)
	}
	return nil
}

func (r *IndexRecordRepository) GetByHash(ctx context.Context, contentHash string) (*domain.IndexRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT content_hash, locator, status, chunks, error_message, created_at, updated_at
FROM index_records
WHERE content_hash = $1
`, contentHash)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrNotFound, "get index record", fmt.Errorf("content_hash=%s", contentHash))
		}
		return nil, fmt.Errorf("scan index record: %w", err)
	}
	return record, nil
}

func (r *IndexRecordRepository) List(ctx context.Context, limit int) ([]domain.IndexRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT content_hash, locator, status, chunks, error_message, created_at, updated_at
FROM index_records
ORDER BY updated_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list index records: %w", err)
	}
	defer rows.Close()

	out := make([]domain.IndexRecord, 0, limit)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan index record: %w", err)
		}
		out = append(out, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index records: %w", err)
	}
	return out, nil
}

func (r *IndexRecordRepository) DeleteAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM index_records`); err != nil {
		return fmt.Errorf("delete index records: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.IndexRecord, error) {
	var (
		record domain.IndexRecord
		status string
	)
	if err := row.Scan(
		&record.ContentHash, &record.Locator, &status, &record.Chunks, &record.Error,
		&record.CreatedAt, &record.UpdatedAt,
	); err != nil {
		return nil, err
	}
	record.Status = domain.IndexStatus(status)
	return &record, nil
}
