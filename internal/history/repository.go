package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Record is one answered question or executed statement.
type Record struct {
	ID              uuid.UUID `json:"id"`
	Question        string    `json:"question,omitempty"`
	SQL             string    `json:"sql"`
	Source          string    `json:"source"`
	AIFailureReason string    `json:"ai_failure_reason,omitempty"`
	Engine          string    `json:"engine,omitempty"`
	RowCount        int       `json:"row_count"`
	DurationMs      int64     `json:"duration_ms"`
	Error           string    `json:"error,omitempty"`
	Subject         string    `json:"subject,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Export points at a result set written to the object store.
type Export struct {
	ID        uuid.UUID  `json:"id"`
	HistoryID *uuid.UUID `json:"history_id,omitempty"`
	ObjectKey string     `json:"object_key"`
	Format    string     `json:"format"`
	RowCount  int        `json:"row_count"`
	SizeBytes int64      `json:"size_bytes"`
	CreatedAt time.Time  `json:"created_at"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

// Insert stores record, assigning an id when none is set.
func (r *Repository) Insert(ctx context.Context, record Record) (Record, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO query_history (history_id, question, sql_text, source, ai_failure_reason, engine, row_count, duration_ms, error_message, subject)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING created_at`,
		record.ID, record.Question, record.SQL, record.Source, record.AIFailureReason,
		record.Engine, record.RowCount, record.DurationMs, record.Error, record.Subject,
	).Scan(&record.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("insert query history: %w", err)
	}
	return record, nil
}

func (r *Repository) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	limit = clampLimit(limit)
	rows, err := r.db.QueryContext(ctx, `
SELECT history_id, question, sql_text, source, ai_failure_reason, engine, row_count, duration_ms, error_message, subject, created_at
FROM query_history
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]Record, 0)
	for rows.Next() {
		var record Record
		if err := rows.Scan(
			&record.ID, &record.Question, &record.SQL, &record.Source, &record.AIFailureReason,
			&record.Engine, &record.RowCount, &record.DurationMs, &record.Error, &record.Subject, &record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query history: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query history: %w", err)
	}
	return records, nil
}

func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM query_history WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete query history: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete query history rows affected: %w", err)
	}
	return affected, nil
}

func (r *Repository) InsertExport(ctx context.Context, export Export) (Export, error) {
	if export.ID == uuid.Nil {
		export.ID = uuid.New()
	}
	if export.Format == "" {
		export.Format = "parquet"
	}
	err := r.db.QueryRowContext(ctx, `
INSERT INTO result_export (export_id, history_id, object_key, format, row_count, size_bytes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`,
		export.ID, export.HistoryID, export.ObjectKey, export.Format, export.RowCount, export.SizeBytes,
	).Scan(&export.CreatedAt)
	if err != nil {
		return Export{}, fmt.Errorf("insert result export: %w", err)
	}
	return export, nil
}

func (r *Repository) GetExport(ctx context.Context, id uuid.UUID) (Export, error) {
	var export Export
	var historyID uuid.NullUUID
	err := r.db.QueryRowContext(ctx, `
SELECT export_id, history_id, object_key, format, row_count, size_bytes, created_at
FROM result_export
WHERE export_id = $1`, id).Scan(
		&export.ID, &historyID, &export.ObjectKey, &export.Format, &export.RowCount, &export.SizeBytes, &export.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Export{}, ErrNotFound
	}
	if err != nil {
		return Export{}, fmt.Errorf("get result export: %w", err)
	}
	if historyID.Valid {
		export.HistoryID = &historyID.UUID
	}
	return export, nil
}

func (r *Repository) ListExportsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Export, error) {
	limit = clampLimit(limit)
	rows, err := r.db.QueryContext(ctx, `
SELECT export_id, object_key, format, row_count, size_bytes, created_at
FROM result_export
WHERE created_at < $1
ORDER BY created_at ASC
LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired exports: %w", err)
	}
	defer func() { _ = rows.Close() }()

	exports := make([]Export, 0)
	for rows.Next() {
		var export Export
		if err := rows.Scan(&export.ID, &export.ObjectKey, &export.Format, &export.RowCount, &export.SizeBytes, &export.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan result export: %w", err)
		}
		exports = append(exports, export)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result exports: %w", err)
	}
	return exports, nil
}

func (r *Repository) DeleteExport(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM result_export WHERE export_id = $1`, id); err != nil {
		return fmt.Errorf("delete result export: %w", err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
