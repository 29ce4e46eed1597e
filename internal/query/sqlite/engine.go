package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tabsql/tabsql/internal/query"
	"github.com/tabsql/tabsql/internal/table"
)

// Engine runs each request against its own in-memory SQLite database.
type Engine struct {
	open func(ctx context.Context) (*sql.DB, error)
}

func NewEngine() *Engine {
	return &Engine{open: openMemory}
}

func openMemory(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (e *Engine) Name() string { return "sqlite" }

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText, err := query.Guard(request.SQL)
	if err != nil {
		return query.Result{}, err
	}
	if len(request.Table.Columns) == 0 {
		return query.Result{}, fmt.Errorf("table has no columns")
	}

	start := time.Now()
	open := e.open
	if open == nil {
		open = openMemory
	}
	db, err := open(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = db.Close() }()

	tableName := query.TableNameOrDefault(request.TableName)
	if err := loadTable(ctx, db, tableName, request.Table); err != nil {
		return query.Result{}, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA query_only = ON"); err != nil {
		return query.Result{}, fmt.Errorf("enable query_only: %w", err)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	result, err := collect(rows, request.RowLimit)
	if err != nil {
		return query.Result{}, err
	}
	result.Duration = time.Since(start)
	return result, nil
}

func loadTable(ctx context.Context, db *sql.DB, tableName string, t table.Table) error {
	definitions := make([]string, len(t.Columns))
	names := make([]string, len(t.Columns))
	placeholders := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		names[i] = query.QuoteIdent(column.Name)
		definitions[i] = names[i] + " " + columnType(column.Kind)
		placeholders[i] = "?"
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", query.QuoteIdent(tableName), strings.Join(definitions, ", "))
	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q: %w", tableName, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		query.QuoteIdent(tableName), strings.Join(names, ", "), strings.Join(placeholders, ", "))
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := 0; i < t.NumRows(); i++ {
		values := t.Row(i)
		args := make([]any, len(values))
		for c, value := range values {
			args[c] = query.TableValue(value)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load: %w", err)
	}
	return nil
}

func columnType(kind table.Kind) string {
	if kind == table.KindNumeric {
		return "REAL"
	}
	return "TEXT"
}

func collect(rows *sql.Rows, rowLimit int) (query.Result, error) {
	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	result := query.Result{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if rowLimit > 0 && len(result.Rows) >= rowLimit {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		result.Rows = append(result.Rows, query.NormalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	return result, nil
}
