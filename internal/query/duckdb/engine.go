package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb/v2"

	"github.com/tabsql/tabsql/internal/parquetio"
	"github.com/tabsql/tabsql/internal/query"
	"github.com/tabsql/tabsql/internal/table"
)

// Engine stages the request table as a parquet file and loads it into an
// in-process DuckDB database. External access is disabled and the
// configuration locked before the caller's SQL runs, so the query only sees
// the loaded table.
type Engine struct {
	TempDir string
}

func NewEngine(tempDir string) *Engine {
	return &Engine{TempDir: tempDir}
}

func (e *Engine) Name() string { return "duckdb" }

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText, err := query.Guard(request.SQL)
	if err != nil {
		return query.Result{}, err
	}
	if len(request.Table.Columns) == 0 {
		return query.Result{}, fmt.Errorf("table has no columns")
	}

	start := time.Now()
	workDir, err := os.MkdirTemp(e.TempDir, "tabsql-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("create query temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	tableName := query.TableNameOrDefault(request.TableName)
	localPath := filepath.Join(workDir, sanitizeFileComponent(tableName)+".parquet")
	if err := stageTable(localPath, request.Table); err != nil {
		return query.Result{}, err
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	// Settings are applied on one pinned connection; the pool may not hand
	// the query a different one.
	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("open duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, loadTableSQL(tableName, localPath, request.Table)); err != nil {
		return query.Result{}, fmt.Errorf("load table %q: %w", tableName, err)
	}
	for _, statement := range sandboxStatements {
		if _, err := conn.ExecContext(ctx, statement); err != nil {
			return query.Result{}, fmt.Errorf("restrict duckdb: %w", err)
		}
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	result := query.Result{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		if request.RowLimit > 0 && len(result.Rows) >= request.RowLimit {
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
		result.Rows = append(result.Rows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	result.Duration = time.Since(start)
	return result, nil
}

func stageTable(path string, t table.Table) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	if _, err := parquetio.EncodeTable(file, t); err != nil {
		_ = file.Close()
		return fmt.Errorf("stage table: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}
	return nil
}

// sandboxStatements cut the database off from the file system and network.
// lock_configuration must come last.
var sandboxStatements = []string{
	"SET enable_external_access = false",
	"SET lock_configuration = true",
}

// loadTableSQL keeps the table's column order and restores temporal columns,
// which are staged as text.
func loadTableSQL(tableName, path string, t table.Table) string {
	selects := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		name := query.QuoteIdent(column.Name)
		if column.Kind == table.KindTemporal {
			selects[i] = fmt.Sprintf("CAST(%s AS TIMESTAMP) AS %s", name, name)
			continue
		}
		selects[i] = name
	}
	return fmt.Sprintf(
		"CREATE TABLE %s AS SELECT %s FROM read_parquet(%s)",
		query.QuoteIdent(tableName), strings.Join(selects, ", "), query.QuoteString(path),
	)
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case duckdb.Decimal:
			normalized[i] = typed.Float64()
		default:
			normalized[i] = query.NormalizeValue(typed)
		}
	}
	return normalized
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
