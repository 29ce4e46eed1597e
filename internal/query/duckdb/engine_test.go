package duckdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tabsql/tabsql/internal/query"
	"github.com/tabsql/tabsql/internal/table"
)

func salesTable() table.Table {
	day := func(y, m, d int) table.Value {
		return table.Temporal(time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC))
	}
	return table.Table{Columns: []table.Column{
		{Name: "region", Kind: table.KindText, Values: []table.Value{table.Text("north"), table.Text("south"), table.Text("north")}},
		{Name: "revenue", Kind: table.KindNumeric, Values: []table.Value{table.Number(100), table.Number(50), table.Number(25)}},
		{Name: "order_date", Kind: table.KindTemporal, Values: []table.Value{day(2023, 1, 5), day(2022, 2, 1), day(2023, 3, 1)}},
	}}
}

func TestExecuteReadsStagedParquet(t *testing.T) {
	engine := NewEngine(t.TempDir())

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:   "SELECT COUNT(*) AS c FROM df",
		Table: salesTable(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != int64(3) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
}

func TestExecuteKeepsColumnOrderAndRestoresTimestamps(t *testing.T) {
	engine := NewEngine(t.TempDir())

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:   "SELECT * FROM df WHERE strftime(order_date, '%Y')='2023';",
		Table: salesTable(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if strings.Join(result.Columns, ",") != "region,revenue,order_date" {
		t.Fatalf("columns = %v", result.Columns)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][2] != "2023-01-05 00:00:00" {
		t.Fatalf("order_date = %#v", result.Rows[0][2])
	}
}

func TestExecuteTopQueryWithRowLimit(t *testing.T) {
	engine := NewEngine(t.TempDir())

	result, err := engine.Execute(context.Background(), query.Request{
		SQL:      "SELECT region, SUM(revenue) as total FROM df GROUP BY region ORDER BY total DESC LIMIT 10",
		Table:    salesTable(),
		RowLimit: 1,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 || !result.Truncated {
		t.Fatalf("rows = %d truncated = %v", len(result.Rows), result.Truncated)
	}
	if result.Rows[0][0] != "north" || result.Rows[0][1] != 125.0 {
		t.Fatalf("row = %#v", result.Rows[0])
	}
}

func TestExecuteRejectsNonSelect(t *testing.T) {
	engine := NewEngine(t.TempDir())
	_, err := engine.Execute(context.Background(), query.Request{SQL: "COPY df TO 'x.csv'", Table: salesTable()})
	if !errors.Is(err, query.ErrNotReadOnly) {
		t.Fatalf("Execute() error = %v, want ErrNotReadOnly", err)
	}
}

func TestExecuteCannotReadHostFiles(t *testing.T) {
	dir := t.TempDir()
	secret := filepath.Join(dir, "secret.csv")
	if err := os.WriteFile(secret, []byte("password\nhunter2\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	engine := NewEngine(dir)

	for _, sqlText := range []string{
		"SELECT * FROM read_csv(" + query.QuoteString(secret) + ")",
		"SELECT * FROM read_text(" + query.QuoteString(secret) + ")",
		"SELECT * FROM read_parquet(" + query.QuoteString(filepath.Join(dir, "*", "*.parquet")) + ")",
	} {
		result, err := engine.Execute(context.Background(), query.Request{SQL: sqlText, Table: salesTable()})
		if err == nil {
			t.Fatalf("Execute(%q) returned rows %v, want error", sqlText, result.Rows)
		}
	}

	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT COUNT(*) FROM df", Table: salesTable()})
	if err != nil {
		t.Fatalf("Execute() after rejected reads error = %v", err)
	}
	if result.Rows[0][0] != int64(3) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
}

func TestExecuteRunsWithLockedSandboxSettings(t *testing.T) {
	engine := NewEngine(t.TempDir())
	result, err := engine.Execute(context.Background(), query.Request{
		SQL:   "SELECT current_setting('enable_external_access') AS external, current_setting('lock_configuration') AS locked",
		Table: salesTable(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := fmt.Sprint(result.Rows[0][0]); got != "false" {
		t.Fatalf("enable_external_access = %s", got)
	}
	if got := fmt.Sprint(result.Rows[0][1]); got != "true" {
		t.Fatalf("lock_configuration = %s", got)
	}
}

func TestLoadTableSQL(t *testing.T) {
	got := loadTableSQL("df", "/tmp/it's/df.parquet", salesTable())
	want := `CREATE TABLE "df" AS SELECT "region", "revenue", CAST("order_date" AS TIMESTAMP) AS "order_date" FROM read_parquet('/tmp/it''s/df.parquet')`
	if got != want {
		t.Fatalf("loadTableSQL() = %s", got)
	}
}
