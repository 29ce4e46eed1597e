package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/tabsql/tabsql/internal/query"
	"github.com/tabsql/tabsql/internal/table"
)

func salesTable() table.Table {
	day := func(y, m, d int) table.Value {
		return table.Temporal(time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC))
	}
	return table.Table{Columns: []table.Column{
		{Name: "region", Kind: table.KindText, Values: []table.Value{table.Text("north"), table.Text("south"), table.Text("north"), table.Text("east")}},
		{Name: "revenue", Kind: table.KindNumeric, Values: []table.Value{table.Number(100), table.Number(50), table.Number(25), table.Null()}},
		{Name: "order_date", Kind: table.KindTemporal, Values: []table.Value{day(2023, 1, 5), day(2022, 2, 1), day(2023, 3, 1), day(2023, 4, 1)}},
	}}
}

func TestExecuteTopQuery(t *testing.T) {
	engine := NewEngine()
	result, err := engine.Execute(context.Background(), query.Request{
		SQL:   "SELECT region, SUM(revenue) as total FROM df GROUP BY region ORDER BY total DESC LIMIT 10",
		Table: salesTable(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "region" || result.Columns[1] != "total" {
		t.Fatalf("columns = %v", result.Columns)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != "north" || result.Rows[0][1] != 125.0 {
		t.Fatalf("first row = %#v", result.Rows[0])
	}
	if result.Rows[2][1] != nil {
		t.Fatalf("SUM over nulls should be null, got %#v", result.Rows[2][1])
	}
}

func TestExecuteYearFilterOnTemporalText(t *testing.T) {
	result, err := NewEngine().Execute(context.Background(), query.Request{
		SQL:   "SELECT * FROM df WHERE strftime('%Y',order_date)='2023';",
		Table: salesTable(),
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(result.Rows))
	}
	if result.Rows[0][2] != "2023-01-05 00:00:00" {
		t.Fatalf("order_date = %#v", result.Rows[0][2])
	}
}

func TestExecuteRejectsWrites(t *testing.T) {
	_, err := NewEngine().Execute(context.Background(), query.Request{SQL: "DELETE FROM df", Table: salesTable()})
	if !errors.Is(err, query.ErrNotReadOnly) {
		t.Fatalf("Execute() error = %v, want ErrNotReadOnly", err)
	}
}

func TestExecuteReportsBadSQL(t *testing.T) {
	_, err := NewEngine().Execute(context.Background(), query.Request{SQL: "SELECT nope FROM df", Table: salesTable()})
	if err == nil || query.IsGuardError(err) {
		t.Fatalf("Execute() error = %v, want execution error", err)
	}
}

func TestExecuteRowLimitAndQuotedNames(t *testing.T) {
	tbl := table.Table{Columns: []table.Column{
		{Name: `we"ird`, Kind: table.KindText, Values: []table.Value{table.Text("a"), table.Text("b"), table.Text("c")}},
	}}
	result, err := NewEngine().Execute(context.Background(), query.Request{
		SQL:       `SELECT "we""ird" FROM data`,
		TableName: "data",
		Table:     tbl,
		RowLimit:  2,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 || !result.Truncated {
		t.Fatalf("rows = %d truncated = %v", len(result.Rows), result.Truncated)
	}
	if result.Columns[0] != `we"ird` {
		t.Fatalf("column = %q", result.Columns[0])
	}
}

func TestExecuteLoadsThroughSingleTransaction(t *testing.T) {
	db, mock := newSQLMock(t)
	engine := &Engine{open: func(context.Context) (*sql.DB, error) { return db, nil }}

	tbl := table.Table{Columns: []table.Column{
		{Name: "region", Kind: table.KindText, Values: []table.Value{table.Text("north"), table.Null()}},
		{Name: "revenue", Kind: table.KindNumeric, Values: []table.Value{table.Number(10), table.Number(2.5)}},
	}}

	mock.ExpectExec(`CREATE TABLE "df" \("region" TEXT, "revenue" REAL\)`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	insert := mock.ExpectPrepare(`INSERT INTO "df" \("region", "revenue"\) VALUES \(\?, \?\)`)
	insert.ExpectExec().WithArgs("north", 10.0).WillReturnResult(sqlmock.NewResult(1, 1))
	insert.ExpectExec().WithArgs(nil, 2.5).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()
	mock.ExpectExec(`PRAGMA query_only = ON`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT region FROM df`).WillReturnRows(
		sqlmock.NewRows([]string{"region"}).AddRow([]byte("north")).AddRow(nil),
	)

	result, err := engine.Execute(context.Background(), query.Request{SQL: "SELECT region FROM df", Table: tbl})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 || result.Rows[0][0] != "north" || result.Rows[1][0] != nil {
		t.Fatalf("rows = %#v", result.Rows)
	}
	assertSQLMock(t, mock)
}

func TestExecuteRequiresColumns(t *testing.T) {
	_, err := NewEngine().Execute(context.Background(), query.Request{SQL: "SELECT 1"})
	if err == nil {
		t.Fatalf("expected error for empty table")
	}
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
