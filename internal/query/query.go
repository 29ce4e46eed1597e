package query

import (
	"context"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/tabsql/tabsql/internal/table"
)

type Request struct {
	SQL       string
	TableName string
	Table     table.Table
	// RowLimit caps returned rows; zero returns everything.
	RowLimit int
}

type Result struct {
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
}

// Engine runs one read-only statement against a private copy of the request
// table. Implementations must not retain or modify the table.
type Engine interface {
	Name() string
	Execute(ctx context.Context, request Request) (Result, error)
}

func TableNameOrDefault(name string) string {
	if strings.TrimSpace(name) == "" {
		return "df"
	}
	return strings.TrimSpace(name)
}

// QuoteIdent always double-quotes, escaping embedded quotes.
func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func QuoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

// NormalizeValue converts driver values into JSON-safe primitives.
func NormalizeValue(value any) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		return string(typed)
	case time.Time:
		return typed.UTC().Format(table.TemporalLayout)
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return nil
		}
		return typed
	case float32:
		f := float64(typed)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return f
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.IsInt64() {
			return typed.Int64()
		}
		return typed.String()
	default:
		return typed
	}
}

func NormalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = NormalizeValue(value)
	}
	return normalized
}

// TableValue is the driver argument for a cell. Temporal cells are bound as
// text so date functions see "YYYY-MM-DD HH:MM:SS".
func TableValue(value table.Value) any {
	switch value.Kind {
	case table.ValueNumeric:
		return value.Number
	case table.ValueText:
		return value.Text
	case table.ValueTemporal:
		return value.Time.Format(table.TemporalLayout)
	default:
		return nil
	}
}
