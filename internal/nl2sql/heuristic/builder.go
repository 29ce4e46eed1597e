package heuristic

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tabsql/tabsql/internal/table"
)

const DefaultTableName = "df"

// Dialect selects how year extraction is spelled for the target engine.
type Dialect string

const (
	DialectSQLite Dialect = "sqlite"
	DialectDuckDB Dialect = "duckdb"
)

func ParseDialect(raw string) (Dialect, error) {
	switch Dialect(strings.ToLower(strings.TrimSpace(raw))) {
	case "", DialectSQLite:
		return DialectSQLite, nil
	case DialectDuckDB:
		return DialectDuckDB, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", raw)
	}
}

// Builder produces SQL from three fixed rules without any model. The output
// only uses SELECT, WHERE, GROUP BY, ORDER BY, LIMIT, SUM and strftime.
type Builder struct {
	Dialect       Dialect
	TableName     string
	TopLimit      int
	FallbackLimit int
}

func (b Builder) withDefaults() Builder {
	if b.Dialect == "" {
		b.Dialect = DialectSQLite
	}
	if strings.TrimSpace(b.TableName) == "" {
		b.TableName = DefaultTableName
	}
	if b.TopLimit <= 0 {
		b.TopLimit = TopLimit
	}
	if b.FallbackLimit <= 0 {
		b.FallbackLimit = FallbackLimit
	}
	return b
}

func (b Builder) Build(c table.Classification, question string) string {
	b = b.withDefaults()
	from := QuoteIdent(b.TableName)

	if year, ok := ParseYear(question); ok && len(c.Temporal) > 0 {
		return fmt.Sprintf("SELECT * FROM %s WHERE %s='%s'", from, b.yearExpr(QuoteIdent(c.Temporal[0])), year)
	}

	if HasTopKeyword(question) && len(c.Numeric) > 0 && len(c.Categorical) > 0 {
		metric, _ := ChooseMetric(question, c.Numeric)
		group := QuoteIdent(c.Categorical[0])
		limit := ParseLimit(question, b.TopLimit)
		return fmt.Sprintf(
			"SELECT %s, SUM(%s) as total FROM %s GROUP BY %s ORDER BY total DESC LIMIT %d",
			group, QuoteIdent(metric), from, group, limit,
		)
	}

	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", from, b.FallbackLimit)
}

func (b Builder) yearExpr(column string) string {
	if b.Dialect == DialectDuckDB {
		return fmt.Sprintf("strftime(%s, '%%Y')", column)
	}
	return fmt.Sprintf("strftime('%%Y',%s)", column)
}

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

var reservedWords = map[string]struct{}{
	"all": {}, "and": {}, "as": {}, "asc": {}, "between": {}, "by": {}, "case": {},
	"create": {}, "delete": {}, "desc": {}, "distinct": {}, "drop": {}, "else": {},
	"end": {}, "from": {}, "group": {}, "having": {}, "in": {}, "index": {},
	"insert": {}, "is": {}, "join": {}, "like": {}, "limit": {}, "not": {},
	"null": {}, "on": {}, "or": {}, "order": {}, "select": {}, "table": {},
	"then": {}, "union": {}, "update": {}, "values": {}, "when": {}, "where": {},
	"with": {},
}

// QuoteIdent leaves plain identifiers bare and double-quotes everything else.
func QuoteIdent(name string) string {
	if plainIdent.MatchString(name) {
		if _, reserved := reservedWords[strings.ToLower(name)]; !reserved {
			return name
		}
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
