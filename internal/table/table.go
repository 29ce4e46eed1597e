package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TemporalLayout is the canonical text form of temporal values once they
// leave the table: JSON samples, SQLite storage and result rows.
const TemporalLayout = "2006-01-02 15:04:05"

type Kind string

const (
	KindText     Kind = "text"
	KindNumeric  Kind = "numeric"
	KindTemporal Kind = "temporal"
)

type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueText
	ValueNumeric
	ValueTemporal
)

// Value is a single cell. Exactly one of Text, Number or Time is meaningful,
// selected by Kind.
type Value struct {
	Kind   ValueKind
	Text   string
	Number float64
	Time   time.Time
}

func Null() Value                { return Value{Kind: ValueNull} }
func Text(s string) Value        { return Value{Kind: ValueText, Text: s} }
func Number(f float64) Value     { return Value{Kind: ValueNumeric, Number: f} }
func Temporal(t time.Time) Value { return Value{Kind: ValueTemporal, Time: t} }

func (v Value) IsNull() bool { return v.Kind == ValueNull }

// Primitive returns the JSON-safe form of the value.
func (v Value) Primitive() any {
	switch v.Kind {
	case ValueText:
		return v.Text
	case ValueNumeric:
		return v.Number
	case ValueTemporal:
		return v.Time.Format(TemporalLayout)
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case ValueText:
		return v.Text
	case ValueNumeric:
		return strconv.FormatFloat(v.Number, 'f', -1, 64)
	case ValueTemporal:
		return v.Time.Format(TemporalLayout)
	default:
		return ""
	}
}

type Column struct {
	Name   string
	Kind   Kind
	Values []Value
}

func (c Column) clone() Column {
	values := make([]Value, len(c.Values))
	copy(values, c.Values)
	return Column{Name: c.Name, Kind: c.Kind, Values: values}
}

// Table is an ordered set of uniquely named columns. Tables are treated as
// immutable once built; transformations return a new Table.
type Table struct {
	Columns []Column
}

// FromRecords builds an all-text table from a header and raw string records.
// Header names are normalized; null tokens and missing cells become Null.
func FromRecords(header []string, records [][]string) (Table, error) {
	if len(header) == 0 {
		return Table{}, fmt.Errorf("header row is required")
	}
	names := NormalizeColumnNames(header)
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Kind: KindText, Values: make([]Value, 0, len(records))}
	}
	for _, record := range records {
		if isBlankRecord(record) {
			continue
		}
		for i := range columns {
			if i >= len(record) {
				columns[i].Values = append(columns[i].Values, Null())
				continue
			}
			columns[i].Values = append(columns[i].Values, parseCell(record[i]))
		}
	}
	return Table{Columns: columns}, nil
}

func (t Table) NumRows() int {
	rows := 0
	for _, column := range t.Columns {
		if len(column.Values) > rows {
			rows = len(column.Values)
		}
	}
	return rows
}

func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		names[i] = column.Name
	}
	return names
}

func (t Table) Column(name string) (Column, bool) {
	for _, column := range t.Columns {
		if column.Name == name {
			return column, true
		}
	}
	return Column{}, false
}

// Row returns the values of row i in column order. Short columns yield Null.
func (t Table) Row(i int) []Value {
	row := make([]Value, len(t.Columns))
	for c, column := range t.Columns {
		if i < len(column.Values) {
			row[c] = column.Values[i]
		}
	}
	return row
}

// Head returns a table holding at most n leading rows.
func (t Table) Head(n int) Table {
	out := Table{Columns: make([]Column, len(t.Columns))}
	for i, column := range t.Columns {
		limit := n
		if limit > len(column.Values) || limit < 0 {
			limit = len(column.Values)
		}
		values := make([]Value, limit)
		copy(values, column.Values[:limit])
		out.Columns[i] = Column{Name: column.Name, Kind: column.Kind, Values: values}
	}
	return out
}

// NormalizeColumnNames trims names and replaces spaces with underscores.
// Names that collide after normalization get a numeric suffix.
func NormalizeColumnNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]struct{}, len(names))
	for i, raw := range names {
		base := strings.ReplaceAll(strings.TrimSpace(norm.NFC.String(raw)), " ", "_")
		if base == "" {
			base = fmt.Sprintf("column_%d", i+1)
		}
		name := base
		for n := 2; ; n++ {
			if _, taken := used[name]; !taken {
				break
			}
			name = fmt.Sprintf("%s_%d", base, n)
		}
		used[name] = struct{}{}
		out[i] = name
	}
	return out
}

var nullTokens = map[string]struct{}{
	"":     {},
	"na":   {},
	"n/a":  {},
	"nan":  {},
	"null": {},
	"none": {},
	"#n/a": {},
}

func parseCell(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if _, ok := nullTokens[strings.ToLower(trimmed)]; ok {
		return Null()
	}
	return Text(trimmed)
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
