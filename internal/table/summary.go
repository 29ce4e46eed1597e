package table

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const DefaultSampleRows = 3

// SchemaColumn is the column description handed to translators. Type uses
// dataframe-style names so prompts stay recognisable to models.
type SchemaColumn struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func TypeName(kind Kind) string {
	switch kind {
	case KindNumeric:
		return "float64"
	case KindTemporal:
		return "datetime64[ns]"
	default:
		return "object"
	}
}

func SchemaColumns(t Table) []SchemaColumn {
	out := make([]SchemaColumn, 0, len(t.Columns))
	for _, column := range t.Columns {
		out = append(out, SchemaColumn{Name: column.Name, Type: TypeName(column.Kind)})
	}
	return out
}

// SchemaText renders "name (type), name (type)".
func SchemaText(t Table) string {
	parts := make([]string, 0, len(t.Columns))
	for _, column := range SchemaColumns(t) {
		parts = append(parts, fmt.Sprintf("%s (%s)", column.Name, column.Type))
	}
	return strings.Join(parts, ", ")
}

// Row is a JSON-safe record that marshals with its keys in column order.
type Row struct {
	Keys   []string
	Values []any
}

func (r Row) Get(key string) (any, bool) {
	for i, k := range r.Keys {
		if k == key {
			return r.Values[i], true
		}
	}
	return nil, false
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodedKey, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(encodedKey)
		buf.WriteByte(':')
		var value any
		if i < len(r.Values) {
			value = r.Values[i]
		}
		encodedValue, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("marshal %q: %w", key, err)
		}
		buf.Write(encodedValue)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// SampleRows returns the first n rows as JSON-safe records.
func SampleRows(t Table, n int) []Row {
	if n < 0 {
		n = DefaultSampleRows
	}
	head := t.Head(n)
	names := head.ColumnNames()
	rows := make([]Row, 0, head.NumRows())
	for i := 0; i < head.NumRows(); i++ {
		values := head.Row(i)
		row := Row{Keys: names, Values: make([]any, len(values))}
		for c, value := range values {
			row.Values[c] = value.Primitive()
		}
		rows = append(rows, row)
	}
	return rows
}

// Records zips column names with result rows into JSON-safe records.
func Records(columns []string, rows [][]any) []Row {
	out := make([]Row, 0, len(rows))
	for _, values := range rows {
		out = append(out, Row{Keys: columns, Values: values})
	}
	return out
}
