package parquetio

import (
	"fmt"
	"io"
	"strconv"

	"github.com/parquet-go/parquet-go"

	"github.com/tabsql/tabsql/internal/table"
)

type ColumnType int

const (
	TypeString ColumnType = iota
	TypeDouble
	TypeInt64
	TypeBool
)

type Column struct {
	Name string
	Type ColumnType
}

type EncodeResult struct {
	RecordCount int64
	Columns     []Column
}

// EncodeTable writes a table as parquet. Temporal cells are written as
// "YYYY-MM-DD HH:MM:SS" strings; readers cast them back.
func EncodeTable(w io.Writer, t table.Table) (EncodeResult, error) {
	columns := make([]Column, len(t.Columns))
	for i, column := range t.Columns {
		columns[i] = Column{Name: column.Name, Type: TypeString}
		if column.Kind == table.KindNumeric {
			columns[i].Type = TypeDouble
		}
	}
	rows := make([][]any, t.NumRows())
	for i := range rows {
		values := t.Row(i)
		row := make([]any, len(values))
		for c, value := range values {
			row[c] = value.Primitive()
		}
		rows[i] = row
	}
	return Encode(w, columns, rows)
}

// InferColumns picks a parquet type per column from the first non-nil value.
func InferColumns(names []string, rows [][]any) []Column {
	columns := make([]Column, len(names))
	for c, name := range names {
		columns[c] = Column{Name: name, Type: TypeString}
		for _, row := range rows {
			if c >= len(row) || row[c] == nil {
				continue
			}
			switch row[c].(type) {
			case float64, float32:
				columns[c].Type = TypeDouble
			case int, int8, int16, int32, int64, uint8, uint16, uint32:
				columns[c].Type = TypeInt64
			case bool:
				columns[c].Type = TypeBool
			}
			break
		}
	}
	return columns
}

// Encode writes rows with every column optional. Values that do not fit the
// declared type are written as null.
func Encode(w io.Writer, columns []Column, rows [][]any) (EncodeResult, error) {
	if len(columns) == 0 {
		return EncodeResult{}, fmt.Errorf("at least one column is required")
	}
	group := parquet.Group{}
	for _, column := range columns {
		if _, exists := group[column.Name]; exists {
			return EncodeResult{}, fmt.Errorf("duplicate column %q", column.Name)
		}
		group[column.Name] = parquet.Optional(leaf(column.Type))
	}
	schema := parquet.NewSchema("tabsql", group)

	// Leaf order in the schema is sorted by name, not declaration order.
	index := make(map[string]int, len(columns))
	for i, field := range schema.Fields() {
		index[field.Name()] = i
	}

	writer := parquet.NewWriter(w, schema)
	batch := make([]parquet.Row, 0, len(rows))
	for _, values := range rows {
		row := make(parquet.Row, len(columns))
		for c, column := range columns {
			var value any
			if c < len(values) {
				value = values[c]
			}
			row[index[column.Name]] = encodeValue(column.Type, value).Level(0, definitionLevel(column.Type, value), index[column.Name])
		}
		batch = append(batch, row)
	}
	if _, err := writer.WriteRows(batch); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	return EncodeResult{RecordCount: int64(len(rows)), Columns: columns}, nil
}

func leaf(columnType ColumnType) parquet.Node {
	switch columnType {
	case TypeDouble:
		return parquet.Leaf(parquet.DoubleType)
	case TypeInt64:
		return parquet.Int(64)
	case TypeBool:
		return parquet.Leaf(parquet.BooleanType)
	default:
		return parquet.String()
	}
}

func definitionLevel(columnType ColumnType, value any) int {
	if encodeValue(columnType, value).IsNull() {
		return 0
	}
	return 1
}

func encodeValue(columnType ColumnType, value any) parquet.Value {
	if value == nil {
		return parquet.Value{}
	}
	switch columnType {
	case TypeDouble:
		if f, ok := toFloat(value); ok {
			return parquet.DoubleValue(f)
		}
	case TypeInt64:
		if n, ok := toInt(value); ok {
			return parquet.Int64Value(n)
		}
	case TypeBool:
		if b, ok := value.(bool); ok {
			return parquet.BooleanValue(b)
		}
	default:
		return parquet.ByteArrayValue([]byte(toString(value)))
	}
	return parquet.Value{}
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case int:
		return float64(typed), true
	default:
		return 0, false
	}
}

func toInt(value any) (int64, bool) {
	switch typed := value.(type) {
	case int:
		return int64(typed), true
	case int8:
		return int64(typed), true
	case int16:
		return int64(typed), true
	case int32:
		return int64(typed), true
	case int64:
		return typed, true
	case uint8:
		return int64(typed), true
	case uint16:
		return int64(typed), true
	case uint32:
		return int64(typed), true
	default:
		return 0, false
	}
}

func toString(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case []byte:
		return string(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}
