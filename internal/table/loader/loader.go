package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/tabsql/tabsql/internal/table"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file has no header row")
)

// Supported reports whether filename has an extension Load understands.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx", ".xls":
		return true
	default:
		return false
	}
}

// Load decodes a CSV or Excel upload into an all-text table. The first row
// is the header.
func Load(filename string, r io.Reader) (table.Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return loadCSV(r)
	case ".xlsx", ".xls":
		return loadExcel(r)
	default:
		return table.Table{}, fmt.Errorf("%w: %q", ErrUnsupportedFile, filepath.Ext(filename))
	}
}

func loadCSV(r io.Reader) (table.Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return table.Table{}, fmt.Errorf("read csv: %w", err)
	}
	return fromRows(records)
}

func loadExcel(r io.Reader) (table.Table, error) {
	workbook, err := excelize.OpenReader(r)
	if err != nil {
		return table.Table{}, fmt.Errorf("open workbook: %w", err)
	}
	defer workbook.Close()

	sheets := workbook.GetSheetList()
	if len(sheets) == 0 {
		return table.Table{}, ErrEmptyFile
	}
	rows, err := workbook.GetRows(sheets[0])
	if err != nil {
		return table.Table{}, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func fromRows(rows [][]string) (table.Table, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return table.Table{}, ErrEmptyFile
	}
	return table.FromRecords(rows[0], rows[1:])
}
