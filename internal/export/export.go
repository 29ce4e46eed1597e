package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/tabsql/tabsql/internal/history"
	"github.com/tabsql/tabsql/internal/parquetio"
	"github.com/tabsql/tabsql/internal/storage"
	"github.com/tabsql/tabsql/internal/table"
)

const (
	FormatParquet      = "parquet"
	parquetContentType = "application/vnd.apache.parquet"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrLookupUnavailable means exports were written but no history store
	// is configured to resolve an id back to its object key.
	ErrLookupUnavailable = errors.New("export lookup requires the history store")
)

type Catalog interface {
	InsertExport(ctx context.Context, export history.Export) (history.Export, error)
	GetExport(ctx context.Context, id uuid.UUID) (history.Export, error)
}

// Exporter writes query results to the object store as parquet files.
type Exporter struct {
	Store   storage.ObjectStore
	Catalog Catalog
	Clock   func() time.Time
	NewID   func() uuid.UUID
}

type Input struct {
	Format    string
	Columns   []string
	Rows      [][]any
	HistoryID *uuid.UUID
}

func ParseFormat(raw string) (string, error) {
	switch raw {
	case "", FormatParquet:
		return FormatParquet, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, raw)
	}
}

func (e *Exporter) Export(ctx context.Context, in Input) (history.Export, error) {
	if e.Store == nil {
		return history.Export{}, fmt.Errorf("object store is required")
	}
	format, err := ParseFormat(in.Format)
	if err != nil {
		return history.Export{}, err
	}

	names := table.NormalizeColumnNames(in.Columns)
	var buf bytes.Buffer
	encoded, err := parquetio.Encode(&buf, parquetio.InferColumns(names, in.Rows), in.Rows)
	if err != nil {
		return history.Export{}, fmt.Errorf("encode export: %w", err)
	}

	id := e.newID()
	createdAt := e.now().UTC()
	key, err := storage.BuildExportPath(id.String(), createdAt, format)
	if err != nil {
		return history.Export{}, fmt.Errorf("build export path: %w", err)
	}
	size := int64(buf.Len())
	if _, err := e.Store.Put(ctx, key, &buf, size, storage.PutOptions{
		ContentType:        parquetContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", storage.ExportFilename(id.String(), format)),
	}); err != nil {
		return history.Export{}, fmt.Errorf("put export object: %w", err)
	}

	record := history.Export{
		ID:        id,
		HistoryID: in.HistoryID,
		ObjectKey: key,
		Format:    format,
		RowCount:  int(encoded.RecordCount),
		SizeBytes: size,
		CreatedAt: createdAt,
	}
	if e.Catalog == nil {
		return record, nil
	}
	stored, err := e.Catalog.InsertExport(ctx, record)
	if err != nil {
		// The object is unreachable without its catalog row.
		_ = e.Store.Delete(ctx, key)
		return history.Export{}, fmt.Errorf("record export: %w", err)
	}
	return stored, nil
}

// Open resolves an export id and opens its object for reading.
func (e *Exporter) Open(ctx context.Context, id uuid.UUID) (history.Export, io.ReadCloser, error) {
	export, err := e.Lookup(ctx, id)
	if err != nil {
		return history.Export{}, nil, err
	}
	reader, err := e.Store.Get(ctx, export.ObjectKey)
	if err != nil {
		return history.Export{}, nil, err
	}
	return export, reader, nil
}

func (e *Exporter) Lookup(ctx context.Context, id uuid.UUID) (history.Export, error) {
	if e.Catalog == nil {
		return history.Export{}, ErrLookupUnavailable
	}
	if e.Store == nil {
		return history.Export{}, fmt.Errorf("object store is required")
	}
	return e.Catalog.GetExport(ctx, id)
}

// PresignURL returns a direct download link when the store supports it.
func (e *Exporter) PresignURL(ctx context.Context, export history.Export, expiry time.Duration) (string, bool, error) {
	presigner, ok := e.Store.(storage.Presigner)
	if !ok {
		return "", false, nil
	}
	link, err := presigner.PresignGet(ctx, export.ObjectKey, expiry)
	if err != nil {
		return "", true, err
	}
	return link, true, nil
}

func (e *Exporter) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}

func (e *Exporter) newID() uuid.UUID {
	if e.NewID == nil {
		return uuid.New()
	}
	return e.NewID()
}
