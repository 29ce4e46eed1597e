package history

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tabsql/tabsql/internal/storage"
)

type fakeRetentionStore struct {
	cutoff         time.Time
	exports        []Export
	deletedExports []uuid.UUID
	deleteRows     int64
	deleteErr      error
}

func (f *fakeRetentionStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleteRows, f.deleteErr
}

func (f *fakeRetentionStore) ListExportsOlderThan(_ context.Context, _ time.Time, _ int) ([]Export, error) {
	return f.exports, nil
}

func (f *fakeRetentionStore) DeleteExport(_ context.Context, id uuid.UUID) error {
	f.deletedExports = append(f.deletedExports, id)
	return nil
}

type fakeObjectStore struct {
	deleted []string
	failKey string
}

func (f *fakeObjectStore) Put(context.Context, string, io.Reader, int64, storage.PutOptions) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (f *fakeObjectStore) Get(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func (f *fakeObjectStore) Stat(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, nil
}

func (f *fakeObjectStore) Delete(_ context.Context, key string) error {
	if key == f.failKey {
		return errors.New("boom")
	}
	f.deleted = append(f.deleted, key)
	return nil
}

func TestRetentionRunOnceDeletesExpiredRowsAndExports(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	keep := Export{ID: uuid.New(), ObjectKey: "exports/a.parquet"}
	store := &fakeRetentionStore{exports: []Export{keep}, deleteRows: 3}
	objects := &fakeObjectStore{}
	retention := &Retention{
		Store:       store,
		ObjectStore: objects,
		Config:      RetentionConfig{MaxAge: 24 * time.Hour},
		Clock:       func() time.Time { return now },
	}

	summary, err := retention.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.RecordsDeleted != 3 || summary.ExportsDeleted != 1 || summary.Failures != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if !store.cutoff.Equal(now.Add(-24 * time.Hour)) {
		t.Fatalf("cutoff = %v", store.cutoff)
	}
	if len(objects.deleted) != 1 || objects.deleted[0] != "exports/a.parquet" {
		t.Fatalf("deleted objects = %v", objects.deleted)
	}
}

func TestRetentionRunOnceKeepsRowWhenObjectDeleteFails(t *testing.T) {
	export := Export{ID: uuid.New(), ObjectKey: "exports/bad.parquet"}
	store := &fakeRetentionStore{exports: []Export{export}}
	retention := &Retention{Store: store, ObjectStore: &fakeObjectStore{failKey: "exports/bad.parquet"}}

	summary, err := retention.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected retention error")
	}
	if summary.Failures != 1 || summary.ExportsDeleted != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if len(store.deletedExports) != 0 {
		t.Fatalf("export row deleted despite object failure: %v", store.deletedExports)
	}
}

func TestRetentionRunOnceWithoutObjectStore(t *testing.T) {
	store := &fakeRetentionStore{exports: []Export{{ID: uuid.New(), ObjectKey: "x"}}, deleteRows: 1}
	summary, err := (&Retention{Store: store}).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if summary.RecordsDeleted != 1 || summary.ExportsDeleted != 0 {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRetentionRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	retention := &Retention{Store: &fakeRetentionStore{}, Config: RetentionConfig{Interval: time.Hour}}
	if err := retention.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
