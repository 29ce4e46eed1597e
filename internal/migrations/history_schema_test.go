package migrations

import (
	"strings"
	"testing"
)

func TestHistoryMigrationsContainRequiredTablesAndIndexes(t *testing.T) {
	required := map[string][]string{
		"sql/000001_query_history.up.sql": {
			"CREATE TABLE query_history",
			"history_id UUID PRIMARY KEY",
			"CHECK (source IN ('ai', 'heuristic', 'user'))",
			"CREATE INDEX idx_query_history_created_at_desc",
		},
		"sql/000002_result_export.up.sql": {
			"CREATE TABLE result_export",
			"REFERENCES query_history (history_id) ON DELETE SET NULL",
			"object_key TEXT NOT NULL UNIQUE",
			"CREATE INDEX idx_result_export_created_at",
		},
	}

	for file, snippets := range required {
		body, err := embeddedFS.ReadFile(file)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", file, err)
		}
		for _, snippet := range snippets {
			if !strings.Contains(string(body), snippet) {
				t.Fatalf("%s missing required snippet: %s", file, snippet)
			}
		}
	}
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	items, err := loadMigrations(embeddedFS)
	if err != nil {
		t.Fatalf("loadMigrations() error = %v", err)
	}
	if len(items) != 2 || items[0].Version != 1 || items[1].Version != 2 {
		t.Fatalf("unexpected embedded migrations: %+v", items)
	}
}
