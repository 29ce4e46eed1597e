package orchestrator

import (
	"fmt"
	"log/slog"

	"github.com/tabsql/tabsql/internal/config"
	"github.com/tabsql/tabsql/internal/nl2sql"
	"github.com/tabsql/tabsql/internal/nl2sql/heuristic"
	"github.com/tabsql/tabsql/internal/query"
	"github.com/tabsql/tabsql/internal/query/duckdb"
	"github.com/tabsql/tabsql/internal/query/sqlite"
)

// NewEngine returns the execution engine named by cfg and the heuristic
// dialect that matches it.
func NewEngine(cfg config.QueryConfig) (query.Engine, heuristic.Dialect, error) {
	dialect, err := heuristic.ParseDialect(cfg.Engine)
	if err != nil {
		return nil, "", err
	}
	switch dialect {
	case heuristic.DialectDuckDB:
		return duckdb.NewEngine(cfg.TempDir), dialect, nil
	case heuristic.DialectSQLite:
		return sqlite.NewEngine(), dialect, nil
	default:
		return nil, "", fmt.Errorf("unsupported query engine %q", cfg.Engine)
	}
}

// NewFromConfig builds a Service whose engine, limits and thresholds come
// from cfg. recorder may be nil when history is disabled.
func NewFromConfig(cfg config.Config, translator nl2sql.Translator, recorder HistoryRecorder, logger *slog.Logger) (*Service, error) {
	engine, dialect, err := NewEngine(cfg.Query)
	if err != nil {
		return nil, err
	}
	return NewService(Service{
		Translator: translator,
		Engine:     engine,
		Builder: heuristic.Builder{
			Dialect:       dialect,
			TableName:     cfg.Query.TableName,
			TopLimit:      cfg.Heuristic.TopLimit,
			FallbackLimit: cfg.Heuristic.FallbackLimit,
		},
		Options: Options{
			TableName:         cfg.Query.TableName,
			CoercionThreshold: cfg.Heuristic.CoercionThreshold,
			FuzzyCutoff:       cfg.Heuristic.FuzzyCutoff,
			DefaultLimit:      cfg.Heuristic.DefaultLimit,
			SampleRows:        cfg.Heuristic.SampleRows,
			RowLimit:          cfg.Query.RowLimit,
			QueryTimeout:      cfg.Query.Timeout,
		},
		History: recorder,
		Logger:  logger,
	})
}
