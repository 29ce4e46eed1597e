package tabsqlctl

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tabsql/tabsql/internal/config"
	"github.com/tabsql/tabsql/internal/nl2sql"
	"github.com/tabsql/tabsql/internal/orchestrator"
	"github.com/tabsql/tabsql/internal/table"
	"github.com/tabsql/tabsql/internal/table/loader"
)

type localFlags struct {
	engine string
	useAI  bool
}

type localResult struct {
	SQL       string      `json:"sql"`
	Source    string      `json:"source"`
	LLMError  string      `json:"llm_error,omitempty"`
	Columns   []string    `json:"columns"`
	Rows      []table.Row `json:"rows"`
	RowCount  int         `json:"rowCount"`
	Truncated bool        `json:"truncated,omitempty"`
}

// newLocalCommand runs the orchestrator in-process. The AI path stays off
// unless --ai is given, in which case TABSQL_AI_* settings apply.
func newLocalCommand() *cobra.Command {
	flags := &localFlags{}
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run questions or SQL against a file without a server",
	}
	cmd.PersistentFlags().StringVar(&flags.engine, "engine", "", "execution engine: sqlite or duckdb (default from TABSQL_QUERY_ENGINE)")
	cmd.PersistentFlags().BoolVar(&flags.useAI, "ai", false, "try the configured AI provider before the heuristic")

	var askFile, question string
	ask := &cobra.Command{
		Use:   "ask",
		Short: "Translate a question and run it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, t, err := flags.prepare(askFile)
			if err != nil {
				return err
			}
			out, err := service.Ask(cmd.Context(), orchestrator.AskInput{Table: t, Question: question})
			if err != nil {
				return failed("%v", err)
			}
			return writeLocal(cmd, localResult{
				SQL:       out.SQL,
				Source:    string(out.Source),
				LLMError:  out.AIFailureReason,
				Columns:   out.Columns,
				Rows:      out.Records(),
				RowCount:  len(out.Rows),
				Truncated: out.Truncated,
			})
		},
	}
	ask.Flags().StringVar(&askFile, "file", "", "CSV or Excel file")
	ask.Flags().StringVar(&question, "question", "", "question in plain language")
	_ = ask.MarkFlagRequired("file")
	_ = ask.MarkFlagRequired("question")

	var sqlFile, sqlText string
	runSQL := &cobra.Command{
		Use:   "sql",
		Short: "Run read-only SQL against a file locally (table df)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, t, err := flags.prepare(sqlFile)
			if err != nil {
				return err
			}
			out, err := service.RunSQL(cmd.Context(), orchestrator.SQLInput{Table: t, SQL: sqlText})
			if err != nil {
				return failed("%v", err)
			}
			return writeLocal(cmd, localResult{
				SQL:       out.SQL,
				Source:    string(orchestrator.SourceUser),
				Columns:   out.Columns,
				Rows:      out.Records(),
				RowCount:  len(out.Rows),
				Truncated: out.Truncated,
			})
		},
	}
	runSQL.Flags().StringVar(&sqlFile, "file", "", "CSV or Excel file")
	runSQL.Flags().StringVar(&sqlText, "sql", "", "SELECT statement to run")
	_ = runSQL.MarkFlagRequired("file")
	_ = runSQL.MarkFlagRequired("sql")

	cmd.AddCommand(ask, runSQL)
	return cmd
}

func (f *localFlags) prepare(path string) (*orchestrator.Service, table.Table, error) {
	cfg, err := config.Load("tabsqlctl", os.LookupEnv)
	if err != nil {
		return nil, table.Table{}, failed("load config: %v", err)
	}
	if f.engine != "" {
		cfg.Query.Engine = f.engine
	}

	translator := nl2sql.Translator(nl2sql.Disabled(nl2sql.ErrProviderDisabled.Error()))
	if f.useAI {
		translator, err = nl2sql.New(nl2sql.Config{
			Enabled:     cfg.AI.TranslateEnabled,
			Provider:    cfg.AI.Provider,
			BaseURL:     cfg.AI.BaseURL,
			APIKey:      cfg.AI.APIKey,
			Model:       cfg.AI.Model,
			Temperature: cfg.AI.Temperature,
			Timeout:     cfg.AI.Timeout,
		})
		if err != nil {
			return nil, table.Table{}, failed("configure AI provider: %v", err)
		}
	}

	service, err := orchestrator.NewFromConfig(cfg, translator, nil, slog.New(slog.DiscardHandler))
	if err != nil {
		return nil, table.Table{}, failed("%v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, table.Table{}, failed("open %s: %v", path, err)
	}
	defer func() { _ = file.Close() }()
	t, err := loader.Load(filepath.Base(path), file)
	if err != nil {
		return nil, table.Table{}, failed("load %s: %v", path, err)
	}
	return service, t, nil
}

func writeLocal(cmd *cobra.Command, result localResult) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		return failed("write result: %v", err)
	}
	return nil
}
