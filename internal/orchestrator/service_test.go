package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tabsql/tabsql/internal/config"
	"github.com/tabsql/tabsql/internal/history"
	"github.com/tabsql/tabsql/internal/nl2sql"
	"github.com/tabsql/tabsql/internal/nl2sql/heuristic"
	"github.com/tabsql/tabsql/internal/query"
	"github.com/tabsql/tabsql/internal/query/sqlite"
	"github.com/tabsql/tabsql/internal/table"
)

type fakeTranslator struct {
	result nl2sql.Result
	err    error
	got    nl2sql.Request
	calls  int
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.calls++
	f.got = req
	return f.result, f.err
}

type fakeHistory struct {
	records []history.Record
	err     error
}

func (f *fakeHistory) Insert(_ context.Context, record history.Record) (history.Record, error) {
	if f.err != nil {
		return history.Record{}, f.err
	}
	record.ID = uuid.New()
	f.records = append(f.records, record)
	return record, nil
}

func salesTable(t *testing.T) table.Table {
	t.Helper()
	tbl, err := table.FromRecords(
		[]string{" region ", "order date", "revenue"},
		[][]string{
			{"north", "2023-01-05", "1,200"},
			{"south", "2022-02-01", "50"},
			{"north", "2023-03-01", "25"},
			{"east", "2023-07-09", "n/a"},
		},
	)
	require.NoError(t, err)
	return tbl
}

func newService(t *testing.T, translator nl2sql.Translator, recorder HistoryRecorder) *Service {
	t.Helper()
	service, err := NewService(Service{
		Translator: translator,
		Engine:     sqlite.NewEngine(),
		Builder:    heuristic.Builder{Dialect: heuristic.DialectSQLite},
		Options:    Options{CoercionThreshold: 0.7, FuzzyCutoff: 0.6, SampleRows: 3},
		History:    recorder,
	})
	require.NoError(t, err)
	return service
}

func TestNewServiceRequiresEngine(t *testing.T) {
	_, err := NewService(Service{})
	require.Error(t, err)
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	service, err := NewService(Service{Engine: sqlite.NewEngine(), Options: Options{SampleRows: -1}})
	require.NoError(t, err)
	assert.Equal(t, table.DefaultSampleRows, service.Options.SampleRows)
	assert.Equal(t, heuristic.DefaultLimit, service.Options.DefaultLimit)

	service, err = NewService(Service{Engine: sqlite.NewEngine()})
	require.NoError(t, err)
	prepared, err := service.Prepare(salesTable(t))
	require.NoError(t, err)
	assert.Len(t, prepared.SampleRows, table.DefaultSampleRows)
}

func TestTranslateQuestionUsesConfiguredDefaultLimit(t *testing.T) {
	service, err := NewService(Service{Engine: sqlite.NewEngine(), Options: Options{DefaultLimit: 2}})
	require.NoError(t, err)

	translation, err := service.TranslateQuestion(context.Background(), AskInput{
		Table:    salesTable(t),
		Question: "show everything",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, translation.Intent.Limit)
}

func TestPrepareNormalizesAndCoerces(t *testing.T) {
	service := newService(t, nil, nil)

	prepared, err := service.Prepare(salesTable(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"region", "order_date", "revenue"}, prepared.Table.ColumnNames())
	assert.Equal(t, []string{"revenue"}, prepared.Classification.Numeric)
	assert.Equal(t, []string{"order_date"}, prepared.Classification.Temporal)
	assert.Equal(t, []string{"region"}, prepared.Classification.Categorical)
	assert.Equal(t, "region (object), order_date (datetime64[ns]), revenue (float64)", prepared.SchemaText)
	assert.Len(t, prepared.SampleRows, 3)
}

func TestPrepareRejectsEmptyTable(t *testing.T) {
	_, err := newService(t, nil, nil).Prepare(table.Table{})
	assert.ErrorIs(t, err, ErrInputRequired)
}

func TestAskWithDisabledAIUsesHeuristic(t *testing.T) {
	service := newService(t, nl2sql.Disabled(nl2sql.ErrProviderDisabled.Error()), nil)

	out, err := service.Ask(context.Background(), AskInput{Table: salesTable(t), Question: "sales in 2023"})
	require.NoError(t, err)

	assert.Equal(t, SourceHeuristic, out.Source)
	assert.True(t, out.AIDisabled)
	assert.Equal(t, "AI provider disabled", out.AIFailureReason)
	assert.Equal(t, "SELECT * FROM df WHERE strftime('%Y',order_date)='2023'", out.SQL)
	assert.Equal(t, "Ran SQL: "+out.SQL, out.Summary)
	assert.Equal(t, DefaultChartType, out.ChartType)
	assert.Len(t, out.Rows, 3)
	assert.Equal(t, []string{"region", "order_date", "revenue"}, out.Columns)
}

func TestAskWithUnconfiguredProviderIsDisabledNotFailed(t *testing.T) {
	translator, err := nl2sql.New(nl2sql.Config{Enabled: true, Provider: nl2sql.ProviderGemini})
	require.NoError(t, err)

	out, err := newService(t, translator, nil).Ask(context.Background(), AskInput{Table: salesTable(t), Question: "top 2 regions by revenue"})
	require.NoError(t, err)

	assert.True(t, out.AIDisabled)
	assert.Equal(t, "Gemini not configured", out.AIFailureReason)
	assert.Equal(t, "SELECT region, SUM(revenue) as total FROM df GROUP BY region ORDER BY total DESC LIMIT 2", out.SQL)
	require.Len(t, out.Rows, 2)
	assert.Equal(t, "north", out.Rows[0][0])
	assert.Equal(t, 1225.0, out.Rows[0][1])
}

func TestAskFallsBackWhenAIFails(t *testing.T) {
	translator := &fakeTranslator{err: &nl2sql.TranslationError{Kind: nl2sql.FailureProvider, Reason: "quota exceeded"}}

	out, err := newService(t, translator, nil).Ask(context.Background(), AskInput{Table: salesTable(t), Question: "show everything"})
	require.NoError(t, err)

	assert.Equal(t, 1, translator.calls)
	assert.Equal(t, SourceHeuristic, out.Source)
	assert.False(t, out.AIDisabled)
	assert.Equal(t, "quota exceeded", out.AIFailureReason)
	assert.Equal(t, "SELECT * FROM df LIMIT 20", out.SQL)
	assert.Len(t, out.Rows, 4)
}

func TestAskFallsBackOnEmptyAIText(t *testing.T) {
	translator := &fakeTranslator{result: nl2sql.Result{SQL: "  "}}

	out, err := newService(t, translator, nil).Ask(context.Background(), AskInput{Table: salesTable(t), Question: "show everything"})
	require.NoError(t, err)

	assert.Equal(t, SourceHeuristic, out.Source)
	assert.Equal(t, "Empty LLM response", out.AIFailureReason)
	assert.Equal(t, string(nl2sql.FailureEmptyResponse), out.AIFailureKind)
}

func TestAskUsesAISQL(t *testing.T) {
	translator := &fakeTranslator{result: nl2sql.Result{
		SQL:      "SELECT region, COUNT(*) AS n FROM df GROUP BY region ORDER BY region",
		Provider: "openai",
		Model:    "gpt-4o-mini",
	}}

	out, err := newService(t, translator, nil).Ask(context.Background(), AskInput{Table: salesTable(t), Question: "  orders per region "})
	require.NoError(t, err)

	assert.Equal(t, SourceAI, out.Source)
	assert.Empty(t, out.AIFailureReason)
	assert.Equal(t, "openai", out.Provider)
	assert.Equal(t, "orders per region", translator.got.Question)
	assert.Equal(t, "df", translator.got.TableName)
	assert.Len(t, translator.got.SampleRows, 3)
	assert.Equal(t, []string{"region", "n"}, out.Columns)
	assert.Len(t, out.Rows, 3)
}

func TestAskRequiresQuestion(t *testing.T) {
	_, err := newService(t, nil, nil).Ask(context.Background(), AskInput{Table: salesTable(t), Question: "   "})
	assert.ErrorIs(t, err, ErrQuestionRequired)
	assert.ErrorIs(t, err, ErrInputRequired)
}

func TestAskWrapsExecutionFailure(t *testing.T) {
	translator := &fakeTranslator{result: nl2sql.Result{SQL: "SELECT missing_column FROM df"}}
	recorder := &fakeHistory{}

	_, err := newService(t, translator, recorder).Ask(context.Background(), AskInput{Table: salesTable(t), Question: "x"})

	var execErr *ExecutionError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, SourceAI, execErr.Source)
	require.Len(t, recorder.records, 1)
	assert.NotEmpty(t, recorder.records[0].Error)
}

func TestRunSQLRejectsWritesAsGuardError(t *testing.T) {
	_, err := newService(t, nil, nil).RunSQL(context.Background(), SQLInput{Table: salesTable(t), SQL: "DELETE FROM df"})

	assert.ErrorIs(t, err, query.ErrNotReadOnly)
	var execErr *ExecutionError
	assert.False(t, errors.As(err, &execErr))
}

func TestRunSQLRequiresSQL(t *testing.T) {
	_, err := newService(t, nil, nil).RunSQL(context.Background(), SQLInput{Table: salesTable(t)})
	assert.ErrorIs(t, err, ErrSQLRequired)
}

func TestRunSQLDoesNotMutateInput(t *testing.T) {
	input := salesTable(t)
	recorder := &fakeHistory{}

	out, err := newService(t, nil, recorder).RunSQL(context.Background(), SQLInput{
		Table:   input,
		SQL:     "SELECT region, revenue FROM df WHERE revenue > 30;",
		Subject: "analyst",
	})
	require.NoError(t, err)

	assert.Len(t, out.Rows, 2)
	records := out.Records()
	require.Len(t, records, 2)
	region, ok := records[0].Get("region")
	require.True(t, ok)
	assert.Equal(t, "north", region)

	assert.Equal(t, table.KindText, input.Columns[2].Kind)
	assert.Equal(t, table.Text("1,200"), input.Columns[2].Values[0])
	require.Len(t, recorder.records, 1)
	assert.Equal(t, string(SourceUser), recorder.records[0].Source)
	assert.Equal(t, "analyst", recorder.records[0].Subject)
	assert.NotNil(t, out.HistoryID)
}

func TestHistoryFailureDoesNotFailAsk(t *testing.T) {
	recorder := &fakeHistory{err: errors.New("db down")}

	out, err := newService(t, nil, recorder).Ask(context.Background(), AskInput{Table: salesTable(t), Question: "show everything"})
	require.NoError(t, err)
	assert.Nil(t, out.HistoryID)
}

func TestTranslateQuestionDoesNotExecute(t *testing.T) {
	translation, err := newService(t, nil, nil).TranslateQuestion(context.Background(), AskInput{
		Table:    salesTable(t),
		Question: "top 3 regions by revenue",
	})
	require.NoError(t, err)
	assert.Equal(t, SourceHeuristic, translation.Source)
	assert.Equal(t, 3, translation.Intent.Limit)
	assert.Equal(t, "revenue", translation.Intent.MetricColumn)
}

func TestNewFromConfigSelectsEngineAndDialect(t *testing.T) {
	cfg, err := config.Load("tabsql-api", func(key string) (string, bool) {
		if key == "TABSQL_QUERY_ENGINE" {
			return "duckdb", true
		}
		return "", false
	})
	require.NoError(t, err)

	service, err := NewFromConfig(cfg, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "duckdb", service.Engine.Name())
	assert.Equal(t, heuristic.DialectDuckDB, service.Builder.Dialect)
	assert.Equal(t, 10, service.Builder.TopLimit)
	assert.Equal(t, 25, service.Options.DefaultLimit)
	assert.Equal(t, 3, service.Options.SampleRows)

	cfg.Query.Engine = "oracle"
	_, err = NewFromConfig(cfg, nil, nil, nil)
	assert.Error(t, err)
}
