package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tabsql/tabsql/internal/history"
	"github.com/tabsql/tabsql/internal/nl2sql"
	"github.com/tabsql/tabsql/internal/nl2sql/heuristic"
	"github.com/tabsql/tabsql/internal/observability"
	"github.com/tabsql/tabsql/internal/query"
	"github.com/tabsql/tabsql/internal/table"
)

type Source string

const (
	SourceAI        Source = "ai"
	SourceHeuristic Source = "heuristic"
	SourceUser      Source = "user"
)

const DefaultChartType = "bar"

type Options struct {
	TableName         string
	CoercionThreshold float64
	FuzzyCutoff       float64
	DefaultLimit      int
	SampleRows        int
	RowLimit          int
	QueryTimeout      time.Duration
}

type HistoryRecorder interface {
	Insert(ctx context.Context, record history.Record) (history.Record, error)
}

// Service runs the per-request flow. Nothing is shared between requests
// except the collaborators, which must be safe for concurrent use. Build it
// with NewService; the fields are not modified after construction.
type Service struct {
	Translator nl2sql.Translator
	Engine     query.Engine
	Builder    heuristic.Builder
	Options    Options
	History    HistoryRecorder
	Logger     *slog.Logger
	Clock      func() time.Time
}

// Prepared is a coerced table with everything derived from it that the
// translators need.
type Prepared struct {
	Table          table.Table
	Classification table.Classification
	Schema         []table.SchemaColumn
	SchemaText     string
	SampleRows     []table.Row
}

type Translation struct {
	SQL             string           `json:"sql"`
	Source          Source           `json:"source"`
	AIFailureReason string           `json:"ai_failure_reason,omitempty"`
	AIDisabled      bool             `json:"ai_disabled"`
	AIFailureKind   string           `json:"-"`
	Provider        string           `json:"provider,omitempty"`
	Model           string           `json:"model,omitempty"`
	Intent          heuristic.Intent `json:"-"`
}

type AskInput struct {
	Table    table.Table
	Question string
	Subject  string
}

type AskOutput struct {
	Translation
	Columns   []string
	Rows      [][]any
	Truncated bool
	Summary   string
	ChartType string
	Duration  time.Duration
	HistoryID *uuid.UUID
}

// Records converts result rows into ordered JSON objects.
func (o AskOutput) Records() []table.Row {
	return table.Records(o.Columns, o.Rows)
}

type SQLInput struct {
	Table   table.Table
	SQL     string
	Subject string
}

type SQLOutput struct {
	SQL       string
	Columns   []string
	Rows      [][]any
	Truncated bool
	Duration  time.Duration
	HistoryID *uuid.UUID
}

func (o SQLOutput) Records() []table.Row {
	return table.Records(o.Columns, o.Rows)
}

// Prepare normalizes column names, coerces types and builds the schema and
// sample summary. It never fails on content, only on an empty table.
func (s *Service) Prepare(t table.Table) (Prepared, error) {
	if len(t.Columns) == 0 {
		return Prepared{}, ErrTableRequired
	}

	normalized := table.Table{Columns: make([]table.Column, len(t.Columns))}
	copy(normalized.Columns, t.Columns)
	for i, name := range table.NormalizeColumnNames(t.ColumnNames()) {
		normalized.Columns[i].Name = name
	}

	coerced := table.Coerce(normalized, table.CoerceOptions{Threshold: s.Options.CoercionThreshold})
	classification := table.Classify(coerced)
	observability.ObserveCoercedColumns(len(classification.Numeric), len(classification.Temporal), len(classification.Categorical))

	return Prepared{
		Table:          coerced,
		Classification: classification,
		Schema:         table.SchemaColumns(coerced),
		SchemaText:     table.SchemaText(coerced),
		SampleRows:     table.SampleRows(coerced, s.Options.SampleRows),
	}, nil
}

// Translate produces SQL for question. The AI translator is tried once; any
// failure, including a disabled provider, falls back to the heuristic.
func (s *Service) Translate(ctx context.Context, prepared Prepared, question string) Translation {
	intent := heuristic.Parse(question, prepared.Classification, heuristic.ParseOptions{
		FuzzyCutoff:  s.Options.FuzzyCutoff,
		DefaultLimit: s.Options.DefaultLimit,
	})

	result, err := s.Translator.Translate(ctx, nl2sql.Request{
		Question:   question,
		TableName:  s.Options.TableName,
		Schema:     prepared.Schema,
		SchemaText: prepared.SchemaText,
		SampleRows: prepared.SampleRows,
	})
	if err == nil && strings.TrimSpace(result.SQL) != "" {
		observability.ObserveTranslation(string(SourceAI))
		return Translation{
			SQL:      result.SQL,
			Source:   SourceAI,
			Provider: result.Provider,
			Model:    result.Model,
			Intent:   intent,
		}
	}
	if err == nil {
		err = nl2sql.ErrEmptyResponse
	}

	failure := nl2sql.AsTranslationError(err)
	if errors.Is(err, nl2sql.ErrEmptyResponse) && failure.Kind == nl2sql.FailureProvider {
		failure.Kind = nl2sql.FailureEmptyResponse
	}
	observability.ObserveTranslation(string(SourceHeuristic))
	if !failure.Disabled() {
		observability.ObserveAIFailure(string(failure.Kind))
		s.Logger.WarnContext(ctx, "ai translation failed, using heuristic",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("kind", string(failure.Kind)),
			slog.String("reason", failure.Error()),
		)
	}

	return Translation{
		SQL:             s.Builder.Build(prepared.Classification, question),
		Source:          SourceHeuristic,
		AIFailureReason: failure.Error(),
		AIDisabled:      failure.Disabled(),
		AIFailureKind:   string(failure.Kind),
		Intent:          intent,
	}
}

// TranslateQuestion validates input, prepares the table and translates
// without executing anything.
func (s *Service) TranslateQuestion(ctx context.Context, in AskInput) (Translation, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return Translation{}, ErrQuestionRequired
	}
	prepared, err := s.Prepare(in.Table)
	if err != nil {
		return Translation{}, err
	}
	return s.Translate(ctx, prepared, question), nil
}

func (s *Service) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskOutput{}, ErrQuestionRequired
	}
	prepared, err := s.Prepare(in.Table)
	if err != nil {
		return AskOutput{}, err
	}

	translation := s.Translate(ctx, prepared, question)
	s.Logger.InfoContext(ctx, "question translated",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("question", question),
		slog.String("sql", translation.SQL),
		slog.String("source", string(translation.Source)),
		slog.Any("columns", prepared.Table.ColumnNames()),
	)

	result, execErr := s.execute(ctx, prepared.Table, translation.SQL)
	record := history.Record{
		Question:        question,
		SQL:             translation.SQL,
		Source:          string(translation.Source),
		AIFailureReason: translation.AIFailureReason,
		Subject:         in.Subject,
	}
	if execErr != nil {
		s.record(ctx, record, result, execErr)
		return AskOutput{}, &ExecutionError{SQL: translation.SQL, Source: translation.Source, Err: execErr}
	}

	return AskOutput{
		Translation: translation,
		Columns:     result.Columns,
		Rows:        result.Rows,
		Truncated:   result.Truncated,
		Summary:     "Ran SQL: " + translation.SQL,
		ChartType:   DefaultChartType,
		Duration:    result.Duration,
		HistoryID:   s.record(ctx, record, result, nil),
	}, nil
}

// RunSQL executes caller supplied SQL. Statements rejected by the read-only
// guard are returned unwrapped so callers can report them as client faults.
func (s *Service) RunSQL(ctx context.Context, in SQLInput) (SQLOutput, error) {
	sqlText := strings.TrimSpace(in.SQL)
	if sqlText == "" {
		return SQLOutput{}, ErrSQLRequired
	}
	if _, err := query.Guard(sqlText); err != nil {
		return SQLOutput{}, err
	}
	prepared, err := s.Prepare(in.Table)
	if err != nil {
		return SQLOutput{}, err
	}

	result, execErr := s.execute(ctx, prepared.Table, sqlText)
	record := history.Record{SQL: sqlText, Source: string(SourceUser), Subject: in.Subject}
	if execErr != nil {
		s.record(ctx, record, result, execErr)
		return SQLOutput{}, &ExecutionError{SQL: sqlText, Source: SourceUser, Err: execErr}
	}
	return SQLOutput{
		SQL:       sqlText,
		Columns:   result.Columns,
		Rows:      result.Rows,
		Truncated: result.Truncated,
		Duration:  result.Duration,
		HistoryID: s.record(ctx, record, result, nil),
	}, nil
}

func (s *Service) execute(ctx context.Context, t table.Table, sqlText string) (query.Result, error) {
	if s.Options.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Options.QueryTimeout)
		defer cancel()
	}
	start := s.Clock()
	result, err := s.Engine.Execute(ctx, query.Request{
		SQL:       sqlText,
		TableName: s.Options.TableName,
		Table:     t,
		RowLimit:  s.Options.RowLimit,
	})
	elapsed := s.Clock().Sub(start)
	observability.ObserveQueryExecution(err, elapsed)
	if err != nil {
		s.Logger.ErrorContext(ctx, "query execution failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.String("engine", s.Engine.Name()),
			slog.String("sql", sqlText),
			slog.Any("error", err),
		)
		result.Duration = elapsed
		return result, err
	}
	if result.Duration == 0 {
		result.Duration = elapsed
	}
	return result, nil
}

// record stores a history row. Failures are logged and never fail the request.
func (s *Service) record(ctx context.Context, record history.Record, result query.Result, execErr error) *uuid.UUID {
	if s.History == nil {
		return nil
	}
	record.Engine = s.Engine.Name()
	record.RowCount = len(result.Rows)
	record.DurationMs = result.Duration.Milliseconds()
	if execErr != nil {
		record.Error = execErr.Error()
	}
	stored, err := s.History.Insert(ctx, record)
	if err != nil {
		s.Logger.WarnContext(ctx, "record query history failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return nil
	}
	return &stored.ID
}

func NewService(s Service) (*Service, error) {
	if s.Engine == nil {
		return nil, fmt.Errorf("query engine is required")
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	if s.Translator == nil {
		s.Translator = nl2sql.Disabled(nl2sql.ErrProviderDisabled.Error())
	}
	if strings.TrimSpace(s.Options.TableName) == "" {
		s.Options.TableName = heuristic.DefaultTableName
	}
	if s.Options.SampleRows <= 0 {
		s.Options.SampleRows = table.DefaultSampleRows
	}
	if s.Options.DefaultLimit <= 0 {
		s.Options.DefaultLimit = heuristic.DefaultLimit
	}
	if s.Builder.TableName == "" {
		s.Builder.TableName = s.Options.TableName
	}
	return &s, nil
}
