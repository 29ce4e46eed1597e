package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tabsql/tabsql/internal/table"
)

type Request struct {
	Question   string               `json:"question"`
	TableName  string               `json:"table_name"`
	Schema     []table.SchemaColumn `json:"schema"`
	SchemaText string               `json:"schema_text"`
	SampleRows []table.Row          `json:"sample_rows"`
}

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

type FailureKind string

const (
	FailureDisabled      FailureKind = "disabled"
	FailureUnconfigured  FailureKind = "unconfigured"
	FailureEmptyResponse FailureKind = "empty_response"
	FailureProvider      FailureKind = "provider_error"
)

var (
	ErrProviderDisabled = errors.New("AI provider disabled")
	ErrEmptyResponse    = errors.New("Empty LLM response")
)

// TranslationError reports why a translator produced no SQL. Callers fall
// back to the heuristic builder on any TranslationError.
type TranslationError struct {
	Kind   FailureKind
	Reason string
	Err    error
}

func (e *TranslationError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

// Disabled reports whether the failure means no provider is usable, as opposed
// to a provider that was tried and failed.
func (e *TranslationError) Disabled() bool {
	return e.Kind == FailureDisabled || e.Kind == FailureUnconfigured
}

func providerError(err error) error {
	return &TranslationError{Kind: FailureProvider, Reason: err.Error(), Err: err}
}

func emptyResponse() error {
	return &TranslationError{Kind: FailureEmptyResponse, Reason: ErrEmptyResponse.Error(), Err: ErrEmptyResponse}
}

// AsTranslationError normalizes any translator error into a TranslationError.
func AsTranslationError(err error) *TranslationError {
	if err == nil {
		return nil
	}
	var translationErr *TranslationError
	if errors.As(err, &translationErr) {
		return translationErr
	}
	if errors.Is(err, ErrProviderDisabled) {
		return &TranslationError{Kind: FailureDisabled, Reason: err.Error(), Err: err}
	}
	return &TranslationError{Kind: FailureProvider, Reason: err.Error(), Err: err}
}

const instructions = "You are a data analyst. Generate a single SQLite-compatible SQL query for a table named %s.\n" +
	"Rules:\n" +
	"- Use only SELECT, WHERE, GROUP BY, ORDER BY, LIMIT, COUNT, SUM, AVG, MIN, MAX, strftime for dates.\n" +
	"- Do not use JOINs, CTEs, comments, or backticks. Do not add explanations.\n" +
	"Return ONLY the SQL."

func BuildPrompt(req Request) (string, error) {
	tableName := strings.TrimSpace(req.TableName)
	if tableName == "" {
		tableName = "df"
	}
	samples := req.SampleRows
	if samples == nil {
		samples = []table.Row{}
	}
	sampleJSON, err := json.Marshal(samples)
	if err != nil {
		return "", fmt.Errorf("marshal sample rows: %w", err)
	}
	return fmt.Sprintf(
		"%s\n\nSchema: %s\nSample rows: %s\nQuestion: %s\nSQL:",
		fmt.Sprintf(instructions, tableName),
		req.SchemaText,
		string(sampleJSON),
		strings.TrimSpace(req.Question),
	), nil
}

var markdownFence = regexp.MustCompile("(?i)```(sql)?")

// StripMarkdownSQL removes code fences wherever they appear and trims.
func StripMarkdownSQL(value string) string {
	return strings.TrimSpace(markdownFence.ReplaceAllString(value, ""))
}

func finish(text, provider, model string) (Result, error) {
	sql := StripMarkdownSQL(text)
	if sql == "" {
		return Result{}, emptyResponse()
	}
	return Result{SQL: sql, Provider: provider, Model: model}, nil
}
