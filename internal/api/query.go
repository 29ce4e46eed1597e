package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tabsql/tabsql/internal/auth"
	"github.com/tabsql/tabsql/internal/export"
	"github.com/tabsql/tabsql/internal/nl2sql/heuristic"
	"github.com/tabsql/tabsql/internal/orchestrator"
	"github.com/tabsql/tabsql/internal/query"
	"github.com/tabsql/tabsql/internal/table"
)

var (
	questionField = formField{name: "question", required: true, code: "QUESTION_REQUIRED", message: "No question"}
	sqlField      = formField{name: "sql", required: true, code: "SQL_REQUIRED", message: "No SQL"}
)

type askMeta struct {
	Used       string  `json:"used"`
	LLMError   *string `json:"llm_error"`
	AIDisabled bool    `json:"ai_disabled"`
	Provider   string  `json:"provider,omitempty"`
	Model      string  `json:"model,omitempty"`
	DurationMs int64   `json:"duration_ms"`
}

type askResponse struct {
	Summary   string       `json:"summary"`
	Data      []table.Row  `json:"data"`
	SQL       string       `json:"sql"`
	ChartType string       `json:"chartType"`
	Columns   []string     `json:"columns"`
	Truncated bool         `json:"truncated"`
	Meta      askMeta      `json:"meta"`
	HistoryID *uuid.UUID   `json:"history_id,omitempty"`
	Export    *exportReply `json:"export,omitempty"`
}

type sqlResponse struct {
	Columns    []string     `json:"columns"`
	Rows       []table.Row  `json:"rows"`
	RowCount   int          `json:"rowCount"`
	Truncated  bool         `json:"truncated"`
	DurationMs int64        `json:"duration_ms"`
	HistoryID  *uuid.UUID   `json:"history_id,omitempty"`
	Export     *exportReply `json:"export,omitempty"`
}

type translateResponse struct {
	SQL        string           `json:"sql"`
	Source     string           `json:"source"`
	LLMError   *string          `json:"llm_error"`
	AIDisabled bool             `json:"ai_disabled"`
	Provider   string           `json:"provider,omitempty"`
	Model      string           `json:"model,omitempty"`
	Intent     heuristic.Intent `json:"intent"`
}

func handleAsk(deps Dependencies, maxUpload int64, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query service is not configured", false, nil)
		return
	}
	format, ok := exportFormat(deps, w, r)
	if !ok {
		return
	}
	in, err := readUpload(w, r, maxUpload, questionField)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	out, err := deps.Service.Ask(r.Context(), orchestrator.AskInput{
		Table:    in.Table,
		Question: in.Fields[questionField.name],
		Subject:  subject(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response := askResponse{
		Summary:   out.Summary,
		Data:      out.Records(),
		SQL:       out.SQL,
		ChartType: out.ChartType,
		Columns:   out.Columns,
		Truncated: out.Truncated,
		Meta: askMeta{
			Used:       usedLabel(out.Translation),
			LLMError:   optionalString(out.AIFailureReason),
			AIDisabled: out.AIDisabled,
			Provider:   out.Provider,
			Model:      out.Model,
			DurationMs: out.Duration.Milliseconds(),
		},
		HistoryID: out.HistoryID,
	}
	if format != "" {
		reply, err := exportResult(r.Context(), deps, format, out.Columns, out.Rows, out.HistoryID)
		if err != nil {
			writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "failed to export result", true, map[string]any{"details": err.Error()})
			return
		}
		response.Export = reply
	}
	writeJSON(w, http.StatusOK, response)
}

func handleSQL(deps Dependencies, maxUpload int64, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query service is not configured", false, nil)
		return
	}
	format, ok := exportFormat(deps, w, r)
	if !ok {
		return
	}
	in, err := readUpload(w, r, maxUpload, sqlField)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	out, err := deps.Service.RunSQL(r.Context(), orchestrator.SQLInput{
		Table:   in.Table,
		SQL:     in.Fields[sqlField.name],
		Subject: subject(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response := sqlResponse{
		Columns:    out.Columns,
		Rows:       out.Records(),
		RowCount:   len(out.Rows),
		Truncated:  out.Truncated,
		DurationMs: out.Duration.Milliseconds(),
		HistoryID:  out.HistoryID,
	}
	if format != "" {
		reply, err := exportResult(r.Context(), deps, format, out.Columns, out.Rows, out.HistoryID)
		if err != nil {
			writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "failed to export result", true, map[string]any{"details": err.Error()})
			return
		}
		response.Export = reply
	}
	writeJSON(w, http.StatusOK, response)
}

func handleTranslate(deps Dependencies, maxUpload int64, w http.ResponseWriter, r *http.Request) {
	if deps.Service == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "TRANSLATE_NOT_CONFIGURED", "query translation is not configured", false, nil)
		return
	}
	in, err := readUpload(w, r, maxUpload, questionField)
	if err != nil {
		writeUploadError(w, r, err)
		return
	}

	translation, err := deps.Service.TranslateQuestion(r.Context(), orchestrator.AskInput{
		Table:    in.Table,
		Question: in.Fields[questionField.name],
		Subject:  subject(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, translateResponse{
		SQL:        translation.SQL,
		Source:     string(translation.Source),
		LLMError:   optionalString(translation.AIFailureReason),
		AIDisabled: translation.AIDisabled,
		Provider:   translation.Provider,
		Model:      translation.Model,
		Intent:     translation.Intent,
	})
}

// writeServiceError maps orchestrator failures. Guard rejections of caller
// SQL are client faults; anything that reached the engine is a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var execErr *orchestrator.ExecutionError
	switch {
	case errors.Is(err, orchestrator.ErrQuestionRequired):
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "No question", false, nil)
	case errors.Is(err, orchestrator.ErrSQLRequired):
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "No SQL", false, nil)
	case errors.Is(err, orchestrator.ErrTableRequired):
		writeError(r.Context(), w, http.StatusBadRequest, "EMPTY_TABLE", "uploaded file has no columns", false, nil)
	case errors.As(err, &execErr):
		writeError(r.Context(), w, http.StatusInternalServerError, "QUERY_EXECUTION_FAILED", "query execution failed", false, map[string]any{
			"details": execErr.Err.Error(),
			"sql":     execErr.SQL,
			"source":  string(execErr.Source),
		})
	case query.IsGuardError(err):
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only a single read-only SELECT/WITH statement is allowed", false, map[string]any{"details": err.Error()})
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "request failed", true, map[string]any{"details": err.Error()})
	}
}

// exportFormat validates the export query parameter before any work is done.
// An empty format means no export was requested.
func exportFormat(deps Dependencies, w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("export")))
	if raw == "" {
		return "", true
	}
	format, err := export.ParseFormat(raw)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "UNSUPPORTED_EXPORT_FORMAT", err.Error(), false, nil)
		return "", false
	}
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "result export is not configured", false, nil)
		return "", false
	}
	return format, true
}

func exportResult(ctx context.Context, deps Dependencies, format string, columns []string, rows [][]any, historyID *uuid.UUID) (*exportReply, error) {
	stored, err := deps.Exporter.Export(ctx, export.Input{
		Format:    format,
		Columns:   columns,
		Rows:      rows,
		HistoryID: historyID,
	})
	if err != nil {
		return nil, err
	}
	return newExportReply(stored), nil
}

// usedLabel names the provider for AI SQL, as existing clients expect, and
// "heuristic" otherwise.
func usedLabel(t orchestrator.Translation) string {
	if t.Source != orchestrator.SourceAI {
		return string(orchestrator.SourceHeuristic)
	}
	if t.Provider != "" {
		return t.Provider
	}
	return string(orchestrator.SourceAI)
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func subject(r *http.Request) string {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return ""
	}
	return identity.Subject
}
