package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tabsql/tabsql/internal/export"
	"github.com/tabsql/tabsql/internal/history"
	"github.com/tabsql/tabsql/internal/storage"
)

type exportReply struct {
	ID          uuid.UUID `json:"id"`
	Key         string    `json:"key"`
	Format      string    `json:"format"`
	RowCount    int       `json:"row_count"`
	SizeBytes   int64     `json:"size_bytes"`
	CreatedAt   time.Time `json:"created_at"`
	DownloadURL string    `json:"download_url"`
}

func newExportReply(stored history.Export) *exportReply {
	return &exportReply{
		ID:          stored.ID,
		Key:         stored.ObjectKey,
		Format:      stored.Format,
		RowCount:    stored.RowCount,
		SizeBytes:   stored.SizeBytes,
		CreatedAt:   stored.CreatedAt,
		DownloadURL: "/v1/exports/" + stored.ID.String(),
	}
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "query history is not configured", false, nil)
		return
	}
	limit := history.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}

	records, err := deps.History.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "HISTORY_ERROR", "failed to list query history", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// handleGetExport streams an export, or with ?presign=true returns a
// time-limited direct link when the object store can sign one.
func handleGetExport(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Exporter == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_NOT_CONFIGURED", "result export is not configured", false, nil)
		return
	}
	id, err := parseExportID(r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_EXPORT_ID", err.Error(), false, nil)
		return
	}

	presign, _ := strconv.ParseBool(r.URL.Query().Get("presign"))
	if presign {
		stored, err := deps.Exporter.Lookup(r.Context(), id)
		if err != nil {
			writeExportLookupError(w, r, err)
			return
		}
		link, supported, err := deps.Exporter.PresignURL(r.Context(), stored, deps.PresignExpiry)
		if !supported {
			writeError(r.Context(), w, http.StatusNotImplemented, "PRESIGN_UNSUPPORTED", "object store cannot sign download links", false, nil)
			return
		}
		if err != nil {
			writeError(r.Context(), w, http.StatusInternalServerError, "PRESIGN_FAILED", "failed to sign download link", true, map[string]any{"details": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"url":        link,
			"expires_at": deps.Clock().UTC().Add(deps.PresignExpiry),
			"export":     newExportReply(stored),
		})
		return
	}

	stored, reader, err := deps.Exporter.Open(r.Context(), id)
	if err != nil {
		writeExportLookupError(w, r, err)
		return
	}
	defer func() { _ = reader.Close() }()

	w.Header().Set("Content-Type", "application/vnd.apache.parquet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", storage.ExportFilename(stored.ID.String(), stored.Format)))
	if stored.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(stored.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

func writeExportLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, history.ErrNotFound), errors.Is(err, storage.ErrObjectNotFound):
		writeError(r.Context(), w, http.StatusNotFound, "EXPORT_NOT_FOUND", "export was not found", false, nil)
	case errors.Is(err, export.ErrLookupUnavailable):
		writeError(r.Context(), w, http.StatusNotImplemented, "EXPORT_LOOKUP_UNAVAILABLE", err.Error(), false, nil)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_ERROR", "failed to load export", true, map[string]any{"details": err.Error()})
	}
}

func parseExportID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid export id %q", raw)
	}
	return id, nil
}
