package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabsql/tabsql/internal/auth"
	"github.com/tabsql/tabsql/internal/config"
	"github.com/tabsql/tabsql/internal/export"
	"github.com/tabsql/tabsql/internal/history"
	"github.com/tabsql/tabsql/internal/observability"
	"github.com/tabsql/tabsql/internal/orchestrator"
)

const defaultPresignExpiry = 15 * time.Minute

type ReadinessCheck func(ctx context.Context) error

type HistoryLister interface {
	ListRecent(ctx context.Context, limit int) ([]history.Record, error)
}

type ResultExporter interface {
	Export(ctx context.Context, in export.Input) (history.Export, error)
	Open(ctx context.Context, id uuid.UUID) (history.Export, io.ReadCloser, error)
	Lookup(ctx context.Context, id uuid.UUID) (history.Export, error)
	PresignURL(ctx context.Context, export history.Export, expiry time.Duration) (string, bool, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Service           *orchestrator.Service
	History           HistoryLister
	Exporter          ResultExporter
	AIConfigured      bool
	PresignExpiry     time.Duration
	Clock             func() time.Time
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.PresignExpiry <= 0 {
		deps.PresignExpiry = defaultPresignExpiry
	}
	mux := http.NewServeMux()

	health := func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"service":       cfg.Service.Name,
			"provider":      cfg.AI.Provider,
			"ai_configured": deps.AIConfigured,
			"time":          deps.Clock().UTC().Format(time.RFC3339),
		})
	}
	mux.HandleFunc("GET /v1/health", health)
	mux.HandleFunc("GET /api/health", health)

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	maxUpload := cfg.HTTP.MaxUploadBytes
	ask := auth.RequireRole(auth.RoleAsker, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, maxUpload, w, r)
	}))
	runSQL := auth.RequireRole(auth.RoleSQLRunner, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleSQL(deps, maxUpload, w, r)
	}))
	translate := auth.RequireRole(auth.RoleAsker, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleTranslate(deps, maxUpload, w, r)
	}))
	listHistory := auth.RequireRole(auth.RoleHistoryReader, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleHistory(deps, w, r)
	}))
	getExport := auth.RequireRole(auth.RoleHistoryReader, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handleGetExport(deps, w, r)
	}))

	protect := protectWith(cfg, deps)
	mux.Handle("POST /v1/query", protect(ask))
	mux.Handle("POST /api/query", protect(ask))
	mux.Handle("POST /v1/sql", protect(runSQL))
	mux.Handle("POST /api/sql", protect(runSQL))
	mux.Handle("POST /v1/translate", protect(translate))
	mux.Handle("GET /v1/history", protect(listHistory))
	mux.Handle("GET /v1/exports/{id}", protect(getExport))

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	if len(cfg.HTTP.CORSOrigins) > 0 {
		middlewares = append(middlewares, corsMiddleware(cfg.HTTP.CORSOrigins))
	}
	return chain(mux, middlewares...)
}

func protectWith(cfg config.Config, deps Dependencies) func(http.Handler) http.Handler {
	if !cfg.Auth.Required {
		return func(next http.Handler) http.Handler { return next }
	}
	if deps.AuthMiddleware == nil {
		if deps.Logger != nil {
			deps.Logger.Error("auth required but auth middleware missing")
		}
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		}
	}
	return deps.AuthMiddleware
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Trace-ID"},
		ExposedHeaders: []string{"X-Trace-ID"},
		MaxAge:         300,
	})
}

func CheckHistory(pinger interface{ Ping(context.Context) error }) ReadinessCheck {
	if pinger == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return pinger.Ping(ctx)
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
