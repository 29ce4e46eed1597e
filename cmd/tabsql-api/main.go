package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tabsql/tabsql/internal/api"
	"github.com/tabsql/tabsql/internal/auth"
	"github.com/tabsql/tabsql/internal/config"
	"github.com/tabsql/tabsql/internal/export"
	"github.com/tabsql/tabsql/internal/history"
	"github.com/tabsql/tabsql/internal/nl2sql"
	"github.com/tabsql/tabsql/internal/observability"
	"github.com/tabsql/tabsql/internal/orchestrator"
	"github.com/tabsql/tabsql/internal/storage"
	s3store "github.com/tabsql/tabsql/internal/storage/s3"
)

func main() {
	cfg, err := config.LoadFromEnv("tabsql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	translator, err := nl2sql.New(nl2sql.Config{
		Enabled:     cfg.AI.TranslateEnabled,
		Provider:    cfg.AI.Provider,
		BaseURL:     cfg.AI.BaseURL,
		APIKey:      cfg.AI.APIKey,
		Model:       cfg.AI.Model,
		Temperature: cfg.AI.Temperature,
		Timeout:     cfg.AI.Timeout,
	})
	if err != nil {
		logger.Error("failed to initialize query translator", slog.Any("error", err))
		os.Exit(1)
	}
	aiConfigured := cfg.AI.TranslateEnabled && cfg.AI.Provider != nl2sql.ProviderNone && strings.TrimSpace(cfg.AI.APIKey) != ""

	var (
		repo     *history.Repository
		recorder orchestrator.HistoryRecorder
		lister   api.HistoryLister
	)
	if cfg.History.Enabled() {
		db, err := history.Open(ctx, history.DBConfig{
			DSN:             cfg.History.DSN,
			MaxOpenConns:    cfg.History.MaxOpenConns,
			MaxIdleConns:    cfg.History.MaxIdleConns,
			ConnMaxIdleTime: cfg.History.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.History.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open history db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()
		repo = history.NewRepository(db)
		recorder, lister = repo, repo
	}

	var (
		objectStore storage.ObjectStore
		exporter    api.ResultExporter
	)
	if cfg.ObjectStore.Enabled {
		store, err := s3store.New(ctx, s3store.FromConfig(cfg.ObjectStore))
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		objectStore = store
		resultExporter := &export.Exporter{Store: store}
		if repo != nil {
			resultExporter.Catalog = repo
		}
		exporter = resultExporter
	}

	if repo != nil && cfg.History.Retention > 0 {
		retention := &history.Retention{
			Store:       repo,
			ObjectStore: objectStore,
			Config: history.RetentionConfig{
				Interval: cfg.History.RetentionInterval,
				MaxAge:   cfg.History.Retention,
			},
			Logger: logger,
		}
		go func() {
			if err := retention.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("history retention stopped", slog.Any("error", err))
			}
		}()
	}

	service, err := orchestrator.NewFromConfig(cfg, translator, recorder, logger)
	if err != nil {
		logger.Error("failed to initialize query service", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:       logger,
		Service:      service,
		History:      lister,
		Exporter:     exporter,
		AIConfigured: aiConfigured,
		Readiness: api.CombineReadinessChecks(
			readinessFor(repo),
			api.CheckObjectStoreConfig(cfg),
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      api.NewHandler(cfg, deps),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("engine", cfg.Query.Engine),
			slog.String("provider", cfg.AI.Provider),
			slog.Bool("ai_configured", aiConfigured),
			slog.Bool("history", repo != nil),
			slog.Bool("exports", exporter != nil),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

func readinessFor(repo *history.Repository) api.ReadinessCheck {
	if repo == nil {
		return nil
	}
	return api.CheckHistory(repo)
}
