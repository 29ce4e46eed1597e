package history

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tabsql/tabsql/internal/storage"
)

var retentionDeletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "tabsql_history_retention_deleted_total",
		Help: "Total number of history rows and exports removed by retention runs.",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(retentionDeletedTotal)
}

type RetentionStore interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	ListExportsOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]Export, error)
	DeleteExport(ctx context.Context, id uuid.UUID) error
}

type RetentionConfig struct {
	Interval  time.Duration
	MaxAge    time.Duration
	BatchSize int
}

// Retention periodically removes history rows and exported result objects
// older than MaxAge. ObjectStore may be nil when exports are disabled.
type Retention struct {
	Store       RetentionStore
	ObjectStore storage.ObjectStore
	Config      RetentionConfig
	Logger      *slog.Logger
	Clock       func() time.Time
}

type RetentionSummary struct {
	RecordsDeleted int64 `json:"records_deleted"`
	ExportsDeleted int   `json:"exports_deleted"`
	Failures       int   `json:"failures"`
}

func (r *Retention) Run(ctx context.Context) error {
	r.ensureDefaults()

	ticker := time.NewTicker(r.Config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			summary, err := r.RunOnce(ctx)
			if err != nil {
				if r.Logger != nil {
					r.Logger.ErrorContext(ctx, "history retention cycle failed", slog.Any("error", err), slog.Any("summary", summary))
				}
				continue
			}
			if r.Logger != nil {
				r.Logger.InfoContext(ctx, "history retention cycle completed", slog.Any("summary", summary))
			}
		}
	}
}

func (r *Retention) RunOnce(ctx context.Context) (RetentionSummary, error) {
	r.ensureDefaults()
	if r.Store == nil {
		return RetentionSummary{}, fmt.Errorf("history store is required")
	}

	cutoff := r.Clock().Add(-r.Config.MaxAge)
	summary := RetentionSummary{}
	failures := make([]string, 0)

	if r.ObjectStore != nil {
		exports, err := r.Store.ListExportsOlderThan(ctx, cutoff, r.Config.BatchSize)
		if err != nil {
			summary.Failures++
			failures = append(failures, fmt.Sprintf("list expired exports: %v", err))
		}
		for _, export := range exports {
			if err := r.ObjectStore.Delete(ctx, export.ObjectKey); err != nil {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("delete object %s: %v", export.ObjectKey, err))
				continue
			}
			if err := r.Store.DeleteExport(ctx, export.ID); err != nil {
				summary.Failures++
				failures = append(failures, fmt.Sprintf("delete export %s: %v", export.ID, err))
				continue
			}
			summary.ExportsDeleted++
		}
	}

	deleted, err := r.Store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		summary.Failures++
		failures = append(failures, fmt.Sprintf("delete history: %v", err))
	}
	summary.RecordsDeleted = deleted

	if summary.RecordsDeleted > 0 {
		retentionDeletedTotal.WithLabelValues("history").Add(float64(summary.RecordsDeleted))
	}
	if summary.ExportsDeleted > 0 {
		retentionDeletedTotal.WithLabelValues("export").Add(float64(summary.ExportsDeleted))
	}
	if len(failures) > 0 {
		return summary, fmt.Errorf("retention encountered %d failure(s): %s", len(failures), strings.Join(failures, "; "))
	}
	return summary, nil
}

func (r *Retention) ensureDefaults() {
	if r.Clock == nil {
		r.Clock = time.Now
	}
	if r.Config.Interval <= 0 {
		r.Config.Interval = 10 * time.Minute
	}
	if r.Config.MaxAge <= 0 {
		r.Config.MaxAge = 30 * 24 * time.Hour
	}
	if r.Config.BatchSize <= 0 {
		r.Config.BatchSize = 200
	}
}
