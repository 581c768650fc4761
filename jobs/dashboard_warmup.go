package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerstack/ledgerstack/internal/dashboard"
)

// DashboardWarmer precomputes per-account dashboard stats so the first
// morning request hits a warm cache.
type DashboardWarmer struct {
	pool    *pgxpool.Pool
	service *dashboard.Service
	logger  *slog.Logger
}

// NewDashboardWarmer constructs DashboardWarmer.
func NewDashboardWarmer(pool *pgxpool.Pool, service *dashboard.Service, logger *slog.Logger) *DashboardWarmer {
	return &DashboardWarmer{pool: pool, service: service, logger: logger}
}

// HandleDashboardWarmup processes TaskDashboardWarmup tasks.
func (w *DashboardWarmer) HandleDashboardWarmup(ctx context.Context, t *asynq.Task) error {
	var payload DashboardWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	rows, err := w.pool.Query(ctx, `SELECT id FROM accounts WHERE is_active`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var accountIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		accountIDs = append(accountIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	// Bump the cache version so the warmup recomputes from committed rows
	// instead of refreshing stale entries.
	if err := w.service.Invalidate(ctx); err != nil {
		w.logger.Warn("dashboard invalidate", slog.Any("error", err))
	}

	warmed := 0
	for _, id := range accountIDs {
		if _, err := w.service.GetStats(ctx, id); err != nil {
			w.logger.Warn("dashboard warmup", slog.Int64("account_id", id), slog.Any("error", err))
			continue
		}
		warmed++
	}
	w.logger.Info("dashboard warmup done", slog.Int("accounts", warmed))
	return nil
}
