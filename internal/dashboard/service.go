package dashboard

import (
	"context"
	"strconv"

	"golang.org/x/sync/errgroup"
)

// Stats is the dashboard payload: settlement and stock figures for one
// account, assembled from committed rows only.
type Stats struct {
	Due      BillTotals   `json:"due"`
	Paid     BillTotals   `json:"paid"`
	Clients  int64        `json:"clients"`
	Stock    StockSummary `json:"stock"`
	LowStock []LotAlert   `json:"low_stock"`
}

const lowStockLimit = 5

// RepositoryPort abstracts the aggregate queries.
type RepositoryPort interface {
	BillTotalsByStatus(ctx context.Context, accountID int64, status string) (BillTotals, error)
	CountClients(ctx context.Context, accountID int64) (int64, error)
	StockTotals(ctx context.Context, accountID int64) (StockSummary, error)
	LowStockLots(ctx context.Context, accountID int64, limit int) ([]LotAlert, error)
}

// Service resolves dashboard stats with cache-aware lookups.
type Service struct {
	repo  RepositoryPort
	cache *Cache
}

// NewService wires the repository with a Cache helper.
func NewService(repo RepositoryPort, cache *Cache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetStats assembles the dashboard, fanning the independent aggregates out
// concurrently.
func (s *Service) GetStats(ctx context.Context, accountID int64) (Stats, error) {
	loader := func(ctx context.Context) (interface{}, error) {
		var stats Stats
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			due, err := s.repo.BillTotalsByStatus(ctx, accountID, "due")
			stats.Due = due
			return err
		})
		g.Go(func() error {
			paid, err := s.repo.BillTotalsByStatus(ctx, accountID, "paid")
			stats.Paid = paid
			return err
		})
		g.Go(func() error {
			clients, err := s.repo.CountClients(ctx, accountID)
			stats.Clients = clients
			return err
		})
		g.Go(func() error {
			stock, err := s.repo.StockTotals(ctx, accountID)
			stats.Stock = stock
			return err
		})
		g.Go(func() error {
			alerts, err := s.repo.LowStockLots(ctx, accountID, lowStockLimit)
			stats.LowStock = alerts
			return err
		})
		if err := g.Wait(); err != nil {
			return Stats{}, err
		}
		return stats, nil
	}

	key, err := s.cache.BuildKey(ctx, "dashboard", "stats", strconv.FormatInt(accountID, 10))
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	if err := s.cache.FetchJSON(ctx, key, &stats, loader); err != nil {
		return Stats{}, err
	}
	return stats, nil
}

// Invalidate bumps the cache version after settlement writes.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
