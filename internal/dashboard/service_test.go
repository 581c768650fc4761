package dashboard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	calls atomic.Int64
}

func (r *fakeRepo) BillTotalsByStatus(ctx context.Context, accountID int64, status string) (BillTotals, error) {
	r.calls.Add(1)
	if status == "paid" {
		return BillTotals{Count: 2, Amount: decimal.RequireFromString("150.00")}, nil
	}
	return BillTotals{Count: 1, Amount: decimal.RequireFromString("31.05")}, nil
}

func (r *fakeRepo) CountClients(ctx context.Context, accountID int64) (int64, error) {
	r.calls.Add(1)
	return 4, nil
}

func (r *fakeRepo) StockTotals(ctx context.Context, accountID int64) (StockSummary, error) {
	r.calls.Add(1)
	return StockSummary{
		Lots:      3,
		OnHand:    decimal.RequireFromString("100"),
		Available: decimal.RequireFromString("80"),
		Reserved:  decimal.RequireFromString("20"),
	}, nil
}

func (r *fakeRepo) LowStockLots(ctx context.Context, accountID int64, limit int) ([]LotAlert, error) {
	r.calls.Add(1)
	return []LotAlert{{
		LotID:     9,
		ItemName:  "Bread Flour 25kg",
		Quantity:  decimal.RequireFromString("40"),
		Available: decimal.RequireFromString("4"),
	}}, nil
}

func testCache(t *testing.T) *Cache {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestGetStats(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, testCache(t))
	ctx := context.Background()

	stats, err := svc.GetStats(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Due.Count)
	require.Equal(t, "31.05", stats.Due.Amount.StringFixed(2))
	require.EqualValues(t, 2, stats.Paid.Count)
	require.EqualValues(t, 4, stats.Clients)
	require.Equal(t, "20", stats.Stock.Reserved.String())
	require.Len(t, stats.LowStock, 1)
	require.Equal(t, "Bread Flour 25kg", stats.LowStock[0].ItemName)
	require.EqualValues(t, 5, repo.calls.Load())

	// Second read is served from cache.
	again, err := svc.GetStats(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, stats, again)
	require.EqualValues(t, 5, repo.calls.Load())

	// Invalidation forces a reload.
	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.GetStats(ctx, 1)
	require.NoError(t, err)
	require.EqualValues(t, 10, repo.calls.Load())
}

func TestGetStatsWithoutRedis(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(repo, nil)

	stats, err := svc.GetStats(context.Background(), 1)
	require.NoError(t, err)
	require.EqualValues(t, 4, stats.Clients)
}
