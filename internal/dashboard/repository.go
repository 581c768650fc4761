package dashboard

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// BillTotals aggregates bill counts and amounts for one status.
type BillTotals struct {
	Count  int64           `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// StockSummary aggregates inventory figures.
type StockSummary struct {
	Lots      int64           `json:"lots"`
	OnHand    decimal.Decimal `json:"on_hand"`
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
}

// LotAlert flags a lot running low on available stock.
type LotAlert struct {
	LotID     int64           `json:"lot_id"`
	ItemName  string          `json:"item_name"`
	Quantity  decimal.Decimal `json:"quantity"`
	Available decimal.Decimal `json:"available"`
}

// Repository runs the aggregate queries behind the dashboard.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// BillTotalsByStatus sums bills of one status for the account.
func (r *Repository) BillTotalsByStatus(ctx context.Context, accountID int64, status string) (BillTotals, error) {
	var t BillTotals
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total), 0) FROM bills WHERE account_id = $1 AND status = $2`,
		accountID, status).Scan(&t.Count, &t.Amount)
	return t, err
}

// CountClients returns the account's client count.
func (r *Repository) CountClients(ctx context.Context, accountID int64) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM clients WHERE account_id = $1`, accountID).Scan(&n)
	return n, err
}

// StockTotals sums lot quantities for the account. Reserved is derived as
// quantity minus available.
func (r *Repository) StockTotals(ctx context.Context, accountID int64) (StockSummary, error) {
	var s StockSummary
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(quantity), 0), COALESCE(SUM(available_qty), 0)
		 FROM inventory_lots WHERE account_id = $1`,
		accountID).Scan(&s.Lots, &s.OnHand, &s.Available)
	if err != nil {
		return StockSummary{}, err
	}
	s.Reserved = s.OnHand.Sub(s.Available)
	return s, nil
}

// LowStockLots lists lots whose available quantity fell to a fifth of the lot
// size or less, emptiest first.
func (r *Repository) LowStockLots(ctx context.Context, accountID int64, limit int) ([]LotAlert, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.id, i.name, l.quantity, l.available_qty
		 FROM inventory_lots l
		 JOIN items i ON i.id = l.item_id
		 WHERE l.account_id = $1 AND l.available_qty * 5 <= l.quantity
		 ORDER BY l.available_qty ASC, l.id ASC
		 LIMIT $2`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []LotAlert
	for rows.Next() {
		var a LotAlert
		if err := rows.Scan(&a.LotID, &a.ItemName, &a.Quantity, &a.Available); err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}
