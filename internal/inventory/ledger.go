package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx.
// The ledger primitives run against a Querier so the settlement engine can
// execute them inside its own transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const lotColumns = `id, account_id, item_id, supplier_id, batch_code, location, quantity, available_qty, unit_cost, received_at, created_at, updated_at`

func scanLot(row pgx.Row) (Lot, error) {
	var l Lot
	err := row.Scan(&l.ID, &l.AccountID, &l.ItemID, &l.SupplierID, &l.BatchCode, &l.Location,
		&l.Quantity, &l.AvailableQty, &l.UnitCost, &l.ReceivedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lot{}, ErrLotNotFound
		}
		return Lot{}, err
	}
	return l, nil
}

// LockLot loads a lot row under FOR UPDATE, serialising concurrent
// reservations against the same lot.
func LockLot(ctx context.Context, q Querier, accountID, lotID int64) (Lot, error) {
	row := q.QueryRow(ctx,
		`SELECT `+lotColumns+` FROM inventory_lots WHERE id = $1 AND account_id = $2 FOR UPDATE`,
		lotID, accountID)
	return scanLot(row)
}

// Reserve decrements a lot's available quantity by qty. The caller decides
// the transaction boundary; the row lock taken here holds until that
// transaction ends. Fails with *InsufficientStockError when qty exceeds the
// available quantity at the instant of checking.
func Reserve(ctx context.Context, q Querier, accountID, lotID int64, qty decimal.Decimal) error {
	lot, err := LockLot(ctx, q, accountID, lotID)
	if err != nil {
		return err
	}
	if qty.GreaterThan(lot.AvailableQty) {
		return &InsufficientStockError{LotID: lotID, Requested: qty, Available: lot.AvailableQty}
	}
	_, err = q.Exec(ctx,
		`UPDATE inventory_lots SET available_qty = available_qty - $1, updated_at = NOW() WHERE id = $2`,
		qty, lotID)
	return err
}

// Release returns qty to a lot's available quantity, clamped so the result
// never exceeds the lot's total quantity. Fails with ErrLotNotFound when the
// lot has vanished since the original reservation.
func Release(ctx context.Context, q Querier, accountID, lotID int64, qty decimal.Decimal) error {
	tag, err := q.Exec(ctx,
		`UPDATE inventory_lots SET available_qty = LEAST(quantity, available_qty + $1), updated_at = NOW() WHERE id = $2 AND account_id = $3`,
		qty, lotID, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLotNotFound
	}
	return nil
}

// Available reads a lot's unreserved quantity without locking.
func Available(ctx context.Context, q Querier, accountID, lotID int64) (decimal.Decimal, error) {
	var avail decimal.Decimal
	err := q.QueryRow(ctx,
		`SELECT available_qty FROM inventory_lots WHERE id = $1 AND account_id = $2`,
		lotID, accountID).Scan(&avail)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Decimal{}, ErrLotNotFound
		}
		return decimal.Decimal{}, err
	}
	return avail, nil
}
