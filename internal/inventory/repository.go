package inventory

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerstack/ledgerstack/internal/platform/db"
)

// Repository persists inventory lots in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service.
type TxRepository interface {
	InsertLot(ctx context.Context, lot Lot) (Lot, error)
	GetLotForUpdate(ctx context.Context, accountID, lotID int64) (Lot, error)
	AddQuantity(ctx context.Context, lotID int64, qty decimal.Decimal) error
	ItemExists(ctx context.Context, accountID, itemID int64) (bool, error)
	SupplierExists(ctx context.Context, accountID, supplierID int64) (bool, error)
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a read-committed transaction; lot rows
// are locked individually with FOR UPDATE.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetLot fetches a single lot scoped to the owning account.
func (r *Repository) GetLot(ctx context.Context, accountID, lotID int64) (Lot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+lotColumns+` FROM inventory_lots WHERE id = $1 AND account_id = $2`,
		lotID, accountID)
	return scanLot(row)
}

// Available reads the unreserved quantity of a lot.
func (r *Repository) Available(ctx context.Context, accountID, lotID int64) (decimal.Decimal, error) {
	return Available(ctx, r.pool, accountID, lotID)
}

// ListLots returns lots with item and supplier names joined.
func (r *Repository) ListLots(ctx context.Context, accountID int64, filter ListFilter) ([]LotView, int, error) {
	query := `SELECT l.id, l.account_id, l.item_id, l.supplier_id, l.batch_code, l.location,
		l.quantity, l.available_qty, l.unit_cost, l.received_at, l.created_at, l.updated_at,
		i.name, COALESCE(s.name, '')
		FROM inventory_lots l
		JOIN items i ON i.id = l.item_id
		LEFT JOIN suppliers s ON s.id = l.supplier_id
		WHERE l.account_id = $1`
	args := []any{accountID}
	argCount := 1

	countQuery := `SELECT COUNT(*) FROM inventory_lots l JOIN items i ON i.id = l.item_id WHERE l.account_id = $1`
	countArgs := []any{accountID}

	if filter.ItemID > 0 {
		argCount++
		query += ` AND l.item_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.ItemID)
		countQuery += ` AND l.item_id = $2`
		countArgs = append(countArgs, filter.ItemID)
	}
	if filter.Search != "" {
		argCount++
		query += ` AND (i.name ILIKE $` + strconv.Itoa(argCount) + ` OR l.batch_code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filter.Search+"%")
		countQuery += ` AND (i.name ILIKE $` + strconv.Itoa(len(countArgs)+1) + ` OR l.batch_code ILIKE $` + strconv.Itoa(len(countArgs)+1) + `)`
		countArgs = append(countArgs, "%"+filter.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY l.received_at DESC, l.id DESC`
	if filter.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filter.Limit)
		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filter.Page - 1) * filter.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var lots []LotView
	for rows.Next() {
		var v LotView
		err := rows.Scan(&v.ID, &v.AccountID, &v.ItemID, &v.SupplierID, &v.BatchCode, &v.Location,
			&v.Quantity, &v.AvailableQty, &v.UnitCost, &v.ReceivedAt, &v.CreatedAt, &v.UpdatedAt,
			&v.ItemName, &v.SupplierName)
		if err != nil {
			return nil, 0, err
		}
		lots = append(lots, v)
	}
	return lots, total, rows.Err()
}

func (r *txRepo) InsertLot(ctx context.Context, lot Lot) (Lot, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO inventory_lots (account_id, item_id, supplier_id, batch_code, location, quantity, available_qty, unit_cost, received_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
		 RETURNING `+lotColumns,
		lot.AccountID, lot.ItemID, lot.SupplierID, lot.BatchCode, lot.Location,
		lot.Quantity, lot.AvailableQty, lot.UnitCost, lot.ReceivedAt)
	return scanLot(row)
}

func (r *txRepo) GetLotForUpdate(ctx context.Context, accountID, lotID int64) (Lot, error) {
	return LockLot(ctx, r.tx, accountID, lotID)
}

func (r *txRepo) AddQuantity(ctx context.Context, lotID int64, qty decimal.Decimal) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE inventory_lots SET quantity = quantity + $1, available_qty = available_qty + $1, updated_at = NOW() WHERE id = $2`,
		qty, lotID)
	return err
}

func (r *txRepo) ItemExists(ctx context.Context, accountID, itemID int64) (bool, error) {
	return existsQuery(ctx, r.tx, `SELECT 1 FROM items WHERE id = $1 AND account_id = $2`, itemID, accountID)
}

func (r *txRepo) SupplierExists(ctx context.Context, accountID, supplierID int64) (bool, error) {
	return existsQuery(ctx, r.tx, `SELECT 1 FROM suppliers WHERE id = $1 AND account_id = $2`, supplierID, accountID)
}

func existsQuery(ctx context.Context, q Querier, sql string, args ...any) (bool, error) {
	var one int
	err := q.QueryRow(ctx, sql, args...).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
