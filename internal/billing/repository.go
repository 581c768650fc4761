package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerstack/ledgerstack/internal/inventory"
	"github.com/ledgerstack/ledgerstack/internal/platform/db"
	"github.com/ledgerstack/ledgerstack/internal/shared"
)

// Repository persists bills in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations the settlement engine sequences inside
// one transaction. Lot reservation and release delegate to the inventory
// ledger primitives on the same pgx.Tx, so the row locks and the bill writes
// commit or roll back together.
type TxRepository interface {
	ClientExists(ctx context.Context, accountID, clientID int64) (bool, error)
	NextBillNumber(ctx context.Context, accountID int64, billDate time.Time) (string, error)
	InsertBill(ctx context.Context, bill Bill) (int64, error)
	InsertItems(ctx context.Context, billID int64, items []BillItem) error
	InsertExtraCharges(ctx context.Context, billID int64, charges []ExtraCharge) error
	ReserveLot(ctx context.Context, accountID, lotID int64, qty decimal.Decimal) error
	ReleaseLot(ctx context.Context, accountID, lotID int64, qty decimal.Decimal) error
	GetBillForUpdate(ctx context.Context, accountID, billID int64) (Bill, error)
	ListItems(ctx context.Context, billID int64) ([]BillItem, error)
	UpdateHeader(ctx context.Context, bill Bill) error
	DeleteBillRows(ctx context.Context, billID int64) error
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

const billColumns = `b.id, b.account_id, b.client_id, b.number, b.invoice_number, b.bill_date, b.due_date,
	b.subtotal, b.tax_rate, b.tax, b.extra_total, b.total, b.status, b.notes, b.created_at, b.updated_at`

func scanBill(row pgx.Row, withClient bool) (Bill, error) {
	var b Bill
	dest := []any{&b.ID, &b.AccountID, &b.ClientID, &b.Number, &b.InvoiceNumber, &b.BillDate, &b.DueDate,
		&b.Subtotal, &b.TaxRate, &b.Tax, &b.ExtraTotal, &b.Total, &b.Status, &b.Notes, &b.CreatedAt, &b.UpdatedAt}
	if withClient {
		dest = append(dest, &b.ClientName)
	}
	if err := row.Scan(dest...); err != nil {
		return Bill{}, err
	}
	return b, nil
}

// GetBill loads the full aggregate: header, items, extra charges, client name.
func (r *Repository) GetBill(ctx context.Context, accountID, billID int64) (*Bill, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+billColumns+`, c.name FROM bills b JOIN clients c ON c.id = b.client_id
		 WHERE b.id = $1 AND b.account_id = $2`, billID, accountID)
	bill, err := scanBill(row, true)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}

	items, err := listItems(ctx, r.pool, billID)
	if err != nil {
		return nil, err
	}
	bill.Items = items

	rows, err := r.pool.Query(ctx,
		`SELECT id, bill_id, name, amount FROM bill_extra_charges WHERE bill_id = $1 ORDER BY id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c ExtraCharge
		if err := rows.Scan(&c.ID, &c.BillID, &c.Name, &c.Amount); err != nil {
			return nil, err
		}
		bill.ExtraCharges = append(bill.ExtraCharges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &bill, nil
}

// ListBills returns bill headers with the client name joined, newest first.
func (r *Repository) ListBills(ctx context.Context, accountID int64, filter ListFilter) ([]Bill, int, error) {
	query := `SELECT ` + billColumns + `, c.name FROM bills b JOIN clients c ON c.id = b.client_id WHERE b.account_id = $1`
	args := []any{accountID}
	argCount := 1

	countQuery := `SELECT COUNT(*) FROM bills b WHERE b.account_id = $1`
	countArgs := []any{accountID}

	if filter.Status != "" {
		argCount++
		query += ` AND b.status = $` + strconv.Itoa(argCount)
		args = append(args, filter.Status)
		countQuery += ` AND b.status = $` + strconv.Itoa(len(countArgs)+1)
		countArgs = append(countArgs, filter.Status)
	}
	if filter.ClientID > 0 {
		argCount++
		query += ` AND b.client_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.ClientID)
		countQuery += ` AND b.client_id = $` + strconv.Itoa(len(countArgs)+1)
		countArgs = append(countArgs, filter.ClientID)
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY b.created_at DESC, b.id DESC`
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

	var bills []Bill
	for rows.Next() {
		bill, err := scanBill(rows, true)
		if err != nil {
			return nil, 0, err
		}
		bills = append(bills, bill)
	}
	return bills, total, rows.Err()
}

func listItems(ctx context.Context, q inventory.Querier, billID int64) ([]BillItem, error) {
	rows, err := q.Query(ctx,
		`SELECT id, bill_id, lot_id, quantity, selling_price, total FROM bill_items WHERE bill_id = $1 ORDER BY id`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []BillItem
	for rows.Next() {
		var it BillItem
		if err := rows.Scan(&it.ID, &it.BillID, &it.LotID, &it.Quantity, &it.SellingPrice, &it.Total); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *txRepo) ClientExists(ctx context.Context, accountID, clientID int64) (bool, error) {
	var one int
	err := r.tx.QueryRow(ctx, `SELECT 1 FROM clients WHERE id = $1 AND account_id = $2`, clientID, accountID).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// NextBillNumber allocates the next human-readable number for the account's
// year from a per-account counter row. The counter only moves forward, so
// numbers freed by deletion are never reissued, and the upsert's row lock
// serialises concurrent creates within the settlement transaction.
func (r *txRepo) NextBillNumber(ctx context.Context, accountID int64, billDate time.Time) (string, error) {
	var seq int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO bill_counters (account_id, year, seq) VALUES ($1, $2, 1)
		 ON CONFLICT (account_id, year) DO UPDATE SET seq = bill_counters.seq + 1
		 RETURNING seq`,
		accountID, billDate.Year()).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("BILL-%d-%04d", billDate.Year(), seq), nil
}

func (r *txRepo) InsertBill(ctx context.Context, bill Bill) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO bills (account_id, client_id, number, invoice_number, bill_date, due_date,
			subtotal, tax_rate, tax, extra_total, total, status, notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		 RETURNING id`,
		bill.AccountID, bill.ClientID, bill.Number, bill.InvoiceNumber, bill.BillDate, bill.DueDate,
		bill.Subtotal, bill.TaxRate, bill.Tax, bill.ExtraTotal, bill.Total, bill.Status, bill.Notes).Scan(&id)
	return id, err
}

func (r *txRepo) InsertItems(ctx context.Context, billID int64, items []BillItem) error {
	for _, it := range items {
		_, err := r.tx.Exec(ctx,
			`INSERT INTO bill_items (bill_id, lot_id, quantity, selling_price, total) VALUES ($1, $2, $3, $4, $5)`,
			billID, it.LotID, it.Quantity, it.SellingPrice, it.Total)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) InsertExtraCharges(ctx context.Context, billID int64, charges []ExtraCharge) error {
	for _, c := range charges {
		_, err := r.tx.Exec(ctx,
			`INSERT INTO bill_extra_charges (bill_id, name, amount) VALUES ($1, $2, $3)`,
			billID, c.Name, c.Amount)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepo) ReserveLot(ctx context.Context, accountID, lotID int64, qty decimal.Decimal) error {
	return inventory.Reserve(ctx, r.tx, accountID, lotID, qty)
}

func (r *txRepo) ReleaseLot(ctx context.Context, accountID, lotID int64, qty decimal.Decimal) error {
	return inventory.Release(ctx, r.tx, accountID, lotID, qty)
}

func (r *txRepo) GetBillForUpdate(ctx context.Context, accountID, billID int64) (Bill, error) {
	row := r.tx.QueryRow(ctx,
		`SELECT `+billColumns+` FROM bills b WHERE b.id = $1 AND b.account_id = $2 FOR UPDATE`,
		billID, accountID)
	bill, err := scanBill(row, false)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Bill{}, shared.ErrNotFound
		}
		return Bill{}, err
	}
	return bill, nil
}

func (r *txRepo) ListItems(ctx context.Context, billID int64) ([]BillItem, error) {
	return listItems(ctx, r.tx, billID)
}

func (r *txRepo) UpdateHeader(ctx context.Context, bill Bill) error {
	_, err := r.tx.Exec(ctx,
		`UPDATE bills SET client_id = $1, invoice_number = $2, bill_date = $3, due_date = $4,
			tax_rate = $5, tax = $6, total = $7, status = $8, notes = $9, updated_at = NOW()
		 WHERE id = $10`,
		bill.ClientID, bill.InvoiceNumber, bill.BillDate, bill.DueDate,
		bill.TaxRate, bill.Tax, bill.Total, bill.Status, bill.Notes, bill.ID)
	return err
}

// DeleteBillRows removes children first, then the header. Runs after all
// releases succeeded inside the same transaction.
func (r *txRepo) DeleteBillRows(ctx context.Context, billID int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM bill_items WHERE bill_id = $1`, billID); err != nil {
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM bill_extra_charges WHERE bill_id = $1`, billID); err != nil {
		return err
	}
	_, err := r.tx.Exec(ctx, `DELETE FROM bills WHERE id = $1`, billID)
	return err
}
