package masterdata

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerstack/ledgerstack/internal/platform/httpx"
	"github.com/ledgerstack/ledgerstack/internal/shared"
)

// repo implements Repository interface
type repo struct {
	db *pgxpool.Pool
}

// NewRepository creates a new master data repository
func NewRepository(db *pgxpool.Pool) Repository {
	return &repo{db: db}
}

func mapRowErr(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return shared.ErrNotFound
	}
	return err
}

func mapWriteErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return httpx.ErrDuplicate
	}
	return err
}

// Client operations
func (r *repo) ListClients(ctx context.Context, accountID int64, filters ListFilters) ([]Client, int, error) {
	query := `SELECT id, account_id, name, email, phone, address, tax_id, created_at, updated_at
		FROM clients WHERE account_id = $1`
	countQuery := `SELECT COUNT(*) FROM clients WHERE account_id = $1`
	args := []any{accountID}
	countArgs := []any{accountID}

	if filters.Search != "" {
		query += ` AND (name ILIKE $2 OR email ILIKE $2)`
		countQuery += ` AND (name ILIKE $2 OR email ILIKE $2)`
		args = append(args, "%"+filters.Search+"%")
		countArgs = append(countArgs, "%"+filters.Search+"%")
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name`
	query, args = paginate(query, args, filters)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		var c Client
		err := rows.Scan(&c.ID, &c.AccountID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.TaxID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		clients = append(clients, c)
	}
	return clients, total, rows.Err()
}

func (r *repo) GetClient(ctx context.Context, accountID, id int64) (Client, error) {
	query := `SELECT id, account_id, name, email, phone, address, tax_id, created_at, updated_at
		FROM clients WHERE id = $1 AND account_id = $2`
	var c Client
	err := r.db.QueryRow(ctx, query, id, accountID).Scan(
		&c.ID, &c.AccountID, &c.Name, &c.Email, &c.Phone, &c.Address, &c.TaxID, &c.CreatedAt, &c.UpdatedAt)
	return c, mapRowErr(err)
}

func (r *repo) CreateClient(ctx context.Context, client Client) (Client, error) {
	query := `INSERT INTO clients (account_id, name, email, phone, address, tax_id, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, client.AccountID, client.Name, client.Email, client.Phone, client.Address, client.TaxID, now).Scan(&client.ID)
	if err != nil {
		return Client{}, mapWriteErr(err)
	}
	client.CreatedAt = now
	client.UpdatedAt = now
	return client, nil
}

func (r *repo) UpdateClient(ctx context.Context, accountID, id int64, client Client) error {
	query := `UPDATE clients SET name = $1, email = $2, phone = $3, address = $4, tax_id = $5, updated_at = $6
		WHERE id = $7 AND account_id = $8`
	tag, err := r.db.Exec(ctx, query, client.Name, client.Email, client.Phone, client.Address, client.TaxID, time.Now(), id, accountID)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteClient(ctx context.Context, accountID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM clients WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Supplier operations
func (r *repo) ListSuppliers(ctx context.Context, accountID int64, filters ListFilters) ([]Supplier, int, error) {
	query := `SELECT id, account_id, name, email, phone, address, is_active, created_at, updated_at
		FROM suppliers WHERE account_id = $1`
	countQuery := `SELECT COUNT(*) FROM suppliers WHERE account_id = $1`
	args := []any{accountID}
	countArgs := []any{accountID}

	if filters.Search != "" {
		query += ` AND name ILIKE $` + strconv.Itoa(len(args)+1)
		args = append(args, "%"+filters.Search+"%")
		countQuery += ` AND name ILIKE $` + strconv.Itoa(len(countArgs)+1)
		countArgs = append(countArgs, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		query += ` AND is_active = $` + strconv.Itoa(len(args)+1)
		args = append(args, *filters.IsActive)
		countQuery += ` AND is_active = $` + strconv.Itoa(len(countArgs)+1)
		countArgs = append(countArgs, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name`
	query, args = paginate(query, args, filters)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var suppliers []Supplier
	for rows.Next() {
		var s Supplier
		err := rows.Scan(&s.ID, &s.AccountID, &s.Name, &s.Email, &s.Phone, &s.Address, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		suppliers = append(suppliers, s)
	}
	return suppliers, total, rows.Err()
}

func (r *repo) GetSupplier(ctx context.Context, accountID, id int64) (Supplier, error) {
	query := `SELECT id, account_id, name, email, phone, address, is_active, created_at, updated_at
		FROM suppliers WHERE id = $1 AND account_id = $2`
	var s Supplier
	err := r.db.QueryRow(ctx, query, id, accountID).Scan(
		&s.ID, &s.AccountID, &s.Name, &s.Email, &s.Phone, &s.Address, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
	return s, mapRowErr(err)
}

func (r *repo) CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error) {
	query := `INSERT INTO suppliers (account_id, name, email, phone, address, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, supplier.AccountID, supplier.Name, supplier.Email, supplier.Phone, supplier.Address, supplier.IsActive, now).Scan(&supplier.ID)
	if err != nil {
		return Supplier{}, mapWriteErr(err)
	}
	supplier.CreatedAt = now
	supplier.UpdatedAt = now
	return supplier, nil
}

func (r *repo) UpdateSupplier(ctx context.Context, accountID, id int64, supplier Supplier) error {
	query := `UPDATE suppliers SET name = $1, email = $2, phone = $3, address = $4, is_active = $5, updated_at = $6
		WHERE id = $7 AND account_id = $8`
	tag, err := r.db.Exec(ctx, query, supplier.Name, supplier.Email, supplier.Phone, supplier.Address, supplier.IsActive, time.Now(), id, accountID)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteSupplier(ctx context.Context, accountID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM suppliers WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Item operations
func (r *repo) ListItems(ctx context.Context, accountID int64, filters ListFilters) ([]Item, int, error) {
	query := `SELECT id, account_id, sku, name, unit, default_price, is_active, created_at, updated_at
		FROM items WHERE account_id = $1`
	countQuery := `SELECT COUNT(*) FROM items WHERE account_id = $1`
	args := []any{accountID}
	countArgs := []any{accountID}

	if filters.Search != "" {
		query += ` AND (name ILIKE $` + strconv.Itoa(len(args)+1) + ` OR sku ILIKE $` + strconv.Itoa(len(args)+1) + `)`
		args = append(args, "%"+filters.Search+"%")
		countQuery += ` AND (name ILIKE $` + strconv.Itoa(len(countArgs)+1) + ` OR sku ILIKE $` + strconv.Itoa(len(countArgs)+1) + `)`
		countArgs = append(countArgs, "%"+filters.Search+"%")
	}
	if filters.IsActive != nil {
		query += ` AND is_active = $` + strconv.Itoa(len(args)+1)
		args = append(args, *filters.IsActive)
		countQuery += ` AND is_active = $` + strconv.Itoa(len(countArgs)+1)
		countArgs = append(countArgs, *filters.IsActive)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += ` ORDER BY name`
	query, args = paginate(query, args, filters)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		err := rows.Scan(&it.ID, &it.AccountID, &it.SKU, &it.Name, &it.Unit, &it.DefaultPrice, &it.IsActive, &it.CreatedAt, &it.UpdatedAt)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func (r *repo) GetItem(ctx context.Context, accountID, id int64) (Item, error) {
	query := `SELECT id, account_id, sku, name, unit, default_price, is_active, created_at, updated_at
		FROM items WHERE id = $1 AND account_id = $2`
	var it Item
	err := r.db.QueryRow(ctx, query, id, accountID).Scan(
		&it.ID, &it.AccountID, &it.SKU, &it.Name, &it.Unit, &it.DefaultPrice, &it.IsActive, &it.CreatedAt, &it.UpdatedAt)
	return it, mapRowErr(err)
}

func (r *repo) CreateItem(ctx context.Context, item Item) (Item, error) {
	query := `INSERT INTO items (account_id, sku, name, unit, default_price, is_active, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $7) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query, item.AccountID, item.SKU, item.Name, item.Unit, item.DefaultPrice, item.IsActive, now).Scan(&item.ID)
	if err != nil {
		return Item{}, mapWriteErr(err)
	}
	item.CreatedAt = now
	item.UpdatedAt = now
	return item, nil
}

func (r *repo) UpdateItem(ctx context.Context, accountID, id int64, item Item) error {
	query := `UPDATE items SET sku = $1, name = $2, unit = $3, default_price = $4, is_active = $5, updated_at = $6
		WHERE id = $7 AND account_id = $8`
	tag, err := r.db.Exec(ctx, query, item.SKU, item.Name, item.Unit, item.DefaultPrice, item.IsActive, time.Now(), id, accountID)
	if err != nil {
		return mapWriteErr(err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repo) DeleteItem(ctx context.Context, accountID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM items WHERE id = $1 AND account_id = $2`, id, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func paginate(query string, args []any, filters ListFilters) (string, []any) {
	if filters.Limit <= 0 {
		return query, args
	}
	query += ` LIMIT $` + strconv.Itoa(len(args)+1)
	args = append(args, filters.Limit)
	offset := (filters.Page - 1) * filters.Limit
	if offset < 0 {
		offset = 0
	}
	query += ` OFFSET $` + strconv.Itoa(len(args)+1)
	args = append(args, offset)
	return query, args
}
