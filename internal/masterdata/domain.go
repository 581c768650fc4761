package masterdata

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ListFilters represents standard list page filters.
type ListFilters struct {
	Page   int
	Limit  int
	Search string

	// Entity specific filters
	IsActive *bool
}

// Client represents a billed customer.
type Client struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	TaxID     string    `json:"tax_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Supplier represents a stock source.
type Supplier struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"-"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Item represents a sellable good. DefaultPrice seeds the bill line price and
// can be overridden per line.
type Item struct {
	ID           int64           `json:"id"`
	AccountID    int64           `json:"-"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	DefaultPrice decimal.Decimal `json:"default_price"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Repository interface for master data operations. Every query is scoped to
// the owning account.
type Repository interface {
	ListClients(ctx context.Context, accountID int64, filters ListFilters) ([]Client, int, error)
	GetClient(ctx context.Context, accountID, id int64) (Client, error)
	CreateClient(ctx context.Context, client Client) (Client, error)
	UpdateClient(ctx context.Context, accountID, id int64, client Client) error
	DeleteClient(ctx context.Context, accountID, id int64) error

	ListSuppliers(ctx context.Context, accountID int64, filters ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, accountID, id int64) (Supplier, error)
	CreateSupplier(ctx context.Context, supplier Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, accountID, id int64, supplier Supplier) error
	DeleteSupplier(ctx context.Context, accountID, id int64) error

	ListItems(ctx context.Context, accountID int64, filters ListFilters) ([]Item, int, error)
	GetItem(ctx context.Context, accountID, id int64) (Item, error)
	CreateItem(ctx context.Context, item Item) (Item, error)
	UpdateItem(ctx context.Context, accountID, id int64, item Item) error
	DeleteItem(ctx context.Context, accountID, id int64) error
}

// Service interface for master data business logic.
type Service interface {
	ListClients(ctx context.Context, accountID int64, filters ListFilters) ([]Client, int, error)
	GetClient(ctx context.Context, accountID, id int64) (Client, error)
	CreateClient(ctx context.Context, accountID int64, client Client) (Client, error)
	UpdateClient(ctx context.Context, accountID, id int64, client Client) error
	DeleteClient(ctx context.Context, accountID, id int64) error

	ListSuppliers(ctx context.Context, accountID int64, filters ListFilters) ([]Supplier, int, error)
	GetSupplier(ctx context.Context, accountID, id int64) (Supplier, error)
	CreateSupplier(ctx context.Context, accountID int64, supplier Supplier) (Supplier, error)
	UpdateSupplier(ctx context.Context, accountID, id int64, supplier Supplier) error
	DeleteSupplier(ctx context.Context, accountID, id int64) error

	ListItems(ctx context.Context, accountID int64, filters ListFilters) ([]Item, int, error)
	GetItem(ctx context.Context, accountID, id int64) (Item, error)
	CreateItem(ctx context.Context, accountID int64, item Item) (Item, error)
	UpdateItem(ctx context.Context, accountID, id int64, item Item) error
	DeleteItem(ctx context.Context, accountID, id int64) error
}
