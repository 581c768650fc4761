package masterdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/ledgerstack/ledgerstack/internal/platform/httpx"
)

// service implements Service interface
type service struct {
	repo Repository
}

// NewService creates a new master data service
func NewService(repo Repository) Service {
	return &service{repo: repo}
}

// Client operations
func (s *service) ListClients(ctx context.Context, accountID int64, filters ListFilters) ([]Client, int, error) {
	return s.repo.ListClients(ctx, accountID, normalize(filters))
}

func (s *service) GetClient(ctx context.Context, accountID, id int64) (Client, error) {
	if id <= 0 {
		return Client{}, fmt.Errorf("invalid client id: %w", httpx.ErrValidation)
	}
	return s.repo.GetClient(ctx, accountID, id)
}

func (s *service) CreateClient(ctx context.Context, accountID int64, client Client) (Client, error) {
	if err := validateClient(&client); err != nil {
		return Client{}, err
	}
	client.AccountID = accountID
	return s.repo.CreateClient(ctx, client)
}

func (s *service) UpdateClient(ctx context.Context, accountID, id int64, client Client) error {
	if id <= 0 {
		return fmt.Errorf("invalid client id: %w", httpx.ErrValidation)
	}
	if err := validateClient(&client); err != nil {
		return err
	}
	return s.repo.UpdateClient(ctx, accountID, id, client)
}

func (s *service) DeleteClient(ctx context.Context, accountID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid client id: %w", httpx.ErrValidation)
	}
	return s.repo.DeleteClient(ctx, accountID, id)
}

// Supplier operations
func (s *service) ListSuppliers(ctx context.Context, accountID int64, filters ListFilters) ([]Supplier, int, error) {
	return s.repo.ListSuppliers(ctx, accountID, normalize(filters))
}

func (s *service) GetSupplier(ctx context.Context, accountID, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, fmt.Errorf("invalid supplier id: %w", httpx.ErrValidation)
	}
	return s.repo.GetSupplier(ctx, accountID, id)
}

func (s *service) CreateSupplier(ctx context.Context, accountID int64, supplier Supplier) (Supplier, error) {
	if err := validateSupplier(&supplier); err != nil {
		return Supplier{}, err
	}
	supplier.AccountID = accountID
	return s.repo.CreateSupplier(ctx, supplier)
}

func (s *service) UpdateSupplier(ctx context.Context, accountID, id int64, supplier Supplier) error {
	if id <= 0 {
		return fmt.Errorf("invalid supplier id: %w", httpx.ErrValidation)
	}
	if err := validateSupplier(&supplier); err != nil {
		return err
	}
	return s.repo.UpdateSupplier(ctx, accountID, id, supplier)
}

func (s *service) DeleteSupplier(ctx context.Context, accountID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid supplier id: %w", httpx.ErrValidation)
	}
	return s.repo.DeleteSupplier(ctx, accountID, id)
}

// Item operations
func (s *service) ListItems(ctx context.Context, accountID int64, filters ListFilters) ([]Item, int, error) {
	return s.repo.ListItems(ctx, accountID, normalize(filters))
}

func (s *service) GetItem(ctx context.Context, accountID, id int64) (Item, error) {
	if id <= 0 {
		return Item{}, fmt.Errorf("invalid item id: %w", httpx.ErrValidation)
	}
	return s.repo.GetItem(ctx, accountID, id)
}

func (s *service) CreateItem(ctx context.Context, accountID int64, item Item) (Item, error) {
	if err := validateItem(&item); err != nil {
		return Item{}, err
	}
	item.AccountID = accountID
	return s.repo.CreateItem(ctx, item)
}

func (s *service) UpdateItem(ctx context.Context, accountID, id int64, item Item) error {
	if id <= 0 {
		return fmt.Errorf("invalid item id: %w", httpx.ErrValidation)
	}
	if err := validateItem(&item); err != nil {
		return err
	}
	return s.repo.UpdateItem(ctx, accountID, id, item)
}

func (s *service) DeleteItem(ctx context.Context, accountID, id int64) error {
	if id <= 0 {
		return fmt.Errorf("invalid item id: %w", httpx.ErrValidation)
	}
	return s.repo.DeleteItem(ctx, accountID, id)
}

func normalize(filters ListFilters) ListFilters {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}
	if filters.Page <= 0 {
		filters.Page = 1
	}
	filters.Search = strings.TrimSpace(filters.Search)
	return filters
}

func validateClient(c *Client) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("client name is required: %w", httpx.ErrValidation)
	}
	if len(c.Name) > 200 {
		return fmt.Errorf("client name too long: %w", httpx.ErrValidation)
	}
	return nil
}

func validateSupplier(s *Supplier) error {
	s.Name = strings.TrimSpace(s.Name)
	if s.Name == "" {
		return fmt.Errorf("supplier name is required: %w", httpx.ErrValidation)
	}
	if len(s.Name) > 200 {
		return fmt.Errorf("supplier name too long: %w", httpx.ErrValidation)
	}
	return nil
}

func validateItem(it *Item) error {
	it.Name = strings.TrimSpace(it.Name)
	it.SKU = strings.TrimSpace(it.SKU)
	if it.Name == "" {
		return fmt.Errorf("item name is required: %w", httpx.ErrValidation)
	}
	if len(it.Name) > 200 {
		return fmt.Errorf("item name too long: %w", httpx.ErrValidation)
	}
	if it.DefaultPrice.IsNegative() {
		return fmt.Errorf("item default price must be >= 0: %w", httpx.ErrValidation)
	}
	return nil
}
