package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerstack/ledgerstack/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLot(ctx context.Context, accountID, lotID int64) (Lot, error)
	Available(ctx context.Context, accountID, lotID int64) (decimal.Decimal, error)
	ListLots(ctx context.Context, accountID int64, filter ListFilter) ([]LotView, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates stock intake and lot queries. Reservation and release
// belong to the settlement engine, which drives the ledger primitives inside
// its own transaction.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Intake opens a new lot from arrived stock. The full quantity starts
// available.
func (s *Service) Intake(ctx context.Context, accountID int64, input IntakeInput) (Lot, error) {
	if input.ItemID <= 0 {
		return Lot{}, fmt.Errorf("inventory: item required")
	}
	if !input.Quantity.IsPositive() {
		return Lot{}, ErrInvalidQuantity
	}
	if input.UnitCost.IsNegative() {
		return Lot{}, ErrInvalidUnitCost
	}
	receivedAt := input.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	var created Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.ItemExists(ctx, accountID, input.ItemID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("inventory: item %d: %w", input.ItemID, shared.ErrNotFound)
		}
		if input.SupplierID != nil {
			ok, err := tx.SupplierExists(ctx, accountID, *input.SupplierID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("inventory: supplier %d: %w", *input.SupplierID, shared.ErrNotFound)
			}
		}
		created, err = tx.InsertLot(ctx, Lot{
			AccountID:    accountID,
			ItemID:       input.ItemID,
			SupplierID:   input.SupplierID,
			BatchCode:    input.BatchCode,
			Location:     input.Location,
			Quantity:     input.Quantity,
			AvailableQty: input.Quantity,
			UnitCost:     input.UnitCost,
			ReceivedAt:   receivedAt,
		})
		return err
	})
	if err != nil {
		return Lot{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "inventory:intake",
			Entity:   "inventory_lot",
			EntityID: fmt.Sprintf("%d", created.ID),
			Meta: map[string]any{
				"item_id":  input.ItemID,
				"quantity": input.Quantity.String(),
			},
		})
	}
	return created, nil
}

// AddStock tops up an existing lot when more of the same batch arrives. Both
// the total and available quantity grow by qty, under the same row lock the
// settlement engine uses.
func (s *Service) AddStock(ctx context.Context, accountID, lotID int64, qty decimal.Decimal, actorID int64) (Lot, error) {
	if !qty.IsPositive() {
		return Lot{}, ErrInvalidQuantity
	}

	var updated Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		lot, err := tx.GetLotForUpdate(ctx, accountID, lotID)
		if err != nil {
			return err
		}
		if err := tx.AddQuantity(ctx, lot.ID, qty); err != nil {
			return err
		}
		lot.Quantity = lot.Quantity.Add(qty)
		lot.AvailableQty = lot.AvailableQty.Add(qty)
		updated = lot
		return nil
	})
	if err != nil {
		return Lot{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "inventory:add_stock",
			Entity:   "inventory_lot",
			EntityID: fmt.Sprintf("%d", lotID),
			Meta:     map[string]any{"quantity": qty.String()},
		})
	}
	return updated, nil
}

// Get fetches a lot scoped to the account.
func (s *Service) Get(ctx context.Context, accountID, lotID int64) (Lot, error) {
	return s.repo.GetLot(ctx, accountID, lotID)
}

// LookupAvailable reads a lot's unreserved quantity.
func (s *Service) LookupAvailable(ctx context.Context, accountID, lotID int64) (decimal.Decimal, error) {
	return s.repo.Available(ctx, accountID, lotID)
}

// List returns lots with master-data names joined.
func (s *Service) List(ctx context.Context, accountID int64, filter ListFilter) ([]LotView, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	return s.repo.ListLots(ctx, accountID, filter)
}
