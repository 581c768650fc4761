package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/ledgerstack/ledgerstack/internal/inventory"
	"github.com/ledgerstack/ledgerstack/internal/money"
	"github.com/ledgerstack/ledgerstack/internal/shared"
)

var hundred = decimal.NewFromInt(100)

// RepositoryPort abstracts repository usage for the settlement engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetBill(ctx context.Context, accountID, billID int64) (*Bill, error)
	ListBills(ctx context.Context, accountID int64, filter ListFilter) ([]Bill, int, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// SettlementObserver counts the outcome of each settlement transaction.
type SettlementObserver interface {
	ObserveSettlement(op string, err error)
}

// StatsInvalidator drops cached read projections after a settlement write.
type StatsInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Service is the settlement engine. Each verb runs as one transaction: no
// lot is decremented and no bill row written unless the whole operation
// commits. Rollback is the only failure path; there are no compensating
// writes.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	observer    SettlementObserver
	stats       StatsInvalidator
}

// NewService builds Service. observer and stats are optional.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore, observer SettlementObserver, stats StatsInvalidator) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem, observer: observer, stats: stats}
}

// Create validates the cart, reserves stock from every referenced lot, and
// persists the aggregate as one unit. Lines are processed in request order;
// the first line with insufficient stock aborts the whole operation.
// idemKey is optional; when supplied, replays are rejected.
func (s *Service) Create(ctx context.Context, accountID int64, req CreateBillRequest, idemKey string) (*Bill, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	status := req.Status
	if status == "" {
		status = BillStatusDue
	}

	// Each currency field rounds once, at persistence; the derived sums are
	// built from the rounded line values so the stored aggregate stays
	// internally consistent.
	subtotal := decimal.Zero
	items := make([]BillItem, 0, len(req.Items))
	for _, line := range req.Items {
		lineTotal := money.Round2(money.LineTotal(line.Quantity, line.SellingPrice))
		subtotal = subtotal.Add(lineTotal)
		items = append(items, BillItem{
			LotID:        line.LotID,
			Quantity:     line.Quantity,
			SellingPrice: line.SellingPrice,
			Total:        lineTotal,
		})
	}

	extraTotal := decimal.Zero
	charges := make([]ExtraCharge, 0, len(req.ExtraCharges))
	for _, c := range req.ExtraCharges {
		amount := money.Round2(c.Amount)
		extraTotal = extraTotal.Add(amount)
		charges = append(charges, ExtraCharge{Name: c.Name, Amount: amount})
	}

	tax := money.Tax(subtotal, req.TaxRate)
	total := subtotal.Add(tax).Add(extraTotal)

	insertedKey := false
	if s.idempotency != nil && idemKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, idemKey, "billing"); err != nil {
			return nil, err
		}
		insertedKey = true
	}

	var billID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		ok, err := tx.ClientExists(ctx, accountID, req.ClientID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("billing: client %d: %w", req.ClientID, shared.ErrNotFound)
		}

		// Reserve in request order so the first offending line is the one
		// reported. A failure here rolls back the earlier decrements.
		for i, it := range items {
			if err := tx.ReserveLot(ctx, accountID, it.LotID, it.Quantity); err != nil {
				if errors.Is(err, inventory.ErrLotNotFound) {
					return fmt.Errorf("billing: items[%d] lot %d: %w", i, it.LotID, shared.ErrNotFound)
				}
				return err
			}
		}

		number, err := tx.NextBillNumber(ctx, accountID, req.BillDate)
		if err != nil {
			return err
		}

		billID, err = tx.InsertBill(ctx, Bill{
			AccountID:     accountID,
			ClientID:      req.ClientID,
			Number:        number,
			InvoiceNumber: req.InvoiceNumber,
			BillDate:      req.BillDate,
			DueDate:       req.DueDate,
			Subtotal:      subtotal,
			TaxRate:       req.TaxRate,
			Tax:           tax,
			ExtraTotal:    extraTotal,
			Total:         total,
			Status:        status,
			Notes:         req.Notes,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertItems(ctx, billID, items); err != nil {
			return err
		}
		return tx.InsertExtraCharges(ctx, billID, charges)
	})
	s.observe("create", err)
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, idemKey)
		}
		return nil, err
	}

	s.invalidate(ctx)
	s.record(ctx, accountID, "billing:create", billID, map[string]any{
		"client_id": req.ClientID,
		"total":     total.String(),
		"lines":     len(items),
	})
	return s.repo.GetBill(ctx, accountID, billID)
}

// Get loads the full aggregate.
func (s *Service) Get(ctx context.Context, accountID, billID int64) (*Bill, error) {
	return s.repo.GetBill(ctx, accountID, billID)
}

// List returns bill headers with client names, newest first.
func (s *Service) List(ctx context.Context, accountID int64, filter ListFilter) ([]Bill, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	return s.repo.ListBills(ctx, accountID, filter)
}

// UpdateHeader applies header-only partial updates. Tax and total are
// recomputed only when the rate changes; items and reservations are never
// touched here.
func (s *Service) UpdateHeader(ctx context.Context, accountID, billID int64, req UpdateBillHeaderRequest) (*Bill, error) {
	if req.TaxRate != nil {
		if req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(hundred) {
			return nil, &ValidationError{Field: "tax_rate", Reason: "must be within [0, 100]"}
		}
	}
	if req.Status != nil && !req.Status.Valid() {
		return nil, ErrInvalidStatus
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBillForUpdate(ctx, accountID, billID)
		if err != nil {
			return err
		}
		if req.ClientID != nil && *req.ClientID != bill.ClientID {
			ok, err := tx.ClientExists(ctx, accountID, *req.ClientID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("billing: client %d: %w", *req.ClientID, shared.ErrNotFound)
			}
			bill.ClientID = *req.ClientID
		}
		if req.BillDate != nil {
			bill.BillDate = *req.BillDate
		}
		if req.DueDate != nil {
			bill.DueDate = req.DueDate
		}
		if req.InvoiceNumber != nil {
			bill.InvoiceNumber = *req.InvoiceNumber
		}
		if req.Notes != nil {
			bill.Notes = *req.Notes
		}
		if req.Status != nil {
			bill.Status = *req.Status
		}
		if req.TaxRate != nil && !req.TaxRate.Equal(bill.TaxRate) {
			bill.TaxRate = *req.TaxRate
			bill.Tax = money.Tax(bill.Subtotal, bill.TaxRate)
			bill.Total = bill.Subtotal.Add(bill.Tax).Add(bill.ExtraTotal)
		}
		return tx.UpdateHeader(ctx, bill)
	})
	s.observe("update_header", err)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.record(ctx, accountID, "billing:update_header", billID, nil)
	return s.repo.GetBill(ctx, accountID, billID)
}

// UpdateStatus flips a bill between due and paid. Reservation is unaffected.
func (s *Service) UpdateStatus(ctx context.Context, accountID, billID int64, status BillStatus) (*Bill, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBillForUpdate(ctx, accountID, billID)
		if err != nil {
			return err
		}
		if bill.Status == status {
			return nil
		}
		bill.Status = status
		return tx.UpdateHeader(ctx, bill)
	})
	s.observe("update_status", err)
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx)
	s.record(ctx, accountID, "billing:update_status", billID, map[string]any{"status": string(status)})
	return s.repo.GetBill(ctx, accountID, billID)
}

// Delete releases every reserved quantity back to its lot, then removes the
// aggregate. A release against a vanished lot aborts the whole deletion with
// a consistency error; no partial restoration can be observed.
func (s *Service) Delete(ctx context.Context, accountID, billID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bill, err := tx.GetBillForUpdate(ctx, accountID, billID)
		if err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, bill.ID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := tx.ReleaseLot(ctx, accountID, it.LotID, it.Quantity); err != nil {
				if errors.Is(err, inventory.ErrLotNotFound) {
					return &ConsistencyError{
						Op:     "delete bill " + bill.Number,
						Detail: fmt.Sprintf("bill item %d references missing lot %d", it.ID, it.LotID),
					}
				}
				return err
			}
		}
		return tx.DeleteBillRows(ctx, bill.ID)
	})
	s.observe("delete", err)
	if err != nil {
		return err
	}

	s.invalidate(ctx)
	s.record(ctx, accountID, "billing:delete", billID, nil)
	return nil
}

func (s *Service) observe(op string, err error) {
	if s.observer != nil {
		s.observer.ObserveSettlement(op, err)
	}
}

func (s *Service) invalidate(ctx context.Context) {
	if s.stats != nil {
		_ = s.stats.Invalidate(ctx)
	}
}

func (s *Service) record(ctx context.Context, accountID int64, action string, billID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  accountID,
		Action:   action,
		Entity:   "bill",
		EntityID: fmt.Sprintf("%d", billID),
		Meta:     meta,
	})
}

func validateCreate(req CreateBillRequest) error {
	if len(req.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "at least one line is required"}
	}
	if req.BillDate.IsZero() {
		return &ValidationError{Field: "bill_date", Reason: "required"}
	}
	if req.TaxRate.IsNegative() || req.TaxRate.GreaterThan(hundred) {
		return &ValidationError{Field: "tax_rate", Reason: "must be within [0, 100]"}
	}
	if req.Status != "" && !req.Status.Valid() {
		return &ValidationError{Field: "status", Reason: "must be due or paid"}
	}
	for i, line := range req.Items {
		if line.LotID <= 0 {
			return &ValidationError{Field: fmt.Sprintf("items[%d].lot_id", i), Reason: "required"}
		}
		if !line.Quantity.IsPositive() {
			return &ValidationError{Field: fmt.Sprintf("items[%d].quantity", i), Reason: "must be > 0"}
		}
		if line.SellingPrice.IsNegative() {
			return &ValidationError{Field: fmt.Sprintf("items[%d].selling_price", i), Reason: "must be >= 0"}
		}
	}
	for i, c := range req.ExtraCharges {
		if c.Name == "" {
			return &ValidationError{Field: fmt.Sprintf("extra_charges[%d].name", i), Reason: "required"}
		}
		if c.Amount.IsNegative() {
			return &ValidationError{Field: fmt.Sprintf("extra_charges[%d].amount", i), Reason: "must be >= 0"}
		}
	}
	return nil
}
