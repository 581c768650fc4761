package inventory

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Lot is a batch of physical stock for one item. AvailableQty tracks the
// unreserved remainder and must stay within [0, Quantity].
type Lot struct {
	ID           int64
	AccountID    int64
	ItemID       int64
	SupplierID   *int64
	BatchCode    string
	Location     string
	Quantity     decimal.Decimal
	AvailableQty decimal.Decimal
	UnitCost     decimal.Decimal
	ReceivedAt   time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LotView is a lot joined with its item and supplier names for listings.
type LotView struct {
	Lot
	ItemName     string
	SupplierName string
}

// IntakeInput describes a stock arrival that opens a new lot.
type IntakeInput struct {
	ItemID     int64
	SupplierID *int64
	BatchCode  string
	Location   string
	Quantity   decimal.Decimal
	UnitCost   decimal.Decimal
	ReceivedAt time.Time
	ActorID    int64
}

// ListFilter narrows lot listings.
type ListFilter struct {
	ItemID int64
	Search string
	Page   int
	Limit  int
}

// ErrLotNotFound indicates the lot does not exist or is not owned by the
// calling account.
var ErrLotNotFound = errors.New("inventory: lot not found")

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrInvalidUnitCost indicates a negative cost value.
var ErrInvalidUnitCost = errors.New("inventory: unit cost must be >= 0")

// ErrInsufficientStock is the sentinel matched by errors.Is for failed
// reservations; the concrete error is always an *InsufficientStockError.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// InsufficientStockError reports a reservation that exceeds a lot's
// available quantity.
type InsufficientStockError struct {
	LotID     int64
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: lot %d has %s available, %s requested", e.LotID, e.Available, e.Requested)
}

// Is lets errors.Is(err, ErrInsufficientStock) match the typed error.
func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
