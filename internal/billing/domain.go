package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BillStatus enumerates payment states. Status never affects inventory
// reservation; that is tied to the bill's existence.
type BillStatus string

const (
	// BillStatusDue marks an unpaid bill.
	BillStatusDue BillStatus = "due"
	// BillStatusPaid marks a settled bill.
	BillStatusPaid BillStatus = "paid"
)

// Valid reports whether the status is one of the two legal values.
func (s BillStatus) Valid() bool {
	return s == BillStatusDue || s == BillStatusPaid
}

// Bill is the aggregate root: header plus owned items and extra charges.
// Total == Subtotal + Tax + ExtraTotal, with Tax == round2(Subtotal*TaxRate/100).
type Bill struct {
	ID            int64
	AccountID     int64
	ClientID      int64
	ClientName    string
	Number        string
	InvoiceNumber string
	BillDate      time.Time
	DueDate       *time.Time
	Subtotal      decimal.Decimal
	TaxRate       decimal.Decimal
	Tax           decimal.Decimal
	ExtraTotal    decimal.Decimal
	Total         decimal.Decimal
	Status        BillStatus
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Items        []BillItem
	ExtraCharges []ExtraCharge
}

// BillItem reserves Quantity from one inventory lot at SellingPrice.
type BillItem struct {
	ID           int64
	BillID       int64
	LotID        int64
	Quantity     decimal.Decimal
	SellingPrice decimal.Decimal
	Total        decimal.Decimal
}

// ExtraCharge is a named flat fee added outside the per-item subtotal.
type ExtraCharge struct {
	ID     int64
	BillID int64
	Name   string
	Amount decimal.Decimal
}

// ErrValidation is the sentinel matched by errors.Is for malformed input;
// the concrete error is a *ValidationError naming the offending field.
var ErrValidation = errors.New("billing: validation failed")

// ValidationError reports which request field failed which rule.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("billing: invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match the typed error.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ErrConsistency signals an invariant the system assumes cannot break did
// break, e.g. a bill item referencing a lot that no longer exists during
// deletion. Fatal to the operation, not retryable.
var ErrConsistency = errors.New("billing: consistency violation")

// ConsistencyError carries what was being done when the invariant broke.
type ConsistencyError struct {
	Op     string
	Detail string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("billing: %s: %s", e.Op, e.Detail)
}

// Is lets errors.Is(err, ErrConsistency) match the typed error.
func (e *ConsistencyError) Is(target error) bool {
	return target == ErrConsistency
}

// ErrInvalidStatus rejects transitions outside due<->paid.
var ErrInvalidStatus = errors.New("billing: invalid status")
